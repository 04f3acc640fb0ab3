package service

import "fmt"

// Stable machine-readable failure codes surfaced to callers.
const (
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeRateLimited         = "RATE_LIMITED"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodePhoneMismatch       = "PHONE_MISMATCH"
	CodeAlreadyUsed         = "OTP_ALREADY_USED"
	CodeExpired             = "EXPIRED_OTP"
	CodeMaxAttemptsExceeded = "MAX_ATTEMPTS_EXCEEDED"
	CodeInvalidOTP          = "INVALID_OTP"
	CodeServerError         = "SERVER_ERROR"
)

// Failure is a typed, user-facing failure. Every failure carries a stable
// code and a human message; attempts and retry hints are attached only where
// they apply. Plaintext codes and store internals never appear here.
type Failure struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	AttemptsRemaining *int   `json:"attempts_remaining,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func newFailure(code, message string) *Failure {
	return &Failure{Code: code, Message: message}
}

func serverError() *Failure {
	return newFailure(CodeServerError, "something went wrong, please retry later")
}

func invalidCodeFailure(attemptsRemaining int) *Failure {
	f := newFailure(CodeInvalidOTP, "the code you entered is incorrect")
	f.AttemptsRemaining = &attemptsRemaining
	return f
}

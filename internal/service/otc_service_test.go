package service

import (
	"context"
	"testing"
	"time"

	"verify-service/internal/model"
)

func mustIssue(t *testing.T, h *testHarness, phone string, meta model.SessionMetadata) *IssueResult {
	t.Helper()
	result, failure := h.svc.Issue(context.Background(), phone, meta)
	if failure != nil {
		t.Fatalf("Issue() failure = %v", failure)
	}
	return result
}

func wrongCode(right string) string {
	if right == "000000" {
		return "000001"
	}
	return "000000"
}

func TestIssuePersistsAfterDelivery(t *testing.T) {
	h := newTestHarness()

	result := mustIssue(t, h, testPhone, model.SessionMetadata{Name: "Jane", Email: "jane@example.com"})

	if result.SessionID == "" || result.CorrelationID != "corr-123" {
		t.Fatalf("Issue() result = %+v", result)
	}
	if result.ExpiresInSeconds != 300 {
		t.Fatalf("ExpiresInSeconds = %d, want 300", result.ExpiresInSeconds)
	}

	session, ok := h.repo.sessions[result.SessionID]
	if !ok {
		t.Fatal("session not persisted")
	}
	if session.Phone != testPhone || session.Used || session.Attempts != 0 {
		t.Fatalf("persisted session = %+v", session)
	}
	if session.CodeHash == h.dispatcher.sentCode {
		t.Fatal("stored hash equals the plaintext code")
	}
	if session.Metadata.Name != "Jane" || session.Metadata.Email != "jane@example.com" {
		t.Fatalf("metadata not carried through: %+v", session.Metadata)
	}
	if !session.ExpiresAt.Equal(session.CreatedAt.Add(5 * time.Minute)) {
		t.Fatalf("ExpiresAt = %v, want CreatedAt + 5m", session.ExpiresAt)
	}
}

func TestIssueInvalidPhone(t *testing.T) {
	h := newTestHarness()

	_, failure := h.svc.Issue(context.Background(), "not-a-phone", model.SessionMetadata{})
	if failure == nil || failure.Code != CodeValidationFailed {
		t.Fatalf("Issue() failure = %v, want %s", failure, CodeValidationFailed)
	}
	if h.dispatcher.calls != 0 {
		t.Fatal("dispatcher called for a malformed phone")
	}
	if len(h.repo.sessions) != 0 {
		t.Fatal("session persisted for a malformed phone")
	}
}

func TestIssueDeliveryFailureLeavesNoSession(t *testing.T) {
	h := newTestHarness()
	h.dispatcher.sendErr = errStoreDown

	_, failure := h.svc.Issue(context.Background(), testPhone, model.SessionMetadata{})
	if failure == nil || failure.Code != CodeServerError {
		t.Fatalf("Issue() failure = %v, want %s", failure, CodeServerError)
	}
	if len(h.repo.sessions) != 0 {
		t.Fatal("session persisted despite delivery failure")
	}
}

func TestIssueWhileLockHeld(t *testing.T) {
	h := newTestHarness()
	h.lock.held = true

	_, failure := h.svc.Issue(context.Background(), testPhone, model.SessionMetadata{})
	if failure == nil || failure.Code != CodeRateLimited {
		t.Fatalf("Issue() failure = %v, want %s", failure, CodeRateLimited)
	}
	if h.dispatcher.calls != 0 {
		t.Fatal("dispatcher called while issuance lock was held")
	}
}

func TestIssueLockFailureFallsThrough(t *testing.T) {
	h := newTestHarness()
	h.lock.acquireErr = errStoreDown

	if result := mustIssue(t, h, testPhone, model.SessionMetadata{}); result.SessionID == "" {
		t.Fatal("issuance blocked by lock store outage")
	}
}

// Scenario C: three codes inside the window, the fourth request is rejected.
func TestIssueRateLimitedOnFourth(t *testing.T) {
	h := newTestHarness()

	for i := 0; i < 3; i++ {
		mustIssue(t, h, testPhone, model.SessionMetadata{})
		h.advance(2 * time.Minute)
	}

	_, failure := h.svc.Issue(context.Background(), testPhone, model.SessionMetadata{})
	if failure == nil || failure.Code != CodeRateLimited {
		t.Fatalf("4th Issue() failure = %v, want %s", failure, CodeRateLimited)
	}
	if failure.RetryAfterSeconds <= 0 || failure.RetryAfterSeconds > 900 {
		t.Fatalf("RetryAfterSeconds = %d, want in (0, 900]", failure.RetryAfterSeconds)
	}
	if h.dispatcher.calls != 3 {
		t.Fatalf("dispatcher calls = %d, want 3", h.dispatcher.calls)
	}
}

// Scenario D: verifying a session id that was never issued.
func TestVerifyUnknownSession(t *testing.T) {
	h := newTestHarness()

	_, failure := h.svc.Verify(context.Background(),
		"b4b2f1a0-7f6e-4c3d-9a8b-1c2d3e4f5a6b", testPhone, "123456")
	if failure == nil || failure.Code != CodeSessionNotFound {
		t.Fatalf("Verify() failure = %v, want %s", failure, CodeSessionNotFound)
	}
}

func TestVerifyMalformedInput(t *testing.T) {
	h := newTestHarness()
	result := mustIssue(t, h, testPhone, model.SessionMetadata{})

	cases := []struct {
		name      string
		sessionID string
		phone     string
		code      string
	}{
		{"bad session id", "nope", testPhone, "123456"},
		{"bad phone", result.SessionID, "080123", "123456"},
		{"bad code", result.SessionID, testPhone, "12345"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, failure := h.svc.Verify(context.Background(), tc.sessionID, tc.phone, tc.code)
			if failure == nil || failure.Code != CodeValidationFailed {
				t.Fatalf("Verify() failure = %v, want %s", failure, CodeValidationFailed)
			}
		})
	}

	if h.repo.sessions[result.SessionID].Attempts != 0 {
		t.Fatal("malformed input consumed an attempt")
	}
}

func TestVerifyPhoneMismatchLeavesSessionUntouched(t *testing.T) {
	h := newTestHarness()
	result := mustIssue(t, h, testPhone, model.SessionMetadata{})

	_, failure := h.svc.Verify(context.Background(), result.SessionID, "+14155550123", h.dispatcher.sentCode)
	if failure == nil || failure.Code != CodePhoneMismatch {
		t.Fatalf("Verify() failure = %v, want %s", failure, CodePhoneMismatch)
	}

	session := h.repo.sessions[result.SessionID]
	if session == nil {
		t.Fatal("session deleted on phone mismatch")
	}
	if session.Attempts != 0 || session.Used {
		t.Fatalf("session mutated on phone mismatch: %+v", session)
	}
}

// Scenario A: four wrong attempts count down, the correct code still wins.
func TestVerifyWrongAttemptsThenSuccess(t *testing.T) {
	h := newTestHarness()
	result := mustIssue(t, h, testPhone, model.SessionMetadata{Name: "Jane"})
	bad := wrongCode(h.dispatcher.sentCode)

	for i, wantRemaining := range []int{4, 3, 2, 1} {
		_, failure := h.svc.Verify(context.Background(), result.SessionID, testPhone, bad)
		if failure == nil || failure.Code != CodeInvalidOTP {
			t.Fatalf("attempt %d: failure = %v, want %s", i+1, failure, CodeInvalidOTP)
		}
		if failure.AttemptsRemaining == nil || *failure.AttemptsRemaining != wantRemaining {
			t.Fatalf("attempt %d: AttemptsRemaining = %v, want %d", i+1, failure.AttemptsRemaining, wantRemaining)
		}
	}

	verified, failure := h.svc.Verify(context.Background(), result.SessionID, testPhone, h.dispatcher.sentCode)
	if failure != nil {
		t.Fatalf("5th attempt with correct code failed: %v", failure)
	}
	if verified.AccountID != "acct-1" || verified.Token != "token-for-acct-1" {
		t.Fatalf("VerifyResult = %+v", verified)
	}
	if !verified.IsNewAccount {
		t.Fatal("IsNewAccount = false for a fresh account")
	}
	if verified.Metadata.Name != "Jane" {
		t.Fatalf("metadata not returned: %+v", verified.Metadata)
	}
}

func TestVerifySuccessConsumesSession(t *testing.T) {
	h := newTestHarness()
	result := mustIssue(t, h, testPhone, model.SessionMetadata{})

	if _, failure := h.svc.Verify(context.Background(), result.SessionID, testPhone, h.dispatcher.sentCode); failure != nil {
		t.Fatalf("Verify() failure = %v", failure)
	}

	// The grace-delay callback runs synchronously in tests, so the session
	// is gone and a replay reports not-found rather than already-used.
	if _, ok := h.repo.sessions[result.SessionID]; ok {
		t.Fatal("session not deleted after successful verification")
	}
	_, failure := h.svc.Verify(context.Background(), result.SessionID, testPhone, h.dispatcher.sentCode)
	if failure == nil || failure.Code != CodeSessionNotFound {
		t.Fatalf("replay failure = %v, want %s", failure, CodeSessionNotFound)
	}
}

func TestVerifyUsedSessionRejected(t *testing.T) {
	h := newTestHarness()
	h.svc.deleteAfter = func(delay time.Duration, fn func()) {} // keep the used row around
	result := mustIssue(t, h, testPhone, model.SessionMetadata{})

	if _, failure := h.svc.Verify(context.Background(), result.SessionID, testPhone, h.dispatcher.sentCode); failure != nil {
		t.Fatalf("first Verify() failure = %v", failure)
	}

	_, failure := h.svc.Verify(context.Background(), result.SessionID, testPhone, h.dispatcher.sentCode)
	if failure == nil || failure.Code != CodeAlreadyUsed {
		t.Fatalf("second Verify() failure = %v, want %s", failure, CodeAlreadyUsed)
	}
}

// Scenario B: the correct code no longer verifies once the TTL passed.
func TestVerifyExpiredSessionDeleted(t *testing.T) {
	h := newTestHarness()
	result := mustIssue(t, h, testPhone, model.SessionMetadata{})

	h.advance(6 * time.Minute)

	_, failure := h.svc.Verify(context.Background(), result.SessionID, testPhone, h.dispatcher.sentCode)
	if failure == nil || failure.Code != CodeExpired {
		t.Fatalf("Verify() failure = %v, want %s", failure, CodeExpired)
	}
	if _, ok := h.repo.sessions[result.SessionID]; ok {
		t.Fatal("expired session not deleted")
	}
}

func TestVerifyMaxAttemptsDeletedEvenWithCorrectCode(t *testing.T) {
	h := newTestHarness()
	result := mustIssue(t, h, testPhone, model.SessionMetadata{})
	h.repo.sessions[result.SessionID].Attempts = 5

	_, failure := h.svc.Verify(context.Background(), result.SessionID, testPhone, h.dispatcher.sentCode)
	if failure == nil || failure.Code != CodeMaxAttemptsExceeded {
		t.Fatalf("Verify() failure = %v, want %s", failure, CodeMaxAttemptsExceeded)
	}
	if _, ok := h.repo.sessions[result.SessionID]; ok {
		t.Fatal("locked session not deleted")
	}
}

func TestVerifyExistingAccount(t *testing.T) {
	h := newTestHarness()
	h.identity.existed = true
	result := mustIssue(t, h, testPhone, model.SessionMetadata{})

	verified, failure := h.svc.Verify(context.Background(), result.SessionID, testPhone, h.dispatcher.sentCode)
	if failure != nil {
		t.Fatalf("Verify() failure = %v", failure)
	}
	if verified.IsNewAccount {
		t.Fatal("IsNewAccount = true for an existing account")
	}
}

func TestVerifyAttemptPersistFailure(t *testing.T) {
	h := newTestHarness()
	result := mustIssue(t, h, testPhone, model.SessionMetadata{})
	h.repo.updateErr = errStoreDown

	_, failure := h.svc.Verify(context.Background(), result.SessionID, testPhone, wrongCode(h.dispatcher.sentCode))
	if failure == nil || failure.Code != CodeServerError {
		t.Fatalf("Verify() failure = %v, want %s", failure, CodeServerError)
	}
}

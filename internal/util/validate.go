package util

import "regexp"

var (
	e164Pattern    = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)
	codePattern    = regexp.MustCompile(`^[0-9]{6}$`)
	sessionPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// IsValidPhone reports whether s is an E.164-formatted phone number.
func IsValidPhone(s string) bool {
	return e164Pattern.MatchString(s)
}

// IsValidCode reports whether s is a six-digit numeric code.
func IsValidCode(s string) bool {
	return codePattern.MatchString(s)
}

// IsValidSessionID reports whether s looks like a session identifier (UUID).
func IsValidSessionID(s string) bool {
	return sessionPattern.MatchString(s)
}

package util

import "strings"

// MaskPhone keeps the dialing prefix and the last two digits so a log line
// can be correlated with a support ticket without exposing the number.
// "+2348100000000" -> "+234********00".
func MaskPhone(phone string) string {
	if len(phone) < 6 {
		return strings.Repeat("*", len(phone))
	}
	prefixLen := 4
	if !strings.HasPrefix(phone, "+") {
		prefixLen = 3
	}
	return phone[:prefixLen] + strings.Repeat("*", len(phone)-prefixLen-2) + phone[len(phone)-2:]
}

// MaskEmail masks the local part except its first character.
// "jane.doe@example.com" -> "j*******@example.com".
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 1 {
		return email
	}
	return email[:1] + strings.Repeat("*", at-1) + email[at:]
}

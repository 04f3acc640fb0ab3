package util

import "testing"

func TestIsValidPhone(t *testing.T) {
	valid := []string{"+2348100000000", "+14155550123", "+4912345678"}
	for _, p := range valid {
		if !IsValidPhone(p) {
			t.Errorf("IsValidPhone(%q) = false, want true", p)
		}
	}
	invalid := []string{"", "2348100000000", "+0348100000000", "+1", "+234810000000000000", "+234abc0000"}
	for _, p := range invalid {
		if IsValidPhone(p) {
			t.Errorf("IsValidPhone(%q) = true, want false", p)
		}
	}
}

func TestIsValidCode(t *testing.T) {
	if !IsValidCode("123456") {
		t.Error("IsValidCode(\"123456\") = false, want true")
	}
	for _, c := range []string{"", "12345", "1234567", "12345a", "12 456"} {
		if IsValidCode(c) {
			t.Errorf("IsValidCode(%q) = true, want false", c)
		}
	}
}

func TestIsValidSessionID(t *testing.T) {
	if !IsValidSessionID("b4b2f1a0-7f6e-4c3d-9a8b-1c2d3e4f5a6b") {
		t.Error("well-formed UUID rejected")
	}
	for _, s := range []string{"", "not-a-uuid", "b4b2f1a07f6e4c3d9a8b1c2d3e4f5a6b"} {
		if IsValidSessionID(s) {
			t.Errorf("IsValidSessionID(%q) = true, want false", s)
		}
	}
}

package otc

import (
	"strconv"
	"testing"
)

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode() error = %v", err)
		}
		if len(code) != CodeLength {
			t.Fatalf("GenerateCode() = %q, want %d digits", code, CodeLength)
		}
		n, err := strconv.Atoi(code)
		if err != nil {
			t.Fatalf("GenerateCode() = %q, not numeric", code)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("GenerateCode() = %d, out of range [100000, 999999]", n)
		}
	}
}

func TestGenerateCodeVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode() error = %v", err)
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Fatalf("50 generated codes produced %d distinct values", len(seen))
	}
}

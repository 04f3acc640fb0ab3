package hashing

import (
	"strings"
	"testing"

	"verify-service/internal/config"
)

func testHasher() *Hasher {
	return NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8192,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	})
}

func TestHashCodeNeverStoresPlaintext(t *testing.T) {
	h := testHasher()

	encoded, err := h.HashCode("483921")
	if err != nil {
		t.Fatalf("HashCode() error = %v", err)
	}
	if encoded == "483921" || strings.Contains(encoded, "483921") {
		t.Fatalf("encoded hash contains the plaintext code: %q", encoded)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("encoded hash has unexpected format: %q", encoded)
	}
}

func TestCompareCode(t *testing.T) {
	h := testHasher()

	encoded, err := h.HashCode("483921")
	if err != nil {
		t.Fatalf("HashCode() error = %v", err)
	}

	ok, err := h.CompareCode("483921", encoded)
	if err != nil {
		t.Fatalf("CompareCode() error = %v", err)
	}
	if !ok {
		t.Fatal("CompareCode() = false for the originating code")
	}

	for _, wrong := range []string{"483922", "384921", "000000", "999999", "100000"} {
		ok, err := h.CompareCode(wrong, encoded)
		if err != nil {
			t.Fatalf("CompareCode(%q) error = %v", wrong, err)
		}
		if ok {
			t.Fatalf("CompareCode(%q) = true, want false", wrong)
		}
	}
}

func TestCompareCodeMalformedHash(t *testing.T) {
	h := testHasher()

	if _, err := h.CompareCode("483921", "not-a-hash"); err == nil {
		t.Fatal("CompareCode() with malformed hash returned no error")
	}
}

func TestHashCodeSaltsEveryCall(t *testing.T) {
	h := testHasher()

	first, err := h.HashCode("483921")
	if err != nil {
		t.Fatalf("HashCode() error = %v", err)
	}
	second, err := h.HashCode("483921")
	if err != nil {
		t.Fatalf("HashCode() error = %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same code are identical, salt is not fresh")
	}
}

func TestPhoneHash(t *testing.T) {
	plain := PhoneHash("+2348100000000")
	if len(plain) != 64 {
		t.Fatalf("PhoneHash() length = %d, want 64 hex chars", len(plain))
	}
	if plain != PhoneHash("+2348100000000") {
		t.Fatal("PhoneHash() is not deterministic")
	}
	if plain != PhoneHash("+234 810-000 0000") {
		t.Fatal("PhoneHash() does not normalize separators")
	}
	if plain == PhoneHash("+2348100000001") {
		t.Fatal("PhoneHash() collides for different phones")
	}
}

package bucketing

import "testing"

func TestAccountBucketDeterministic(t *testing.T) {
	m := NewManager(256)

	first := m.AccountBucket("3f1c9b2e-55aa-4f0e-8a2d-9d6b1c0e7f44")
	for i := 0; i < 10; i++ {
		if got := m.AccountBucket("3f1c9b2e-55aa-4f0e-8a2d-9d6b1c0e7f44"); got != first {
			t.Fatalf("AccountBucket() = %d on call %d, want %d", got, i, first)
		}
	}
}

func TestAccountBucketRange(t *testing.T) {
	m := NewManager(16)

	for _, id := range []string{"a", "b", "c", "account-1", "account-2", ""} {
		bucket := m.AccountBucket(id)
		if bucket < 0 || bucket >= 16 {
			t.Fatalf("AccountBucket(%q) = %d, want in [0, 16)", id, bucket)
		}
	}
}

func TestDefaultBucketCount(t *testing.T) {
	if got := NewManager(0).Buckets(); got != 256 {
		t.Fatalf("Buckets() = %d, want 256", got)
	}
}

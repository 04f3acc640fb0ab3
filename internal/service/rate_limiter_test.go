package service

import (
	"context"
	"testing"
	"time"

	"verify-service/internal/model"
)

const testPhone = "+2348100000000"

func seedSession(repo *fakeSessionRepo, id, phone string, createdAt time.Time) {
	repo.sessions[id] = &model.OTCSession{
		SessionID: id,
		Phone:     phone,
		CreatedAt: createdAt,
	}
}

func newTestLimiter(repo *fakeSessionRepo, now time.Time) *RateLimiter {
	limiter := NewRateLimiter(repo, 15*time.Minute, 3)
	limiter.now = func() time.Time { return now }
	return limiter
}

func TestRateLimiterAdmitsUnderLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeSessionRepo()
	seedSession(repo, "s1", testPhone, now.Add(-10*time.Minute))
	seedSession(repo, "s2", testPhone, now.Add(-5*time.Minute))

	limiter := newTestLimiter(repo, now)
	if failure := limiter.CheckAndAdmit(context.Background(), testPhone); failure != nil {
		t.Fatalf("CheckAndAdmit() = %v, want admit", failure)
	}
}

func TestRateLimiterRejectsAtLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeSessionRepo()
	seedSession(repo, "s1", testPhone, now.Add(-10*time.Minute))
	seedSession(repo, "s2", testPhone, now.Add(-5*time.Minute))
	seedSession(repo, "s3", testPhone, now.Add(-1*time.Minute))

	limiter := newTestLimiter(repo, now)
	failure := limiter.CheckAndAdmit(context.Background(), testPhone)
	if failure == nil {
		t.Fatal("CheckAndAdmit() admitted a 4th issuance inside the window")
	}
	if failure.Code != CodeRateLimited {
		t.Fatalf("failure code = %q, want %q", failure.Code, CodeRateLimited)
	}
	if failure.RetryAfterSeconds <= 0 || failure.RetryAfterSeconds > 900 {
		t.Fatalf("RetryAfterSeconds = %d, want in (0, 900]", failure.RetryAfterSeconds)
	}
	// Oldest session is 10 minutes old, so the window frees up in 5 minutes.
	if failure.RetryAfterSeconds != 300 {
		t.Fatalf("RetryAfterSeconds = %d, want 300", failure.RetryAfterSeconds)
	}
}

func TestRateLimiterIgnoresSessionsOutsideWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeSessionRepo()
	seedSession(repo, "s1", testPhone, now.Add(-20*time.Minute))
	seedSession(repo, "s2", testPhone, now.Add(-16*time.Minute))
	seedSession(repo, "s3", testPhone, now.Add(-5*time.Minute))

	limiter := newTestLimiter(repo, now)
	if failure := limiter.CheckAndAdmit(context.Background(), testPhone); failure != nil {
		t.Fatalf("CheckAndAdmit() = %v, want admit (only one session in window)", failure)
	}
}

func TestRateLimiterCountsPerPhone(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeSessionRepo()
	seedSession(repo, "s1", "+14155550123", now.Add(-2*time.Minute))
	seedSession(repo, "s2", "+14155550123", now.Add(-3*time.Minute))
	seedSession(repo, "s3", "+14155550123", now.Add(-4*time.Minute))

	limiter := newTestLimiter(repo, now)
	if failure := limiter.CheckAndAdmit(context.Background(), testPhone); failure != nil {
		t.Fatalf("CheckAndAdmit() = %v, another phone's sessions counted", failure)
	}
}

func TestRateLimiterFailsOpenOnStoreError(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeSessionRepo()
	repo.queryErr = errStoreDown

	limiter := newTestLimiter(repo, now)
	if failure := limiter.CheckAndAdmit(context.Background(), testPhone); failure != nil {
		t.Fatalf("CheckAndAdmit() = %v, want fail-open admit on store error", failure)
	}
}

package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"verify-service/internal/model"
	"verify-service/internal/util"
)

// RateLimiter caps how many codes may be issued to one phone inside a
// rolling window. The count is re-derived from the session store on every
// call, so it survives process restarts. Store errors fail open: throttling
// is traded for availability, and the error is logged instead.
type RateLimiter struct {
	sessions model.SessionRepository
	window   time.Duration
	max      int
	now      func() time.Time
}

func NewRateLimiter(sessions model.SessionRepository, window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		sessions: sessions,
		window:   window,
		max:      max,
		now:      time.Now,
	}
}

// CheckAndAdmit returns nil when issuance is allowed, or a RATE_LIMITED
// failure with retry guidance derived from the oldest session still inside
// the window.
func (r *RateLimiter) CheckAndAdmit(ctx context.Context, phone string) *Failure {
	now := r.now().UTC()
	since := now.Add(-r.window)

	recent, err := r.sessions.QueryByPhoneSince(ctx, phone, since)
	if err != nil {
		util.Warn("Rate limit check failed, allowing request",
			util.String("phone", util.MaskPhone(phone)),
			util.ErrorField(err))
		return nil
	}

	if len(recent) < r.max {
		return nil
	}

	oldest := recent[0].CreatedAt
	for _, s := range recent[1:] {
		if s.CreatedAt.Before(oldest) {
			oldest = s.CreatedAt
		}
	}

	retryAfter := oldest.Add(r.window).Sub(now)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}

	retrySeconds := int(math.Ceil(retryAfter.Seconds()))
	retryMinutes := int(math.Ceil(retryAfter.Minutes()))

	util.Info("Issuance rate limited",
		util.String("phone", util.MaskPhone(phone)),
		util.Int("recent_sessions", len(recent)),
		util.Int("retry_after_seconds", retrySeconds))

	f := newFailure(CodeRateLimited,
		fmt.Sprintf("too many code requests, try again in %d minute(s)", retryMinutes))
	f.RetryAfterSeconds = retrySeconds
	return f
}

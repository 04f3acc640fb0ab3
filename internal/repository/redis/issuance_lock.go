package redis

import (
	"context"
	"fmt"
	"time"

	"verify-service/internal/client"
	"verify-service/internal/util"
)

const issuanceLockPrefix = "otc_issue_lock:"

// IssuanceLock is a short-lived SETNX lock keyed by phone number. It keeps a
// burst of concurrent issuance requests from double-sending while the first
// request is still in flight. The lock is advisory: the rate limiter remains
// the source of truth for admission.
type IssuanceLock struct {
	client *client.RedisClient
}

func NewIssuanceLock(c *client.RedisClient) *IssuanceLock {
	return &IssuanceLock{client: c}
}

// Acquire attempts to take the lock for a phone. Returns false when another
// issuance currently holds it.
func (l *IssuanceLock) Acquire(ctx context.Context, phone string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := issuanceLockPrefix + phone
	ok, err := l.client.SetNX(ctx, key, "locked", ttl)
	if err != nil {
		util.Error("Failed to acquire issuance lock",
			util.String("phone", util.MaskPhone(phone)),
			util.ErrorField(err))
		return false, fmt.Errorf("failed to acquire issuance lock: %w", err)
	}

	util.Debug("Issuance lock attempt",
		util.String("phone", util.MaskPhone(phone)),
		util.Bool("acquired", ok))

	return ok, nil
}

// Release drops the lock early once the session has been persisted.
func (l *IssuanceLock) Release(ctx context.Context, phone string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := issuanceLockPrefix + phone
	if err := l.client.Del(ctx, key); err != nil {
		util.Error("Failed to release issuance lock",
			util.String("phone", util.MaskPhone(phone)),
			util.ErrorField(err))
		return fmt.Errorf("failed to release issuance lock: %w", err)
	}
	return nil
}

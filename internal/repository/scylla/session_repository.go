package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"verify-service/internal/model"
	"verify-service/internal/util"
)

// SessionRepository persists OTC sessions across two tables: otc_sessions
// keyed by session id for the state machine, and otc_sessions_by_phone
// partitioned by phone for the rate-limit window query. Both rows carry a
// row TTL slightly longer than the rate-limit window so abandoned sessions
// age out without a sweeper.
type SessionRepository struct {
	client    *ScyllaClient
	recordTTL time.Duration
}

func NewSessionRepository(client *ScyllaClient, rateLimitWindow time.Duration) *SessionRepository {
	return &SessionRepository{
		client:    client,
		recordTTL: rateLimitWindow + time.Minute,
	}
}

func (r *SessionRepository) Create(ctx context.Context, session *model.OTCSession) error {
	ttlSeconds := int(r.recordTTL.Seconds())

	query := r.client.Prepared.CreateSession.Bind(
		session.SessionID, session.Phone, session.CodeHash,
		session.CreatedAt, session.ExpiresAt, session.Attempts, session.Used,
		session.Metadata.Name, session.Metadata.Email, session.CorrelationID,
		ttlSeconds,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to create OTC session",
			util.String("phone", util.MaskPhone(session.Phone)),
			util.String("session_id", session.SessionID),
			util.ErrorField(err))
		return fmt.Errorf("failed to create otc session: %w", err)
	}

	byPhone := r.client.Prepared.CreateSessionByPhone.Bind(
		session.Phone, session.CreatedAt, session.SessionID, ttlSeconds,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(byPhone, 2); err != nil {
		// Best effort rollback so a half-written session cannot be verified.
		_ = r.client.Prepared.DeleteSession.Bind(session.SessionID).WithContext(ctx).Exec()
		util.Error("Failed to index OTC session by phone",
			util.String("session_id", session.SessionID),
			util.ErrorField(err))
		return fmt.Errorf("failed to index otc session by phone: %w", err)
	}

	util.Info("OTC session created",
		util.String("session_id", session.SessionID),
		util.String("phone", util.MaskPhone(session.Phone)),
		util.Any("expires_at", session.ExpiresAt))

	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*model.OTCSession, error) {
	session := &model.OTCSession{}

	query := r.client.Prepared.GetSessionByID.Bind(sessionID).WithContext(ctx)
	err := query.Scan(
		&session.SessionID, &session.Phone, &session.CodeHash,
		&session.CreatedAt, &session.ExpiresAt, &session.Attempts, &session.Used,
		&session.Metadata.Name, &session.Metadata.Email, &session.CorrelationID,
	)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, model.ErrSessionNotFound
		}
		util.Error("Failed to get OTC session",
			util.String("session_id", sessionID),
			util.ErrorField(err))
		return nil, fmt.Errorf("failed to get otc session: %w", err)
	}

	return session, nil
}

// QueryByPhoneSince returns the sessions issued to a phone after the given
// instant, newest first. Only the identity and creation time are populated;
// that is all the rate limiter consumes.
func (r *SessionRepository) QueryByPhoneSince(ctx context.Context, phone string, since time.Time) ([]*model.OTCSession, error) {
	iter := r.client.Prepared.GetSessionsByPhone.Bind(phone, since).WithContext(ctx).Iter()

	var sessions []*model.OTCSession
	var sessionID string
	var createdAt time.Time
	for iter.Scan(&sessionID, &createdAt) {
		sessions = append(sessions, &model.OTCSession{
			SessionID: sessionID,
			Phone:     phone,
			CreatedAt: createdAt,
		})
	}
	if err := iter.Close(); err != nil {
		util.Error("Failed to query OTC sessions by phone",
			util.String("phone", util.MaskPhone(phone)),
			util.ErrorField(err))
		return nil, fmt.Errorf("failed to query otc sessions by phone: %w", err)
	}

	return sessions, nil
}

func (r *SessionRepository) UpdateAttempts(ctx context.Context, sessionID string, attempts int) error {
	query := r.client.Prepared.UpdateAttempts.Bind(attempts, sessionID).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update OTC attempts",
			util.String("session_id", sessionID),
			util.ErrorField(err))
		return fmt.Errorf("failed to update otc attempts: %w", err)
	}

	util.Debug("OTC attempts updated",
		util.String("session_id", sessionID),
		util.Int("attempts", attempts))
	return nil
}

func (r *SessionRepository) MarkUsed(ctx context.Context, sessionID string) error {
	query := r.client.Prepared.MarkUsed.Bind(sessionID).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to mark OTC session used",
			util.String("session_id", sessionID),
			util.ErrorField(err))
		return fmt.Errorf("failed to mark otc session used: %w", err)
	}

	util.Info("OTC session marked used", util.String("session_id", sessionID))
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	// The by-phone row needs the partition key, so read it back first.
	session, err := r.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return nil // already gone
		}
		return err
	}

	query := r.client.Prepared.DeleteSession.Bind(sessionID).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to delete OTC session",
			util.String("session_id", sessionID),
			util.ErrorField(err))
		return fmt.Errorf("failed to delete otc session: %w", err)
	}

	byPhone := r.client.Prepared.DeleteSessionByPhone.Bind(session.Phone, session.CreatedAt).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(byPhone, 2); err != nil {
		util.Warn("Failed to delete OTC session phone index, row will age out",
			util.String("session_id", sessionID),
			util.ErrorField(err))
	}

	util.Debug("OTC session deleted", util.String("session_id", sessionID))
	return nil
}

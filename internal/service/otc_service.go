package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"verify-service/internal/audit"
	"verify-service/internal/config"
	"verify-service/internal/hashing"
	"verify-service/internal/identity"
	"verify-service/internal/model"
	"verify-service/internal/otc"
	"verify-service/internal/util"
)

// Dispatcher is the delivery channel that carries a plaintext code to the
// user. A failed send must prevent session persistence.
type Dispatcher interface {
	Send(ctx context.Context, phone, code string) (string, error)
}

// IssueResult is what issuance returns to the caller. The plaintext code is
// never part of it.
type IssueResult struct {
	SessionID        string `json:"session_id"`
	CorrelationID    string `json:"correlation_id"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

// VerifyResult is the outcome of a successful verification.
type VerifyResult struct {
	AccountID    string                `json:"account_id"`
	IsNewAccount bool                  `json:"is_new_account"`
	Token        string                `json:"token"`
	Metadata     model.SessionMetadata `json:"metadata,omitempty"`
}

// OTCService drives the one-time-code session lifecycle: rate-limited
// issuance with delivery-gated persistence, and the ordered verification
// state machine.
type OTCService struct {
	sessions   model.SessionRepository
	lock       model.IssuanceLock
	limiter    *RateLimiter
	dispatcher Dispatcher
	identity   identity.Provider
	hasher     *hashing.Hasher
	recorder   *audit.Recorder
	events     *EventPublisher
	config     *config.OTCConfig

	now         func() time.Time
	deleteAfter func(delay time.Duration, fn func())
}

func NewOTCService(
	sessions model.SessionRepository,
	lock model.IssuanceLock,
	limiter *RateLimiter,
	dispatcher Dispatcher,
	identityProvider identity.Provider,
	hasher *hashing.Hasher,
	recorder *audit.Recorder,
	events *EventPublisher,
	cfg *config.Config,
) *OTCService {
	return &OTCService{
		sessions:   sessions,
		lock:       lock,
		limiter:    limiter,
		dispatcher: dispatcher,
		identity:   identityProvider,
		hasher:     hasher,
		recorder:   recorder,
		events:     events,
		config:     &cfg.OTC,
		now:        time.Now,
		deleteAfter: func(delay time.Duration, fn func()) {
			time.AfterFunc(delay, fn)
		},
	}
}

// Issue generates and delivers a code for a phone, persisting the session
// only after the delivery channel accepted it.
func (s *OTCService) Issue(ctx context.Context, phone string, meta model.SessionMetadata) (*IssueResult, *Failure) {
	if !util.IsValidPhone(phone) {
		return nil, newFailure(CodeValidationFailed, "phone number must be in E.164 format")
	}

	// Serialize concurrent requests for the same phone. Advisory only: a
	// lock-store outage falls through to the rate limiter.
	acquired, err := s.lock.Acquire(ctx, phone, s.config.IssuanceLockTTL)
	if err == nil && !acquired {
		f := newFailure(CodeRateLimited, "a code request for this phone is already in progress")
		f.RetryAfterSeconds = int(s.config.IssuanceLockTTL.Seconds())
		return nil, f
	}
	if err == nil {
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), s.config.StoreTimeout)
			defer cancel()
			_ = s.lock.Release(releaseCtx, phone)
		}()
	}

	if failure := s.limiter.CheckAndAdmit(ctx, phone); failure != nil {
		s.record(audit.SecurityEvent{
			EventType:   audit.EventRateLimited,
			PhoneMasked: util.MaskPhone(phone),
		})
		return nil, failure
	}

	code, err := otc.GenerateCode()
	if err != nil {
		util.Error("Failed to generate code", util.ErrorField(err))
		return nil, serverError()
	}

	codeHash, err := s.hasher.HashCode(code)
	if err != nil {
		util.Error("Failed to hash code", util.ErrorField(err))
		return nil, serverError()
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, s.config.DispatchTimeout)
	defer cancel()

	correlationID, err := s.dispatcher.Send(dispatchCtx, phone, code)
	if err != nil {
		util.Error("Code delivery failed, session not persisted",
			util.String("phone", util.MaskPhone(phone)),
			util.ErrorField(err))
		s.record(audit.SecurityEvent{
			EventType:   audit.EventCodeDeliveryFailed,
			PhoneMasked: util.MaskPhone(phone),
		})
		return nil, serverError()
	}

	now := s.now().UTC()
	session := &model.OTCSession{
		SessionID:     uuid.New().String(),
		Phone:         phone,
		CodeHash:      codeHash,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.config.CodeTTL),
		Attempts:      0,
		Used:          false,
		Metadata:      meta,
		CorrelationID: correlationID,
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	if err := s.sessions.Create(storeCtx, session); err != nil {
		return nil, serverError()
	}

	s.record(audit.SecurityEvent{
		EventType:   audit.EventCodeIssued,
		SessionID:   session.SessionID,
		PhoneMasked: util.MaskPhone(phone),
	})
	s.publishLifecycle(audit.EventCodeIssued, session.SessionID, phone, "")

	return &IssueResult{
		SessionID:        session.SessionID,
		CorrelationID:    correlationID,
		ExpiresInSeconds: int(s.config.CodeTTL.Seconds()),
	}, nil
}

// Verify runs the verification state machine for one submitted code. The
// checks run in a fixed order so a terminal session never consumes an
// attempt or reaches the hash comparison.
func (s *OTCService) Verify(ctx context.Context, sessionID, phone, submittedCode string) (*VerifyResult, *Failure) {
	if !util.IsValidSessionID(sessionID) || !util.IsValidPhone(phone) || !util.IsValidCode(submittedCode) {
		return nil, newFailure(CodeValidationFailed, "session id, phone, and code are required and must be well formed")
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	session, err := s.sessions.GetByID(storeCtx, sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return nil, newFailure(CodeSessionNotFound, "no verification in progress for this session")
		}
		return nil, serverError()
	}

	if session.Phone != phone {
		// Left untouched: not consumed, not counted as an attempt.
		s.record(audit.SecurityEvent{
			EventType:   audit.EventVerifyFailed,
			SessionID:   sessionID,
			PhoneMasked: util.MaskPhone(phone),
			Detail:      "phone mismatch",
		})
		return nil, newFailure(CodePhoneMismatch, "phone number does not match this session")
	}

	if session.Used {
		return nil, newFailure(CodeAlreadyUsed, "this code has already been used")
	}

	now := s.now().UTC()
	if now.After(session.ExpiresAt) {
		s.deleteSession(sessionID)
		s.record(audit.SecurityEvent{
			EventType:   audit.EventSessionExpired,
			SessionID:   sessionID,
			PhoneMasked: util.MaskPhone(phone),
		})
		return nil, newFailure(CodeExpired, "this code has expired, request a new one")
	}

	if session.Attempts >= s.config.MaxAttempts {
		s.deleteSession(sessionID)
		s.record(audit.SecurityEvent{
			EventType:   audit.EventAttemptsExceeded,
			SessionID:   sessionID,
			PhoneMasked: util.MaskPhone(phone),
			Attempts:    session.Attempts,
		})
		return nil, newFailure(CodeMaxAttemptsExceeded, "too many incorrect attempts, request a new code")
	}

	match, err := s.hasher.CompareCode(submittedCode, session.CodeHash)
	if err != nil {
		util.Error("Failed to compare code",
			util.String("session_id", sessionID),
			util.ErrorField(err))
		return nil, serverError()
	}

	if !match {
		attempts := session.Attempts + 1
		if err := s.sessions.UpdateAttempts(storeCtx, sessionID, attempts); err != nil {
			return nil, serverError()
		}
		s.record(audit.SecurityEvent{
			EventType:   audit.EventVerifyFailed,
			SessionID:   sessionID,
			PhoneMasked: util.MaskPhone(phone),
			Attempts:    attempts,
			Detail:      "incorrect code",
		})
		return nil, invalidCodeFailure(s.config.MaxAttempts - attempts)
	}

	if err := s.sessions.MarkUsed(storeCtx, sessionID); err != nil {
		return nil, serverError()
	}

	// Deleting eagerly could race a client that re-reads session state
	// right after the success response, so removal is deferred.
	s.deleteAfter(s.config.DeleteGraceDelay, func() {
		s.deleteSession(sessionID)
	})

	resolution, err := s.identity.ResolveOrCreate(ctx, phone, session.Metadata)
	if err != nil {
		util.Error("Failed to resolve account after verification",
			util.String("session_id", sessionID),
			util.ErrorField(err))
		return nil, serverError()
	}

	token, err := s.identity.MintCredential(resolution.AccountID)
	if err != nil {
		util.Error("Failed to mint credential",
			util.String("account_id", resolution.AccountID),
			util.ErrorField(err))
		return nil, serverError()
	}

	s.record(audit.SecurityEvent{
		EventType:   audit.EventVerifySucceeded,
		SessionID:   sessionID,
		PhoneMasked: util.MaskPhone(phone),
		AccountID:   resolution.AccountID,
	})
	s.publishLifecycle(audit.EventVerifySucceeded, sessionID, phone, resolution.AccountID)

	if !resolution.Existed {
		s.publishWelcome(resolution.AccountID, phone, session.Metadata)
	}

	util.Info("Verification succeeded",
		util.String("session_id", sessionID),
		util.String("account_id", resolution.AccountID),
		util.Bool("new_account", !resolution.Existed))

	return &VerifyResult{
		AccountID:    resolution.AccountID,
		IsNewAccount: !resolution.Existed,
		Token:        token,
		Metadata:     session.Metadata,
	}, nil
}

// deleteSession removes a terminal session on a fresh context so deletion
// survives the originating request being cancelled.
func (s *OTCService) deleteSession(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.StoreTimeout)
	defer cancel()

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		util.Warn("Failed to delete terminal session, row will age out",
			util.String("session_id", sessionID),
			util.ErrorField(err))
	}
}

func (s *OTCService) record(event audit.SecurityEvent) {
	if s.recorder != nil {
		go s.recorder.Record(event)
	}
}

func (s *OTCService) publishLifecycle(eventType, sessionID, phone, accountID string) {
	if s.events != nil {
		s.events.PublishLifecycle(eventType, sessionID, phone, accountID)
	}
}

func (s *OTCService) publishWelcome(accountID, phone string, meta model.SessionMetadata) {
	if s.events != nil {
		s.events.PublishWelcome(accountID, phone, meta.Name, meta.Email)
	}
}

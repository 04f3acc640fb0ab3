package service

import (
	"context"
	"errors"
	"time"

	"verify-service/internal/config"
	"verify-service/internal/hashing"
	"verify-service/internal/identity"
	"verify-service/internal/model"
)

type fakeSessionRepo struct {
	sessions map[string]*model.OTCSession
	deleted  []string

	createErr error
	queryErr  error
	updateErr error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*model.OTCSession)}
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *model.OTCSession) error {
	if r.createErr != nil {
		return r.createErr
	}
	copied := *session
	r.sessions[session.SessionID] = &copied
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, sessionID string) (*model.OTCSession, error) {
	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *fakeSessionRepo) QueryByPhoneSince(ctx context.Context, phone string, since time.Time) ([]*model.OTCSession, error) {
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	var out []*model.OTCSession
	for _, s := range r.sessions {
		if s.Phone == phone && s.CreatedAt.After(since) {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) UpdateAttempts(ctx context.Context, sessionID string, attempts int) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	session, ok := r.sessions[sessionID]
	if !ok {
		return model.ErrSessionNotFound
	}
	session.Attempts = attempts
	return nil
}

func (r *fakeSessionRepo) MarkUsed(ctx context.Context, sessionID string) error {
	session, ok := r.sessions[sessionID]
	if !ok {
		return model.ErrSessionNotFound
	}
	session.Used = true
	return nil
}

func (r *fakeSessionRepo) Delete(ctx context.Context, sessionID string) error {
	delete(r.sessions, sessionID)
	r.deleted = append(r.deleted, sessionID)
	return nil
}

type fakeLock struct {
	held       bool
	acquireErr error
}

func (l *fakeLock) Acquire(ctx context.Context, phone string, ttl time.Duration) (bool, error) {
	if l.acquireErr != nil {
		return false, l.acquireErr
	}
	return !l.held, nil
}

func (l *fakeLock) Release(ctx context.Context, phone string) error { return nil }

type fakeDispatcher struct {
	sendErr   error
	sentPhone string
	sentCode  string
	calls     int
}

func (d *fakeDispatcher) Send(ctx context.Context, phone, code string) (string, error) {
	d.calls++
	if d.sendErr != nil {
		return "", d.sendErr
	}
	d.sentPhone = phone
	d.sentCode = code
	return "corr-123", nil
}

type fakeIdentity struct {
	accountID string
	existed   bool
	resolveErr error
}

func (p *fakeIdentity) ResolveOrCreate(ctx context.Context, phone string, meta model.SessionMetadata) (*identity.Resolution, error) {
	if p.resolveErr != nil {
		return nil, p.resolveErr
	}
	return &identity.Resolution{AccountID: p.accountID, Existed: p.existed}, nil
}

func (p *fakeIdentity) MintCredential(accountID string) (string, error) {
	return "token-for-" + accountID, nil
}

var errStoreDown = errors.New("store unreachable")

func testConfig() *config.Config {
	return &config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8192,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
		OTC: config.OTCConfig{
			CodeTTL:          5 * time.Minute,
			MaxAttempts:      5,
			RateLimitWindow:  15 * time.Minute,
			RateLimitMax:     3,
			DeleteGraceDelay: 30 * time.Second,
			IssuanceLockTTL:  30 * time.Second,
			DispatchTimeout:  time.Second,
			StoreTimeout:     time.Second,
		},
	}
}

type testHarness struct {
	svc        *OTCService
	repo       *fakeSessionRepo
	lock       *fakeLock
	dispatcher *fakeDispatcher
	identity   *fakeIdentity
	now        time.Time
}

func newTestHarness() *testHarness {
	cfg := testConfig()
	repo := newFakeSessionRepo()
	lock := &fakeLock{}
	dispatcher := &fakeDispatcher{}
	identityProvider := &fakeIdentity{accountID: "acct-1"}
	limiter := NewRateLimiter(repo, cfg.OTC.RateLimitWindow, cfg.OTC.RateLimitMax)

	h := &testHarness{
		repo:       repo,
		lock:       lock,
		dispatcher: dispatcher,
		identity:   identityProvider,
		now:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	svc := NewOTCService(repo, lock, limiter, dispatcher, identityProvider,
		hashing.NewHasher(cfg), nil, nil, cfg)
	svc.now = func() time.Time { return h.now }
	svc.deleteAfter = func(delay time.Duration, fn func()) { fn() }
	limiter.now = svc.now

	h.svc = svc
	return h
}

func (h *testHarness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

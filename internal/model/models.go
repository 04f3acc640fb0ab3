package model

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by every store implementation so callers can test
// with errors.Is without importing a concrete repository.
var (
	ErrSessionNotFound = errors.New("otc session not found")
	ErrAccountNotFound = errors.New("account not found")
)

// -------------------- OTC SESSION MODEL --------------------

// OTCSession is the stored record for one issued one-time code. The record
// is ephemeral: it lives for the code TTL plus a short grace period and is
// deleted on every terminal transition.
type OTCSession struct {
	SessionID     string          `json:"session_id" db:"session_id"` // UUID
	Phone         string          `json:"phone" db:"phone"`           // E.164, immutable
	CodeHash      string          `json:"-" db:"code_hash"`           // argon2id encoding, never the plaintext
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	ExpiresAt     time.Time       `json:"expires_at" db:"expires_at"`
	Attempts      int             `json:"attempts" db:"attempts"` // failed verifications so far
	Used          bool            `json:"used" db:"used"`
	Metadata      SessionMetadata `json:"metadata" db:"metadata"`
	CorrelationID string          `json:"correlation_id" db:"correlation_id"` // delivery-channel id
}

// SessionMetadata is the opaque payload carried from issuance through to
// account creation. Read-only after the session is created.
type SessionMetadata struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// IsEmpty reports whether no metadata was supplied at issuance.
func (m SessionMetadata) IsEmpty() bool {
	return m.Name == "" && m.Email == ""
}

// -------------------- ACCOUNT MODEL --------------------

// Account is the identity record a verified phone number resolves to.
type Account struct {
	AccountBucket  int        `json:"account_bucket" db:"account_bucket"`
	AccountID      string     `json:"account_id" db:"account_id"` // UUID
	PhoneHash      string     `json:"phone_hash" db:"phone_hash"` // SHA-256 lookup key
	PhoneEncrypted []byte     `json:"-" db:"phone_encrypted"`
	PhoneKeyID     string     `json:"-" db:"phone_key_id"`
	Name           string     `json:"name" db:"name"`
	Email          string     `json:"email" db:"email"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	LastVerifiedAt *time.Time `json:"last_verified_at" db:"last_verified_at"`
}

// -------------------- REPOSITORY INTERFACES --------------------

// SessionRepository is the session store contract the state machine
// consumes. All operations are atomic at single-record granularity; no
// transition touches more than one session.
type SessionRepository interface {
	Create(ctx context.Context, session *OTCSession) error
	GetByID(ctx context.Context, sessionID string) (*OTCSession, error)
	QueryByPhoneSince(ctx context.Context, phone string, since time.Time) ([]*OTCSession, error)
	UpdateAttempts(ctx context.Context, sessionID string, attempts int) error
	MarkUsed(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) error
}

// AccountRepository persists account records for the identity provider.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccountByPhoneHash(ctx context.Context, phoneHash string) (*Account, error)
	UpdateLastVerified(ctx context.Context, accountID string, bucket int, at time.Time) error
}

// -------------------- CACHE INTERFACES --------------------

// IssuanceLock serializes concurrent issuance requests for one phone so a
// burst cannot double-send inside a single request window.
type IssuanceLock interface {
	Acquire(ctx context.Context, phone string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, phone string) error
}

package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"verify-service/internal/bucketing"
	"verify-service/internal/config"
	"verify-service/internal/encryption"
	"verify-service/internal/hashing"
	"verify-service/internal/model"
)

type fakeAccountRepo struct {
	accounts     map[string]*model.Account // keyed by phone hash
	lastVerified map[string]time.Time
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{
		accounts:     make(map[string]*model.Account),
		lastVerified: make(map[string]time.Time),
	}
}

func (r *fakeAccountRepo) CreateAccount(ctx context.Context, account *model.Account) error {
	copied := *account
	r.accounts[account.PhoneHash] = &copied
	return nil
}

func (r *fakeAccountRepo) GetAccountByPhoneHash(ctx context.Context, phoneHash string) (*model.Account, error) {
	account, ok := r.accounts[phoneHash]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (r *fakeAccountRepo) UpdateLastVerified(ctx context.Context, accountID string, bucket int, at time.Time) error {
	r.lastVerified[accountID] = at
	return nil
}

func testProvider(repo *fakeAccountRepo) *AccountProvider {
	cfg := &config.Config{
		Identity: config.IdentityConfig{
			JWTSecret:     "test-secret",
			TokenTTL:      time.Hour,
			TokenIssuer:   "verify-service",
			TokenAudience: "verify-clients",
		},
	}
	p := NewAccountProvider(repo, encryption.NewManager(cfg, nil), bucketing.NewManager(16), cfg)
	p.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestResolveOrCreateNewAccount(t *testing.T) {
	repo := newFakeAccountRepo()
	p := testProvider(repo)

	res, err := p.ResolveOrCreate(context.Background(), "+2348100000000",
		model.SessionMetadata{Name: "Jane", Email: "jane@example.com"})
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}
	if res.Existed {
		t.Fatal("Existed = true for a fresh phone")
	}
	if res.AccountID == "" {
		t.Fatal("empty account id")
	}

	stored := repo.accounts[hashing.PhoneHash("+2348100000000")]
	if stored == nil {
		t.Fatal("account not persisted")
	}
	if stored.Name != "Jane" || stored.Email != "jane@example.com" {
		t.Fatalf("metadata not carried onto the account: %+v", stored)
	}
	if string(stored.PhoneEncrypted) == "+2348100000000" || len(stored.PhoneEncrypted) == 0 {
		t.Fatal("phone not stored encrypted")
	}
	if stored.LastVerifiedAt == nil {
		t.Fatal("LastVerifiedAt not set on creation")
	}
	if stored.AccountBucket < 0 || stored.AccountBucket >= 16 {
		t.Fatalf("AccountBucket = %d, want in [0, 16)", stored.AccountBucket)
	}
}

func TestResolveOrCreateExistingAccount(t *testing.T) {
	repo := newFakeAccountRepo()
	p := testProvider(repo)

	first, err := p.ResolveOrCreate(context.Background(), "+2348100000000", model.SessionMetadata{})
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}

	second, err := p.ResolveOrCreate(context.Background(), "+2348100000000", model.SessionMetadata{})
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}
	if !second.Existed {
		t.Fatal("Existed = false on second resolution")
	}
	if second.AccountID != first.AccountID {
		t.Fatalf("resolved account id changed: %q then %q", first.AccountID, second.AccountID)
	}
	if _, ok := repo.lastVerified[first.AccountID]; !ok {
		t.Fatal("LastVerifiedAt not bumped on re-verification")
	}
}

func TestMintCredential(t *testing.T) {
	p := testProvider(newFakeAccountRepo())

	signed, err := p.MintCredential("acct-1")
	if err != nil {
		t.Fatalf("MintCredential() error = %v", err)
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(p.now))
	if err != nil {
		t.Fatalf("ParseWithClaims() error = %v", err)
	}
	if !token.Valid {
		t.Fatal("minted token failed validation")
	}
	if claims.Subject != "acct-1" {
		t.Fatalf("Subject = %q, want acct-1", claims.Subject)
	}
	if claims.Issuer != "verify-service" {
		t.Fatalf("Issuer = %q", claims.Issuer)
	}
	if !claims.ExpiresAt.Time.Equal(p.now().Add(time.Hour)) {
		t.Fatalf("ExpiresAt = %v, want issue time + 1h", claims.ExpiresAt.Time)
	}
}

// Package identity resolves verified phone numbers to accounts and mints
// session credentials.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"verify-service/internal/bucketing"
	"verify-service/internal/config"
	"verify-service/internal/encryption"
	"verify-service/internal/hashing"
	"verify-service/internal/model"
	"verify-service/internal/util"
)

// Resolution is the outcome of mapping a verified phone to an account.
type Resolution struct {
	AccountID string
	Existed   bool
}

// Provider is the boundary the verification core calls after a successful
// code check.
type Provider interface {
	ResolveOrCreate(ctx context.Context, phone string, meta model.SessionMetadata) (*Resolution, error)
	MintCredential(accountID string) (string, error)
}

// AccountProvider implements Provider on top of the account store.
type AccountProvider struct {
	accounts  model.AccountRepository
	encryptor *encryption.Manager
	buckets   *bucketing.Manager
	config    *config.IdentityConfig
	now       func() time.Time
}

func NewAccountProvider(
	accounts model.AccountRepository,
	encryptor *encryption.Manager,
	buckets *bucketing.Manager,
	cfg *config.Config,
) *AccountProvider {
	return &AccountProvider{
		accounts:  accounts,
		encryptor: encryptor,
		buckets:   buckets,
		config:    &cfg.Identity,
		now:       time.Now,
	}
}

// ResolveOrCreate returns the existing account for a phone or creates one,
// carrying through any metadata captured at issuance. The phone number is
// stored hashed (lookup) and encrypted (recovery), never in the clear.
func (p *AccountProvider) ResolveOrCreate(ctx context.Context, phone string, meta model.SessionMetadata) (*Resolution, error) {
	phoneHash := hashing.PhoneHash(phone)
	now := p.now().UTC()

	existing, err := p.accounts.GetAccountByPhoneHash(ctx, phoneHash)
	if err == nil {
		if err := p.accounts.UpdateLastVerified(ctx, existing.AccountID, existing.AccountBucket, now); err != nil {
			util.Warn("Failed to bump last verified timestamp",
				util.String("account_id", existing.AccountID),
				util.ErrorField(err))
		}
		return &Resolution{AccountID: existing.AccountID, Existed: true}, nil
	}
	if !errors.Is(err, model.ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}

	encryptedPhone, keyID, err := p.encryptor.EncryptField(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt phone: %w", err)
	}

	accountID := uuid.New().String()
	account := &model.Account{
		AccountBucket:  p.buckets.AccountBucket(accountID),
		AccountID:      accountID,
		PhoneHash:      phoneHash,
		PhoneEncrypted: encryptedPhone,
		PhoneKeyID:     keyID,
		Name:           meta.Name,
		Email:          meta.Email,
		CreatedAt:      now,
		LastVerifiedAt: &now,
	}

	if err := p.accounts.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	util.Info("Account created for verified phone",
		util.String("account_id", accountID),
		util.String("phone", util.MaskPhone(phone)))

	return &Resolution{AccountID: accountID, Existed: false}, nil
}

// MintCredential issues a signed token for a resolved account.
func (p *AccountProvider) MintCredential(accountID string) (string, error) {
	now := p.now().UTC()

	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		Issuer:    p.config.TokenIssuer,
		Audience:  jwt.ClaimStrings{p.config.TokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.config.TokenTTL)),
		ID:        uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(p.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign credential: %w", err)
	}
	return signed, nil
}

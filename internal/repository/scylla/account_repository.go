package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"verify-service/internal/model"
	"verify-service/internal/util"
)

// AccountRepository stores account records bucketed for even partition
// distribution, with a phone_to_account lookup table keyed by phone hash.
type AccountRepository struct {
	client *ScyllaClient
}

func NewAccountRepository(client *ScyllaClient) *AccountRepository {
	return &AccountRepository{client: client}
}

func (r *AccountRepository) CreateAccount(ctx context.Context, account *model.Account) error {
	query := r.client.Prepared.CreateAccount.Bind(
		account.AccountBucket, account.AccountID, account.PhoneHash,
		account.PhoneEncrypted, account.PhoneKeyID, account.Name, account.Email,
		account.CreatedAt, account.LastVerifiedAt,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to create account",
			util.String("account_id", account.AccountID),
			util.ErrorField(err))
		return fmt.Errorf("failed to create account: %w", err)
	}

	lookup := r.client.Prepared.CreatePhoneToAccount.Bind(
		account.PhoneHash, account.AccountBucket, account.AccountID, account.CreatedAt,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(lookup, 2); err != nil {
		util.Error("Failed to create phone lookup for account",
			util.String("account_id", account.AccountID),
			util.ErrorField(err))
		return fmt.Errorf("failed to create phone lookup: %w", err)
	}

	util.Info("Account created",
		util.String("account_id", account.AccountID),
		util.Int("account_bucket", account.AccountBucket))

	return nil
}

func (r *AccountRepository) GetAccountByPhoneHash(ctx context.Context, phoneHash string) (*model.Account, error) {
	var bucket int
	var accountID string

	lookup := r.client.Prepared.GetAccountByPhone.Bind(phoneHash).WithContext(ctx)
	if err := lookup.Scan(&bucket, &accountID); err != nil {
		if err == gocql.ErrNotFound {
			return nil, model.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to look up account by phone: %w", err)
	}

	account := &model.Account{}
	query := r.client.Prepared.GetAccountByID.Bind(bucket, accountID).WithContext(ctx)
	err := query.Scan(
		&account.AccountBucket, &account.AccountID, &account.PhoneHash,
		&account.PhoneEncrypted, &account.PhoneKeyID, &account.Name, &account.Email,
		&account.CreatedAt, &account.LastVerifiedAt,
	)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, model.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) UpdateLastVerified(ctx context.Context, accountID string, bucket int, at time.Time) error {
	query := r.client.Prepared.UpdateLastVerified.Bind(at, bucket, accountID).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update last verified timestamp",
			util.String("account_id", accountID),
			util.ErrorField(err))
		return fmt.Errorf("failed to update last verified: %w", err)
	}
	return nil
}

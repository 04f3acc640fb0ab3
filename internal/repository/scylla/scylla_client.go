package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"

	"verify-service/internal/config"
	"verify-service/internal/util"
)

// PreparedStatements holds the statements the repositories bind per call.
type PreparedStatements struct {
	CreateSession        *gocql.Query
	CreateSessionByPhone *gocql.Query
	GetSessionByID       *gocql.Query
	GetSessionsByPhone   *gocql.Query
	UpdateAttempts       *gocql.Query
	MarkUsed             *gocql.Query
	DeleteSession        *gocql.Query
	DeleteSessionByPhone *gocql.Query

	CreateAccount        *gocql.Query
	CreatePhoneToAccount *gocql.Query
	GetAccountByPhone    *gocql.Query
	GetAccountByID       *gocql.Query
	UpdateLastVerified   *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.Mutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		util.Any("nodes", scyllaConfig.Nodes),
		util.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateSession = s.Session.Query(`
        INSERT INTO otc_sessions (
            session_id, phone, code_hash, created_at, expires_at,
            attempts, used, meta_name, meta_email, correlation_id
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) USING TTL ?`)

	prepared.CreateSessionByPhone = s.Session.Query(`
        INSERT INTO otc_sessions_by_phone (phone, created_at, session_id)
        VALUES (?, ?, ?) USING TTL ?`)

	prepared.GetSessionByID = s.Session.Query(`
        SELECT session_id, phone, code_hash, created_at, expires_at,
            attempts, used, meta_name, meta_email, correlation_id
        FROM otc_sessions WHERE session_id = ?`)

	prepared.GetSessionsByPhone = s.Session.Query(`
        SELECT session_id, created_at FROM otc_sessions_by_phone
        WHERE phone = ? AND created_at > ?`)

	prepared.UpdateAttempts = s.Session.Query(`
        UPDATE otc_sessions SET attempts = ? WHERE session_id = ?`)

	prepared.MarkUsed = s.Session.Query(`
        UPDATE otc_sessions SET used = true WHERE session_id = ?`)

	prepared.DeleteSession = s.Session.Query(`
        DELETE FROM otc_sessions WHERE session_id = ?`)

	prepared.DeleteSessionByPhone = s.Session.Query(`
        DELETE FROM otc_sessions_by_phone WHERE phone = ? AND created_at = ?`)

	prepared.CreateAccount = s.Session.Query(`
        INSERT INTO accounts (
            account_bucket, account_id, phone_hash, phone_encrypted,
            phone_key_id, name, email, created_at, last_verified_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreatePhoneToAccount = s.Session.Query(`
        INSERT INTO phone_to_account (phone_hash, account_bucket, account_id, created_at)
        VALUES (?, ?, ?, ?)`)

	prepared.GetAccountByPhone = s.Session.Query(`
        SELECT account_bucket, account_id FROM phone_to_account WHERE phone_hash = ?`)

	prepared.GetAccountByID = s.Session.Query(`
        SELECT account_bucket, account_id, phone_hash, phone_encrypted,
            phone_key_id, name, email, created_at, last_verified_at
        FROM accounts WHERE account_bucket = ? AND account_id = ?`)

	prepared.UpdateLastVerified = s.Session.Query(`
        UPDATE accounts SET last_verified_at = ? WHERE account_bucket = ? AND account_id = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

// ExecuteWithRetry retries transient execution failures with a short
// linear backoff.
func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

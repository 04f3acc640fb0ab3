package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"

	"verify-service/internal/config"
	"verify-service/internal/util"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// envelope is the persisted form: the AES-GCM ciphertext plus the
// KMS-encrypted data key that produced it.
type envelope struct {
	Ciphertext   string `json:"ct"`
	EncryptedDEK string `json:"dek"`
	KeyID        string `json:"kid"`
	Version      string `json:"v"`
}

type cachedKey struct {
	plaintext []byte
	expires   time.Time
}

// Manager envelope-encrypts fields at rest. With KMS enabled each field is
// sealed under a fresh data key; in development a process-local key keeps
// the code path identical without AWS access.
type Manager struct {
	kmsClient *kms.Client
	config    *config.Config
	localKey  []byte
	keyCache  sync.Map // encrypted DEK (base64) -> cachedKey
}

func NewManager(cfg *config.Config, kmsClient *kms.Client) *Manager {
	m := &Manager{
		kmsClient: kmsClient,
		config:    cfg,
	}
	if !cfg.KMS.Enabled || kmsClient == nil {
		m.localKey = make([]byte, 32)
		if _, err := rand.Read(m.localKey); err != nil {
			util.Fatal("Failed to generate local encryption key", util.ErrorField(err))
		}
		util.Warn("KMS disabled, using process-local encryption key")
	}
	return m
}

// EncryptField seals a plaintext value and returns the serialized envelope
// along with the key id it was sealed under.
func (m *Manager) EncryptField(ctx context.Context, plaintext string) ([]byte, string, error) {
	dek, encryptedDEK, keyID, err := m.dataKey(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	out, err := json.Marshal(envelope{
		Ciphertext:   base64.RawStdEncoding.EncodeToString(sealed),
		EncryptedDEK: encryptedDEK,
		KeyID:        keyID,
		Version:      "v1",
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return out, keyID, nil
}

// DecryptField reverses EncryptField.
func (m *Manager) DecryptField(ctx context.Context, data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	dek, err := m.decryptDataKey(ctx, env.EncryptedDEK)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	sealed, err := base64.RawStdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	block, err := aes.NewCipher(dek)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(sealed) < gcm.NonceSize() {
		return "", ErrDecryptionFailed
	}

	plaintext, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

func (m *Manager) dataKey(ctx context.Context) (plaintext []byte, encrypted, keyID string, err error) {
	if m.localKey != nil {
		return m.localKey, "local", "local", nil
	}

	out, err := m.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(m.config.KMS.KeyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, "", "", fmt.Errorf("kms generate data key: %w", err)
	}

	encrypted = base64.RawStdEncoding.EncodeToString(out.CiphertextBlob)
	m.keyCache.Store(encrypted, cachedKey{
		plaintext: out.Plaintext,
		expires:   time.Now().Add(m.config.KMS.CacheTTL),
	})
	return out.Plaintext, encrypted, aws.ToString(out.KeyId), nil
}

func (m *Manager) decryptDataKey(ctx context.Context, encrypted string) ([]byte, error) {
	if encrypted == "local" {
		if m.localKey == nil {
			return nil, errors.New("local key not initialized")
		}
		return m.localKey, nil
	}

	if v, ok := m.keyCache.Load(encrypted); ok {
		ck := v.(cachedKey)
		if time.Now().Before(ck.expires) {
			return ck.plaintext, nil
		}
		m.keyCache.Delete(encrypted)
	}

	blob, err := base64.RawStdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("decode encrypted dek: %w", err)
	}
	out, err := m.kmsClient.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: blob})
	if err != nil {
		return nil, fmt.Errorf("kms decrypt: %w", err)
	}

	m.keyCache.Store(encrypted, cachedKey{
		plaintext: out.Plaintext,
		expires:   time.Now().Add(m.config.KMS.CacheTTL),
	})
	return out.Plaintext, nil
}

// ClearCache drops all cached data keys.
func (m *Manager) ClearCache() {
	m.keyCache.Range(func(k, _ interface{}) bool {
		m.keyCache.Delete(k)
		return true
	})
}

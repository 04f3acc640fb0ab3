package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"
)

// Manager assigns account records to fixed partition buckets so the wide
// accounts table stays evenly distributed across the cluster.
type Manager struct {
	accountBuckets int
	hasherPool     sync.Pool
}

const defaultAccountBuckets = 256

func NewManager(accountBuckets int) *Manager {
	if accountBuckets <= 0 {
		accountBuckets = defaultAccountBuckets
	}
	m := &Manager{accountBuckets: accountBuckets}
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return m
}

// AccountBucket returns the consistent bucket for an account id,
// in [0, accountBuckets).
func (m *Manager) AccountBucket(accountID string) int {
	h := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(h)

	h.Reset()
	_, _ = h.Write([]byte(accountID))
	sum := h.Sum64()

	return int(sum % uint64(m.accountBuckets))
}

// Buckets returns the configured bucket count.
func (m *Manager) Buckets() int {
	return m.accountBuckets
}

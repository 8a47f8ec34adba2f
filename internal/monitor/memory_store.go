package monitor

import (
	"context"
	"sync"
)

// Compile-time assertion.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store implementation for demo/testing.
type MemoryStore struct {
	mu     sync.RWMutex
	txs    []*Transaction
	byAddr map[string][]int64
	nextID int64
}

// NewMemoryStore creates a new in-memory monitored-transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byAddr: make(map[string][]int64),
		nextID: 1,
	}
}

func (m *MemoryStore) Append(_ context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *tx
	cp.ID = m.nextID
	m.nextID++

	m.txs = append(m.txs, &cp)
	m.byAddr[cp.Sender] = append(m.byAddr[cp.Sender], cp.ID)
	if cp.Receiver != cp.Sender {
		m.byAddr[cp.Receiver] = append(m.byAddr[cp.Receiver], cp.ID)
	}

	tx.ID = cp.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id int64) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id < 1 || id > int64(len(m.txs)) {
		return nil, ErrTxNotFound
	}
	cp := *m.txs[id-1]
	return &cp, nil
}

func (m *MemoryStore) IDsForAddress(_ context.Context, address string) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byAddr[address]
	out := make([]int64, len(ids))
	copy(out, ids)
	return out, nil
}

func (m *MemoryStore) List(_ context.Context, start, count int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if start < 0 || start >= len(m.txs) || count <= 0 {
		return nil, nil
	}
	end := start + count
	if end > len(m.txs) {
		end = len(m.txs)
	}
	out := make([]*Transaction, 0, end-start)
	for _, tx := range m.txs[start:end] {
		cp := *tx
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.txs)), nil
}

package treasury

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/chainfolio/chainfolio/internal/baseunit"
)

// MemoryStore is an in-memory treasury store for demo/development mode.
type MemoryStore struct {
	balances map[string]*Balance
	entries  []*Entry
	nextID   int64
	mu       sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory treasury store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]*Balance),
		entries:  make([]*Entry, 0),
		nextID:   1,
	}
}

func (m *MemoryStore) GetBalance(ctx context.Context, address string) (*Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if bal, ok := m.balances[address]; ok {
		cp := *bal
		return &cp, nil
	}
	return &Balance{
		Address:   address,
		Available: "0",
		TotalIn:   "0",
		TotalOut:  "0",
		UpdatedAt: time.Now(),
	}, nil
}

func (m *MemoryStore) Credit(ctx context.Context, address string, amount *big.Int, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.credit(address, amount, "", reference, KindCredit)
	return nil
}

func (m *MemoryStore) Debit(ctx context.Context, address string, amount *big.Int, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.debit(address, amount, "", reference, KindDebit)
}

func (m *MemoryStore) Transfer(ctx context.Context, from, to string, amount *big.Int, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.debit(from, amount, to, reference, KindTransferOut); err != nil {
		return err
	}
	m.credit(to, amount, from, reference, KindTransferIn)
	return nil
}

func (m *MemoryStore) History(ctx context.Context, address string, start, count int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Entry, 0, count)
	skipped := 0
	for i := len(m.entries) - 1; i >= 0 && len(result) < count; i-- {
		if m.entries[i].Address != address {
			continue
		}
		if skipped < start {
			skipped++
			continue
		}
		cp := *m.entries[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) Entries(ctx context.Context, address string) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for _, e := range m.entries {
		if e.Address == address {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}

// callers hold m.mu
func (m *MemoryStore) credit(address string, amount *big.Int, counterparty, reference, kind string) {
	bal := m.balanceLocked(address)

	avail, _ := baseunit.Parse(bal.Available)
	totalIn, _ := baseunit.Parse(bal.TotalIn)
	avail.Add(avail, amount)
	totalIn.Add(totalIn, amount)
	bal.Available = baseunit.Format(avail)
	bal.TotalIn = baseunit.Format(totalIn)
	bal.UpdatedAt = time.Now()

	m.append(address, amount, counterparty, reference, kind)
}

// callers hold m.mu
func (m *MemoryStore) debit(address string, amount *big.Int, counterparty, reference, kind string) error {
	bal := m.balanceLocked(address)

	avail, _ := baseunit.Parse(bal.Available)
	if avail.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	totalOut, _ := baseunit.Parse(bal.TotalOut)
	avail.Sub(avail, amount)
	totalOut.Add(totalOut, amount)
	bal.Available = baseunit.Format(avail)
	bal.TotalOut = baseunit.Format(totalOut)
	bal.UpdatedAt = time.Now()

	m.append(address, amount, counterparty, reference, kind)
	return nil
}

func (m *MemoryStore) balanceLocked(address string) *Balance {
	bal, ok := m.balances[address]
	if !ok {
		bal = &Balance{
			Address:   address,
			Available: "0",
			TotalIn:   "0",
			TotalOut:  "0",
		}
		m.balances[address] = bal
	}
	return bal
}

func (m *MemoryStore) append(address string, amount *big.Int, counterparty, reference, kind string) {
	m.entries = append(m.entries, &Entry{
		ID:           m.nextID,
		Address:      address,
		Kind:         kind,
		Amount:       baseunit.Format(amount),
		Counterparty: counterparty,
		Reference:    reference,
		CreatedAt:    time.Now(),
	})
	m.nextID++
}

package portfolio

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory portfolio store for demo/development mode.
type MemoryStore struct {
	portfolios map[int64]*Portfolio
	order      []int64

	// allocation rows per portfolio in insertion order
	assets map[int64][]*AssetAllocation

	transactions []*Transaction
	byPortfolio  map[int64][]int // indexes into transactions

	managers   map[int64][]string
	managerSet map[int64]map[string]bool

	nextPortfolioID int64
	nextTxID        int64
	mu              sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory portfolio store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		portfolios:      make(map[int64]*Portfolio),
		assets:          make(map[int64][]*AssetAllocation),
		transactions:    make([]*Transaction, 0),
		byPortfolio:     make(map[int64][]int),
		managers:        make(map[int64][]string),
		managerSet:      make(map[int64]map[string]bool),
		nextPortfolioID: 1,
		nextTxID:        1,
	}
}

func (m *MemoryStore) CreatePortfolio(ctx context.Context, p *Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.ID = m.nextPortfolioID
	m.nextPortfolioID++

	cp := *p
	m.portfolios[p.ID] = &cp
	m.order = append(m.order, p.ID)
	return nil
}

func (m *MemoryStore) GetPortfolio(ctx context.Context, id int64) (*Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.portfolios[id]
	if !ok {
		return nil, ErrPortfolioNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) UpdatePortfolio(ctx context.Context, p *Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.portfolios[p.ID]; !ok {
		return ErrPortfolioNotFound
	}
	cp := *p
	m.portfolios[p.ID] = &cp
	return nil
}

func (m *MemoryStore) ListPortfolios(ctx context.Context, start, count int) ([]*Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if start < 0 || start >= len(m.order) {
		return []*Portfolio{}, nil
	}
	end := start + count
	if end > len(m.order) {
		end = len(m.order)
	}
	result := make([]*Portfolio, 0, end-start)
	for _, id := range m.order[start:end] {
		cp := *m.portfolios[id]
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) ListPortfoliosByOwner(ctx context.Context, owner string) ([]*Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Portfolio
	for _, id := range m.order {
		if m.portfolios[id].Owner == owner {
			cp := *m.portfolios[id]
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) SaveAsset(ctx context.Context, a *AssetAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.assets[a.PortfolioID]
	for i, existing := range rows {
		if existing.TokenID == a.TokenID {
			cp := *a
			rows[i] = &cp
			return nil
		}
	}
	cp := *a
	m.assets[a.PortfolioID] = append(rows, &cp)
	return nil
}

func (m *MemoryStore) GetAsset(ctx context.Context, portfolioID int64, tokenID string) (*AssetAllocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.assets[portfolioID] {
		if a.TokenID == tokenID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAssetNotFound
}

func (m *MemoryStore) ListAssets(ctx context.Context, portfolioID int64) ([]*AssetAllocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.assets[portfolioID]
	result := make([]*AssetAllocation, 0, len(rows))
	for _, a := range rows {
		cp := *a
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) AppendTransactions(ctx context.Context, txs []*Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tx := range txs {
		tx.ID = m.nextTxID
		m.nextTxID++

		cp := *tx
		m.byPortfolio[tx.PortfolioID] = append(m.byPortfolio[tx.PortfolioID], len(m.transactions))
		m.transactions = append(m.transactions, &cp)
	}
	return nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, portfolioID int64, start, count int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idxs := m.byPortfolio[portfolioID]
	if start < 0 || start >= len(idxs) {
		return []*Transaction{}, nil
	}
	end := start + count
	if end > len(idxs) {
		end = len(idxs)
	}
	result := make([]*Transaction, 0, end-start)
	for _, i := range idxs[start:end] {
		cp := *m.transactions[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) CountTransactions(ctx context.Context, portfolioID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.byPortfolio[portfolioID])), nil
}

func (m *MemoryStore) AddManager(ctx context.Context, portfolioID int64, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.managerSet[portfolioID]
	if !ok {
		set = make(map[string]bool)
		m.managerSet[portfolioID] = set
	}
	if set[address] {
		return ErrManagerExists
	}
	set[address] = true
	m.managers[portfolioID] = append(m.managers[portfolioID], address)
	return nil
}

func (m *MemoryStore) RemoveManager(ctx context.Context, portfolioID int64, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.managerSet[portfolioID]
	if !set[address] {
		return ErrManagerNotFound
	}
	delete(set, address)

	list := m.managers[portfolioID]
	for i, addr := range list {
		if addr == address {
			m.managers[portfolioID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) ListManagers(ctx context.Context, portfolioID int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]string, len(m.managers[portfolioID]))
	copy(result, m.managers[portfolioID])
	return result, nil
}

func (m *MemoryStore) IsManager(ctx context.Context, portfolioID int64, address string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.managerSet[portfolioID][address], nil
}

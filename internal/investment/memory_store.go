package investment

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory investment store for demo/development mode.
type MemoryStore struct {
	strategies    map[int64]*Strategy
	strategyOrder []int64

	investments map[int64]*Investment
	byInvestor  map[string][]int64

	claims          []*YieldClaim
	claimsByInvest  map[int64][]int
	claimsByAddress map[string][]int64

	nextStrategyID   int64
	nextInvestmentID int64
	nextClaimID      int64
	mu               sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory investment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strategies:       make(map[int64]*Strategy),
		investments:      make(map[int64]*Investment),
		byInvestor:       make(map[string][]int64),
		claims:           make([]*YieldClaim, 0),
		claimsByInvest:   make(map[int64][]int),
		claimsByAddress:  make(map[string][]int64),
		nextStrategyID:   1,
		nextInvestmentID: 1,
		nextClaimID:      1,
	}
}

func (m *MemoryStore) CreateStrategy(ctx context.Context, s *Strategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.ID = m.nextStrategyID
	m.nextStrategyID++

	cp := *s
	m.strategies[s.ID] = &cp
	m.strategyOrder = append(m.strategyOrder, s.ID)
	return nil
}

func (m *MemoryStore) GetStrategy(ctx context.Context, id int64) (*Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.strategies[id]
	if !ok {
		return nil, ErrStrategyNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) UpdateStrategy(ctx context.Context, s *Strategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.strategies[s.ID]; !ok {
		return ErrStrategyNotFound
	}
	cp := *s
	m.strategies[s.ID] = &cp
	return nil
}

func (m *MemoryStore) ListStrategies(ctx context.Context, activeOnly bool, start, count int) ([]*Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Strategy
	for _, id := range m.strategyOrder {
		s := m.strategies[id]
		if activeOnly && !s.IsActive {
			continue
		}
		matched = append(matched, s)
	}

	if start < 0 || start >= len(matched) {
		return []*Strategy{}, nil
	}
	end := start + count
	if end > len(matched) {
		end = len(matched)
	}
	result := make([]*Strategy, 0, end-start)
	for _, s := range matched[start:end] {
		cp := *s
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) CreateInvestment(ctx context.Context, inv *Investment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv.ID = m.nextInvestmentID
	m.nextInvestmentID++

	cp := *inv
	m.investments[inv.ID] = &cp
	m.byInvestor[inv.Investor] = append(m.byInvestor[inv.Investor], inv.ID)
	return nil
}

func (m *MemoryStore) GetInvestment(ctx context.Context, id int64) (*Investment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.investments[id]
	if !ok {
		return nil, ErrInvestmentNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *MemoryStore) UpdateInvestment(ctx context.Context, inv *Investment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.investments[inv.ID]; !ok {
		return ErrInvestmentNotFound
	}
	cp := *inv
	m.investments[inv.ID] = &cp
	return nil
}

func (m *MemoryStore) InvestmentIDsForInvestor(ctx context.Context, investor string) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, len(m.byInvestor[investor]))
	copy(ids, m.byInvestor[investor])
	return ids, nil
}

func (m *MemoryStore) AppendYieldClaim(ctx context.Context, claim *YieldClaim) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	claim.ID = m.nextClaimID
	m.nextClaimID++

	cp := *claim
	m.claimsByInvest[claim.InvestmentID] = append(m.claimsByInvest[claim.InvestmentID], len(m.claims))
	m.claimsByAddress[claim.Investor] = append(m.claimsByAddress[claim.Investor], claim.ID)
	m.claims = append(m.claims, &cp)
	return nil
}

func (m *MemoryStore) ListYieldClaims(ctx context.Context, investmentID int64) ([]*YieldClaim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idxs := m.claimsByInvest[investmentID]
	result := make([]*YieldClaim, 0, len(idxs))
	for _, i := range idxs {
		cp := *m.claims[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) YieldClaimIDsForInvestor(ctx context.Context, investor string) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, len(m.claimsByAddress[investor]))
	copy(ids, m.claimsByAddress[investor])
	return ids, nil
}

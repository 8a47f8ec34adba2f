package portfolio

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/chainfolio/chainfolio/internal/access"
	"github.com/chainfolio/chainfolio/internal/baseunit"
	"github.com/chainfolio/chainfolio/internal/events"
	"github.com/chainfolio/chainfolio/internal/logging"
	"github.com/chainfolio/chainfolio/internal/metrics"
	"github.com/chainfolio/chainfolio/internal/syncutil"
	"github.com/chainfolio/chainfolio/internal/traces"
	"github.com/chainfolio/chainfolio/internal/validation"
)

// Service implements the portfolio registry.
type Service struct {
	store Store
	guard *access.Guard
	bus   *events.Bus
	mu    syncutil.ShardedMutex
}

// NewService creates a portfolio service.
func NewService(store Store, guard *access.Guard, bus *events.Bus) *Service {
	return &Service{store: store, guard: guard, bus: bus}
}

// CreatePortfolio registers a new active portfolio owned by the caller.
func (s *Service) CreatePortfolio(ctx context.Context, caller, name, description string) (*Portfolio, error) {
	ctx, span := traces.StartSpan(ctx, "portfolio.Create", traces.Caller(caller))
	defer span.End()

	if !validation.IsValidAddress(caller) {
		return nil, ErrBadAddress
	}
	name = validation.SanitizeString(name, validation.MaxNameLength)
	if name == "" {
		return nil, ErrInvalidName
	}
	description = validation.SanitizeString(description, validation.MaxDescriptionLength)

	now := time.Now()
	p := &Portfolio{
		Owner:       validation.NormalizeAddress(caller),
		Name:        name,
		Description: description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreatePortfolio(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	metrics.PortfoliosCreatedTotal.Inc()
	logging.L(ctx).Info("portfolio created", "portfolio_id", p.ID, "owner", p.Owner)
	s.bus.Publish(ctx, events.TypePortfolioCreated, p.ID, p.Owner, map[string]any{
		"name": p.Name,
	})
	return p, nil
}

// UpdatePortfolio renames an active portfolio. Owner or manager.
func (s *Service) UpdatePortfolio(ctx context.Context, caller string, id int64, name, description string) (*Portfolio, error) {
	unlock := s.mu.LockID(id)
	defer unlock()

	p, err := s.activePortfolioForWrite(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	name = validation.SanitizeString(name, validation.MaxNameLength)
	if name == "" {
		return nil, ErrInvalidName
	}
	p.Name = name
	p.Description = validation.SanitizeString(description, validation.MaxDescriptionLength)
	p.UpdatedAt = time.Now()

	if err := s.store.UpdatePortfolio(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update portfolio: %w", err)
	}
	s.bus.Publish(ctx, events.TypePortfolioUpdated, p.ID, validation.NormalizeAddress(caller), map[string]any{
		"name": p.Name,
	})
	return p, nil
}

// DeactivatePortfolio retires a portfolio. Owner only; fails if already
// inactive.
func (s *Service) DeactivatePortfolio(ctx context.Context, caller string, id int64) error {
	unlock := s.mu.LockID(id)
	defer unlock()

	p, err := s.ownedPortfolio(ctx, caller, id)
	if err != nil {
		return err
	}
	if !p.IsActive {
		return ErrAlreadyInactive
	}

	p.IsActive = false
	p.UpdatedAt = time.Now()
	if err := s.store.UpdatePortfolio(ctx, p); err != nil {
		return fmt.Errorf("failed to deactivate portfolio: %w", err)
	}
	s.bus.Publish(ctx, events.TypePortfolioDeactivated, p.ID, p.Owner, nil)
	return nil
}

// ReactivatePortfolio restores a deactivated portfolio. Owner only; fails
// if already active.
func (s *Service) ReactivatePortfolio(ctx context.Context, caller string, id int64) error {
	unlock := s.mu.LockID(id)
	defer unlock()

	p, err := s.ownedPortfolio(ctx, caller, id)
	if err != nil {
		return err
	}
	if p.IsActive {
		return ErrAlreadyActive
	}

	p.IsActive = true
	p.UpdatedAt = time.Now()
	if err := s.store.UpdatePortfolio(ctx, p); err != nil {
		return fmt.Errorf("failed to reactivate portfolio: %w", err)
	}
	s.bus.Publish(ctx, events.TypePortfolioReactivated, p.ID, p.Owner, nil)
	return nil
}

// AddAsset allocates a new asset target. Owner or manager; the active
// target sum must stay within the 10000 bps ceiling after the add.
func (s *Service) AddAsset(ctx context.Context, caller string, id int64, tokenID, symbol string, targetBps int) (*AssetAllocation, error) {
	unlock := s.mu.LockID(id)
	defer unlock()

	if _, err := s.activePortfolioForWrite(ctx, caller, id); err != nil {
		return nil, err
	}
	if targetBps < 0 || targetBps > MaxBps {
		return nil, ErrInvalidBps
	}
	tokenID = validation.SanitizeString(tokenID, validation.MaxNameLength)
	symbol = validation.SanitizeString(symbol, validation.MaxNameLength)
	if tokenID == "" || symbol == "" {
		return nil, ErrInvalidTx
	}

	existing, err := s.store.GetAsset(ctx, id, tokenID)
	if err != nil && err != ErrAssetNotFound {
		return nil, err
	}
	if existing != nil && existing.IsActive {
		return nil, ErrDuplicateAsset
	}

	if err := s.checkCeiling(ctx, id, tokenID, targetBps); err != nil {
		return nil, err
	}

	a := &AssetAllocation{
		PortfolioID: id,
		TokenID:     tokenID,
		Symbol:      symbol,
		TargetBps:   targetBps,
		IsActive:    true,
		UpdatedAt:   time.Now(),
	}
	if existing != nil {
		// previously removed asset comes back with a fresh target
		a.CurrentBps = existing.CurrentBps
	}
	if err := s.store.SaveAsset(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to save asset: %w", err)
	}

	s.bus.Publish(ctx, events.TypeAssetAdded, id, validation.NormalizeAddress(caller), map[string]any{
		"tokenId":   tokenID,
		"symbol":    symbol,
		"targetBps": targetBps,
	})
	return a, nil
}

// RemoveAsset soft-deactivates an allocation row. Owner or manager.
func (s *Service) RemoveAsset(ctx context.Context, caller string, id int64, tokenID string) error {
	unlock := s.mu.LockID(id)
	defer unlock()

	if _, err := s.activePortfolioForWrite(ctx, caller, id); err != nil {
		return err
	}

	a, err := s.store.GetAsset(ctx, id, tokenID)
	if err != nil {
		return err
	}
	if !a.IsActive {
		return ErrAssetNotFound
	}

	a.IsActive = false
	a.UpdatedAt = time.Now()
	if err := s.store.SaveAsset(ctx, a); err != nil {
		return fmt.Errorf("failed to remove asset: %w", err)
	}

	s.bus.Publish(ctx, events.TypeAssetRemoved, id, validation.NormalizeAddress(caller), map[string]any{
		"tokenId": tokenID,
	})
	return nil
}

// UpdateTargetAllocation changes an asset's target. Owner or manager; the
// ceiling check excludes the asset being updated.
func (s *Service) UpdateTargetAllocation(ctx context.Context, caller string, id int64, tokenID string, newBps int) (*AssetAllocation, error) {
	unlock := s.mu.LockID(id)
	defer unlock()

	if _, err := s.activePortfolioForWrite(ctx, caller, id); err != nil {
		return nil, err
	}
	if newBps < 0 || newBps > MaxBps {
		return nil, ErrInvalidBps
	}

	a, err := s.store.GetAsset(ctx, id, tokenID)
	if err != nil {
		return nil, err
	}
	if !a.IsActive {
		return nil, ErrAssetNotFound
	}

	if err := s.checkCeiling(ctx, id, tokenID, newBps); err != nil {
		return nil, err
	}

	a.TargetBps = newBps
	a.UpdatedAt = time.Now()
	if err := s.store.SaveAsset(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to update allocation: %w", err)
	}

	s.bus.Publish(ctx, events.TypeAllocationUpdated, id, validation.NormalizeAddress(caller), map[string]any{
		"tokenId":   tokenID,
		"targetBps": newBps,
	})
	return a, nil
}

// UpdateCurrentAllocation records keeper-observed allocations. Best-effort:
// unknown tokens are skipped, and the sum is monitored rather than capped
// since market drift routinely pushes it past the target ceiling.
func (s *Service) UpdateCurrentAllocation(ctx context.Context, caller string, id int64, tokenIDs []string, currentBps []int) error {
	if err := s.guard.RequireKeeper(caller); err != nil {
		return err
	}
	if len(tokenIDs) != len(currentBps) {
		return ErrLengthMismatch
	}

	unlock := s.mu.LockID(id)
	defer unlock()

	if _, err := s.store.GetPortfolio(ctx, id); err != nil {
		return err
	}

	for i, tokenID := range tokenIDs {
		if currentBps[i] < 0 {
			continue
		}
		a, err := s.store.GetAsset(ctx, id, tokenID)
		if err != nil {
			continue
		}
		a.CurrentBps = currentBps[i]
		a.UpdatedAt = time.Now()
		if err := s.store.SaveAsset(ctx, a); err != nil {
			return fmt.Errorf("failed to save allocation: %w", err)
		}
	}

	assets, err := s.store.ListAssets(ctx, id)
	if err != nil {
		return err
	}
	sum := 0
	for _, a := range assets {
		if a.IsActive {
			sum += a.CurrentBps
		}
	}
	metrics.AllocationDriftBps.WithLabelValues(strconv.FormatInt(id, 10)).Set(float64(sum - MaxBps))
	if sum > MaxBps {
		logging.L(ctx).Warn("current allocation drift above ceiling", "portfolio_id", id, "sum_bps", sum)
	}

	s.bus.Publish(ctx, events.TypeAllocationUpdated, id, validation.NormalizeAddress(caller), map[string]any{
		"currentSumBps": sum,
	})
	return nil
}

// RecordRebalance appends one rebalance row per leg and stamps the
// portfolio's last-rebalance time. Owner or manager.
func (s *Service) RecordRebalance(ctx context.Context, caller string, id int64, tokenIDs, symbols, amounts, prices, sides []string) error {
	ctx, span := traces.StartSpan(ctx, "portfolio.RecordRebalance", traces.PortfolioID(id))
	defer span.End()

	unlock := s.mu.LockID(id)
	defer unlock()

	p, err := s.activePortfolioForWrite(ctx, caller, id)
	if err != nil {
		return err
	}

	n := len(tokenIDs)
	if len(symbols) != n || len(amounts) != n || len(prices) != n || len(sides) != n {
		return ErrLengthMismatch
	}

	now := time.Now()
	txs := make([]*Transaction, 0, n)
	for i := 0; i < n; i++ {
		tx, err := buildTransaction(id, tokenIDs[i], symbols[i], amounts[i], prices[i], sides[i], KindRebalance, now)
		if err != nil {
			return err
		}
		txs = append(txs, tx)
	}

	if err := s.store.AppendTransactions(ctx, txs); err != nil {
		return fmt.Errorf("failed to append rebalance: %w", err)
	}

	p.LastRebalance = &now
	p.UpdatedAt = now
	if err := s.store.UpdatePortfolio(ctx, p); err != nil {
		return fmt.Errorf("failed to stamp rebalance date: %w", err)
	}

	metrics.PortfolioRebalancesTotal.Inc()
	metrics.PortfolioTransactionsTotal.WithLabelValues(KindRebalance).Add(float64(n))
	s.bus.Publish(ctx, events.TypePortfolioRebalanced, id, validation.NormalizeAddress(caller), map[string]any{
		"legs": n,
	})
	return nil
}

// RecordTransaction appends a single deposit, withdrawal, or manual row.
// Owner or manager.
func (s *Service) RecordTransaction(ctx context.Context, caller string, id int64, tokenID, symbol, amount, price, side, kind string) (*Transaction, error) {
	unlock := s.mu.LockID(id)
	defer unlock()

	if _, err := s.activePortfolioForWrite(ctx, caller, id); err != nil {
		return nil, err
	}
	if kind != KindDeposit && kind != KindWithdrawal && kind != KindManual {
		return nil, ErrInvalidTx
	}

	tx, err := buildTransaction(id, tokenID, symbol, amount, price, side, kind, time.Now())
	if err != nil {
		return nil, err
	}
	if err := s.store.AppendTransactions(ctx, []*Transaction{tx}); err != nil {
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}

	metrics.PortfolioTransactionsTotal.WithLabelValues(kind).Inc()
	s.bus.Publish(ctx, events.TypeTransactionRecorded, id, validation.NormalizeAddress(caller), map[string]any{
		"tokenId": tx.TokenID,
		"kind":    kind,
		"side":    tx.Side,
		"amount":  tx.Amount,
	})
	return tx, nil
}

// AddManager grants write access to an address. Owner only.
func (s *Service) AddManager(ctx context.Context, caller string, id int64, manager string) error {
	unlock := s.mu.LockID(id)
	defer unlock()

	p, err := s.ownedPortfolio(ctx, caller, id)
	if err != nil {
		return err
	}
	if !validation.IsValidAddress(manager) {
		return ErrBadAddress
	}
	manager = validation.NormalizeAddress(manager)
	if access.Same(manager, p.Owner) {
		return ErrManagerExists
	}

	exists, err := s.store.IsManager(ctx, id, manager)
	if err != nil {
		return err
	}
	if exists {
		return ErrManagerExists
	}
	if err := s.store.AddManager(ctx, id, manager); err != nil {
		return fmt.Errorf("failed to add manager: %w", err)
	}

	s.bus.Publish(ctx, events.TypeManagerAdded, id, p.Owner, map[string]any{
		"manager": manager,
	})
	return nil
}

// RemoveManager revokes a manager. Owner only.
func (s *Service) RemoveManager(ctx context.Context, caller string, id int64, manager string) error {
	unlock := s.mu.LockID(id)
	defer unlock()

	p, err := s.ownedPortfolio(ctx, caller, id)
	if err != nil {
		return err
	}
	manager = validation.NormalizeAddress(manager)

	exists, err := s.store.IsManager(ctx, id, manager)
	if err != nil {
		return err
	}
	if !exists {
		return ErrManagerNotFound
	}
	if err := s.store.RemoveManager(ctx, id, manager); err != nil {
		return fmt.Errorf("failed to remove manager: %w", err)
	}

	s.bus.Publish(ctx, events.TypeManagerRemoved, id, p.Owner, map[string]any{
		"manager": manager,
	})
	return nil
}

// --- Queries ---

// GetPortfolio returns a portfolio by id.
func (s *Service) GetPortfolio(ctx context.Context, id int64) (*Portfolio, error) {
	return s.store.GetPortfolio(ctx, id)
}

// ListPortfolios returns a (start, count) window over all portfolios.
func (s *Service) ListPortfolios(ctx context.Context, start, count int) ([]*Portfolio, error) {
	return s.store.ListPortfolios(ctx, start, count)
}

// PortfoliosForOwner returns every portfolio owned by the address.
func (s *Service) PortfoliosForOwner(ctx context.Context, owner string) ([]*Portfolio, error) {
	return s.store.ListPortfoliosByOwner(ctx, validation.NormalizeAddress(owner))
}

// Assets returns every allocation row for a portfolio, active and inactive.
func (s *Service) Assets(ctx context.Context, id int64) ([]*AssetAllocation, error) {
	if _, err := s.store.GetPortfolio(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListAssets(ctx, id)
}

// Managers returns a portfolio's manager list in grant order.
func (s *Service) Managers(ctx context.Context, id int64) ([]string, error) {
	if _, err := s.store.GetPortfolio(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListManagers(ctx, id)
}

// Transactions returns a (start, count) window of portfolio history in
// insertion order.
func (s *Service) Transactions(ctx context.Context, id int64, start, count int) ([]*Transaction, error) {
	if _, err := s.store.GetPortfolio(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, id, start, count)
}

// CountTransactions returns a portfolio's history length.
func (s *Service) CountTransactions(ctx context.Context, id int64) (int64, error) {
	return s.store.CountTransactions(ctx, id)
}

// --- helpers ---

// ownedPortfolio loads the portfolio and checks the caller is its owner.
func (s *Service) ownedPortfolio(ctx context.Context, caller string, id int64) (*Portfolio, error) {
	p, err := s.store.GetPortfolio(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.Same(caller, p.Owner) {
		return nil, ErrNotOwner
	}
	return p, nil
}

// activePortfolioForWrite loads the portfolio and checks it is active and
// the caller is its owner or a listed manager.
func (s *Service) activePortfolioForWrite(ctx context.Context, caller string, id int64) (*Portfolio, error) {
	p, err := s.store.GetPortfolio(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrNotActive
	}
	if access.Same(caller, p.Owner) {
		return p, nil
	}
	isManager, err := s.store.IsManager(ctx, id, validation.NormalizeAddress(caller))
	if err != nil {
		return nil, err
	}
	if !isManager {
		return nil, ErrNotAuthorized
	}
	return p, nil
}

// checkCeiling verifies the proposed target keeps the active sum within
// MaxBps, excluding the token being written.
func (s *Service) checkCeiling(ctx context.Context, id int64, tokenID string, proposedBps int) error {
	assets, err := s.store.ListAssets(ctx, id)
	if err != nil {
		return err
	}
	sum := proposedBps
	for _, a := range assets {
		if a.IsActive && a.TokenID != tokenID {
			sum += a.TargetBps
		}
	}
	if sum > MaxBps {
		return ErrAllocationExceeded
	}
	return nil
}

func buildTransaction(portfolioID int64, tokenID, symbol, amount, price, side, kind string, ts time.Time) (*Transaction, error) {
	tokenID = validation.SanitizeString(tokenID, validation.MaxNameLength)
	symbol = validation.SanitizeString(symbol, validation.MaxNameLength)
	if tokenID == "" || symbol == "" {
		return nil, ErrInvalidTx
	}
	if side != SideBuy && side != SideSell {
		return nil, ErrInvalidTx
	}
	amountBig, ok := baseunit.ParsePositive(amount)
	if !ok {
		return nil, ErrInvalidTx
	}
	priceBig, ok := baseunit.Parse(price)
	if !ok {
		return nil, ErrInvalidTx
	}
	return &Transaction{
		PortfolioID: portfolioID,
		TokenID:     tokenID,
		Symbol:      symbol,
		Amount:      baseunit.Format(amountBig),
		Price:       baseunit.Format(priceBig),
		Side:        side,
		Kind:        kind,
		Timestamp:   ts,
	}, nil
}

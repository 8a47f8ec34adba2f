package investment

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/chainfolio/chainfolio/internal/access"
	"github.com/chainfolio/chainfolio/internal/baseunit"
	"github.com/chainfolio/chainfolio/internal/events"
	"github.com/chainfolio/chainfolio/internal/logging"
	"github.com/chainfolio/chainfolio/internal/metrics"
	"github.com/chainfolio/chainfolio/internal/syncutil"
	"github.com/chainfolio/chainfolio/internal/traces"
	"github.com/chainfolio/chainfolio/internal/treasury"
	"github.com/chainfolio/chainfolio/internal/validation"
)

// Service implements the investment ledger.
//
// Funds move through the treasury: deposits debit the investor and park
// under the platform vault, fees go to the fee collector, and payouts
// credit the investor back. Record updates always land before the payout
// credit so a re-entrant caller can never observe pre-claim state.
type Service struct {
	store    Store
	guard    *access.Guard
	treasury *treasury.Treasury
	bus      *events.Bus
	mu       syncutil.ShardedMutex

	settingsMu   sync.RWMutex
	feeBps       int
	feeCollector string
	vault        string
	enabled      bool
}

// Config seeds the service's platform settings.
type Config struct {
	PlatformFeeBps int
	FeeCollector   string
	Vault          string
	Enabled        bool
}

// NewService creates an investment service.
func NewService(store Store, guard *access.Guard, tr *treasury.Treasury, bus *events.Bus, cfg Config) (*Service, error) {
	if cfg.PlatformFeeBps < 0 || cfg.PlatformFeeBps > MaxPlatformFeeBps {
		return nil, ErrFeeTooHigh
	}
	if !validation.IsValidAddress(cfg.FeeCollector) || !validation.IsValidAddress(cfg.Vault) {
		return nil, ErrBadAddress
	}
	return &Service{
		store:        store,
		guard:        guard,
		treasury:     tr,
		bus:          bus,
		feeBps:       cfg.PlatformFeeBps,
		feeCollector: validation.NormalizeAddress(cfg.FeeCollector),
		vault:        validation.NormalizeAddress(cfg.Vault),
		enabled:      cfg.Enabled,
	}, nil
}

// --- Strategies (platform admin only) ---

// CreateStrategy registers a new active strategy.
func (s *Service) CreateStrategy(ctx context.Context, caller string, st *Strategy) (*Strategy, error) {
	if err := s.guard.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if err := validateStrategy(st); err != nil {
		return nil, err
	}

	now := time.Now()
	st.IsActive = true
	st.CreatedAt = now
	st.UpdatedAt = now
	if err := s.store.CreateStrategy(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to create strategy: %w", err)
	}

	s.bus.Publish(ctx, events.TypeStrategyCreated, st.ID, s.guard.Admin(), map[string]any{
		"name":      st.Name,
		"riskLevel": st.RiskLevel,
	})
	return st, nil
}

// UpdateStrategy revises an active strategy. Deactivated strategies are
// immutable.
func (s *Service) UpdateStrategy(ctx context.Context, caller string, id int64, update *Strategy) (*Strategy, error) {
	if err := s.guard.RequireAdmin(caller); err != nil {
		return nil, err
	}

	unlock := s.mu.LockID(id)
	defer unlock()

	st, err := s.store.GetStrategy(ctx, id)
	if err != nil {
		return nil, err
	}
	if !st.IsActive {
		return nil, ErrStrategyInactive
	}
	if err := validateStrategy(update); err != nil {
		return nil, err
	}

	st.Name = update.Name
	st.Description = update.Description
	st.Protocol = update.Protocol
	st.AssetID = update.AssetID
	st.ExpectedAPYBps = update.ExpectedAPYBps
	st.RiskLevel = update.RiskLevel
	st.LockPeriodSecs = update.LockPeriodSecs
	st.MinInvestment = update.MinInvestment
	st.MaxInvestment = update.MaxInvestment
	st.UpdatedAt = time.Now()

	if err := s.store.UpdateStrategy(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to update strategy: %w", err)
	}
	s.bus.Publish(ctx, events.TypeStrategyUpdated, st.ID, s.guard.Admin(), map[string]any{
		"name": st.Name,
	})
	return st, nil
}

// DeactivateStrategy retires a strategy. Existing investments stay valid.
func (s *Service) DeactivateStrategy(ctx context.Context, caller string, id int64) error {
	if err := s.guard.RequireAdmin(caller); err != nil {
		return err
	}

	unlock := s.mu.LockID(id)
	defer unlock()

	st, err := s.store.GetStrategy(ctx, id)
	if err != nil {
		return err
	}
	if !st.IsActive {
		return ErrStrategyInactive
	}

	st.IsActive = false
	st.UpdatedAt = time.Now()
	if err := s.store.UpdateStrategy(ctx, st); err != nil {
		return fmt.Errorf("failed to deactivate strategy: %w", err)
	}
	s.bus.Publish(ctx, events.TypeStrategyDeactivated, st.ID, s.guard.Admin(), nil)
	return nil
}

// --- Investments ---

// CreateInvestment opens a position. The platform fee comes off the top;
// the remainder is recorded as principal, initial, and current value.
func (s *Service) CreateInvestment(ctx context.Context, caller string, strategyID int64, amount string) (*Investment, error) {
	ctx, span := traces.StartSpan(ctx, "investment.Create",
		traces.Caller(caller), traces.StrategyID(strategyID), traces.Amount(amount))
	defer span.End()

	settings := s.PlatformSettings()
	if !settings.Enabled {
		return nil, ErrInvestmentsDisabled
	}
	if !validation.IsValidAddress(caller) {
		return nil, ErrBadAddress
	}
	investor := validation.NormalizeAddress(caller)

	amountBig, ok := baseunit.ParsePositive(amount)
	if !ok {
		return nil, ErrInvalidAmount
	}

	st, err := s.store.GetStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	if !st.IsActive {
		return nil, ErrStrategyInactive
	}

	minBig, _ := baseunit.Parse(st.MinInvestment)
	maxBig, _ := baseunit.Parse(st.MaxInvestment)
	if amountBig.Cmp(minBig) < 0 {
		return nil, ErrAmountOutOfBounds
	}
	if maxBig.Sign() > 0 && amountBig.Cmp(maxBig) > 0 {
		return nil, ErrAmountOutOfBounds
	}

	fee := baseunit.BpsShare(amountBig, settings.PlatformFeeBps)
	net := new(big.Int).Sub(amountBig, fee)

	// Pull the full deposit into the vault up front; the investor's
	// insufficient-balance failure happens here, before any record exists.
	depositRef := fmt.Sprintf("invest_%s_%d", investor, time.Now().UnixNano())
	if err := s.treasury.Transfer(ctx, investor, s.vaultAddr(), baseunit.Format(amountBig), depositRef); err != nil {
		return nil, err
	}

	inv := &Investment{
		Investor:     investor,
		StrategyID:   strategyID,
		Principal:    baseunit.Format(net),
		InitialValue: baseunit.Format(net),
		CurrentValue: baseunit.Format(net),
		IsActive:     true,
		StartTime:    time.Now(),
	}
	if err := s.store.CreateInvestment(ctx, inv); err != nil {
		// hand the full deposit back; the position was never recorded
		// and the fee has not moved yet
		if refundErr := s.treasury.Transfer(ctx, s.vaultAddr(), investor, baseunit.Format(amountBig), depositRef+"_refund"); refundErr != nil {
			logging.L(ctx).Error("refund after failed investment create",
				"investor", investor, "amount", baseunit.Format(amountBig), "error", refundErr)
		}
		return nil, fmt.Errorf("failed to create investment: %w", err)
	}

	// The fee only moves once the position exists. A failure here leaves
	// the fee parked in the vault where Reconcile will surface it.
	if fee.Sign() > 0 {
		if err := s.treasury.Transfer(ctx, s.vaultAddr(), settings.FeeCollector, baseunit.Format(fee), depositRef); err != nil {
			logging.L(ctx).Error("fee collection after investment create",
				"investment_id", inv.ID, "fee", baseunit.Format(fee), "error", err)
		}
	}

	metrics.InvestmentsCreatedTotal.Inc()
	logging.L(ctx).Info("investment created",
		"investment_id", inv.ID, "strategy_id", strategyID, "investor", investor, "principal", inv.Principal)
	s.bus.Publish(ctx, events.TypeInvestmentCreated, inv.ID, investor, map[string]any{
		"strategyId": strategyID,
		"principal":  inv.Principal,
		"fee":        baseunit.Format(fee),
	})
	return inv, nil
}

// UpdateInvestmentValue records a keeper-attested current value.
func (s *Service) UpdateInvestmentValue(ctx context.Context, caller string, id int64, newValue string) (*Investment, error) {
	if err := s.guard.RequireKeeper(caller); err != nil {
		return nil, err
	}

	valueBig, ok := baseunit.ParsePositive(newValue)
	if !ok {
		return nil, ErrInvalidAmount
	}

	unlock := s.mu.LockID(id)
	defer unlock()

	inv, err := s.store.GetInvestment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inv.IsActive {
		return nil, ErrInvestmentClosed
	}

	inv.CurrentValue = baseunit.Format(valueBig)
	if err := s.store.UpdateInvestment(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to update value: %w", err)
	}

	metrics.KeeperValueUpdatesTotal.Inc()
	s.bus.Publish(ctx, events.TypeInvestmentUpdated, inv.ID, s.guard.Keeper(), map[string]any{
		"currentValue": inv.CurrentValue,
	})
	return inv, nil
}

// ClaimYield pays out currentValue minus initialValue and raises the
// baseline to currentValue. Investor only; position must be open.
func (s *Service) ClaimYield(ctx context.Context, caller string, id int64) (*YieldClaim, error) {
	ctx, span := traces.StartSpan(ctx, "investment.ClaimYield", traces.InvestmentID(id))
	defer span.End()

	unlock := s.mu.LockID(id)
	defer unlock()

	inv, err := s.store.GetInvestment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.Same(caller, inv.Investor) {
		return nil, ErrNotInvestor
	}
	if !inv.IsActive {
		return nil, ErrInvestmentClosed
	}

	current, _ := baseunit.Parse(inv.CurrentValue)
	initial, _ := baseunit.Parse(inv.InitialValue)
	yield := new(big.Int).Sub(current, initial)
	if yield.Sign() <= 0 {
		return nil, ErrNoYield
	}

	// Baseline moves before any payout leaves the vault.
	inv.InitialValue = inv.CurrentValue
	if err := s.store.UpdateInvestment(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to reset yield baseline: %w", err)
	}

	claim := &YieldClaim{
		InvestmentID: inv.ID,
		Investor:     inv.Investor,
		Amount:       baseunit.Format(yield),
		CreatedAt:    time.Now(),
	}
	if err := s.store.AppendYieldClaim(ctx, claim); err != nil {
		return nil, fmt.Errorf("failed to record yield claim: %w", err)
	}

	ref := fmt.Sprintf("yield_%d_%d", inv.ID, claim.ID)
	if err := s.treasury.Credit(ctx, inv.Investor, claim.Amount, ref); err != nil {
		return nil, fmt.Errorf("failed to pay out yield: %w", err)
	}

	metrics.YieldClaimsTotal.Inc()
	logging.L(ctx).Info("yield claimed",
		"investment_id", inv.ID, "investor", inv.Investor, "amount", claim.Amount)
	s.bus.Publish(ctx, events.TypeYieldClaimed, inv.ID, inv.Investor, map[string]any{
		"claimId": claim.ID,
		"amount":  claim.Amount,
	})
	return claim, nil
}

// CloseInvestment withdraws the full current value once the strategy's
// lock period has elapsed. Terminal: the position never reopens.
func (s *Service) CloseInvestment(ctx context.Context, caller string, id int64) (*Investment, error) {
	ctx, span := traces.StartSpan(ctx, "investment.Close", traces.InvestmentID(id))
	defer span.End()

	unlock := s.mu.LockID(id)
	defer unlock()

	inv, err := s.store.GetInvestment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.Same(caller, inv.Investor) {
		return nil, ErrNotInvestor
	}
	if !inv.IsActive {
		return nil, ErrInvestmentClosed
	}

	st, err := s.store.GetStrategy(ctx, inv.StrategyID)
	if err != nil {
		return nil, err
	}
	// boundary is inclusive: closing exactly at unlock succeeds
	now := time.Now()
	if now.Before(inv.StartTime.Add(st.LockPeriod())) {
		return nil, ErrStillLocked
	}

	payout := inv.CurrentValue
	inv.IsActive = false
	inv.EndTime = &now
	if err := s.store.UpdateInvestment(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to close investment: %w", err)
	}

	ref := fmt.Sprintf("close_%d", inv.ID)
	if err := s.treasury.Credit(ctx, inv.Investor, payout, ref); err != nil {
		return nil, fmt.Errorf("failed to pay out principal: %w", err)
	}

	metrics.InvestmentsClosedTotal.Inc()
	logging.L(ctx).Info("investment closed",
		"investment_id", inv.ID, "investor", inv.Investor, "payout", payout)
	s.bus.Publish(ctx, events.TypeInvestmentClosed, inv.ID, inv.Investor, map[string]any{
		"payout": payout,
	})
	return inv, nil
}

// --- Platform settings (platform admin only) ---

// PlatformSettings returns the current fee, collector, and enabled flag.
func (s *Service) PlatformSettings() Settings {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return Settings{
		PlatformFeeBps: s.feeBps,
		FeeCollector:   s.feeCollector,
		Enabled:        s.enabled,
	}
}

// SetPlatformFee changes the fee taken on new investments.
func (s *Service) SetPlatformFee(caller string, bps int) error {
	if err := s.guard.RequireAdmin(caller); err != nil {
		return err
	}
	if bps < 0 || bps > MaxPlatformFeeBps {
		return ErrFeeTooHigh
	}
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	s.feeBps = bps
	return nil
}

// SetFeeCollector changes where fees accrue.
func (s *Service) SetFeeCollector(caller, collector string) error {
	if err := s.guard.RequireAdmin(caller); err != nil {
		return err
	}
	if !validation.IsValidAddress(collector) {
		return ErrBadAddress
	}
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	s.feeCollector = validation.NormalizeAddress(collector)
	return nil
}

// SetInvestmentsEnabled toggles new-investment creation.
func (s *Service) SetInvestmentsEnabled(caller string, enabled bool) error {
	if err := s.guard.RequireAdmin(caller); err != nil {
		return err
	}
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	s.enabled = enabled
	return nil
}

// --- Queries ---

// GetStrategy returns a strategy by id.
func (s *Service) GetStrategy(ctx context.Context, id int64) (*Strategy, error) {
	return s.store.GetStrategy(ctx, id)
}

// ListStrategies returns a (start, count) strategy window.
func (s *Service) ListStrategies(ctx context.Context, activeOnly bool, start, count int) ([]*Strategy, error) {
	return s.store.ListStrategies(ctx, activeOnly, start, count)
}

// GetInvestment returns an investment by id.
func (s *Service) GetInvestment(ctx context.Context, id int64) (*Investment, error) {
	return s.store.GetInvestment(ctx, id)
}

// InvestmentsForInvestor returns the investor's position ids.
func (s *Service) InvestmentsForInvestor(ctx context.Context, investor string) ([]int64, error) {
	return s.store.InvestmentIDsForInvestor(ctx, validation.NormalizeAddress(investor))
}

// YieldClaims returns an investment's claim history.
func (s *Service) YieldClaims(ctx context.Context, investmentID int64) ([]*YieldClaim, error) {
	if _, err := s.store.GetInvestment(ctx, investmentID); err != nil {
		return nil, err
	}
	return s.store.ListYieldClaims(ctx, investmentID)
}

// YieldClaimsForInvestor returns the investor's claim ids.
func (s *Service) YieldClaimsForInvestor(ctx context.Context, investor string) ([]int64, error) {
	return s.store.YieldClaimIDsForInvestor(ctx, validation.NormalizeAddress(investor))
}

func (s *Service) vaultAddr() string {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.vault
}

func validateStrategy(st *Strategy) error {
	st.Name = validation.SanitizeString(st.Name, validation.MaxNameLength)
	if st.Name == "" {
		return ErrInvalidName
	}
	st.Description = validation.SanitizeString(st.Description, validation.MaxDescriptionLength)
	st.Protocol = validation.SanitizeString(st.Protocol, validation.MaxNameLength)
	st.AssetID = validation.SanitizeString(st.AssetID, validation.MaxNameLength)
	if st.RiskLevel < 1 || st.RiskLevel > 5 {
		return ErrInvalidRiskLevel
	}
	if st.LockPeriodSecs < 0 || st.ExpectedAPYBps < 0 {
		return ErrInvalidBounds
	}

	minBig, ok := baseunit.Parse(st.MinInvestment)
	if !ok {
		return ErrInvalidBounds
	}
	maxBig, ok := baseunit.Parse(st.MaxInvestment)
	if !ok {
		return ErrInvalidBounds
	}
	// max of zero means unbounded
	if maxBig.Sign() > 0 && minBig.Cmp(maxBig) > 0 {
		return ErrInvalidBounds
	}
	st.MinInvestment = baseunit.Format(minBig)
	st.MaxInvestment = baseunit.Format(maxBig)
	return nil
}

package investment

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainfolio/chainfolio/internal/access"
	"github.com/chainfolio/chainfolio/internal/events"
	"github.com/chainfolio/chainfolio/internal/treasury"
)

const (
	testAdmin     = "0x1111111111111111111111111111111111111111"
	testKeeper    = "0x2222222222222222222222222222222222222222"
	testCollector = "0x3333333333333333333333333333333333333333"
	testVault     = "0x4444444444444444444444444444444444444444"
	testInvestor  = "0x5555555555555555555555555555555555555555"
	testOther     = "0x6666666666666666666666666666666666666666"
)

type testEnv struct {
	svc      *Service
	store    *MemoryStore
	treasury *treasury.Treasury
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	guard, err := access.NewGuard(testAdmin, testKeeper)
	require.NoError(t, err)
	bus := events.NewBus(events.NewMemoryStore(), slog.Default())
	tr := treasury.New(treasury.NewMemoryStore())
	store := NewMemoryStore()

	svc, err := NewService(store, guard, tr, bus, Config{
		PlatformFeeBps: 25,
		FeeCollector:   testCollector,
		Vault:          testVault,
		Enabled:        true,
	})
	require.NoError(t, err)
	return &testEnv{svc: svc, store: store, treasury: tr}
}

func (e *testEnv) fund(t *testing.T, address, amount string) {
	t.Helper()
	require.NoError(t, e.treasury.Credit(context.Background(), address, amount, "deposit"))
}

func (e *testEnv) createStrategy(t *testing.T, lockSecs int64) *Strategy {
	t.Helper()
	st, err := e.svc.CreateStrategy(context.Background(), testAdmin, &Strategy{
		Name:           "Stable Yield",
		Protocol:       "aave",
		AssetID:        "usdc",
		ExpectedAPYBps: 450,
		RiskLevel:      2,
		LockPeriodSecs: lockSecs,
		MinInvestment:  "100",
		MaxInvestment:  "0",
	})
	require.NoError(t, err)
	return st
}

func TestStrategyValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreateStrategy(ctx, testOther, &Strategy{Name: "X", RiskLevel: 3})
	assert.ErrorIs(t, err, access.ErrNotAdmin)

	_, err = env.svc.CreateStrategy(ctx, testAdmin, &Strategy{Name: "X", RiskLevel: 0, MinInvestment: "1", MaxInvestment: "0"})
	assert.ErrorIs(t, err, ErrInvalidRiskLevel)
	_, err = env.svc.CreateStrategy(ctx, testAdmin, &Strategy{Name: "X", RiskLevel: 6, MinInvestment: "1", MaxInvestment: "0"})
	assert.ErrorIs(t, err, ErrInvalidRiskLevel)

	// min above max is invalid unless max is zero (unbounded)
	_, err = env.svc.CreateStrategy(ctx, testAdmin, &Strategy{Name: "X", RiskLevel: 3, MinInvestment: "500", MaxInvestment: "100"})
	assert.ErrorIs(t, err, ErrInvalidBounds)
	_, err = env.svc.CreateStrategy(ctx, testAdmin, &Strategy{Name: "X", RiskLevel: 3, MinInvestment: "500", MaxInvestment: "0"})
	require.NoError(t, err)
}

func TestDeactivatedStrategyIsImmutable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	st := env.createStrategy(t, 0)

	require.NoError(t, env.svc.DeactivateStrategy(ctx, testAdmin, st.ID))
	assert.ErrorIs(t, env.svc.DeactivateStrategy(ctx, testAdmin, st.ID), ErrStrategyInactive)

	_, err := env.svc.UpdateStrategy(ctx, testAdmin, st.ID, &Strategy{
		Name: "Renamed", Protocol: "aave", AssetID: "usdc", RiskLevel: 2, MinInvestment: "1", MaxInvestment: "0",
	})
	assert.ErrorIs(t, err, ErrStrategyInactive)

	// existing listings hide inactive strategies when asked
	active, err := env.svc.ListStrategies(ctx, true, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := env.svc.ListStrategies(ctx, false, 0, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateInvestmentFeeTruncation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	st := env.createStrategy(t, 0)
	env.fund(t, testInvestor, "1000")

	// 1000 at 25 bps: fee truncates to 2, principal 998
	inv, err := env.svc.CreateInvestment(ctx, testInvestor, st.ID, "1000")
	require.NoError(t, err)
	assert.Equal(t, int64(1), inv.ID)
	assert.Equal(t, "998", inv.Principal)
	assert.Equal(t, "998", inv.InitialValue)
	assert.Equal(t, "998", inv.CurrentValue)
	assert.True(t, inv.IsActive)

	collectorBal, err := env.treasury.Balance(ctx, testCollector)
	require.NoError(t, err)
	assert.Equal(t, "2", collectorBal.Available)

	vaultBal, err := env.treasury.Balance(ctx, testVault)
	require.NoError(t, err)
	assert.Equal(t, "998", vaultBal.Available)

	investorBal, err := env.treasury.Balance(ctx, testInvestor)
	require.NoError(t, err)
	assert.Equal(t, "0", investorBal.Available)

	ids, err := env.svc.InvestmentsForInvestor(ctx, testInvestor)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestCreateInvestmentGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	st := env.createStrategy(t, 0)
	env.fund(t, testInvestor, "100000")

	_, err := env.svc.CreateInvestment(ctx, testInvestor, 99, "1000")
	assert.ErrorIs(t, err, ErrStrategyNotFound)

	_, err = env.svc.CreateInvestment(ctx, testInvestor, st.ID, "99")
	assert.ErrorIs(t, err, ErrAmountOutOfBounds)

	_, err = env.svc.CreateInvestment(ctx, testInvestor, st.ID, "-10")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	require.NoError(t, env.svc.SetInvestmentsEnabled(testAdmin, false))
	_, err = env.svc.CreateInvestment(ctx, testInvestor, st.ID, "1000")
	assert.ErrorIs(t, err, ErrInvestmentsDisabled)
	require.NoError(t, env.svc.SetInvestmentsEnabled(testAdmin, true))

	require.NoError(t, env.svc.DeactivateStrategy(ctx, testAdmin, st.ID))
	_, err = env.svc.CreateInvestment(ctx, testInvestor, st.ID, "1000")
	assert.ErrorIs(t, err, ErrStrategyInactive)
}

func TestCreateInvestmentBoundedMax(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, testInvestor, "100000")

	st, err := env.svc.CreateStrategy(ctx, testAdmin, &Strategy{
		Name: "Capped", Protocol: "aave", AssetID: "usdc", RiskLevel: 1,
		MinInvestment: "100", MaxInvestment: "5000",
	})
	require.NoError(t, err)

	_, err = env.svc.CreateInvestment(ctx, testInvestor, st.ID, "5001")
	assert.ErrorIs(t, err, ErrAmountOutOfBounds)

	_, err = env.svc.CreateInvestment(ctx, testInvestor, st.ID, "5000")
	require.NoError(t, err)
}

func TestCreateInvestmentInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	st := env.createStrategy(t, 0)
	env.fund(t, testInvestor, "500")

	_, err := env.svc.CreateInvestment(ctx, testInvestor, st.ID, "1000")
	assert.ErrorIs(t, err, treasury.ErrInsufficientBalance)

	// nothing recorded, nothing moved
	ids, err := env.svc.InvestmentsForInvestor(ctx, testInvestor)
	require.NoError(t, err)
	assert.Empty(t, ids)
	bal, _ := env.treasury.Balance(ctx, testInvestor)
	assert.Equal(t, "500", bal.Available)
}

// brokenCreateStore fails every CreateInvestment and delegates the rest.
type brokenCreateStore struct {
	Store
}

func (s *brokenCreateStore) CreateInvestment(ctx context.Context, inv *Investment) error {
	return errors.New("store unavailable")
}

func TestCreateInvestmentRefundsFullDepositOnStoreFailure(t *testing.T) {
	guard, err := access.NewGuard(testAdmin, testKeeper)
	require.NoError(t, err)
	bus := events.NewBus(events.NewMemoryStore(), slog.Default())
	tr := treasury.New(treasury.NewMemoryStore())

	svc, err := NewService(&brokenCreateStore{Store: NewMemoryStore()}, guard, tr, bus, Config{
		PlatformFeeBps: 25,
		FeeCollector:   testCollector,
		Vault:          testVault,
		Enabled:        true,
	})
	require.NoError(t, err)
	ctx := context.Background()

	st, err := svc.CreateStrategy(ctx, testAdmin, &Strategy{
		Name: "Stable Yield", Protocol: "aave", AssetID: "usdc", RiskLevel: 2,
		MinInvestment: "100", MaxInvestment: "0",
	})
	require.NoError(t, err)
	require.NoError(t, tr.Credit(ctx, testInvestor, "10000", "deposit"))

	_, err = svc.CreateInvestment(ctx, testInvestor, st.ID, "1000")
	require.Error(t, err)

	// the whole deposit comes back, fee included
	bal, err := tr.Balance(ctx, testInvestor)
	require.NoError(t, err)
	assert.Equal(t, "10000", bal.Available)

	collectorBal, err := tr.Balance(ctx, testCollector)
	require.NoError(t, err)
	assert.Equal(t, "0", collectorBal.Available)

	vaultBal, err := tr.Balance(ctx, testVault)
	require.NoError(t, err)
	assert.Equal(t, "0", vaultBal.Available)
}

func TestUpdateValueAndClaimYield(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	st := env.createStrategy(t, 0)
	env.fund(t, testInvestor, "1000")

	inv, err := env.svc.CreateInvestment(ctx, testInvestor, st.ID, "1000")
	require.NoError(t, err)

	// value pushes are keeper-only and must be positive
	_, err = env.svc.UpdateInvestmentValue(ctx, testInvestor, inv.ID, "1100")
	assert.ErrorIs(t, err, access.ErrNotKeeper)
	_, err = env.svc.UpdateInvestmentValue(ctx, testKeeper, inv.ID, "0")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = env.svc.UpdateInvestmentValue(ctx, testKeeper, inv.ID, "1100")
	require.NoError(t, err)

	// claims are investor-only
	_, err = env.svc.ClaimYield(ctx, testOther, inv.ID)
	assert.ErrorIs(t, err, ErrNotInvestor)

	// 1100 - 998 = 102 paid out, baseline rises to 1100
	claim, err := env.svc.ClaimYield(ctx, testInvestor, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "102", claim.Amount)

	got, err := env.svc.GetInvestment(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "1100", got.InitialValue)
	assert.Equal(t, "1100", got.CurrentValue)

	bal, _ := env.treasury.Balance(ctx, testInvestor)
	assert.Equal(t, "102", bal.Available)

	// an immediate second claim finds no yield
	_, err = env.svc.ClaimYield(ctx, testInvestor, inv.ID)
	assert.ErrorIs(t, err, ErrNoYield)

	claims, err := env.svc.YieldClaims(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "102", claims[0].Amount)

	claimIDs, err := env.svc.YieldClaimsForInvestor(ctx, testInvestor)
	require.NoError(t, err)
	assert.Equal(t, []int64{claims[0].ID}, claimIDs)
}

func TestClaimYieldNeverPaysAtLoss(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	st := env.createStrategy(t, 0)
	env.fund(t, testInvestor, "1000")

	inv, err := env.svc.CreateInvestment(ctx, testInvestor, st.ID, "1000")
	require.NoError(t, err)

	_, err = env.svc.UpdateInvestmentValue(ctx, testKeeper, inv.ID, "900")
	require.NoError(t, err)

	_, err = env.svc.ClaimYield(ctx, testInvestor, inv.ID)
	assert.ErrorIs(t, err, ErrNoYield)
}

func TestCloseInvestmentLockPeriod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	st := env.createStrategy(t, 3600)
	env.fund(t, testInvestor, "1000")

	inv, err := env.svc.CreateInvestment(ctx, testInvestor, st.ID, "1000")
	require.NoError(t, err)

	_, err = env.svc.CloseInvestment(ctx, testInvestor, inv.ID)
	assert.ErrorIs(t, err, ErrStillLocked)

	// once the lock has elapsed the close goes through
	backdated, err := env.store.GetInvestment(ctx, inv.ID)
	require.NoError(t, err)
	backdated.StartTime = time.Now().Add(-2 * time.Hour)
	require.NoError(t, env.store.UpdateInvestment(ctx, backdated))

	_, err = env.svc.CloseInvestment(ctx, testOther, inv.ID)
	assert.ErrorIs(t, err, ErrNotInvestor)

	closed, err := env.svc.CloseInvestment(ctx, testInvestor, inv.ID)
	require.NoError(t, err)
	assert.False(t, closed.IsActive)
	require.NotNil(t, closed.EndTime)

	bal, _ := env.treasury.Balance(ctx, testInvestor)
	assert.Equal(t, "998", bal.Available)

	// closure is terminal
	_, err = env.svc.CloseInvestment(ctx, testInvestor, inv.ID)
	assert.ErrorIs(t, err, ErrInvestmentClosed)
	_, err = env.svc.ClaimYield(ctx, testInvestor, inv.ID)
	assert.ErrorIs(t, err, ErrInvestmentClosed)
	_, err = env.svc.UpdateInvestmentValue(ctx, testKeeper, inv.ID, "1")
	assert.ErrorIs(t, err, ErrInvestmentClosed)
}

func TestCloseAtExactBoundarySucceeds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// zero lock period unlocks immediately; the boundary is inclusive
	st := env.createStrategy(t, 0)
	env.fund(t, testInvestor, "1000")

	inv, err := env.svc.CreateInvestment(ctx, testInvestor, st.ID, "1000")
	require.NoError(t, err)

	_, err = env.svc.CloseInvestment(ctx, testInvestor, inv.ID)
	require.NoError(t, err)
}

func TestPlatformSettings(t *testing.T) {
	env := newTestEnv(t)

	assert.ErrorIs(t, env.svc.SetPlatformFee(testOther, 50), access.ErrNotAdmin)
	assert.ErrorIs(t, env.svc.SetPlatformFee(testAdmin, 101), ErrFeeTooHigh)
	require.NoError(t, env.svc.SetPlatformFee(testAdmin, 100))

	assert.ErrorIs(t, env.svc.SetFeeCollector(testAdmin, "bogus"), ErrBadAddress)
	require.NoError(t, env.svc.SetFeeCollector(testAdmin, testOther))

	settings := env.svc.PlatformSettings()
	assert.Equal(t, 100, settings.PlatformFeeBps)
	assert.Equal(t, testOther, settings.FeeCollector)
	assert.True(t, settings.Enabled)
}

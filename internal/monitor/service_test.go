package monitor

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainfolio/chainfolio/internal/events"
	"github.com/chainfolio/chainfolio/internal/risk"
)

const (
	testAdmin    = "0x1111111111111111111111111111111111111111"
	testSender   = "0x2222222222222222222222222222222222222222"
	testReceiver = "0x3333333333333333333333333333333333333333"
	testOther    = "0x4444444444444444444444444444444444444444"
)

func newTestService(t *testing.T) (*Service, *events.Bus) {
	t.Helper()
	scorer := risk.NewScorer(risk.NewMemoryStore(), risk.DefaultThresholds())
	bus := events.NewBus(events.NewMemoryStore(), slog.Default())
	return NewService(NewMemoryStore(), scorer, bus, testAdmin), bus
}

func TestMonitorAssignsIDsAndIndexes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tx1, err := svc.Monitor(ctx, testSender, testReceiver, "500")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tx1.ID)
	// Unrated parties score 0 but the amount is above the high-value
	// threshold, which bumps the score without flagging.
	assert.Equal(t, 10, tx1.RiskScore)
	assert.False(t, tx1.Flagged)

	tx2, err := svc.Monitor(ctx, testReceiver, testOther, "5")
	require.NoError(t, err)
	assert.Equal(t, int64(2), tx2.ID)

	got, err := svc.GetTransaction(ctx, tx1.ID)
	require.NoError(t, err)
	assert.Equal(t, testSender, got.Sender)
	assert.Equal(t, "500", got.Amount)

	ids, err := svc.TransactionsForAddress(ctx, testReceiver)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	ids, err = svc.TransactionsForAddress(ctx, testSender)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMonitorRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Monitor(ctx, "not-an-address", testReceiver, "100")
	assert.ErrorIs(t, err, ErrBadAddress)

	_, err = svc.Monitor(ctx, testSender, testReceiver, "-100")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Monitor(ctx, testSender, testReceiver, "10.5")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// zero and empty amounts would violate the store's amount > 0 check
	_, err = svc.Monitor(ctx, testSender, testReceiver, "0")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Monitor(ctx, testSender, testReceiver, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestMonitorFlagsHighRisk(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()

	feed, cancel := bus.Subscribe(8)
	defer cancel()

	require.NoError(t, svc.SetRating(ctx, testAdmin, testSender, 80))
	require.NoError(t, svc.SetRating(ctx, testAdmin, testReceiver, 60))

	// avg 70, high-value bump +10 for an amount above 100 base units
	tx, err := svc.Monitor(ctx, testSender, testReceiver, "150")
	require.NoError(t, err)
	assert.Equal(t, 80, tx.RiskScore)
	assert.True(t, tx.Flagged)

	seen := map[events.Type]bool{}
	for i := 0; i < 2; i++ {
		e := <-feed
		seen[e.Type] = true
	}
	assert.True(t, seen[events.TypeTransactionMonitored])
	assert.True(t, seen[events.TypeHighRiskTxDetected])
}

func TestMonitorAtThresholdNotFlagged(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetRating(ctx, testAdmin, testSender, 70))
	require.NoError(t, svc.SetRating(ctx, testAdmin, testReceiver, 70))

	// score exactly 70; flagging requires strictly above the threshold
	tx, err := svc.Monitor(ctx, testSender, testReceiver, "5")
	require.NoError(t, err)
	assert.Equal(t, 70, tx.RiskScore)
	assert.False(t, tx.Flagged)
}

func TestGetTransactionNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetTransaction(context.Background(), 42)
	assert.ErrorIs(t, err, ErrTxNotFound)
}

func TestSelfTransferIndexedOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Monitor(ctx, testSender, testSender, "10")
	require.NoError(t, err)

	ids, err := svc.TransactionsForAddress(ctx, testSender)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestRatingOpsRequireAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	err := svc.SetRating(ctx, testOther, testSender, 50)
	assert.ErrorIs(t, err, ErrNotAdmin)

	_, err = svc.ListRatings(ctx, testOther, 10)
	assert.ErrorIs(t, err, ErrNotAdmin)

	err = svc.SetRating(ctx, testAdmin, testSender, 101)
	assert.ErrorIs(t, err, risk.ErrInvalidRating)

	require.NoError(t, svc.SetRating(ctx, testAdmin, testSender, 50))
	ratings, err := svc.ListRatings(ctx, testAdmin, 10)
	require.NoError(t, err)
	require.Len(t, ratings, 1)
	assert.Equal(t, 50, ratings[0].Score)
}

func TestTransferAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	assert.ErrorIs(t, svc.TransferAdmin(testOther, testOther), ErrNotAdmin)
	assert.ErrorIs(t, svc.TransferAdmin(testAdmin, ""), ErrEmptyAddress)
	assert.ErrorIs(t, svc.TransferAdmin(testAdmin, "0xnope"), ErrBadAddress)

	require.NoError(t, svc.TransferAdmin(testAdmin, testOther))
	assert.Equal(t, testOther, svc.Admin())

	// old admin no longer recognized
	assert.ErrorIs(t, svc.TransferAdmin(testAdmin, testSender), ErrNotAdmin)
}

func TestSwapRatingSource(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetRating(ctx, testAdmin, testSender, 90))
	require.NoError(t, svc.SetRating(ctx, testAdmin, testReceiver, 90))

	tx, err := svc.Monitor(ctx, testSender, testReceiver, "1")
	require.NoError(t, err)
	assert.True(t, tx.Flagged)

	assert.ErrorIs(t, svc.SwapRatingSource(testOther, risk.NewMemoryStore()), ErrNotAdmin)
	require.NoError(t, svc.SwapRatingSource(testAdmin, risk.NewMemoryStore()))

	// fresh source has no ratings; the same pair now scores clean
	tx, err = svc.Monitor(ctx, testSender, testReceiver, "1")
	require.NoError(t, err)
	assert.Equal(t, 0, tx.RiskScore)
	assert.False(t, tx.Flagged)
}

package treasury

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addrA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func newTestTreasury() *Treasury {
	return New(NewMemoryStore())
}

func TestCreditAndBalance(t *testing.T) {
	tr := newTestTreasury()
	ctx := context.Background()

	require.NoError(t, tr.Credit(ctx, addrA, "1000", "seed"))

	bal, err := tr.Balance(ctx, addrA)
	require.NoError(t, err)
	assert.Equal(t, "1000", bal.Available)
	assert.Equal(t, "1000", bal.TotalIn)
	assert.Equal(t, "0", bal.TotalOut)
}

func TestUnknownAddressHasZeroBalance(t *testing.T) {
	tr := newTestTreasury()

	bal, err := tr.Balance(context.Background(), addrB)
	require.NoError(t, err)
	assert.Equal(t, "0", bal.Available)
}

func TestDebit(t *testing.T) {
	tr := newTestTreasury()
	ctx := context.Background()

	require.NoError(t, tr.Credit(ctx, addrA, "100", "seed"))
	require.NoError(t, tr.Debit(ctx, addrA, "40", "spend"))

	bal, err := tr.Balance(ctx, addrA)
	require.NoError(t, err)
	assert.Equal(t, "60", bal.Available)
	assert.Equal(t, "40", bal.TotalOut)

	err = tr.Debit(ctx, addrA, "61", "overdraw")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestTransfer(t *testing.T) {
	tr := newTestTreasury()
	ctx := context.Background()

	require.NoError(t, tr.Credit(ctx, addrA, "1000", "seed"))
	require.NoError(t, tr.Transfer(ctx, addrA, addrB, "250", "inv_1"))

	balA, _ := tr.Balance(ctx, addrA)
	balB, _ := tr.Balance(ctx, addrB)
	assert.Equal(t, "750", balA.Available)
	assert.Equal(t, "250", balB.Available)

	err := tr.Transfer(ctx, addrA, addrB, "751", "inv_2")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// balances untouched after the failed transfer
	balA, _ = tr.Balance(ctx, addrA)
	balB, _ = tr.Balance(ctx, addrB)
	assert.Equal(t, "750", balA.Available)
	assert.Equal(t, "250", balB.Available)
}

func TestTransferToSelfIsNoop(t *testing.T) {
	tr := newTestTreasury()
	ctx := context.Background()

	require.NoError(t, tr.Credit(ctx, addrA, "100", "seed"))
	require.NoError(t, tr.Transfer(ctx, addrA, addrA, "50", "self"))

	bal, _ := tr.Balance(ctx, addrA)
	assert.Equal(t, "100", bal.Available)

	history, err := tr.History(ctx, addrA, 0, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1) // only the seed credit
}

func TestInputValidation(t *testing.T) {
	tr := newTestTreasury()
	ctx := context.Background()

	assert.ErrorIs(t, tr.Credit(ctx, "bogus", "10", ""), ErrBadAddress)
	assert.ErrorIs(t, tr.Credit(ctx, addrA, "0", ""), ErrInvalidAmount)
	assert.ErrorIs(t, tr.Credit(ctx, addrA, "-5", ""), ErrInvalidAmount)
	assert.ErrorIs(t, tr.Debit(ctx, addrA, "1.5", ""), ErrInvalidAmount)
}

func TestHistoryNewestFirst(t *testing.T) {
	tr := newTestTreasury()
	ctx := context.Background()

	require.NoError(t, tr.Credit(ctx, addrA, "100", "first"))
	require.NoError(t, tr.Debit(ctx, addrA, "30", "second"))
	require.NoError(t, tr.Credit(ctx, addrA, "5", "third"))

	history, err := tr.History(ctx, addrA, 0, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "third", history[0].Reference)
	assert.Equal(t, "second", history[1].Reference)
}

func TestRebuildBalanceMatchesCached(t *testing.T) {
	tr := newTestTreasury()
	ctx := context.Background()

	require.NoError(t, tr.Credit(ctx, addrA, "1000", "seed"))
	require.NoError(t, tr.Debit(ctx, addrA, "300", "spend"))
	require.NoError(t, tr.Transfer(ctx, addrA, addrB, "200", "move"))

	rebuilt, err := tr.RebuildBalance(ctx, addrA)
	require.NoError(t, err)
	assert.Equal(t, "500", rebuilt.Available)
	assert.Equal(t, "1000", rebuilt.TotalIn)
	assert.Equal(t, "500", rebuilt.TotalOut)

	result, err := tr.Reconcile(ctx, addrA)
	require.NoError(t, err)
	assert.True(t, result.Match)
	assert.Equal(t, "0", result.Diff)

	resultB, err := tr.Reconcile(ctx, addrB)
	require.NoError(t, err)
	assert.True(t, resultB.Match)
	assert.Equal(t, "200", resultB.Rebuilt)
}

// Package treasury tracks internal balances per address.
//
// Flow:
//  1. Principal arrives (investment creation) and is credited here
//  2. Fees move to the fee collector, principal to strategy float
//  3. Yield claims and closures debit the float and credit the owner
//
// Every movement is an immutable entry in an append-only journal; the
// cached balance for any address can be rebuilt by replaying its entries.
package treasury

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/chainfolio/chainfolio/internal/baseunit"
	"github.com/chainfolio/chainfolio/internal/logging"
	"github.com/chainfolio/chainfolio/internal/metrics"
	"github.com/chainfolio/chainfolio/internal/validation"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrBadAddress          = errors.New("invalid address")
)

// Entry kinds.
const (
	KindCredit      = "credit"
	KindDebit       = "debit"
	KindTransferIn  = "transfer_in"
	KindTransferOut = "transfer_out"
)

// Entry is one immutable journal record.
type Entry struct {
	ID           int64     `json:"id"`
	Address      string    `json:"address"`
	Kind         string    `json:"kind"`
	Amount       string    `json:"amount"` // base units
	Counterparty string    `json:"counterparty,omitempty"`
	Reference    string    `json:"reference,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Balance is the cached position for an address.
type Balance struct {
	Address   string    `json:"address"`
	Available string    `json:"available"`
	TotalIn   string    `json:"totalIn"`
	TotalOut  string    `json:"totalOut"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists balances and the journal.
type Store interface {
	// GetBalance returns the cached balance, zero-valued for unknown
	// addresses.
	GetBalance(ctx context.Context, address string) (*Balance, error)
	Credit(ctx context.Context, address string, amount *big.Int, reference string) error
	// Debit fails with ErrInsufficientBalance when available < amount.
	Debit(ctx context.Context, address string, amount *big.Int, reference string) error
	// Transfer debits from and credits to atomically.
	Transfer(ctx context.Context, from, to string, amount *big.Int, reference string) error
	// History returns the address's entries, newest first.
	History(ctx context.Context, address string, start, count int) ([]*Entry, error)
	// Entries returns every entry touching the address in journal order,
	// for balance reconstruction.
	Entries(ctx context.Context, address string) ([]*Entry, error)
}

// Treasury manages internal balances over a Store.
type Treasury struct {
	store Store
}

// New creates a treasury over the given store.
func New(store Store) *Treasury {
	return &Treasury{store: store}
}

// Balance returns the cached balance for an address.
func (t *Treasury) Balance(ctx context.Context, address string) (*Balance, error) {
	if !validation.IsValidAddress(address) {
		return nil, ErrBadAddress
	}
	return t.store.GetBalance(ctx, validation.NormalizeAddress(address))
}

// Credit adds funds to an address.
func (t *Treasury) Credit(ctx context.Context, address, amount, reference string) error {
	if !validation.IsValidAddress(address) {
		return ErrBadAddress
	}
	amountBig, ok := baseunit.ParsePositive(amount)
	if !ok {
		return ErrInvalidAmount
	}
	if err := t.store.Credit(ctx, validation.NormalizeAddress(address), amountBig, reference); err != nil {
		return err
	}
	metrics.TreasuryEntriesTotal.WithLabelValues(KindCredit).Inc()
	return nil
}

// Debit removes funds from an address.
func (t *Treasury) Debit(ctx context.Context, address, amount, reference string) error {
	if !validation.IsValidAddress(address) {
		return ErrBadAddress
	}
	amountBig, ok := baseunit.ParsePositive(amount)
	if !ok {
		return ErrInvalidAmount
	}
	if err := t.store.Debit(ctx, validation.NormalizeAddress(address), amountBig, reference); err != nil {
		return err
	}
	metrics.TreasuryEntriesTotal.WithLabelValues(KindDebit).Inc()
	return nil
}

// Transfer moves funds between two addresses atomically.
func (t *Treasury) Transfer(ctx context.Context, from, to, amount, reference string) error {
	if !validation.IsValidAddress(from) || !validation.IsValidAddress(to) {
		return ErrBadAddress
	}
	amountBig, ok := baseunit.ParsePositive(amount)
	if !ok {
		return ErrInvalidAmount
	}
	from = validation.NormalizeAddress(from)
	to = validation.NormalizeAddress(to)
	if from == to {
		// no-op move, nothing to journal
		return nil
	}
	if err := t.store.Transfer(ctx, from, to, amountBig, reference); err != nil {
		return err
	}
	metrics.TreasuryEntriesTotal.WithLabelValues(KindTransferOut).Inc()
	metrics.TreasuryEntriesTotal.WithLabelValues(KindTransferIn).Inc()
	return nil
}

// History returns journal entries for an address, newest first.
func (t *Treasury) History(ctx context.Context, address string, start, count int) ([]*Entry, error) {
	if !validation.IsValidAddress(address) {
		return nil, ErrBadAddress
	}
	if count <= 0 {
		count = 50
	}
	return t.store.History(ctx, validation.NormalizeAddress(address), start, count)
}

// RebuildBalance recomputes an address's balance by replaying its journal
// entries from the beginning.
func (t *Treasury) RebuildBalance(ctx context.Context, address string) (*Balance, error) {
	if !validation.IsValidAddress(address) {
		return nil, ErrBadAddress
	}
	address = validation.NormalizeAddress(address)

	entries, err := t.store.Entries(ctx, address)
	if err != nil {
		return nil, err
	}

	totalIn := baseunit.Zero()
	totalOut := baseunit.Zero()
	for _, e := range entries {
		amt, ok := baseunit.Parse(e.Amount)
		if !ok {
			continue
		}
		switch e.Kind {
		case KindCredit, KindTransferIn:
			totalIn.Add(totalIn, amt)
		case KindDebit, KindTransferOut:
			totalOut.Add(totalOut, amt)
		}
	}

	return &Balance{
		Address:   address,
		Available: baseunit.Format(new(big.Int).Sub(totalIn, totalOut)),
		TotalIn:   baseunit.Format(totalIn),
		TotalOut:  baseunit.Format(totalOut),
		UpdatedAt: time.Now(),
	}, nil
}

// ReconcileResult holds the outcome of a cached-vs-rebuilt balance check.
type ReconcileResult struct {
	Address string `json:"address"`
	Match   bool   `json:"match"`
	Cached  string `json:"cached"`
	Rebuilt string `json:"rebuilt"`
	Diff    string `json:"diff"`
}

// Reconcile compares the cached balance against a journal replay.
func (t *Treasury) Reconcile(ctx context.Context, address string) (*ReconcileResult, error) {
	cached, err := t.Balance(ctx, address)
	if err != nil {
		return nil, err
	}
	rebuilt, err := t.RebuildBalance(ctx, address)
	if err != nil {
		return nil, err
	}

	cachedBig, _ := baseunit.Parse(cached.Available)
	rebuiltBig, _ := baseunit.Parse(rebuilt.Available)
	diff := new(big.Int).Sub(cachedBig, rebuiltBig)

	result := &ReconcileResult{
		Address: rebuilt.Address,
		Match:   diff.Sign() == 0,
		Cached:  cached.Available,
		Rebuilt: rebuilt.Available,
		Diff:    diff.String(),
	}

	if !result.Match {
		metrics.TreasuryMismatchesTotal.Inc()
		logging.L(ctx).Error("treasury balance mismatch",
			"address", result.Address, "cached", result.Cached, "rebuilt", result.Rebuilt)
	}

	return result, nil
}

// Package monitor records risk-scored transactions.
//
// Flow:
//  1. A collaborator submits a (sender, receiver, amount) description
//  2. The scorer computes a 0-100 risk score from stored ratings
//  3. The transaction is appended to the ledger and indexed under both
//     parties
//  4. Scores above the high-risk threshold raise a distinct flag event
//
// The ledger grows monotonically; no record is ever mutated or removed.
package monitor

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTxNotFound    = errors.New("monitored transaction not found")
	ErrInvalidAmount = errors.New("amount must be a positive integer in base units")
	ErrBadAddress    = errors.New("sender and receiver must be valid addresses")
	ErrNotAdmin      = errors.New("caller is not the monitoring admin")
	ErrEmptyAddress  = errors.New("address must not be empty")
)

// Transaction is one immutable monitored-transaction record.
type Transaction struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Amount    string    `json:"amount"` // base units
	RiskScore int       `json:"riskScore"`
	Flagged   bool      `json:"flagged"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists monitored transactions and the per-address id index.
type Store interface {
	// Append assigns the next monotonic id, stores the record, and indexes
	// it under both sender and receiver. All-or-nothing: no partial index
	// updates.
	Append(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id int64) (*Transaction, error)
	// IDsForAddress returns every transaction id touching the address as
	// sender or receiver, in insertion order.
	IDsForAddress(ctx context.Context, address string) ([]int64, error)
	List(ctx context.Context, start, count int) ([]*Transaction, error)
	Count(ctx context.Context) (int64, error)
}

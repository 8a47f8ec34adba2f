// Package portfolio manages named portfolios, their asset-allocation
// targets, and per-portfolio transaction history.
//
// Portfolios are never deleted. Deactivation flips isActive and preserves
// every historical row; allocations are likewise soft-removed so old
// rebalance records keep resolving. The one hard invariant is the
// allocation ceiling: active target allocations for a portfolio never sum
// past 10000 basis points.
package portfolio

import (
	"context"
	"errors"
	"time"
)

var (
	ErrPortfolioNotFound  = errors.New("portfolio not found")
	ErrNotAuthorized      = errors.New("caller is not the portfolio owner or a manager")
	ErrNotOwner           = errors.New("caller is not the portfolio owner")
	ErrNotActive          = errors.New("portfolio is not active")
	ErrAlreadyActive      = errors.New("portfolio is already active")
	ErrAlreadyInactive    = errors.New("portfolio is already inactive")
	ErrInvalidName        = errors.New("portfolio name is required")
	ErrBadAddress         = errors.New("invalid address")
	ErrInvalidBps         = errors.New("allocation must be between 0 and 10000 basis points")
	ErrAllocationExceeded = errors.New("active target allocations would exceed 10000 basis points")
	ErrDuplicateAsset     = errors.New("asset already allocated in this portfolio")
	ErrAssetNotFound      = errors.New("asset not found in this portfolio")
	ErrLengthMismatch     = errors.New("input arrays must have equal length")
	ErrInvalidTx          = errors.New("invalid transaction input")
	ErrManagerExists      = errors.New("address is already a manager")
	ErrManagerNotFound    = errors.New("address is not a manager")
)

// MaxBps is the allocation ceiling for a portfolio.
const MaxBps = 10000

// Transaction sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Transaction kinds.
const (
	KindRebalance  = "rebalance"
	KindDeposit    = "deposit"
	KindWithdrawal = "withdrawal"
	KindManual     = "manual"
)

// Portfolio is a named, owned collection of asset allocations.
type Portfolio struct {
	ID            int64      `json:"id"`
	Owner         string     `json:"owner"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	IsActive      bool       `json:"isActive"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	LastRebalance *time.Time `json:"lastRebalance,omitempty"`
}

// AssetAllocation is one asset's target and observed share of a portfolio.
// CurrentBps is advisory, written only by the keeper, and carries no
// ceiling invariant.
type AssetAllocation struct {
	PortfolioID int64     `json:"portfolioId"`
	TokenID     string    `json:"tokenId"`
	Symbol      string    `json:"symbol"`
	TargetBps   int       `json:"targetBps"`
	CurrentBps  int       `json:"currentBps"`
	IsActive    bool      `json:"isActive"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Transaction is one immutable portfolio history row.
type Transaction struct {
	ID          int64     `json:"id"`
	PortfolioID int64     `json:"portfolioId"`
	TokenID     string    `json:"tokenId"`
	Symbol      string    `json:"symbol"`
	Amount      string    `json:"amount"` // base units
	Price       string    `json:"price"`  // base units per whole asset unit
	Side        string    `json:"side"`
	Kind        string    `json:"kind"`
	Timestamp   time.Time `json:"timestamp"`
}

// Store persists portfolios, allocations, managers, and history.
type Store interface {
	// CreatePortfolio assigns the next monotonic id and stores the record.
	CreatePortfolio(ctx context.Context, p *Portfolio) error
	GetPortfolio(ctx context.Context, id int64) (*Portfolio, error)
	UpdatePortfolio(ctx context.Context, p *Portfolio) error
	ListPortfolios(ctx context.Context, start, count int) ([]*Portfolio, error)
	ListPortfoliosByOwner(ctx context.Context, owner string) ([]*Portfolio, error)

	// SaveAsset inserts or replaces the (portfolio, token) allocation row.
	SaveAsset(ctx context.Context, a *AssetAllocation) error
	GetAsset(ctx context.Context, portfolioID int64, tokenID string) (*AssetAllocation, error)
	// ListAssets returns every allocation row for the portfolio, active and
	// inactive, in insertion order.
	ListAssets(ctx context.Context, portfolioID int64) ([]*AssetAllocation, error)

	// AppendTransactions appends the batch atomically in order.
	AppendTransactions(ctx context.Context, txs []*Transaction) error
	ListTransactions(ctx context.Context, portfolioID int64, start, count int) ([]*Transaction, error)
	CountTransactions(ctx context.Context, portfolioID int64) (int64, error)

	AddManager(ctx context.Context, portfolioID int64, address string) error
	RemoveManager(ctx context.Context, portfolioID int64, address string) error
	ListManagers(ctx context.Context, portfolioID int64) ([]string, error)
	IsManager(ctx context.Context, portfolioID int64, address string) (bool, error)
}

// Package investment manages yield strategies and per-investor positions.
//
// A strategy describes where funds go (protocol, asset, lock period, entry
// bounds). An investment is one investor's position against a strategy:
// opened with a fee-reduced principal, value-tracked by the keeper, yield
// claimable while open, and closed once the lock period has elapsed.
// Closure is terminal.
//
// Yield uses profit-only semantics: a claim pays out currentValue minus
// initialValue and then raises initialValue to currentValue, so the same
// gain can never be claimed twice and principal stays committed.
package investment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrStrategyNotFound    = errors.New("strategy not found")
	ErrInvestmentNotFound  = errors.New("investment not found")
	ErrNotInvestor         = errors.New("caller is not the investment owner")
	ErrStrategyInactive    = errors.New("strategy is not active")
	ErrInvestmentClosed    = errors.New("investment is closed")
	ErrInvalidRiskLevel    = errors.New("risk level must be between 1 and 5")
	ErrInvalidBounds       = errors.New("minimum investment must not exceed maximum")
	ErrInvalidName         = errors.New("strategy name is required")
	ErrInvalidAmount       = errors.New("amount must be a positive integer in base units")
	ErrInvestmentsDisabled = errors.New("investments are disabled")
	ErrAmountOutOfBounds   = errors.New("amount is outside the strategy's investment bounds")
	ErrNoYield             = errors.New("no yield available to claim")
	ErrStillLocked         = errors.New("lock period has not elapsed")
	ErrFeeTooHigh          = errors.New("platform fee must not exceed 100 basis points")
	ErrBadAddress          = errors.New("invalid address")
)

// MaxPlatformFeeBps caps the platform fee at 1%.
const MaxPlatformFeeBps = 100

// Strategy describes a yield product investors can enter.
type Strategy struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Protocol       string    `json:"protocol"`
	AssetID        string    `json:"assetId"`
	ExpectedAPYBps int       `json:"expectedApyBps"`
	RiskLevel      int       `json:"riskLevel"` // 1 (lowest) to 5
	LockPeriodSecs int64     `json:"lockPeriodSecs"`
	MinInvestment  string    `json:"minInvestment"` // base units
	MaxInvestment  string    `json:"maxInvestment"` // base units; "0" means unbounded
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// LockPeriod returns the strategy's lock as a duration.
func (s *Strategy) LockPeriod() time.Duration {
	return time.Duration(s.LockPeriodSecs) * time.Second
}

// Investment is one investor's position against a strategy.
type Investment struct {
	ID           int64      `json:"id"`
	Investor     string     `json:"investor"`
	StrategyID   int64      `json:"strategyId"`
	Principal    string     `json:"principal"`    // post-fee deposit, base units
	InitialValue string     `json:"initialValue"` // yield baseline; rises on claim
	CurrentValue string     `json:"currentValue"` // keeper-updated
	IsActive     bool       `json:"isActive"`
	StartTime    time.Time  `json:"startTime"`
	EndTime      *time.Time `json:"endTime,omitempty"`
}

// YieldClaim is one immutable payout record.
type YieldClaim struct {
	ID           int64     `json:"id"`
	InvestmentID int64     `json:"investmentId"`
	Investor     string    `json:"investor"`
	Amount       string    `json:"amount"` // base units
	CreatedAt    time.Time `json:"createdAt"`
}

// Settings are the platform-wide investment controls.
type Settings struct {
	PlatformFeeBps int    `json:"platformFeeBps"`
	FeeCollector   string `json:"feeCollector"`
	Enabled        bool   `json:"enabled"`
}

// Store persists strategies, investments, and yield claims.
type Store interface {
	// CreateStrategy assigns the next monotonic id and stores the record.
	CreateStrategy(ctx context.Context, s *Strategy) error
	GetStrategy(ctx context.Context, id int64) (*Strategy, error)
	UpdateStrategy(ctx context.Context, s *Strategy) error
	// ListStrategies returns a (start, count) window, optionally active only.
	ListStrategies(ctx context.Context, activeOnly bool, start, count int) ([]*Strategy, error)

	CreateInvestment(ctx context.Context, inv *Investment) error
	GetInvestment(ctx context.Context, id int64) (*Investment, error)
	UpdateInvestment(ctx context.Context, inv *Investment) error
	// InvestmentIDsForInvestor returns the investor's position ids in
	// creation order.
	InvestmentIDsForInvestor(ctx context.Context, investor string) ([]int64, error)

	AppendYieldClaim(ctx context.Context, claim *YieldClaim) error
	ListYieldClaims(ctx context.Context, investmentID int64) ([]*YieldClaim, error)
	YieldClaimIDsForInvestor(ctx context.Context, investor string) ([]int64, error)
}

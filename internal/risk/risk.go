// Package risk implements per-address anomaly risk scoring.
//
// Each address carries a stored rating (0-100, default 0, admin-writable).
// A transaction's score is the truncated mean of the sender and receiver
// ratings plus an amount-based escalation, clamped to 100. Scoring is pure
// and deterministic: identical inputs against unchanged ratings always
// produce the same score, so any observer can re-derive the audit trail.
package risk

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRating is returned when a rating outside [0,100] is stored.
var ErrInvalidRating = errors.New("risk rating must be between 0 and 100")

// MaxRating is the rating and score ceiling.
const MaxRating = 100

// Rating is a stored per-address risk rating.
type Rating struct {
	Address   string    `json:"address"`
	Score     int       `json:"score"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists per-address risk ratings.
type Store interface {
	// GetRating returns the stored rating for an address, 0 if none.
	GetRating(ctx context.Context, address string) (int, error)
	// SetRating stores a rating. Implementations must reject values
	// outside [0, MaxRating] with ErrInvalidRating.
	SetRating(ctx context.Context, address string, score int) error
	// ListRatings returns explicitly rated addresses, highest rating
	// first, for the admin surface.
	ListRatings(ctx context.Context, limit int) ([]*Rating, error)
}

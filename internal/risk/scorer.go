package risk

import (
	"context"
	"math/big"
	"sync"

	"github.com/chainfolio/chainfolio/internal/baseunit"
	"github.com/chainfolio/chainfolio/internal/validation"
)

// Escalation added to the combined score by amount band.
const (
	highValueBump   = 10
	mediumValueBump = 5
)

// Thresholds configures the scorer. The source protocol fixes these values;
// they are kept configurable per deployment with the protocol values as
// defaults pending product clarification.
type Thresholds struct {
	// HighRisk: scores strictly above this are flagged.
	HighRisk int
	// HighValue: amounts strictly above this (base units) add +10.
	HighValue *big.Int
	// MediumValue: amounts strictly above this (base units) add +5.
	MediumValue *big.Int
}

// DefaultThresholds returns the protocol-fixed values (70, 100, 10 units).
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighRisk:    70,
		HighValue:   big.NewInt(100),
		MediumValue: big.NewInt(10),
	}
}

// Scorer computes transaction risk scores from a rating source.
// The rating source is swappable by the monitoring admin; Score itself
// never mutates anything.
type Scorer struct {
	mu         sync.RWMutex
	ratings    Store
	thresholds Thresholds
}

// NewScorer creates a scorer over the given rating source.
func NewScorer(ratings Store, thresholds Thresholds) *Scorer {
	if thresholds.HighValue == nil || thresholds.MediumValue == nil {
		thresholds = DefaultThresholds()
	}
	return &Scorer{ratings: ratings, thresholds: thresholds}
}

// Score computes the 0-100 risk score for a (sender, receiver, amount)
// triple: truncated mean of the two stored ratings, plus the amount
// escalation, clamped to 100. Always returns a score; missing ratings
// default to 0.
func (s *Scorer) Score(ctx context.Context, sender, receiver string, amount *big.Int) (int, error) {
	s.mu.RLock()
	ratings := s.ratings
	th := s.thresholds
	s.mu.RUnlock()

	senderRating, err := ratings.GetRating(ctx, validation.NormalizeAddress(sender))
	if err != nil {
		return 0, err
	}
	receiverRating, err := ratings.GetRating(ctx, validation.NormalizeAddress(receiver))
	if err != nil {
		return 0, err
	}

	score := (senderRating + receiverRating) / 2

	if amount == nil {
		amount = baseunit.Zero()
	}
	switch {
	case amount.Cmp(th.HighValue) > 0:
		score += highValueBump
	case amount.Cmp(th.MediumValue) > 0:
		score += mediumValueBump
	}

	if score > MaxRating {
		score = MaxRating
	}
	return score, nil
}

// Flagged reports whether a score exceeds the high-risk threshold.
func (s *Scorer) Flagged(score int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return score > s.thresholds.HighRisk
}

// Ratings returns the current rating source.
func (s *Scorer) Ratings() Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ratings
}

// SwapRatings replaces the rating source. Authorization is the caller's
// responsibility (monitoring admin only).
func (s *Scorer) SwapRatings(ratings Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings = ratings
}

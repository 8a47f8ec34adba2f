package monitor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/chainfolio/chainfolio/internal/access"
	"github.com/chainfolio/chainfolio/internal/baseunit"
	"github.com/chainfolio/chainfolio/internal/events"
	"github.com/chainfolio/chainfolio/internal/logging"
	"github.com/chainfolio/chainfolio/internal/metrics"
	"github.com/chainfolio/chainfolio/internal/risk"
	"github.com/chainfolio/chainfolio/internal/traces"
	"github.com/chainfolio/chainfolio/internal/validation"
)

// Service implements the transaction monitoring ledger.
//
// Monitoring admin is a role of its own, seeded from the platform admin and
// transferable independently. It gates rating writes and rating-source swaps
// only; anyone may submit transactions for scoring.
type Service struct {
	store  Store
	scorer *risk.Scorer
	bus    *events.Bus

	adminMu sync.RWMutex
	admin   string
}

// NewService creates a monitoring service. initialAdmin is normally the
// platform admin at boot.
func NewService(store Store, scorer *risk.Scorer, bus *events.Bus, initialAdmin string) *Service {
	return &Service{
		store:  store,
		scorer: scorer,
		bus:    bus,
		admin:  validation.NormalizeAddress(initialAdmin),
	}
}

// Monitor scores and records a transaction. Returns the stored record,
// including its assigned id and flagged status.
func (s *Service) Monitor(ctx context.Context, sender, receiver, amount string) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "monitor.Monitor", traces.Amount(amount))
	defer span.End()

	if !validation.IsValidAddress(sender) || !validation.IsValidAddress(receiver) {
		return nil, ErrBadAddress
	}
	// the persistent store enforces amount > 0; reject here so the
	// memory store behaves the same
	amountBig, ok := baseunit.ParsePositive(amount)
	if !ok {
		return nil, ErrInvalidAmount
	}

	sender = validation.NormalizeAddress(sender)
	receiver = validation.NormalizeAddress(receiver)

	score, err := s.scorer.Score(ctx, sender, receiver, amountBig)
	if err != nil {
		return nil, fmt.Errorf("failed to score transaction: %w", err)
	}

	tx := &Transaction{
		Sender:    sender,
		Receiver:  receiver,
		Amount:    baseunit.Format(amountBig),
		RiskScore: score,
		Flagged:   s.scorer.Flagged(score),
		Timestamp: time.Now(),
	}

	// Append + index is atomic in the store; only after it succeeds do we
	// emit observation events.
	if err := s.store.Append(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}

	metrics.TransactionsMonitoredTotal.WithLabelValues(strconv.FormatBool(tx.Flagged)).Inc()
	s.bus.Publish(ctx, events.TypeTransactionMonitored, tx.ID, sender, map[string]any{
		"sender":    tx.Sender,
		"receiver":  tx.Receiver,
		"amount":    tx.Amount,
		"riskScore": tx.RiskScore,
	})

	if tx.Flagged {
		metrics.HighRiskTransactionsTotal.Inc()
		logging.L(ctx).Warn("high risk transaction detected",
			"tx_id", tx.ID, "sender", tx.Sender, "receiver", tx.Receiver, "risk_score", tx.RiskScore)
		s.bus.Publish(ctx, events.TypeHighRiskTxDetected, tx.ID, sender, map[string]any{
			"sender":    tx.Sender,
			"receiver":  tx.Receiver,
			"amount":    tx.Amount,
			"riskScore": tx.RiskScore,
		})
	}

	return tx, nil
}

// GetTransaction returns a monitored transaction by id.
func (s *Service) GetTransaction(ctx context.Context, id int64) (*Transaction, error) {
	return s.store.Get(ctx, id)
}

// TransactionsForAddress returns the ordered id list for an address.
func (s *Service) TransactionsForAddress(ctx context.Context, address string) ([]int64, error) {
	return s.store.IDsForAddress(ctx, validation.NormalizeAddress(address))
}

// ListTransactions returns a (start, count) window over the ledger.
func (s *Service) ListTransactions(ctx context.Context, start, count int) ([]*Transaction, error) {
	return s.store.List(ctx, start, count)
}

// Count returns the ledger length.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

// --- Administrative operations ---

// Admin returns the current monitoring admin.
func (s *Service) Admin() string {
	s.adminMu.RLock()
	defer s.adminMu.RUnlock()
	return s.admin
}

func (s *Service) requireAdmin(caller string) error {
	s.adminMu.RLock()
	defer s.adminMu.RUnlock()
	if !access.Same(caller, s.admin) {
		return ErrNotAdmin
	}
	return nil
}

// SetRating stores a per-address risk rating. Admin-only.
func (s *Service) SetRating(ctx context.Context, caller, address string, score int) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	if !validation.IsValidAddress(address) {
		return ErrBadAddress
	}
	return s.scorer.Ratings().SetRating(ctx, address, score)
}

// ListRatings returns the explicitly rated addresses. Admin-only.
func (s *Service) ListRatings(ctx context.Context, caller string, limit int) ([]*risk.Rating, error) {
	if err := s.requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.scorer.Ratings().ListRatings(ctx, limit)
}

// SwapRatingSource replaces the scorer's rating source. Admin-only.
func (s *Service) SwapRatingSource(caller string, ratings risk.Store) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.scorer.SwapRatings(ratings)
	return nil
}

// TransferAdmin hands monitoring administration to a new identity.
// Admin-only; rejects empty or malformed targets.
func (s *Service) TransferAdmin(caller, newAdmin string) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	if newAdmin == "" {
		return ErrEmptyAddress
	}
	if !validation.IsValidAddress(newAdmin) {
		return ErrBadAddress
	}

	s.adminMu.Lock()
	defer s.adminMu.Unlock()
	s.admin = validation.NormalizeAddress(newAdmin)
	return nil
}

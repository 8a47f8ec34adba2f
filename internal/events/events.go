// Package events provides the core's append-only event feed.
//
// Every mutation in the portfolio, investment, and monitoring modules
// publishes an event. Events are an audit/notification side channel only:
// mutating logic never depends on publication for correctness, and a failed
// append or a slow subscriber never fails the operation that produced it.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chainfolio/chainfolio/internal/metrics"
)

// Type identifies a core event.
type Type string

const (
	TypePortfolioCreated     Type = "portfolio_created"
	TypePortfolioUpdated     Type = "portfolio_updated"
	TypePortfolioDeactivated Type = "portfolio_deactivated"
	TypePortfolioReactivated Type = "portfolio_reactivated"
	TypeAssetAdded           Type = "asset_added"
	TypeAssetRemoved         Type = "asset_removed"
	TypeAllocationUpdated    Type = "allocation_updated"
	TypePortfolioRebalanced  Type = "portfolio_rebalanced"
	TypeTransactionRecorded  Type = "transaction_recorded"
	TypeManagerAdded         Type = "manager_added"
	TypeManagerRemoved       Type = "manager_removed"
	TypeStrategyCreated      Type = "strategy_created"
	TypeStrategyUpdated      Type = "strategy_updated"
	TypeStrategyDeactivated  Type = "strategy_deactivated"
	TypeInvestmentCreated    Type = "investment_created"
	TypeInvestmentUpdated    Type = "investment_updated"
	TypeInvestmentClosed     Type = "investment_closed"
	TypeYieldClaimed         Type = "yield_claimed"
	TypeTransactionMonitored Type = "transaction_monitored"
	TypeHighRiskTxDetected   Type = "high_risk_transaction_detected"
)

// Event is one immutable feed entry.
type Event struct {
	ID        int64          `json:"id"`
	Type      Type           `json:"type"`
	EntityID  int64          `json:"entityId"`
	Actor     string         `json:"actor,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Store persists the append-only event log.
type Store interface {
	Append(ctx context.Context, e *Event) error
	List(ctx context.Context, start, count int) ([]*Event, error)
	ListByType(ctx context.Context, t Type, start, count int) ([]*Event, error)
}

// Bus appends events to the log and fans them out to in-process subscribers.
type Bus struct {
	store  Store
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[int]chan *Event
	nextID int
}

// NewBus creates an event bus over the given log store.
func NewBus(store Store, logger *slog.Logger) *Bus {
	return &Bus{
		store:  store,
		logger: logger,
		subs:   make(map[int]chan *Event),
	}
}

// Publish appends the event and notifies subscribers. Best-effort on both
// sides: append failures are logged, slow subscribers are skipped.
func (b *Bus) Publish(ctx context.Context, t Type, entityID int64, actor string, payload map[string]any) {
	e := &Event{
		Type:      t,
		EntityID:  entityID,
		Actor:     actor,
		Payload:   payload,
		CreatedAt: time.Now(),
	}

	if b.store != nil {
		if err := b.store.Append(ctx, e); err != nil {
			b.logger.Warn("event append failed", "type", t, "entity_id", entityID, "error", err)
		}
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(t)).Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber buffer full; it misses this event
		}
	}
}

// Subscribe registers a buffered subscriber channel. The returned function
// unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan *Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan *Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
}

// List exposes the underlying log for the query surface.
func (b *Bus) List(ctx context.Context, start, count int) ([]*Event, error) {
	return b.store.List(ctx, start, count)
}

// ListByType exposes the log filtered by event type.
func (b *Bus) ListByType(ctx context.Context, t Type, start, count int) ([]*Event, error) {
	return b.store.ListByType(ctx, t, start, count)
}

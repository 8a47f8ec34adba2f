package events

import (
	"context"
	"testing"
	"time"

	"github.com/chainfolio/chainfolio/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() (*Bus, *MemoryStore) {
	store := NewMemoryStore()
	return NewBus(store, logging.New("error", "text")), store
}

func TestPublish_AppendsToLog(t *testing.T) {
	bus, store := newTestBus()
	ctx := context.Background()

	bus.Publish(ctx, TypePortfolioCreated, 1, "0xabc", map[string]any{"name": "growth"})
	bus.Publish(ctx, TypeAssetAdded, 1, "0xabc", nil)

	all, err := store.List(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)

	// ids are monotonic from 1, insertion order preserved
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, int64(2), all[1].ID)
	assert.Equal(t, TypePortfolioCreated, all[0].Type)
	assert.Equal(t, "growth", all[0].Payload["name"])
}

func TestPublish_FansOutToSubscribers(t *testing.T) {
	bus, _ := newTestBus()
	ctx := context.Background()

	ch, cancel := bus.Subscribe(8)
	defer cancel()

	bus.Publish(ctx, TypeHighRiskTxDetected, 7, "", map[string]any{"riskScore": 85})

	select {
	case e := <-ch:
		assert.Equal(t, TypeHighRiskTxDetected, e.Type)
		assert.Equal(t, int64(7), e.EntityID)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
}

func TestSubscribe_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus, _ := newTestBus()
	ctx := context.Background()

	_, cancel := bus.Subscribe(1)
	defer cancel()

	// Publish past the buffer; must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(ctx, TypeTransactionMonitored, int64(i), "", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	bus, _ := newTestBus()

	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)
}

func TestMemoryStore_ListByType(t *testing.T) {
	bus, store := newTestBus()
	ctx := context.Background()

	bus.Publish(ctx, TypeYieldClaimed, 1, "", nil)
	bus.Publish(ctx, TypeInvestmentClosed, 1, "", nil)
	bus.Publish(ctx, TypeYieldClaimed, 2, "", nil)

	claims, err := store.ListByType(ctx, TypeYieldClaimed, 0, 10)
	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.Equal(t, int64(1), claims[0].EntityID)
	assert.Equal(t, int64(2), claims[1].EntityID)
}

func TestMemoryStore_Window(t *testing.T) {
	bus, store := newTestBus()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		bus.Publish(ctx, TypeTransactionRecorded, int64(i), "", nil)
	}

	page, err := store.List(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(4), page[0].ID)

	empty, err := store.List(ctx, 99, 10)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

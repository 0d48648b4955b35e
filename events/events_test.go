package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mezonai/dpos/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	id, ch := bus.Subscribe()
	require.Equal(t, 1, bus.GetTotalSubscriptions())
	assert.True(t, bus.HasSubscriber(id))

	tx := &types.Transaction{ID: "42", Amount: 100}
	bus.Publish(NewTxAddedToPool(tx))

	select {
	case ev := <-ch:
		assert.Equal(t, EventTxAddedToPool, ev.Type())
		assert.Equal(t, "42", ev.Key())
		assert.Same(t, tx, ev.(*TxAddedToPool).Transaction())
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	assert.True(t, bus.Unsubscribe(id))
	assert.False(t, bus.Unsubscribe(id))
	assert.Equal(t, 0, bus.GetTotalSubscriptions())
	_, open := <-ch
	assert.False(t, open)
}

func TestPublishSkipsFullSubscribers(t *testing.T) {
	bus := NewEventBus()
	id, ch := bus.Subscribe()
	for i := 0; i < subscriberBuffer+5; i++ {
		bus.Publish(NewTxRejected("1", "duplicated", nil))
	}
	assert.Len(t, ch, subscriberBuffer)
	assert.Equal(t, int64(5), bus.Dropped(id))
}

func TestSubscribeFiltersByType(t *testing.T) {
	bus := NewEventBus()
	_, blocks := bus.Subscribe(EventBlockApplied, EventBlockDeleted)
	_, all := bus.Subscribe()

	bus.Publish(NewTxRejected("1", "duplicated", nil))
	bus.Publish(NewBlockApplied(&types.Block{ID: "5", Height: 2}))

	require.Len(t, blocks, 1)
	assert.Equal(t, EventBlockApplied, (<-blocks).Type())
	assert.Len(t, all, 2)
	assert.Len(t, bus.GetSubscriberIDs(), 2)
}

func TestEventKeys(t *testing.T) {
	b := &types.Block{ID: "9", Height: 3}
	prev := &types.Block{ID: "8", Height: 2}

	applied := NewBlockApplied(b)
	assert.Equal(t, EventBlockApplied, applied.Type())
	assert.Equal(t, "9", applied.Key())
	assert.False(t, applied.Timestamp().IsZero())

	deleted := NewBlockDeleted(b, prev)
	assert.Equal(t, "9", deleted.Key())
	assert.Same(t, prev, deleted.NewTip())

	rejected := NewTxRejected("7", "invalid_fee", errors.New("Invalid transaction fee"))
	assert.Equal(t, "invalid_fee", rejected.Reason())
	assert.Equal(t, "Invalid transaction fee", rejected.Error())
}

type fakeState struct {
	height    int64
	broadhash []string
	updates   int
}

func (s *fakeState) SetHeight(h int64)            { s.height = h }
func (s *fakeState) UpdateBroadhash(ids []string) { s.broadhash = ids }
func (s *fakeState) UpdateConsensus(context.Context) (int, error) {
	s.updates++
	return 100, nil
}

type fakeRecent []string

func (r fakeRecent) LastBlockIDs() []string { return r }

func TestBlockMonitor(t *testing.T) {
	state := &fakeState{}
	h := BlockMonitor(state, fakeRecent{"1", "2", "3"})
	ctx := context.Background()

	require.NoError(t, h(ctx, NewBlockApplied(&types.Block{ID: "3", Height: 3})))
	assert.Equal(t, int64(3), state.height)
	assert.Equal(t, []string{"3", "2", "1"}, state.broadhash)
	assert.Equal(t, 1, state.updates)

	require.NoError(t, h(ctx, NewBlockDeleted(&types.Block{ID: "3", Height: 3}, &types.Block{ID: "2", Height: 2})))
	assert.Equal(t, int64(2), state.height)
	assert.Equal(t, 2, state.updates)

	require.NoError(t, h(ctx, NewTxRejected("x", "other", nil)))
	assert.Equal(t, 2, state.updates)
}

func TestRouterDispatchesByType(t *testing.T) {
	bus := NewEventBus()
	router := NewEventRouter(bus)
	got := make(chan string, 4)
	router.Handle(EventBlockApplied, func(_ context.Context, ev BlockchainEvent) error {
		got <- "applied:" + ev.Key()
		return nil
	})
	router.Handle(EventBlockApplied, func(context.Context, BlockchainEvent) error {
		return errors.New("logged, not fatal")
	})
	router.Handle(EventTxRejected, func(_ context.Context, ev BlockchainEvent) error {
		got <- "rejected:" + ev.Key()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := router.Start(ctx)
	require.Eventually(t, func() bool { return bus.GetTotalSubscriptions() == 1 }, time.Second, 5*time.Millisecond)

	bus.Publish(NewBlockApplied(&types.Block{ID: "5"}))
	bus.Publish(NewTxRejected("6", "other", nil))
	assert.Equal(t, "applied:5", <-got)
	assert.Equal(t, "rejected:6", <-got)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("router did not stop")
	}
	assert.Equal(t, 0, bus.GetTotalSubscriptions())
}

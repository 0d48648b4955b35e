package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/mezonai/dpos/exception"
	"github.com/mezonai/dpos/logx"
)

type Handler func(ctx context.Context, event BlockchainEvent) error

// EventRouter feeds bus events to the handlers registered for their type, one at a time.
type EventRouter struct {
	eventBus *EventBus
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

func NewEventRouter(eventBus *EventBus) *EventRouter {
	return &EventRouter{
		eventBus: eventBus,
		handlers: make(map[EventType][]Handler),
	}
}

func (er *EventRouter) Handle(t EventType, h Handler) {
	er.mu.Lock()
	defer er.mu.Unlock()
	er.handlers[t] = append(er.handlers[t], h)
}

// Start subscribes to the bus for the event types handled so far and dispatches until ctx is done. The returned channel is
// closed once the dispatch loop has exited.
func (er *EventRouter) Start(ctx context.Context) <-chan struct{} {
	er.mu.RLock()
	wanted := make([]EventType, 0, len(er.handlers))
	for t := range er.handlers {
		wanted = append(wanted, t)
	}
	er.mu.RUnlock()
	id, ch := er.eventBus.Subscribe(wanted...)
	done := make(chan struct{})
	exception.SafeGo("EventRouter", func() {
		defer close(done)
		defer er.eventBus.Unsubscribe(id)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				er.Dispatch(ctx, ev)
			}
		}
	})
	return done
}

// Dispatch runs the handlers of ev in registration order. Handler errors are logged.
func (er *EventRouter) Dispatch(ctx context.Context, ev BlockchainEvent) {
	er.mu.RLock()
	handlers := append([]Handler(nil), er.handlers[ev.Type()]...)
	er.mu.RUnlock()
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			logx.Error("EVENTROUTER", fmt.Sprintf("handler failed | event_type=%s | key=%s | err=%v", ev.Type(), ev.Key(), err))
		}
	}
}

// ChainState is the system view refreshed after every tip change.
type ChainState interface {
	SetHeight(h int64)
	UpdateBroadhash(lastIDs []string)
	UpdateConsensus(ctx context.Context) (int, error)
}

// RecentBlocks lists recently applied block ids, oldest first.
type RecentBlocks interface {
	LastBlockIDs() []string
}

// BlockMonitor returns the handler keeping height, broadhash and consensus in line with the tip.
func BlockMonitor(state ChainState, recent RecentBlocks) Handler {
	return func(ctx context.Context, ev BlockchainEvent) error {
		var height int64
		switch e := ev.(type) {
		case *BlockApplied:
			height = e.Block().Height
		case *BlockDeleted:
			height = e.NewTip().Height
		default:
			return nil
		}
		state.SetHeight(height)
		ids := recent.LastBlockIDs()
		tipFirst := make([]string, len(ids))
		for i, id := range ids {
			tipFirst[len(ids)-1-i] = id
		}
		state.UpdateBroadhash(tipFirst)
		_, err := state.UpdateConsensus(ctx)
		return err
	}
}

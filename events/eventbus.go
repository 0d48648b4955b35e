package events

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mezonai/dpos/logx"
)

const subscriberBuffer = 50

type SubscriberID string

// Subscriber receives the chain events of the types it asked for, or all of them.
type Subscriber struct {
	ID      SubscriberID
	Channel chan BlockchainEvent
	types   map[EventType]struct{}
	dropped atomic.Int64
}

func (s *Subscriber) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// EventBus fans chain events out to subscribers without ever blocking the publisher.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[SubscriberID]*Subscriber
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[SubscriberID]*Subscriber)}
}

// Subscribe registers a subscriber for the given event types. No types means every event.
func (eb *EventBus) Subscribe(types ...EventType) (SubscriberID, chan BlockchainEvent) {
	sub := &Subscriber{
		ID:      SubscriberID(uuid.Must(uuid.NewV7()).String()),
		Channel: make(chan BlockchainEvent, subscriberBuffer),
	}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	eb.mu.Lock()
	eb.subscribers[sub.ID] = sub
	total := len(eb.subscribers)
	eb.mu.Unlock()

	logx.Info("EVENTBUS", fmt.Sprintf("Subscribed to chain events | subscriber_id=%s | types=%v | total_subscribers=%d", sub.ID, types, total))
	return sub.ID, sub.Channel
}

// Unsubscribe removes the subscriber and closes its channel.
func (eb *EventBus) Unsubscribe(id SubscriberID) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub, ok := eb.subscribers[id]
	if !ok {
		logx.Warn("EVENTBUS", fmt.Sprintf("Attempted to unsubscribe non-existent subscriber | subscriber_id=%s", id))
		return false
	}
	delete(eb.subscribers, id)
	close(sub.Channel)
	logx.Info("EVENTBUS", fmt.Sprintf("Unsubscribed | subscriber_id=%s | dropped=%d | remaining_subscribers=%d", id, sub.dropped.Load(), len(eb.subscribers)))
	return true
}

// Publish hands event to every interested subscriber. A subscriber whose buffer is full misses it.
func (eb *EventBus) Publish(event BlockchainEvent) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	key := event.Key()
	logx.Debug("EVENTBUS", fmt.Sprintf("Publishing event | event_type=%s | key=%s | subscribers=%d", event.Type(), key, len(eb.subscribers)))
	for id, sub := range eb.subscribers {
		if !sub.wants(event.Type()) {
			continue
		}
		select {
		case sub.Channel <- event:
		default:
			sub.dropped.Add(1)
			logx.Warn("EVENTBUS", fmt.Sprintf("Subscriber channel full | subscriber_id=%s | event_type=%s | key=%s", id, event.Type(), key))
		}
	}
}

// Dropped is how many events id missed because its buffer was full.
func (eb *EventBus) Dropped(id SubscriberID) int64 {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if sub, ok := eb.subscribers[id]; ok {
		return sub.dropped.Load()
	}
	return 0
}

func (eb *EventBus) GetTotalSubscriptions() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// GetSubscriberIDs lists the active subscribers, sorted.
func (eb *EventBus) GetSubscriberIDs() []SubscriberID {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	ids := make([]SubscriberID, 0, len(eb.subscribers))
	for id := range eb.subscribers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (eb *EventBus) HasSubscriber(id SubscriberID) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	_, ok := eb.subscribers[id]
	return ok
}

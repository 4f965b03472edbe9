// Package events provides the lifecycle event bus.
// The scheduler publishes job and queue events here; the websocket endpoint
// and tests subscribe. Delivery is non-blocking: a subscriber that falls
// behind loses events rather than stalling the pipeline.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// Subscription is a registered event listener
type Subscription struct {
	ID    string
	Types []EventType
	C     chan Event
}

func (s *Subscription) matches(eventType EventType) bool {
	if len(s.Types) == 0 {
		return true
	}
	for _, t := range s.Types {
		if t == eventType {
			return true
		}
	}
	return false
}

// Bus is an in-process publish/subscribe event bus
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscription
	logger      hclog.Logger

	bufferSize int
	dropped    uint64
}

// NewBus creates an event bus
func NewBus(logger hclog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string]*Subscription),
		logger:      logger.Named("events"),
		bufferSize:  64,
	}
}

// Subscribe registers a listener for the given event types. An empty type
// list subscribes to everything.
func (b *Bus) Subscribe(types ...EventType) *Subscription {
	sub := &Subscription{
		ID:    uuid.New().String(),
		Types: types,
		C:     make(chan Event, b.bufferSize),
	}

	b.mu.Lock()
	b.subscribers[sub.ID] = sub
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.C)
	}
}

// Publish delivers an event to all matching subscribers without blocking
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if !sub.matches(event.Type) {
			continue
		}
		select {
		case sub.C <- event:
		default:
			atomic.AddUint64(&b.dropped, 1)
			b.logger.Warn("dropped event for slow subscriber",
				"subscription_id", sub.ID,
				"event_type", event.Type)
		}
	}
}

// SubscriberCount returns the number of active subscriptions
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close removes all subscriptions
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		close(sub.C)
	}
}

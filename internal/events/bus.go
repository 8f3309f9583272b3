package events

import (
	"sync"
	"sync/atomic"
)

// DefaultQueueDepth is the per-subscriber buffer used when Subscribe is
// called with a non-positive depth.
const DefaultQueueDepth = 64

// Bus fans events out to subscribers. Each subscriber owns a bounded
// queue; publishing never blocks. When a queue is full the event is
// dropped for that subscriber and counted.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	closed  bool
	dropped atomic.Uint64
}

// Subscription is a handle to a subscriber's event queue.
type Subscription struct {
	bus     *Bus
	ch      chan Event
	dropped atomic.Uint64
	once    sync.Once
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber with the given queue depth.
// A non-positive depth uses DefaultQueueDepth. Returns nil if the bus
// is closed.
func (b *Bus) Subscribe(depth int) *Subscription {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscription{
		bus: b,
		ch:  make(chan Event, depth),
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers the event to every subscriber whose queue has room.
// Full queues drop the event and increment the drop counters.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			sub.dropped.Add(1)
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the total events dropped across all subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unsubscribes everyone and closes their channels. Publish
// becomes a no-op afterward.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}

// Events returns the subscriber's receive channel. It is closed when
// the subscription or the bus is closed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns the number of events this subscriber missed.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close removes the subscription from the bus and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if _, ok := s.bus.subs[s]; ok {
			delete(s.bus.subs, s)
			close(s.ch)
		}
	})
}

// Package events provides a typed, non-blocking publish/subscribe bus for
// daemon-internal notifications.
//
// Publish never blocks: events for subscribers whose channels are full are
// dropped and counted. Recent state always beats a backlog of stale
// notifications, matching the real-time posture of the rest of the engine.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies the closed set of event types the daemon emits.
type Kind int

const (
	KindWorkerStateChanged Kind = iota
	KindWorkerRestarted
	KindFrameProcessed
	KindPatternObserved
	KindCorrelationFound
	KindStreamStopped
)

func (k Kind) String() string {
	switch k {
	case KindWorkerStateChanged:
		return "worker_state_changed"
	case KindWorkerRestarted:
		return "worker_restarted"
	case KindFrameProcessed:
		return "frame_processed"
	case KindPatternObserved:
		return "pattern_observed"
	case KindCorrelationFound:
		return "correlation_found"
	case KindStreamStopped:
		return "stream_stopped"
	default:
		return "unknown"
	}
}

// Event is a single bus notification. WorkerID and StreamID are set when the
// event concerns a worker or stream; Detail carries a kind-specific payload.
type Event struct {
	Kind     Kind
	At       time.Time
	WorkerID string
	StreamID string
	Detail   any
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Published   uint64
	Delivered   uint64
	Dropped     uint64
	Subscribers int
}

// Bus fans events out to subscriber channels.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan<- Event
	closed      bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string]chan<- Event)}
}

// Subscribe registers a channel to receive events. The caller owns the
// channel and must drain it; a full channel drops events rather than
// blocking Publish.
func (b *Bus) Subscribe(id string, ch chan<- Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if _, ok := b.subscribers[id]; ok {
		return ErrSubscriberExists
	}
	b.subscribers[id] = ch
	return nil
}

// Unsubscribe removes a subscriber by id.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if _, ok := b.subscribers[id]; !ok {
		return ErrSubscriberNotFound
	}
	delete(b.subscribers, id)
	return nil
}

// Publish delivers the event to every subscriber whose channel has room.
// It is safe for concurrent use and returns immediately.
func (b *Bus) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	b.published.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
			b.delivered.Add(1)
		default:
			b.dropped.Add(1)
		}
	}
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	subscribers := len(b.subscribers)
	b.mu.RUnlock()
	return Stats{
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Dropped:     b.dropped.Load(),
		Subscribers: subscribers,
	}
}

// Close prevents further subscriptions and publishes. Subscriber channels are
// not closed; their owners decide when to stop reading.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subscribers = map[string]chan<- Event{}
}

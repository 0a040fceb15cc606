// Package broadcast implements the live snapshot fan-out: a bounded
// multi-producer, multi-consumer channel where a subscriber that falls more
// than capacity items behind is told how much it missed rather than
// disconnected.
package broadcast

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Message is either a value of type T or a lag marker, never both, so
// consumers handle the lag case explicitly instead of unwinding via a
// dropped connection.
type Message[T any] struct {
	Value  T
	Lagged int // > 0 means "you missed this many items", Value is zero
}

type subscriber[T any] struct {
	id uuid.UUID
	ch chan Message[T]
	// missed counts overflow events since the last Lagged notice was
	// successfully queued, coalesced into a single Lagged(n) marker
	// followed by the newest value.
	missed int32
}

// Hub is a bounded broadcast channel with capacity slots per subscriber.
type Hub[T any] struct {
	capacity int

	mu          sync.RWMutex
	subscribers map[uuid.UUID]*subscriber[T]

	count int64 // atomic, observable subscriber count
}

func NewHub[T any](capacity int) *Hub[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Hub[T]{
		capacity:    capacity,
		subscribers: make(map[uuid.UUID]*subscriber[T]),
	}
}

// Count returns the current subscriber count.
func (h *Hub[T]) Count() int64 {
	return atomic.LoadInt64(&h.count)
}

// Subscription is a scoped connection guard: acquired by Subscribe, and
// the only way the subscriber counter is decremented. Callers must defer
// Close() on every exit path.
type Subscription[T any] struct {
	hub    *Hub[T]
	id     uuid.UUID
	ch     chan Message[T]
	closed int32
}

// C returns the channel to receive on.
func (s *Subscription[T]) C() <-chan Message[T] { return s.ch }

// Close unregisters the subscription and decrements the atomic counter.
// Safe to call more than once.
func (s *Subscription[T]) Close() {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return
	}
	s.hub.mu.Lock()
	delete(s.hub.subscribers, s.id)
	s.hub.mu.Unlock()
	atomic.AddInt64(&s.hub.count, -1)
}

// Subscribe registers a new subscriber and returns its scoped guard.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	sub := &subscriber[T]{
		id: uuid.New(),
		ch: make(chan Message[T], h.capacity),
	}

	h.mu.Lock()
	h.subscribers[sub.id] = sub
	h.mu.Unlock()
	atomic.AddInt64(&h.count, 1)

	return &Subscription[T]{hub: h, id: sub.id, ch: sub.ch}
}

// lastPublishFailureLog rate-limits the "no subscribers" log line to at
// most once per 60s.
var publishFailureMu sync.Mutex
var lastPublishFailureLog time.Time

// Publish is non-blocking: a subscriber whose channel is full has its
// pending items replaced by a lag counter instead of blocking the
// publisher. If there are no subscribers at all, that is logged at most
// once per 60 seconds.
func (h *Hub[T]) Publish(v T) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.subscribers) == 0 {
		publishFailureMu.Lock()
		if time.Since(lastPublishFailureLog) >= time.Minute {
			log.Printf("broadcast: publish with no subscribers")
			lastPublishFailureLog = time.Now()
		}
		publishFailureMu.Unlock()
		return
	}

	for _, sub := range h.subscribers {
		h.deliver(sub, v)
	}
}

// deliver attempts a non-blocking send. On a full channel every pending
// item is stale by definition (a slow reader hasn't consumed any of them),
// so they are all discarded and replaced with a Lagged(n) marker followed
// by the newest value. n counts overflow events, not individual items:
// with a capacity of 2 or more, capacity+1 publishes before a first read
// yield Lagged(1) then that newest snapshot. A capacity-1 channel has room
// for the newest value only, so no Lagged marker is ever sent on it.
func (h *Hub[T]) deliver(sub *subscriber[T], v T) {
	select {
	case sub.ch <- Message[T]{Value: v}:
		return
	default:
	}

	for {
		select {
		case <-sub.ch:
			continue
		default:
		}
		break
	}

	missed := atomic.AddInt32(&sub.missed, 1)
	if cap(sub.ch) >= 2 {
		select {
		case sub.ch <- Message[T]{Lagged: int(missed)}:
			atomic.StoreInt32(&sub.missed, 0)
			log.Printf("broadcast: subscriber %s lagged by %d", sub.id, missed)
		default:
		}
	}

	select {
	case sub.ch <- Message[T]{Value: v}:
	default:
		// A racing deliver refilled the channel between the drain and this
		// send; the next overflow will fold this item's loss into Lagged.
	}
}

// Package memory provides in-memory implementations of the domain ports:
// the event bus, the simulated status source, the activity ring log, and
// a recording redirector.
package memory

import (
	"sync"

	"github.com/Session-Vigil/Sessionvigil/internal/domain/activity"
)

// busEntry is one live subscription on the bus.
type busEntry struct {
	id int
	fn func(activity.Event)
}

// Bus is an in-process pub/sub for activity events. Publish dispatches
// synchronously on the caller's goroutine to the subscribers of the
// event's kind, in registration order. Thread-safe.
type Bus struct {
	mu        sync.RWMutex
	subs      map[activity.Kind][]busEntry
	nextID    int
	published uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[activity.Kind][]busEntry)}
}

// Subscribe registers fn for events of the given kind.
func (b *Bus) Subscribe(kind activity.Kind, fn func(activity.Event)) (activity.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[kind] = append(b.subs[kind], busEntry{id: b.nextID, fn: fn})
	return &busSubscription{bus: b, kind: kind, id: b.nextID}, nil
}

// Publish delivers ev to every current subscriber of its kind and
// returns how many were reached. Handlers run on the caller's
// goroutine, outside the bus lock.
func (b *Bus) Publish(ev activity.Event) int {
	b.mu.Lock()
	b.published++
	entries := b.subs[ev.Kind]
	targets := make([]func(activity.Event), len(entries))
	for i, entry := range entries {
		targets[i] = entry.fn
	}
	b.mu.Unlock()

	for _, fn := range targets {
		fn(ev)
	}
	return len(targets)
}

// SubscriberCount returns the number of live subscriptions for a kind.
func (b *Bus) SubscriberCount(kind activity.Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

// Published returns the total number of events published.
func (b *Bus) Published() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.published
}

func (b *Bus) remove(kind activity.Kind, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.subs[kind]
	for i, entry := range entries {
		if entry.id == id {
			b.subs[kind] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// busSubscription is a handle onto one Bus registration.
type busSubscription struct {
	bus  *Bus
	kind activity.Kind
	id   int
}

// Cancel detaches the subscriber. Idempotent.
func (s *busSubscription) Cancel() {
	s.bus.remove(s.kind, s.id)
}

// Compile-time interface verification.
var _ activity.EventSource = (*Bus)(nil)

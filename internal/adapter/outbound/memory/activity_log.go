package memory

import (
	"context"
	"sync"

	"github.com/Session-Vigil/Sessionvigil/internal/domain/activity"
)

const defaultLogCapacity = 1000

// ActivityLog keeps the most recent activity events in a bounded ring.
// It implements both the sink and reader ports: the default journal
// when no durable store is configured, the recent-events feed for the
// stream endpoint, and the test double.
type ActivityLog struct {
	mu     sync.Mutex
	recent []activity.Event
	cap    int
	writes uint64
}

// NewActivityLog creates a log holding up to capacity events; a
// non-positive capacity uses the default of 1000.
func NewActivityLog(capacity int) *ActivityLog {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &ActivityLog{
		recent: make([]activity.Event, 0, capacity),
		cap:    capacity,
	}
}

// WriteBatch appends events to the ring, dropping the oldest once full.
func (l *ActivityLog) WriteBatch(_ context.Context, events []activity.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range events {
		if len(l.recent) >= l.cap {
			copy(l.recent, l.recent[1:])
			l.recent[len(l.recent)-1] = ev
		} else {
			l.recent = append(l.recent, ev)
		}
		l.writes++
	}
	return nil
}

// Close implements the sink port. Nothing to release.
func (l *ActivityLog) Close() error { return nil }

// Recent returns up to n events, newest first.
func (l *ActivityLog) Recent(n int) []activity.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := len(l.recent)
	if n > total {
		n = total
	}
	if n <= 0 {
		return nil
	}
	result := make([]activity.Event, n)
	for i := 0; i < n; i++ {
		result[i] = l.recent[total-1-i]
	}
	return result
}

// Len returns the number of retained events.
func (l *ActivityLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recent)
}

// Writes returns the total number of events ever written.
func (l *ActivityLog) Writes() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}

// Compile-time interface verification.
var (
	_ activity.ActivitySink   = (*ActivityLog)(nil)
	_ activity.ActivityReader = (*ActivityLog)(nil)
)

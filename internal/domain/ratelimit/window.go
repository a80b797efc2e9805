// Package ratelimit provides a per-key sliding-window attempt counter.
//
// The window is the shared shape behind two concerns: the activity
// detector's per-kind self-notification limit and the HTTP ingest
// per-client limit. It is deliberately small and self-contained so both
// can hold their own independently configured instance.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// windowEntry tracks attempts for a single key within the current window.
type windowEntry struct {
	count   int
	resetAt time.Time
}

// SlidingWindow counts attempts per key inside a fixed time window.
// A key's counter lazily resets once its window has elapsed; Prune or the
// optional background cleanup removes entries whose window has expired so
// the map stays bounded under churning key sets.
// Thread-safe for concurrent access.
type SlidingWindow struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	limit   int
	window  time.Duration

	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
}

// NewSlidingWindow creates a window allowing limit attempts per key per window.
// A non-positive limit is treated as 1; a non-positive window as one minute.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return NewSlidingWindowWithCleanup(limit, window, 5*time.Minute)
}

// NewSlidingWindowWithCleanup creates a window with a custom cleanup interval
// for the optional background pruning goroutine (see StartCleanup).
func NewSlidingWindowWithCleanup(limit int, window, cleanupInterval time.Duration) *SlidingWindow {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindow{
		entries:         make(map[string]*windowEntry),
		limit:           limit,
		window:          window,
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
	}
}

// Allow records an attempt for key and reports whether it is within the
// limit. When the limit is exceeded, retryAfter is the time remaining until
// the key's window resets (always > 0 in that case).
func (w *SlidingWindow) Allow(key string) (allowed bool, retryAfter time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()

	entry, ok := w.entries[key]
	if !ok || now.After(entry.resetAt) {
		w.entries[key] = &windowEntry{
			count:   1,
			resetAt: now.Add(w.window),
		}
		return true, 0
	}

	if entry.count >= w.limit {
		retryAfter = entry.resetAt.Sub(now)
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		return false, retryAfter
	}

	entry.count++
	return true, 0
}

// Count returns the number of attempts recorded for key in its current
// window, or 0 if the key is unknown or its window has expired.
func (w *SlidingWindow) Count(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.entries[key]
	if !ok || time.Now().After(entry.resetAt) {
		return 0
	}
	return entry.count
}

// Size returns the number of tracked keys, including expired entries not
// yet pruned. Useful for tests and memory monitoring.
func (w *SlidingWindow) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Prune removes entries whose window expired before now and returns how
// many were removed. Callers that do not run StartCleanup (the activity
// detector drives pruning from its own cleanup ticker) call this directly.
func (w *SlidingWindow) Prune(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	pruned := 0
	for key, entry := range w.entries {
		if now.After(entry.resetAt) {
			delete(w.entries, key)
			pruned++
		}
	}
	return pruned
}

// StartCleanup starts a background goroutine that prunes expired entries
// every cleanup interval. It stops when ctx is cancelled or Stop is called.
func (w *SlidingWindow) StartCleanup(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopChan:
				return
			case <-ticker.C:
				w.Prune(time.Now())
			}
		}
	}()
}

// Stop terminates the cleanup goroutine and waits for it to exit.
// Safe to call multiple times, and safe when StartCleanup was never called.
func (w *SlidingWindow) Stop() {
	w.once.Do(func() {
		close(w.stopChan)
	})
	w.wg.Wait()
}

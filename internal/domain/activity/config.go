package activity

import "time"

// Defaults applied by normalize when a DetectorConfig field is unset.
const (
	// DefaultDebounceWindow collapses raw-event bursts into one
	// notification per window.
	DefaultDebounceWindow = 1000 * time.Millisecond
	// DefaultMaxEventsPerMinute bounds per-kind self-notification.
	DefaultMaxEventsPerMinute = 120
	// DefaultInactivityThreshold is how long without events counts as idle.
	DefaultInactivityThreshold = 5 * time.Minute
	// DefaultSyncBatchSize is the journal write chunk size.
	DefaultSyncBatchSize = 50
	// DefaultSyncInterval is how often pending events flush to the journal.
	DefaultSyncInterval = 30 * time.Second
	// DefaultPendingLimit bounds the in-memory queue between flushes.
	DefaultPendingLimit = 1000
)

// DetectorConfig controls which interactions a Detector tracks and how it
// debounces, limits, and journals them. Copied by value at construction and
// never mutated afterwards.
type DetectorConfig struct {
	// Enabled gates the whole detector; Start is a no-op when false.
	Enabled bool

	// Per-kind toggles. Focus events are always tracked while enabled.
	TrackClicks      bool
	TrackScrolls     bool
	TrackKeypresses  bool
	TrackPointerMove bool

	// DebounceWindow is the burst-collapse window for listener
	// notification. Listeners fire at most once per window.
	DebounceWindow time.Duration

	// MaxEventsPerMinute caps, per kind, how many events may refresh the
	// activity clock each minute. Events past the cap are still journaled.
	MaxEventsPerMinute int

	// InactivityThreshold is how long without accepted events before
	// Idle() reports true.
	InactivityThreshold time.Duration

	// SyncBatchSize is the maximum events per journal write.
	SyncBatchSize int

	// SyncInterval is how often the pending queue flushes to the journal.
	SyncInterval time.Duration

	// PendingLimit bounds the queue of not-yet-flushed events; beyond it
	// the oldest entries are dropped and counted.
	PendingLimit int
}

// DefaultDetectorConfig returns a config tracking clicks, scrolls and
// keypresses with all durations and limits at their defaults. Pointer
// movement stays off; it is too chatty for most deployments.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Enabled:             true,
		TrackClicks:         true,
		TrackScrolls:        true,
		TrackKeypresses:     true,
		TrackPointerMove:    false,
		DebounceWindow:      DefaultDebounceWindow,
		MaxEventsPerMinute:  DefaultMaxEventsPerMinute,
		InactivityThreshold: DefaultInactivityThreshold,
		SyncBatchSize:       DefaultSyncBatchSize,
		SyncInterval:        DefaultSyncInterval,
		PendingLimit:        DefaultPendingLimit,
	}
}

// normalize fills unset or invalid fields with defaults.
func (c DetectorConfig) normalize() DetectorConfig {
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = DefaultDebounceWindow
	}
	if c.MaxEventsPerMinute <= 0 {
		c.MaxEventsPerMinute = DefaultMaxEventsPerMinute
	}
	if c.InactivityThreshold <= 0 {
		c.InactivityThreshold = DefaultInactivityThreshold
	}
	if c.SyncBatchSize <= 0 {
		c.SyncBatchSize = DefaultSyncBatchSize
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.PendingLimit <= 0 {
		c.PendingLimit = DefaultPendingLimit
	}
	return c
}

// trackedKinds returns the kinds this config subscribes to, in canonical
// order. Focus is always present so a returning user registers as active
// even with every toggle off.
func (c DetectorConfig) trackedKinds() []Kind {
	kinds := make([]Kind, 0, 5)
	if c.TrackClicks {
		kinds = append(kinds, KindClick)
	}
	if c.TrackScrolls {
		kinds = append(kinds, KindScroll)
	}
	if c.TrackKeypresses {
		kinds = append(kinds, KindKeypress)
	}
	if c.TrackPointerMove {
		kinds = append(kinds, KindPointerMove)
	}
	kinds = append(kinds, KindFocus)
	return kinds
}

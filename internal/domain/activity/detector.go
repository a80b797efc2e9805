package activity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Session-Vigil/Sessionvigil/internal/domain/ratelimit"
)

const (
	// cleanupInterval is how often the per-kind counters are pruned.
	cleanupInterval = time.Minute
	// flushTimeout bounds a single journal write.
	flushTimeout = 5 * time.Second
)

// listenerEntry is one registered notification callback.
type listenerEntry struct {
	id int
	fn func(time.Time)
}

// Detector watches interaction events from an EventSource, collapses
// bursts into debounced notifications, tracks the last-activity
// timestamp, and journals observed events to an ActivitySink.
//
// Start and Stop are idempotent and may be called in any order; Start
// while tracking performs a full stop first, so duplicate subscriptions
// never coexist. When stopped, the subscription table is empty, every
// timer is stopped, and no background goroutine is live. Stop is the
// sole leak-prevention path: every resource Start acquires is released
// there.
type Detector struct {
	cfg    DetectorConfig
	source EventSource
	sink   ActivitySink
	filter EventFilter
	window *ratelimit.SlidingWindow
	logger *slog.Logger
	now    func() time.Time

	mu           sync.Mutex
	tracking     bool
	handles      map[Kind]Subscription
	listeners    []listenerEntry
	nextID       int
	startedAt    time.Time
	lastActivity time.Time
	notifyAt     time.Time
	debounce     *time.Timer
	pending      []Event
	dropped      uint64
	limited      uint64
	stopChan     chan struct{}
	wg           sync.WaitGroup
}

// DetectorOption customizes a Detector.
type DetectorOption func(*Detector)

// WithLogger sets the detector's logger.
func WithLogger(logger *slog.Logger) DetectorOption {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock overrides the time source. Tests use this to control the
// activity clock without sleeping.
func WithClock(now func() time.Time) DetectorOption {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// WithFilter installs an event filter consulted before any bookkeeping.
func WithFilter(filter EventFilter) DetectorOption {
	return func(d *Detector) { d.filter = filter }
}

// WithWindow replaces the per-kind rate-limit window. Tests use this to
// shrink the window below one minute.
func WithWindow(window *ratelimit.SlidingWindow) DetectorOption {
	return func(d *Detector) { d.window = window }
}

// NewDetector creates a stopped detector. The sink may be nil, in which
// case observed events are not journaled.
func NewDetector(cfg DetectorConfig, source EventSource, sink ActivitySink, opts ...DetectorOption) *Detector {
	d := &Detector{
		cfg:     cfg.normalize(),
		source:  source,
		sink:    sink,
		logger:  slog.Default(),
		now:     time.Now,
		handles: make(map[Kind]Subscription),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.window == nil {
		d.window = ratelimit.NewSlidingWindow(d.cfg.MaxEventsPerMinute, time.Minute)
	}
	return d
}

// Start subscribes to every tracked event kind and launches the sync and
// cleanup loops. A tracking detector is fully stopped first. When the
// config disables detection, Start logs and returns nil without
// subscribing. The context bounds the background loop; the owner still
// calls Stop on teardown.
func (d *Detector) Start(ctx context.Context) error {
	d.Stop()

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.cfg.Enabled {
		d.logger.Debug("activity detection disabled")
		return nil
	}

	stopChan := make(chan struct{})
	for _, kind := range d.cfg.trackedKinds() {
		sub, err := d.source.Subscribe(kind, d.observe)
		if err != nil {
			for _, prev := range d.handles {
				prev.Cancel()
			}
			clear(d.handles)
			return fmt.Errorf("subscribe %s events: %w", kind, err)
		}
		d.handles[kind] = sub
	}

	d.tracking = true
	d.startedAt = d.now()
	d.stopChan = stopChan
	d.wg.Add(1)
	go d.run(ctx, stopChan)

	d.logger.Info("activity detector started",
		"kinds", len(d.handles),
		"debounce", d.cfg.DebounceWindow,
		"sync_interval", d.cfg.SyncInterval)
	return nil
}

// Stop cancels every subscription, stops the debounce timer and the
// background loop, and flushes any pending events to the sink. Safe to
// call when not tracking and safe to call repeatedly.
func (d *Detector) Stop() {
	d.mu.Lock()
	if !d.tracking {
		d.mu.Unlock()
		return
	}
	d.tracking = false
	for _, sub := range d.handles {
		sub.Cancel()
	}
	clear(d.handles)
	if d.debounce != nil {
		d.debounce.Stop()
		d.debounce = nil
	}
	close(d.stopChan)
	d.mu.Unlock()

	d.wg.Wait()
	d.flush(context.Background())
	d.logger.Info("activity detector stopped")
}

// observe runs on the event source's dispatch goroutine for every raw
// event of a subscribed kind.
func (d *Detector) observe(ev Event) {
	if d.filter != nil {
		ok, err := d.filter.Admit(ev)
		if err != nil {
			d.logger.Debug("activity filter error, admitting event", "kind", ev.Kind, "error", err)
			ok = true
		}
		if !ok {
			return
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.tracking {
		return
	}
	if ev.At.IsZero() {
		ev.At = d.now()
	}

	d.enqueueLocked(ev)

	// Over-limit events stay journaled above but no longer refresh the
	// activity clock, so a runaway source cannot keep a session alive
	// on its own.
	allowed, _ := d.window.Allow(ev.Kind.String())
	if !allowed {
		d.limited++
		return
	}

	if ev.At.After(d.lastActivity) {
		d.lastActivity = ev.At
	}
	d.notifyAt = d.lastActivity
	if d.debounce == nil {
		d.debounce = time.AfterFunc(d.cfg.DebounceWindow, d.fireDebounce)
	}
}

// enqueueLocked appends ev to the pending queue, dropping the oldest
// entries once the bound is reached. Caller holds d.mu.
func (d *Detector) enqueueLocked(ev Event) {
	if len(d.pending) >= d.cfg.PendingLimit {
		drop := len(d.pending) - d.cfg.PendingLimit + 1
		d.pending = append(d.pending[:0], d.pending[drop:]...)
		d.dropped += uint64(drop)
	}
	d.pending = append(d.pending, ev)
}

// fireDebounce delivers one notification for the burst that armed the
// timer. Listeners run in registration order outside the lock; a panic
// in one is recovered and logged, and the rest still run.
func (d *Detector) fireDebounce() {
	d.mu.Lock()
	d.debounce = nil
	if !d.tracking {
		d.mu.Unlock()
		return
	}
	at := d.notifyAt
	listeners := make([]listenerEntry, len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.Unlock()

	for i, entry := range listeners {
		d.notify(i, entry, at)
	}
}

func (d *Detector) notify(index int, entry listenerEntry, at time.Time) {
	defer func() {
		if r := recover(); r != nil {
			err := &ListenerError{Index: index, Recovered: r}
			d.logger.Error("activity listener panicked", "listener_id", entry.id, "error", err)
		}
	}()
	entry.fn(at)
}

// run flushes pending events every sync interval and prunes the rate
// window every cleanup interval until the context is cancelled or Stop
// closes stopChan.
func (d *Detector) run(ctx context.Context, stopChan <-chan struct{}) {
	defer d.wg.Done()

	syncTicker := time.NewTicker(d.cfg.SyncInterval)
	defer syncTicker.Stop()
	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopChan:
			return
		case <-syncTicker.C:
			d.flush(ctx)
		case <-cleanupTicker.C:
			d.window.Prune(d.now())
		}
	}
}

// flush drains the pending queue and writes it to the sink in batches.
// Journal writes are best-effort: on error the drained events are logged
// and abandoned, never retried.
func (d *Detector) flush(ctx context.Context) {
	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	batch := d.pending
	d.pending = nil
	d.mu.Unlock()

	if d.sink == nil {
		return
	}
	for start := 0; start < len(batch); start += d.cfg.SyncBatchSize {
		end := start + d.cfg.SyncBatchSize
		if end > len(batch) {
			end = len(batch)
		}
		writeCtx, cancel := context.WithTimeout(ctx, flushTimeout)
		err := d.sink.WriteBatch(writeCtx, batch[start:end])
		cancel()
		if err != nil {
			d.logger.Warn("activity journal write failed",
				"batch_size", end-start,
				"abandoned", len(batch)-start,
				"error", err)
			return
		}
	}
}

// AddListener registers fn to run on every debounced activity
// notification and returns an id for RemoveListener. Listeners run in
// registration order.
func (d *Detector) AddListener(fn func(time.Time)) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.listeners = append(d.listeners, listenerEntry{id: d.nextID, fn: fn})
	return d.nextID
}

// RemoveListener unregisters the listener with the given id. Unknown ids
// are a no-op.
func (d *Detector) RemoveListener(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, entry := range d.listeners {
		if entry.id == id {
			d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
			return
		}
	}
}

// LastActivity returns the timestamp of the most recent accepted event.
// It is monotonically non-decreasing while tracking and frozen at its
// last value once stopped. Zero until the first event is accepted.
func (d *Detector) LastActivity() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastActivity
}

// IdleFor returns how long it has been since the last accepted event,
// measured from Start when no event has been accepted yet. Zero when the
// detector was never started.
func (d *Detector) IdleFor() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	since := d.lastActivity
	if since.IsZero() {
		since = d.startedAt
	}
	if since.IsZero() {
		return 0
	}
	return d.now().Sub(since)
}

// Idle reports whether the time since the last accepted event exceeds
// the configured inactivity threshold.
func (d *Detector) Idle() bool {
	return d.IdleFor() > d.cfg.InactivityThreshold
}

// Tracking reports whether the detector is currently started.
func (d *Detector) Tracking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tracking
}

// SubscriptionCount returns the number of live event subscriptions.
// Always zero when stopped.
func (d *Detector) SubscriptionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handles)
}

// PendingCount returns the number of events queued for the next journal
// flush.
func (d *Detector) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// DroppedCount returns how many queued events were discarded because the
// pending queue hit its bound.
func (d *Detector) DroppedCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// LimitedCount returns how many events exceeded the per-kind rate limit.
// Limited events are journaled but do not refresh the activity clock.
func (d *Detector) LimitedCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.limited
}

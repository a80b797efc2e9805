// Package session implements session-lifetime supervision: warning-tier
// classification of remaining time, the polling TimeoutController that
// owns presenter state, and the ports it talks through.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultPollInterval is how often the controller polls the source.
	DefaultPollInterval = 30 * time.Second
	// DefaultMaxExtensions is the extension allowance assumed before the
	// first successful poll.
	DefaultMaxExtensions = 3
	// reportTimeout bounds a detector-driven activity report.
	reportTimeout = 10 * time.Second
	// redirectTimeout bounds the expiry redirect call.
	redirectTimeout = 5 * time.Second
)

// ActivityNotifier is the slice of the activity detector the controller
// needs: registration of debounced activity callbacks.
type ActivityNotifier interface {
	AddListener(fn func(time.Time)) int
	RemoveListener(id int)
}

// stateSubscriber is one registered state-change callback.
type stateSubscriber struct {
	id int
	fn func(State)
}

// TimeoutController polls a StatusSource, classifies the remaining time
// through a TierPolicy, and owns the presenter-facing State. It fires
// the Redirector exactly once on expiry, relays user activity to the
// source, and publishes state changes to ordered subscribers.
//
// The controller is single-shot: Start once, Stop once (idempotent).
// After Stop every in-flight poll or extension result is discarded, so
// a torn-down controller never mutates state again.
type TimeoutController struct {
	source     StatusSource
	redirector Redirector
	policy     TierPolicy
	logger     *slog.Logger
	interval   time.Duration
	maxExt     int

	mu            sync.Mutex
	state         State
	authenticated bool
	started       bool
	stopped       bool
	redirected    bool
	seq           uint64
	applied       uint64
	subscribers   []stateSubscriber
	nextSubID     int
	notifier      ActivityNotifier
	listenerID    int

	kick     chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// ControllerOption customizes a TimeoutController.
type ControllerOption func(*TimeoutController)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *TimeoutController) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPolicy replaces the default server tier policy.
func WithPolicy(policy TierPolicy) ControllerOption {
	return func(c *TimeoutController) {
		if len(policy.tiers) > 0 {
			c.policy = policy
		}
	}
}

// WithPollInterval sets how often the source is polled.
func WithPollInterval(interval time.Duration) ControllerOption {
	return func(c *TimeoutController) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithMaxExtensions sets the allowance assumed before the first poll.
func WithMaxExtensions(n int) ControllerOption {
	return func(c *TimeoutController) {
		if n >= 0 {
			c.maxExt = n
		}
	}
}

// WithAuthenticated sets the initial authenticated flag. The default is
// true; pass false when the session context is not yet established.
func WithAuthenticated(ok bool) ControllerOption {
	return func(c *TimeoutController) { c.authenticated = ok }
}

// NewTimeoutController creates a stopped controller. The redirector may
// be nil, in which case expiry is only logged.
func NewTimeoutController(source StatusSource, redirector Redirector, opts ...ControllerOption) *TimeoutController {
	c := &TimeoutController{
		source:        source,
		redirector:    redirector,
		policy:        ServerPollPolicy(),
		logger:        slog.Default(),
		interval:      DefaultPollInterval,
		maxExt:        DefaultMaxExtensions,
		authenticated: true,
		kick:          make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state = c.resetState()
	return c
}

// resetState is the state shown while no session is established.
func (c *TimeoutController) resetState() State {
	return State{MaxExtensions: c.maxExt}
}

// Start launches the poll loop: an immediate poll, then one per
// interval. Calling Start again or after Stop is a no-op.
func (c *TimeoutController) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.pollLoop(ctx)
	c.logger.Info("session timeout controller started",
		"poll_interval", c.interval,
		"tier_policy", c.policy.Name())
}

// Stop halts polling, detaches any attached detector, and waits for
// tracked goroutines. Idempotent; results of calls still in flight when
// Stop returns are discarded by their stopped checks.
func (c *TimeoutController) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		notifier, listenerID := c.notifier, c.listenerID
		c.notifier, c.listenerID = nil, 0
		close(c.stopChan)
		c.mu.Unlock()

		if notifier != nil {
			notifier.RemoveListener(listenerID)
		}
		c.wg.Wait()
		c.logger.Info("session timeout controller stopped")
	})
}

func (c *TimeoutController) pollLoop(ctx context.Context) {
	defer c.wg.Done()

	c.pollOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case <-c.kick:
			c.pollOnce(ctx)
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

// pollOnce asks the source for a snapshot and applies it. Skipped
// entirely while unauthenticated or after expiry, so neither makes
// network calls.
func (c *TimeoutController) pollOnce(ctx context.Context) {
	c.mu.Lock()
	if c.stopped || !c.authenticated || c.state.Expired {
		c.mu.Unlock()
		return
	}
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	snap, err := c.source.GetStatus(ctx)
	if err != nil {
		// Keep the previous state; the next tick retries.
		c.logger.Warn("session status poll failed", "error", err)
		return
	}
	c.applySnapshot(seq, snap)
}

// applySnapshot folds a poll result into the state unless a newer
// result has already been applied.
func (c *TimeoutController) applySnapshot(seq uint64, snap Snapshot) {
	c.mu.Lock()
	if c.stopped || !c.authenticated || seq <= c.applied {
		c.mu.Unlock()
		return
	}
	c.applied = seq

	prev := c.state
	next := State{
		TimeRemaining:  snap.TimeRemaining,
		CanExtend:      snap.CanExtend,
		ExtensionsUsed: snap.ExtensionsUsed,
		MaxExtensions:  snap.MaxExtensions,
	}
	if next.TimeRemaining <= 0 {
		next.TimeRemaining = 0
		next.Expired = true
		next.WarningLevel = c.policy.Classify(0)
		next.Visible = false
	} else {
		next.WarningLevel = c.policy.Classify(next.TimeRemaining)
		next.Visible = next.WarningLevel != LevelNone
	}
	c.state = next

	changed := next != prev
	fireRedirect := next.Expired && !c.redirected
	if fireRedirect {
		c.redirected = true
	}
	var subs []stateSubscriber
	if changed {
		subs = c.subscribersLocked()
	}
	c.mu.Unlock()

	if changed {
		c.deliver(subs, next)
	}
	if fireRedirect {
		c.logger.Warn("session expired, redirecting",
			"extensions_used", next.ExtensionsUsed,
			"max_extensions", next.MaxExtensions)
		c.redirect()
	}
}

func (c *TimeoutController) redirect() {
	if c.redirector == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redirectTimeout)
	defer cancel()
	if err := c.redirector.Redirect(ctx, "session_expired"); err != nil {
		c.logger.Error("session expiry redirect failed", "error", err)
	}
}

// ExtendSession asks the source for more time. On success the warning
// is cleared outright, whatever the tier policy would say for the new
// remaining time. On failure the state is untouched and the error goes
// back to the caller.
func (c *TimeoutController) ExtendSession(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped || !c.authenticated {
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	c.mu.Unlock()

	grant, err := c.source.Extend(ctx)
	if err != nil {
		c.logger.Warn("session extension failed", "error", err)
		return err
	}

	c.mu.Lock()
	if c.stopped || !c.authenticated {
		c.mu.Unlock()
		return nil
	}
	// Polls already in flight predate the grant and are stale now.
	c.applied = c.seq

	prev := c.state
	next := prev
	next.TimeRemaining = grant.TimeRemaining
	used := next.MaxExtensions - grant.ExtensionsRemaining
	if used < 0 {
		used = 0
	}
	next.ExtensionsUsed = used
	next.WarningLevel = LevelNone
	next.Visible = false
	c.state = next

	changed := next != prev
	var subs []stateSubscriber
	if changed {
		subs = c.subscribersLocked()
	}
	c.mu.Unlock()

	c.logger.Info("session extended",
		"time_remaining", grant.TimeRemaining,
		"extensions_used", used)
	if changed {
		c.deliver(subs, next)
	}
	return nil
}

// ReportActivity forwards a liveness signal to the source. A no-op
// returning nil while unauthenticated. Failures are logged and returned;
// the detector path ignores the return, direct callers may not.
func (c *TimeoutController) ReportActivity(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped || !c.authenticated {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.source.ReportActivity(ctx); err != nil {
		c.logger.Debug("activity report failed", "error", err)
		return err
	}
	return nil
}

// AttachDetector registers an activity callback on the notifier. Any
// previously attached notifier is detached first; the controller holds
// at most one registration.
func (c *TimeoutController) AttachDetector(n ActivityNotifier) {
	if n == nil {
		return
	}
	c.DetachDetector()
	id := n.AddListener(c.onActivity)
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		n.RemoveListener(id)
		return
	}
	c.notifier, c.listenerID = n, id
	c.mu.Unlock()
}

// DetachDetector removes the controller's callback from the attached
// notifier. Safe when nothing is attached.
func (c *TimeoutController) DetachDetector() {
	c.mu.Lock()
	notifier, listenerID := c.notifier, c.listenerID
	c.notifier, c.listenerID = nil, 0
	c.mu.Unlock()
	if notifier != nil {
		notifier.RemoveListener(listenerID)
	}
}

// onActivity runs on the detector's notification path and must not
// block it; the report happens on a tracked goroutine.
func (c *TimeoutController) onActivity(time.Time) {
	c.mu.Lock()
	if c.stopped || !c.authenticated {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
		defer cancel()
		// Best-effort on this path; failures are already logged.
		_ = c.ReportActivity(ctx)
	}()
}

// SetAuthenticated switches the session context on or off. Turning it
// off resets the state to its zero value and suspends polling without
// network calls; turning it on resumes polling immediately and rearms
// the expiry redirect guard.
func (c *TimeoutController) SetAuthenticated(ok bool) {
	c.mu.Lock()
	if c.stopped || c.authenticated == ok {
		c.mu.Unlock()
		return
	}
	c.authenticated = ok

	var (
		changed bool
		next    State
		subs    []stateSubscriber
	)
	if ok {
		c.redirected = false
	} else {
		prev := c.state
		c.state = c.resetState()
		// Results of polls already in flight are stale.
		c.applied = c.seq
		next = c.state
		changed = next != prev
		if changed {
			subs = c.subscribersLocked()
		}
	}
	c.mu.Unlock()

	if ok {
		c.logger.Info("session context established, resuming polls")
		select {
		case c.kick <- struct{}{}:
		default:
		}
	} else {
		c.logger.Info("session context cleared, polling suspended")
		if changed {
			c.deliver(subs, next)
		}
	}
}

// Subscribe registers fn to run on every state change, in registration
// order, and returns an id for Unsubscribe.
func (c *TimeoutController) Subscribe(fn func(State)) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	c.subscribers = append(c.subscribers, stateSubscriber{id: c.nextSubID, fn: fn})
	return c.nextSubID
}

// Unsubscribe removes a state-change subscriber. Unknown ids are a
// no-op.
func (c *TimeoutController) Unsubscribe(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, sub := range c.subscribers {
		if sub.id == id {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			return
		}
	}
}

// State returns a copy of the current presenter state.
func (c *TimeoutController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Authenticated reports whether a session context is established.
func (c *TimeoutController) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// Policy returns the tier policy in use.
func (c *TimeoutController) Policy() TierPolicy {
	return c.policy
}

// caller holds c.mu
func (c *TimeoutController) subscribersLocked() []stateSubscriber {
	subs := make([]stateSubscriber, len(c.subscribers))
	copy(subs, c.subscribers)
	return subs
}

func (c *TimeoutController) deliver(subs []stateSubscriber, st State) {
	for _, sub := range subs {
		c.notifySubscriber(sub, st)
	}
}

func (c *TimeoutController) notifySubscriber(sub stateSubscriber, st State) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("state subscriber panicked",
				"subscriber_id", sub.id, "panic", r)
		}
	}()
	sub.fn(st)
}

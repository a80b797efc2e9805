package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Session-Vigil/Sessionvigil/internal/domain/session"
)

// Simulation defaults.
const (
	DefaultSimulatedTTL           = 30 * time.Minute
	DefaultSimulatedMaxExtensions = 3
)

// SimulatedConfig controls the in-memory session simulation.
type SimulatedConfig struct {
	// TTL is the initial session lifetime and the lifetime granted by
	// each extension.
	TTL time.Duration
	// MaxExtensions is the extension allowance.
	MaxExtensions int
	// AllowExtend gates extensions entirely.
	AllowExtend bool
	// KeepAlive makes ReportActivity refresh the deadline.
	KeepAlive bool
}

// DefaultSimulatedConfig returns the dev-mode simulation settings.
func DefaultSimulatedConfig() SimulatedConfig {
	return SimulatedConfig{
		TTL:           DefaultSimulatedTTL,
		MaxExtensions: DefaultSimulatedMaxExtensions,
		AllowExtend:   true,
		KeepAlive:     true,
	}
}

// SimulatedStatusSource implements session.StatusSource with a
// deterministic in-memory countdown. Used by dev boot and tests; never
// makes network calls. Thread-safe.
type SimulatedStatusSource struct {
	mu       sync.Mutex
	cfg      SimulatedConfig
	deadline time.Time
	used     int
}

// NewSimulatedStatusSource creates a simulation whose session expires
// cfg.TTL from now.
func NewSimulatedStatusSource(cfg SimulatedConfig) *SimulatedStatusSource {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSimulatedTTL
	}
	if cfg.MaxExtensions < 0 {
		cfg.MaxExtensions = DefaultSimulatedMaxExtensions
	}
	return &SimulatedStatusSource{
		cfg:      cfg,
		deadline: time.Now().Add(cfg.TTL),
	}
}

// GetStatus reports the remaining countdown.
func (s *SimulatedStatusSource) GetStatus(context.Context) (session.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return session.Snapshot{
		TimeRemaining:  time.Until(s.deadline),
		CanExtend:      s.cfg.AllowExtend && s.used < s.cfg.MaxExtensions,
		ExtensionsUsed: s.used,
		MaxExtensions:  s.cfg.MaxExtensions,
	}, nil
}

// Extend grants a fresh TTL while the allowance lasts. Refusals use the
// same 4xx APIError shape as the production source.
func (s *SimulatedStatusSource) Extend(context.Context) (session.ExtendGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.AllowExtend {
		return session.ExtendGrant{}, &session.APIError{
			Op: "extend", StatusCode: 403, Message: "session extension disabled",
		}
	}
	if s.used >= s.cfg.MaxExtensions {
		return session.ExtendGrant{}, &session.APIError{
			Op: "extend", StatusCode: 429, Message: "extension limit reached",
		}
	}
	s.used++
	s.deadline = time.Now().Add(s.cfg.TTL)
	return session.ExtendGrant{
		TimeRemaining:       s.cfg.TTL,
		ExtensionsRemaining: s.cfg.MaxExtensions - s.used,
	}, nil
}

// ReportActivity refreshes the deadline when keep-alive simulation is
// on; otherwise it does nothing. Never fails.
func (s *SimulatedStatusSource) ReportActivity(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.KeepAlive {
		s.deadline = time.Now().Add(s.cfg.TTL)
	}
	return nil
}

// ExpireNow forces the countdown to zero. Test and demo hook.
func (s *SimulatedStatusSource) ExpireNow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline = time.Now()
}

// Deadline returns the current expiry instant.
func (s *SimulatedStatusSource) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

// Compile-time interface verification.
var _ session.StatusSource = (*SimulatedStatusSource)(nil)

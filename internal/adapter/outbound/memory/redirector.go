package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Session-Vigil/Sessionvigil/internal/domain/session"
)

// RecordingRedirector implements session.Redirector by logging and
// remembering redirects. Stands in for the WebSocket broadcast in dev
// boot without presenters and in tests.
type RecordingRedirector struct {
	logger *slog.Logger

	mu      sync.Mutex
	reasons []string
}

// NewRecordingRedirector creates a redirector logging through logger,
// or the default logger when nil.
func NewRecordingRedirector(logger *slog.Logger) *RecordingRedirector {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordingRedirector{logger: logger}
}

// Redirect records the reason and logs it.
func (r *RecordingRedirector) Redirect(_ context.Context, reason string) error {
	r.mu.Lock()
	r.reasons = append(r.reasons, reason)
	count := len(r.reasons)
	r.mu.Unlock()

	r.logger.Warn("redirect requested", "reason", reason, "total", count)
	return nil
}

// Reasons returns every recorded redirect reason in order.
func (r *RecordingRedirector) Reasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.reasons))
	copy(out, r.reasons)
	return out
}

// Compile-time interface verification.
var _ session.Redirector = (*RecordingRedirector)(nil)

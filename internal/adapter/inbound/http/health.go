package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/Session-Vigil/Sessionvigil/internal/domain/ratelimit"
	"github.com/Session-Vigil/Sessionvigil/internal/service"
)

// HealthResponse is the JSON response from the /health endpoint. Status
// is "healthy" or "unhealthy"; Checks carries one line per component.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// HealthChecker verifies component health.
type HealthChecker struct {
	liveness *service.LivenessService
	window   *ratelimit.SlidingWindow
	hub      *Hub
	version  string
}

// NewHealthChecker creates a HealthChecker. Components that are not
// wired in this deployment may be nil; their checks report accordingly.
func NewHealthChecker(
	liveness *service.LivenessService,
	window *ratelimit.SlidingWindow,
	hub *Hub,
	version string,
) *HealthChecker {
	return &HealthChecker{
		liveness: liveness,
		window:   window,
		hub:      hub,
		version:  version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.liveness != nil {
		if !h.liveness.Running() {
			checks["liveness"] = "stopped"
			healthy = false
		} else {
			checks["liveness"] = "ok"
		}

		if d := h.liveness.Detector(); d != nil {
			checks["detector"] = fmt.Sprintf("ok: tracking=%t pending=%d", d.Tracking(), d.PendingCount())
			if drops := d.DroppedCount(); drops > 0 {
				checks["detector_drops"] = fmt.Sprintf("%d dropped", drops)
			}
		}

		if c := h.liveness.Controller(); c != nil {
			st := c.State()
			switch {
			case st.Expired:
				checks["session"] = "expired"
			case c.Authenticated():
				checks["session"] = "ok: authenticated"
			default:
				checks["session"] = "ok: unauthenticated"
			}
		}
	} else {
		checks["liveness"] = "not configured"
	}

	if h.window != nil {
		checks["rate_limiter"] = fmt.Sprintf("ok: %d keys", h.window.Size())
	} else {
		checks["rate_limiter"] = "not configured"
	}

	if h.hub != nil {
		checks["ws"] = fmt.Sprintf("%d clients", h.hub.ClientCount())
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler serves the health report, 503 when any check failed.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}

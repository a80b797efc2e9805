package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Session-Vigil/Sessionvigil/internal/adapter/outbound/memory"
	"github.com/Session-Vigil/Sessionvigil/internal/domain/activity"
	"github.com/Session-Vigil/Sessionvigil/internal/domain/ratelimit"
	"github.com/Session-Vigil/Sessionvigil/internal/domain/session"
	"github.com/Session-Vigil/Sessionvigil/internal/service"
	"github.com/Session-Vigil/Sessionvigil/pkg/eventwire"
)

// maxIngestBody caps an ingest request body. Batches are small; anything
// bigger is a misbehaving client.
const maxIngestBody = 1 << 20

// APIHandler serves the presenter-facing session API: session state,
// extension, activity reporting, event ingest, and the journal stream.
type APIHandler struct {
	controller *session.TimeoutController
	detector   *activity.Detector
	stats      *service.StatsService
	bus        *memory.Bus
	reader     activity.ActivityReader
	window     *ratelimit.SlidingWindow
	hub        *Hub
	version    string
	logger     *slog.Logger
	metrics    *Metrics
	startTime  time.Time
}

// APIOption configures the APIHandler.
type APIOption func(*APIHandler)

// WithController sets the session timeout controller.
func WithController(c *session.TimeoutController) APIOption {
	return func(h *APIHandler) { h.controller = c }
}

// WithDetector sets the activity detector for introspection endpoints.
func WithDetector(d *activity.Detector) APIOption {
	return func(h *APIHandler) { h.detector = d }
}

// WithStats sets the stats service.
func WithStats(s *service.StatsService) APIOption {
	return func(h *APIHandler) { h.stats = s }
}

// WithBus sets the event bus that ingest publishes to.
func WithBus(b *memory.Bus) APIOption {
	return func(h *APIHandler) { h.bus = b }
}

// WithReader sets the journal reader backing the event stream.
func WithReader(r activity.ActivityReader) APIOption {
	return func(h *APIHandler) { h.reader = r }
}

// WithRateLimiter sets the per-client sliding window for ingest.
func WithRateLimiter(w *ratelimit.SlidingWindow) APIOption {
	return func(h *APIHandler) { h.window = w }
}

// WithHub sets the WebSocket hub.
func WithHub(hub *Hub) APIOption {
	return func(h *APIHandler) { h.hub = hub }
}

// WithVersion sets the version reported by the stats endpoint.
func WithVersion(v string) APIOption {
	return func(h *APIHandler) { h.version = v }
}

// WithAPILogger sets the logger.
func WithAPILogger(l *slog.Logger) APIOption {
	return func(h *APIHandler) { h.logger = l }
}

// NewAPIHandler creates an APIHandler with the given options.
func NewAPIHandler(opts ...APIOption) *APIHandler {
	h := &APIHandler{
		version:   "dev",
		logger:    slog.Default(),
		startTime: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns an http.Handler with the session API routes registered.
func (h *APIHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/session", h.handleGetSession)
	mux.HandleFunc("POST /api/v1/session/extend", h.handleExtendSession)
	mux.HandleFunc("POST /api/v1/session/activity", h.handleReportActivity)
	mux.HandleFunc("GET /api/v1/events/stream", h.handleEventStream)
	mux.HandleFunc("GET /api/v1/stats", h.handleGetStats)

	// Ingest gets the sliding-window limit; nothing else does.
	ingest := IngestRateLimitMiddleware(h.window, h.metrics, h.stats)
	mux.Handle("POST /api/v1/events", ingest(http.HandlerFunc(h.handleIngest)))

	if h.hub != nil {
		mux.HandleFunc("GET /api/v1/session/ws", h.hub.HandleWS)
	}

	return mux
}

// handleGetSession returns the current presenter-facing session state.
func (h *APIHandler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		h.respondError(w, http.StatusServiceUnavailable, "session controller not configured")
		return
	}
	h.respondJSON(w, http.StatusOK, h.controller.State())
}

// handleExtendSession asks the status source for more time and returns
// the refreshed state.
func (h *APIHandler) handleExtendSession(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		h.respondError(w, http.StatusServiceUnavailable, "session controller not configured")
		return
	}
	if err := h.controller.ExtendSession(r.Context()); err != nil {
		h.logger.Warn("session extension failed", "error", err)
		h.mapSessionError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, h.controller.State())
}

// handleReportActivity forwards a keepalive to the status source and
// waits for the result, unlike detector-driven reports which are
// fire-and-forget.
func (h *APIHandler) handleReportActivity(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		h.respondError(w, http.StatusServiceUnavailable, "session controller not configured")
		return
	}
	if err := h.controller.ReportActivity(r.Context()); err != nil {
		h.logger.Warn("activity report failed", "error", err)
		h.mapSessionError(w, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// IngestResponse is the JSON response for POST /api/v1/events.
type IngestResponse struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// handleIngest accepts a single event or a batch and publishes the valid
// ones to the bus. Events without a timestamp are stamped on arrival;
// events without a source are attributed to "http".
func (h *APIHandler) handleIngest(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		h.respondError(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "request body too large")
		return
	}
	if !json.Valid(body) {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var batch struct {
		Events []json.RawMessage `json:"events"`
	}
	frames := []json.RawMessage{json.RawMessage(body)}
	if err := json.Unmarshal(body, &batch); err == nil && batch.Events != nil {
		frames = batch.Events
	}

	resp := IngestResponse{}
	now := time.Now().UTC()
	for _, raw := range frames {
		ev, err := eventwire.Decode(raw)
		if err != nil {
			resp.Rejected++
			if h.metrics != nil {
				h.metrics.IngestTotal.WithLabelValues("rejected").Inc()
			}
			if h.stats != nil {
				h.stats.RecordRejected()
			}
			continue
		}
		if ev.At.IsZero() {
			ev.At = now
		}
		if ev.Source == "" {
			ev.Source = "http"
		}
		h.bus.Publish(ev)
		resp.Accepted++
		if h.metrics != nil {
			h.metrics.IngestTotal.WithLabelValues("accepted").Inc()
		}
		if h.stats != nil {
			h.stats.RecordIngest(ev.Kind.String(), ev.Source)
		}
	}

	if resp.Accepted == 0 {
		h.respondError(w, http.StatusBadRequest, "no valid events")
		return
	}
	h.respondJSON(w, http.StatusAccepted, resp)
}

// handleEventStream tails the journal as server-sent events: the last 50
// records oldest first, then a 1s poll for newer ones.
func (h *APIHandler) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		h.respondError(w, http.StatusServiceUnavailable, "event journal not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var lastSeen time.Time
	recent := h.reader.Recent(50)
	for i := len(recent) - 1; i >= 0; i-- {
		ev := recent[i]
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
		if ev.At.After(lastSeen) {
			lastSeen = ev.At
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			records := h.reader.Recent(20)
			fresh := make([]activity.Event, 0)
			for _, ev := range records {
				if ev.At.After(lastSeen) {
					fresh = append(fresh, ev)
				}
			}
			for i := len(fresh) - 1; i >= 0; i-- {
				ev := fresh[i]
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
				if ev.At.After(lastSeen) {
					lastSeen = ev.At
				}
			}
			if len(fresh) > 0 {
				flusher.Flush()
			}
		}
	}
}

// DetectorStats is the detector introspection block of StatsResponse.
type DetectorStats struct {
	Tracking      bool      `json:"tracking"`
	LastActivity  time.Time `json:"last_activity"`
	IdleMS        int64     `json:"idle_ms"`
	Pending       int       `json:"pending"`
	Dropped       uint64    `json:"dropped"`
	Limited       uint64    `json:"limited"`
	Subscriptions int       `json:"subscriptions"`
}

// SessionStats is the session block of StatsResponse.
type SessionStats struct {
	Authenticated bool          `json:"authenticated"`
	State         session.State `json:"state"`
}

// StatsResponse is the JSON response for GET /api/v1/stats.
type StatsResponse struct {
	Events        service.Stats  `json:"events"`
	Detector      *DetectorStats `json:"detector,omitempty"`
	Session       *SessionStats  `json:"session,omitempty"`
	WSClients     int            `json:"ws_clients"`
	Uptime        string         `json:"uptime"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Version       string         `json:"version"`
}

// handleGetStats returns counters plus detector and session
// introspection. Components that were never wired are omitted.
func (h *APIHandler) handleGetStats(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	resp := StatsResponse{
		Uptime:        uptime.Truncate(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		Version:       h.version,
	}

	if h.stats != nil {
		resp.Events = h.stats.GetStats()
	}
	// Ensure maps are never null in JSON output.
	if resp.Events.KindCounts == nil {
		resp.Events.KindCounts = make(map[string]int64)
	}
	if resp.Events.SourceCounts == nil {
		resp.Events.SourceCounts = make(map[string]int64)
	}

	if h.detector != nil {
		resp.Detector = &DetectorStats{
			Tracking:      h.detector.Tracking(),
			LastActivity:  h.detector.LastActivity(),
			IdleMS:        h.detector.IdleFor().Milliseconds(),
			Pending:       h.detector.PendingCount(),
			Dropped:       h.detector.DroppedCount(),
			Limited:       h.detector.LimitedCount(),
			Subscriptions: h.detector.SubscriptionCount(),
		}
	}

	if h.controller != nil {
		resp.Session = &SessionStats{
			Authenticated: h.controller.Authenticated(),
			State:         h.controller.State(),
		}
	}

	if h.hub != nil {
		resp.WSClients = h.hub.ClientCount()
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// mapSessionError translates controller errors into HTTP statuses: 409
// when the source understood and refused, 504 on timeout, 502 on any
// other transport failure.
func (h *APIHandler) mapSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		h.respondError(w, http.StatusConflict, "not authenticated")
	case errors.Is(err, context.DeadlineExceeded):
		h.respondError(w, http.StatusGatewayTimeout, "status source timed out")
	default:
		var apiErr *session.APIError
		if errors.As(err, &apiErr) {
			if apiErr.IsClientError() {
				msg := apiErr.Message
				if msg == "" {
					msg = "refused by status source"
				}
				h.respondError(w, http.StatusConflict, msg)
				return
			}
			h.respondError(w, http.StatusBadGateway, apiErr.Error())
			return
		}
		h.respondError(w, http.StatusBadGateway, "status source unreachable")
	}
}

// --- JSON helper methods ---

// respondJSON writes a JSON response with the given status code.
func (h *APIHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status code
// and message.
func (h *APIHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

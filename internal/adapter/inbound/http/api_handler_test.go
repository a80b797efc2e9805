package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Session-Vigil/Sessionvigil/internal/adapter/outbound/memory"
	"github.com/Session-Vigil/Sessionvigil/internal/domain/activity"
	"github.com/Session-Vigil/Sessionvigil/internal/domain/ratelimit"
	"github.com/Session-Vigil/Sessionvigil/internal/domain/session"
	"github.com/Session-Vigil/Sessionvigil/internal/service"
)

// failingSource implements session.StatusSource, answering every call
// with the configured error.
type failingSource struct {
	err error
}

func (f *failingSource) GetStatus(context.Context) (session.Snapshot, error) {
	return session.Snapshot{}, f.err
}

func (f *failingSource) Extend(context.Context) (session.ExtendGrant, error) {
	return session.ExtendGrant{}, f.err
}

func (f *failingSource) ReportActivity(context.Context) error {
	return f.err
}

func newTestController(t *testing.T, src session.StatusSource, opts ...session.ControllerOption) *session.TimeoutController {
	t.Helper()
	opts = append([]session.ControllerOption{session.WithLogger(discardLogger())}, opts...)
	return session.NewTimeoutController(src, nil, opts...)
}

func TestRoutes_GetSession(t *testing.T) {
	src := memory.NewSimulatedStatusSource(memory.DefaultSimulatedConfig())
	h := NewAPIHandler(WithController(newTestController(t, src)), WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	for _, key := range []string{"time_remaining_ms", "visible", "warning_level", "can_extend", "extensions_used", "max_extensions", "expired"} {
		if _, ok := body[key]; !ok {
			t.Errorf("response missing %q", key)
		}
	}
	if got, ok := body["max_extensions"].(float64); !ok || got != 3 {
		t.Errorf("max_extensions = %v, want 3", body["max_extensions"])
	}
}

func TestRoutes_UnknownPath404(t *testing.T) {
	h := NewAPIHandler(WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleGetSession_NoController(t *testing.T) {
	h := NewAPIHandler(WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	rec := httptest.NewRecorder()
	h.handleGetSession(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleExtendSession_Success(t *testing.T) {
	src := memory.NewSimulatedStatusSource(memory.SimulatedConfig{
		TTL:           30 * time.Minute,
		MaxExtensions: 3,
		AllowExtend:   true,
	})
	h := NewAPIHandler(WithController(newTestController(t, src)), WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/extend", nil)
	rec := httptest.NewRecorder()
	h.handleExtendSession(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var st session.State
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.ExtensionsUsed != 1 {
		t.Errorf("ExtensionsUsed = %d, want 1", st.ExtensionsUsed)
	}
	if st.TimeRemaining != 30*time.Minute {
		t.Errorf("TimeRemaining = %v, want 30m", st.TimeRemaining)
	}
	if st.Visible {
		t.Error("warning should be cleared after an extension")
	}
}

func TestHandleExtendSession_RefusedMapsTo409(t *testing.T) {
	src := memory.NewSimulatedStatusSource(memory.SimulatedConfig{
		TTL:         time.Minute,
		AllowExtend: false,
	})
	h := NewAPIHandler(WithController(newTestController(t, src)), WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/extend", nil)
	rec := httptest.NewRecorder()
	h.handleExtendSession(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "session extension disabled" {
		t.Errorf("error = %q, want the source's refusal message", body["error"])
	}
}

func TestHandleExtendSession_NotAuthenticated(t *testing.T) {
	src := memory.NewSimulatedStatusSource(memory.DefaultSimulatedConfig())
	ctrl := newTestController(t, src, session.WithAuthenticated(false))
	h := NewAPIHandler(WithController(ctrl), WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/extend", nil)
	rec := httptest.NewRecorder()
	h.handleExtendSession(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestHandleExtendSession_TransportError502(t *testing.T) {
	src := &failingSource{err: &session.TransportError{Op: "extend", Err: context.Canceled}}
	h := NewAPIHandler(WithController(newTestController(t, src)), WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/extend", nil)
	rec := httptest.NewRecorder()
	h.handleExtendSession(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestHandleExtendSession_Timeout504(t *testing.T) {
	src := &failingSource{err: &session.TransportError{Op: "extend", Err: context.DeadlineExceeded}}
	h := NewAPIHandler(WithController(newTestController(t, src)), WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/extend", nil)
	rec := httptest.NewRecorder()
	h.handleExtendSession(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusGatewayTimeout)
	}
}

func TestHandleExtendSession_UpstreamErrorMapsTo502(t *testing.T) {
	src := &failingSource{err: &session.APIError{Op: "extend", StatusCode: 503}}
	h := NewAPIHandler(WithController(newTestController(t, src)), WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/extend", nil)
	rec := httptest.NewRecorder()
	h.handleExtendSession(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestHandleReportActivity_Accepted(t *testing.T) {
	src := memory.NewSimulatedStatusSource(memory.DefaultSimulatedConfig())
	h := NewAPIHandler(WithController(newTestController(t, src)), WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/activity", nil)
	rec := httptest.NewRecorder()
	h.handleReportActivity(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "accepted" {
		t.Errorf("status field = %q, want accepted", body["status"])
	}
}

func TestHandleReportActivity_TransportError502(t *testing.T) {
	src := &failingSource{err: &session.TransportError{Op: "report activity", Err: context.Canceled}}
	h := NewAPIHandler(WithController(newTestController(t, src)), WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/activity", nil)
	rec := httptest.NewRecorder()
	h.handleReportActivity(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestHandleIngest_SingleEvent(t *testing.T) {
	bus := memory.NewBus()
	stats := service.NewStatsService()
	h := NewAPIHandler(WithBus(bus), WithStats(stats), WithAPILogger(discardLogger()))

	var received []activity.Event
	if _, err := bus.Subscribe(activity.KindClick, func(ev activity.Event) {
		received = append(received, ev)
	}); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`{"kind":"click"}`))
	rec := httptest.NewRecorder()
	h.handleIngest(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp IngestResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Accepted != 1 || resp.Rejected != 0 {
		t.Errorf("accepted/rejected = %d/%d, want 1/0", resp.Accepted, resp.Rejected)
	}

	if len(received) != 1 {
		t.Fatalf("bus delivered %d events, want 1", len(received))
	}
	if received[0].At.IsZero() {
		t.Error("missing timestamp should be stamped on arrival")
	}
	if received[0].Source != "http" {
		t.Errorf("Source = %q, want http", received[0].Source)
	}

	if got := stats.GetStats().EventsIngested; got != 1 {
		t.Errorf("EventsIngested = %d, want 1", got)
	}
}

func TestHandleIngest_BatchMixedValidity(t *testing.T) {
	bus := memory.NewBus()
	h := NewAPIHandler(WithBus(bus), WithAPILogger(discardLogger()))

	body := `{"events":[{"kind":"click"},{"kind":"bogus"},{"kind":"scroll","at":"2026-08-25T10:00:00Z"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.handleIngest(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp IngestResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Accepted != 2 || resp.Rejected != 1 {
		t.Errorf("accepted/rejected = %d/%d, want 2/1", resp.Accepted, resp.Rejected)
	}
}

func TestHandleIngest_PreservesTimestampAndSource(t *testing.T) {
	bus := memory.NewBus()
	stats := service.NewStatsService()
	h := NewAPIHandler(WithBus(bus), WithStats(stats), WithAPILogger(discardLogger()))

	var received []activity.Event
	if _, err := bus.Subscribe(activity.KindKeypress, func(ev activity.Event) {
		received = append(received, ev)
	}); err != nil {
		t.Fatal(err)
	}

	body := `{"kind":"keypress","at":"2026-08-25T10:00:00Z","source":"feed"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.handleIngest(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(received) != 1 {
		t.Fatalf("bus delivered %d events, want 1", len(received))
	}
	want := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	if !received[0].At.Equal(want) {
		t.Errorf("At = %v, want %v", received[0].At, want)
	}
	if received[0].Source != "feed" {
		t.Errorf("Source = %q, want feed", received[0].Source)
	}
	if got := stats.GetStats().SourceCounts["feed"]; got != 1 {
		t.Errorf("SourceCounts[feed] = %d, want 1", got)
	}
}

func TestHandleIngest_AllRejected(t *testing.T) {
	h := NewAPIHandler(WithBus(memory.NewBus()), WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`{"kind":"bogus"}`))
	rec := httptest.NewRecorder()
	h.handleIngest(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "no valid events" {
		t.Errorf("error = %q, want 'no valid events'", body["error"])
	}
}

func TestHandleIngest_InvalidJSON(t *testing.T) {
	h := NewAPIHandler(WithBus(memory.NewBus()), WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.handleIngest(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "invalid JSON body" {
		t.Errorf("error = %q, want 'invalid JSON body'", body["error"])
	}
}

func TestHandleIngest_NoBus(t *testing.T) {
	h := NewAPIHandler(WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`{"kind":"click"}`))
	rec := httptest.NewRecorder()
	h.handleIngest(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRoutes_IngestRateLimited(t *testing.T) {
	bus := memory.NewBus()
	window := ratelimit.NewSlidingWindow(1, time.Minute)
	h := NewAPIHandler(WithBus(bus), WithRateLimiter(window), WithAPILogger(discardLogger()))
	routes := h.Routes()

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`{"kind":"click"}`))
		req.RemoteAddr = "192.0.2.50:9999"
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusAccepted {
		t.Fatalf("first request status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response should carry Retry-After")
	}
}

func TestHandleEventStream_NoReader(t *testing.T) {
	h := NewAPIHandler(WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/stream", nil)
	rec := httptest.NewRecorder()
	h.handleEventStream(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleEventStream_HeadersAndReplay(t *testing.T) {
	log := memory.NewActivityLog(16)
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	err := log.WriteBatch(context.Background(), []activity.Event{
		{Kind: activity.KindClick, At: base},
		{Kind: activity.KindScroll, At: base.Add(time.Second)},
	})
	if err != nil {
		t.Fatal(err)
	}
	h := NewAPIHandler(WithReader(log), WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/stream", nil)
	// Cancelled context so the stream loop exits after the replay.
	ctx, cancel := context.WithCancel(req.Context())
	cancel()
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	h.handleEventStream(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}

	body := rec.Body.String()
	clickAt := strings.Index(body, `"click"`)
	scrollAt := strings.Index(body, `"scroll"`)
	if clickAt < 0 || scrollAt < 0 {
		t.Fatalf("replay missing events, body = %q", body)
	}
	if clickAt > scrollAt {
		t.Error("replay should be oldest first")
	}
	if !strings.Contains(body, "data: ") {
		t.Error("SSE frames should use the data: prefix")
	}
}

func TestHandleGetStats(t *testing.T) {
	bus := memory.NewBus()
	log := memory.NewActivityLog(16)
	stats := service.NewStatsService()
	stats.RecordIngest("click", "http")
	detector := activity.NewDetector(activity.DefaultDetectorConfig(), bus, log)
	src := memory.NewSimulatedStatusSource(memory.DefaultSimulatedConfig())

	h := NewAPIHandler(
		WithController(newTestController(t, src)),
		WithDetector(detector),
		WithStats(stats),
		WithVersion("1.2.3"),
		WithAPILogger(discardLogger()),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec := httptest.NewRecorder()
	h.handleGetStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp StatsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("Version = %q, want 1.2.3", resp.Version)
	}
	if resp.Events.EventsIngested != 1 {
		t.Errorf("EventsIngested = %d, want 1", resp.Events.EventsIngested)
	}
	if resp.Events.KindCounts["click"] != 1 {
		t.Errorf("KindCounts[click] = %d, want 1", resp.Events.KindCounts["click"])
	}
	if resp.Detector == nil {
		t.Fatal("Detector block missing")
	}
	if resp.Detector.Tracking {
		t.Error("detector should not be tracking before Start")
	}
	if resp.Session == nil {
		t.Fatal("Session block missing")
	}
	if !resp.Session.Authenticated {
		t.Error("Session.Authenticated = false, want true")
	}
}

func TestHandleGetStats_OmitsUnwiredComponents(t *testing.T) {
	h := NewAPIHandler(WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec := httptest.NewRecorder()
	h.handleGetStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := raw["detector"]; ok {
		t.Error("detector block should be omitted when no detector is wired")
	}
	if _, ok := raw["session"]; ok {
		t.Error("session block should be omitted when no controller is wired")
	}

	var resp StatsResponse
	if err := json.Unmarshal(mustMarshal(t, raw), &resp); err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if resp.Events.KindCounts == nil || resp.Events.SourceCounts == nil {
		t.Error("count maps should never be null in JSON output")
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

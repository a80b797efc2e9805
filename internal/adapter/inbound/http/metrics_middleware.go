package http

import (
	"bufio"
	"net"
	"net/http"
	"time"
)

// requestRoutes maps each API path to its metric label. Bucketing by
// route keeps label cardinality fixed no matter what paths clients
// probe; anything unlisted lands in "other".
var requestRoutes = map[string]string{
	"/api/v1/session":          "session",
	"/api/v1/session/extend":   "extend",
	"/api/v1/session/activity": "activity",
	"/api/v1/session/ws":       "ws",
	"/api/v1/events":           "ingest",
	"/api/v1/events/stream":    "stream",
	"/api/v1/stats":            "stats",
}

// MetricsMiddleware records a duration observation and a request count
// for every API request, labeled by route and outcome. The /metrics and
// /health endpoints stay out of their own numbers.
func MetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			route, ok := requestRoutes[r.URL.Path]
			if !ok {
				route = "other"
			}

			tap := &responseTap{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(tap, r)

			metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
			metrics.RequestsTotal.WithLabelValues(route, outcomeLabel(tap.status)).Inc()
		})
	}
}

// outcomeLabel collapses the status code into ok/error. Redirects and
// informational codes count as ok.
func outcomeLabel(status int) string {
	if status >= 400 {
		return "error"
	}
	return "ok"
}

// responseTap wraps http.ResponseWriter to observe the status code on
// its way out.
type responseTap struct {
	http.ResponseWriter
	status int
}

func (t *responseTap) WriteHeader(code int) {
	t.status = code
	t.ResponseWriter.WriteHeader(code)
}

// Flush keeps the event stream working behind the tap.
func (t *responseTap) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack keeps the WebSocket upgrade working behind the tap.
func (t *responseTap) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := t.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

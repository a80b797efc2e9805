package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Session-Vigil/Sessionvigil/internal/domain/session"
)

// HTTPTransport owns the HTTP server: it mounts the session API behind
// the middleware chain and serves /health and /metrics beside it.
type HTTPTransport struct {
	api           *APIHandler
	server        *http.Server
	addr          string
	apiKeyHash    string
	logger        *slog.Logger
	metrics       *Metrics
	healthChecker *HealthChecker
	stateSubID    int
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:8750" (localhost only).
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) {
		t.addr = addr
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *HTTPTransport) {
		t.healthChecker = hc
	}
}

// WithAPIKeyHash sets the stored key hash that /api/v1 requests must
// present a matching Bearer key for. Empty disables auth.
func WithAPIKeyHash(hash string) Option {
	return func(t *HTTPTransport) {
		t.apiKeyHash = hash
	}
}

// NewHTTPTransport creates an HTTP transport serving the given API.
func NewHTTPTransport(api *APIHandler, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		api:    api,
		addr:   "127.0.0.1:8750",
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Start begins accepting HTTP connections. It blocks until the context
// is cancelled or an error occurs.
func (t *HTTPTransport) Start(ctx context.Context) error {
	// Private registry so tests can run transports side by side.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	t.metrics = NewMetrics(reg)

	// Hand the metrics to the handler and hub before any routes are
	// built; both predate the registry.
	t.api.metrics = t.metrics
	if t.api.hub != nil {
		t.api.hub.metrics = t.metrics
	}

	// Mirror controller state into the session gauges.
	if c := t.api.controller; c != nil {
		update := func(st session.State) {
			t.metrics.SessionTimeRemaining.Set(st.TimeRemaining.Seconds())
			if st.Expired {
				t.metrics.SessionExpired.Set(1)
			} else {
				t.metrics.SessionExpired.Set(0)
			}
		}
		update(c.State())
		t.stateSubID = c.Subscribe(update)
	}

	// Build middleware chain (outermost first):
	// 1. MetricsMiddleware - duration and status (outermost to capture full duration)
	// 2. RequestID - extract/generate request ID and enrich logger
	// 3. RealIP - client IP from X-Forwarded-For
	// 4. APIKeyAuth - Bearer key check when a hash is configured
	// 5. API routes (ingest additionally rate limited inside Routes)
	apiHandler := t.api.Routes()
	apiHandler = APIKeyAuthMiddleware(t.apiKeyHash, t.logger)(apiHandler)
	apiHandler = RealIPMiddleware(apiHandler)
	apiHandler = RequestIDMiddleware(t.logger)(apiHandler)
	apiHandler = MetricsMiddleware(t.metrics)(apiHandler)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", apiHandler)
	if t.healthChecker != nil {
		mux.Handle("/health", t.healthChecker.Handler())
	} else {
		mux.Handle("/health", healthHandler())
	}
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry: reg,
	}))
	// Browsers probe for this; a 204 keeps it out of the error logs.
	mux.Handle("/favicon.ico", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	t.server = &http.Server{
		Addr:              t.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("starting HTTP server", "addr", t.addr)
		err := t.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// healthHandler is the fallback when no HealthChecker is configured.
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *HTTPTransport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Drop the gauge subscription before the controller outlives us.
	if c := t.api.controller; c != nil && t.stateSubID != 0 {
		c.Unsubscribe(t.stateSubID)
		t.stateSubID = 0
	}

	// Disconnect WebSocket presenters first; Shutdown won't wait on them.
	if t.api.hub != nil {
		t.api.hub.Close()
	}

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}

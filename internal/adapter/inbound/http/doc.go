// Package http provides the presenter-facing HTTP transport for Session
// Vigil: the session API, event ingest, the journal stream, and the
// WebSocket hub.
//
// # Usage
//
// Build an APIHandler from the domain components, wrap it in a
// transport, and start it:
//
//	api := http.NewAPIHandler(
//	    http.WithController(controller),
//	    http.WithDetector(detector),
//	    http.WithStats(stats),
//	    http.WithBus(bus),
//	)
//	transport := http.NewHTTPTransport(api,
//	    http.WithAddr("127.0.0.1:8750"),
//	    http.WithLogger(logger),
//	)
//	err := transport.Start(ctx)
//
// # Endpoints
//
//	GET  /api/v1/session          - current presenter state
//	POST /api/v1/session/extend   - request more time, returns new state
//	POST /api/v1/session/activity - synchronous keepalive to the source
//	POST /api/v1/events           - ingest one event or {"events":[...]}
//	GET  /api/v1/events/stream    - SSE tail of the activity journal
//	GET  /api/v1/session/ws       - WebSocket state push + activity frames
//	GET  /api/v1/stats            - counters and component introspection
//	GET  /health                  - component health, 503 when unhealthy
//	GET  /metrics                 - Prometheus registry
//
// # Middleware Chain
//
// Requests to /api/v1 pass through middleware in this order:
//
//  1. MetricsMiddleware - request counts and duration histogram
//  2. RequestIDMiddleware - X-Request-ID in, generated when absent
//  3. RealIPMiddleware - client IP from X-Forwarded-For/X-Real-IP
//  4. APIKeyAuthMiddleware - Bearer key check when a hash is configured
//
// Event ingest additionally passes the per-client sliding-window rate
// limit, answering 429 with a Retry-After header when a client exceeds
// its budget. /health and /metrics sit outside the chain.
//
// # Error mapping
//
// Session operations surface the controller's error taxonomy: a 4xx
// refusal from the status source maps to 409, a timeout to 504, and any
// other transport failure to 502. Bodies carry {"error": message}.
package http

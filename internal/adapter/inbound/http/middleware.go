package http

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Session-Vigil/Sessionvigil/internal/auth"
	"github.com/Session-Vigil/Sessionvigil/internal/ctxkey"
	"github.com/Session-Vigil/Sessionvigil/internal/domain/ratelimit"
	"github.com/Session-Vigil/Sessionvigil/internal/service"
)

// requestIDContextKey is the type for the request ID context key.
type requestIDContextKey struct{}

// RequestIDKey is the context key for the request ID.
var RequestIDKey = requestIDContextKey{}

// clientIPContextKey is the type for the client IP context key.
type clientIPContextKey struct{}

// ClientIPKey is the context key for the resolved client IP.
var ClientIPKey = clientIPContextKey{}

// LoggerKey is the context key for the enriched logger.
// Uses the shared key type from ctxkey so other packages can read it
// without importing this one.
var LoggerKey = ctxkey.LoggerKey{}

// RequestIDMiddleware extracts or generates a request ID and enriches the logger.
// The request ID is stored in context using RequestIDKey.
// An enriched logger with request_id field is stored using LoggerKey.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enrichedLogger := logger.With("request_id", requestID)

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, enrichedLogger)

			// Echo the id so callers can correlate.
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// RealIPMiddleware resolves the client's real IP address for rate
// limiting. It checks X-Forwarded-For and X-Real-IP (reverse proxy
// support), falling back to r.RemoteAddr. Only the first entry of
// X-Forwarded-For is trusted to avoid spoofing. The IP is stored in
// context using ClientIPKey.
func RealIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractRealIP(r)
		ctx := context.WithValue(r.Context(), ClientIPKey, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromContext retrieves the resolved client IP from context.
// Returns "" if RealIPMiddleware did not run.
func ClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return ""
}

func extractRealIP(r *http.Request) string {
	// X-Forwarded-For lists client, proxy1, proxy2; the first entry is
	// the client as seen by the first proxy.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			if ip := strings.TrimSpace(ips[0]); ip != "" {
				return ip
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// APIKeyAuthMiddleware enforces Bearer-key auth against a single stored
// hash (argon2id PHC or sha256 form). An empty hash disables the check.
// Comparison is constant-time in both formats.
func APIKeyAuthMiddleware(keyHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if keyHash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			rawKey := strings.TrimPrefix(header, "Bearer ")
			match, err := auth.VerifyKey(rawKey, keyHash)
			if err != nil {
				logger.Error("api key verification failed", "error", err)
				writeJSONError(w, http.StatusInternalServerError, "key verification failed")
				return
			}
			if !match {
				logger.Warn("rejected api key",
					"client_ip", ClientIPFromContext(r.Context()))
				writeJSONError(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IngestRateLimitMiddleware applies the per-client sliding window to
// event ingest. The key is the resolved client IP. When the limit is
// exceeded the response is 429 with a Retry-After header.
func IngestRateLimitMiddleware(window *ratelimit.SlidingWindow, metrics *Metrics, stats *service.StatsService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if window == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIPFromContext(r.Context())
			if key == "" {
				key = extractRealIP(r)
			}

			allowed, retryAfter := window.Allow(key)
			if metrics != nil {
				metrics.RateLimitKeys.Set(float64(window.Size()))
			}
			if !allowed {
				if metrics != nil {
					metrics.IngestTotal.WithLabelValues("limited").Inc()
				}
				if stats != nil {
					stats.RecordRateLimited()
				}
				secs := int(retryAfter.Seconds()) + 1
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = fmt.Fprint(w, `{"error":"rate limit exceeded"}`)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeJSONError writes a bare JSON error body for middleware rejections
// that happen before any handler runs.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error":%q}`, message)
}

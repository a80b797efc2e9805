package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for Session Vigil.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	IngestTotal          *prometheus.CounterVec
	WSClients            prometheus.Gauge
	SessionTimeRemaining prometheus.Gauge
	SessionExpired       prometheus.Gauge
	RedirectsTotal       prometheus.Counter
	RateLimitKeys        prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sessionvigil",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"route", "outcome"}, // outcome=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sessionvigil",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets, // 5ms to 10s
			},
			[]string{"route"},
		),
		IngestTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sessionvigil",
				Name:      "ingest_events_total",
				Help:      "Total activity events received at ingest",
			},
			[]string{"result"}, // result=accepted/rejected/limited
		),
		WSClients: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sessionvigil",
				Name:      "ws_clients",
				Help:      "Number of connected WebSocket presenters",
			},
		),
		SessionTimeRemaining: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sessionvigil",
				Name:      "session_time_remaining_seconds",
				Help:      "Seconds until session expiry as of the last poll",
			},
		),
		SessionExpired: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sessionvigil",
				Name:      "session_expired",
				Help:      "Whether the session has expired (0 or 1)",
			},
		),
		RedirectsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "sessionvigil",
				Name:      "redirects_total",
				Help:      "Total expiry redirect broadcasts",
			},
		),
		RateLimitKeys: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sessionvigil",
				Name:      "rate_limit_keys",
				Help:      "Number of active ingest rate limit keys",
			},
		),
	}
}

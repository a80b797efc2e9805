// Package telemetry provides OpenTelemetry TracerProvider and
// MeterProvider wiring with stdout exporters, plus a chained shutdown.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// defaultMetricInterval is how often the periodic reader exports.
const defaultMetricInterval = 30 * time.Second

// Config controls telemetry provider setup.
type Config struct {
	// Enabled turns real exporters on. When false the providers are
	// inert and Shutdown is a no-op.
	Enabled bool
	// ServiceName identifies this process in exported telemetry.
	ServiceName string
	// ServiceVersion is the build version attached to the resource.
	ServiceVersion string
	// MetricInterval is the export cadence (default 30s).
	MetricInterval time.Duration
	// Writer receives the exported telemetry (default os.Stdout).
	Writer io.Writer
	// Logger reports shutdown failures.
	Logger *slog.Logger
}

// Providers holds the OpenTelemetry providers and a shutdown function
// that flushes and stops them in reverse creation order.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Shutdown       func(context.Context) error
}

// NewProviders creates tracer and meter providers exporting to the
// configured writer. Disabled config yields inert providers so callers
// never need nil checks.
func NewProviders(cfg Config) (*Providers, error) {
	if !cfg.Enabled {
		return &Providers{
			TracerProvider: sdktrace.NewTracerProvider(),
			MeterProvider:  sdkmetric.NewMeterProvider(),
			Shutdown:       func(context.Context) error { return nil },
		}, nil
	}

	if cfg.MetricInterval <= 0 {
		cfg.MetricInterval = defaultMetricInterval
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	var shutdownFns []func(context.Context) error

	traceExp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	shutdownFns = append(shutdownFns, tp.Shutdown)

	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer))
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, err
	}
	reader := sdkmetric.NewPeriodicReader(metricExp,
		sdkmetric.WithInterval(cfg.MetricInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	shutdownFns = append(shutdownFns, mp.Shutdown)

	logger := cfg.Logger
	shutdown := func(ctx context.Context) error {
		var lastErr error
		for i := len(shutdownFns) - 1; i >= 0; i-- {
			if err := shutdownFns[i](ctx); err != nil {
				logger.Error("telemetry shutdown failed", "error", err)
				lastErr = err
			}
		}
		return lastErr
	}

	return &Providers{
		TracerProvider: tp,
		MeterProvider:  mp,
		Shutdown:       shutdown,
	}, nil
}

// SetGlobal installs the providers as process globals so instrumented
// code picks them up without explicit plumbing.
func (p *Providers) SetGlobal() {
	if p.TracerProvider != nil {
		otel.SetTracerProvider(p.TracerProvider)
	}
	if p.MeterProvider != nil {
		otel.SetMeterProvider(p.MeterProvider)
	}
}

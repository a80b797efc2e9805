package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestNewProviders_DisabledIsInert(t *testing.T) {
	t.Parallel()

	providers, err := NewProviders(Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewProviders() error: %v", err)
	}
	if providers.TracerProvider == nil || providers.MeterProvider == nil {
		t.Fatal("disabled providers must still be non-nil")
	}
	if err := providers.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error: %v", err)
	}
}

func TestNewProviders_ExportsSpans(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	providers, err := NewProviders(Config{
		Enabled:        true,
		ServiceName:    "session-vigil-test",
		ServiceVersion: "0.0.0",
		MetricInterval: time.Hour,
		Writer:         &buf,
	})
	if err != nil {
		t.Fatalf("NewProviders() error: %v", err)
	}

	tracer := providers.TracerProvider.Tracer("test")
	_, span := tracer.Start(context.Background(), "statusapi.status")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := providers.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "statusapi.status") {
		t.Errorf("exported output missing span name, got: %.200s", out)
	}
	if !strings.Contains(out, "session-vigil-test") {
		t.Errorf("exported output missing service name, got: %.200s", out)
	}
}

func TestNewProviders_ShutdownIdempotent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	providers, err := NewProviders(Config{
		Enabled:        true,
		ServiceName:    "session-vigil-test",
		MetricInterval: time.Hour,
		Writer:         &buf,
	})
	if err != nil {
		t.Fatalf("NewProviders() error: %v", err)
	}

	ctx := context.Background()
	if err := providers.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown() error: %v", err)
	}
	// Provider shutdowns tolerate repeat calls.
	_ = providers.Shutdown(ctx)
}

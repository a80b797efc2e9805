package http

import (
	"context"
	"testing"
	"time"

	"github.com/Session-Vigil/Sessionvigil/internal/adapter/outbound/memory"
	"github.com/Session-Vigil/Sessionvigil/internal/domain/session"
)

func TestNewHTTPTransport_Defaults(t *testing.T) {
	transport := NewHTTPTransport(NewAPIHandler())

	if transport.addr != "127.0.0.1:8750" {
		t.Errorf("addr = %q, want 127.0.0.1:8750", transport.addr)
	}
	if transport.logger == nil {
		t.Error("logger should default to slog.Default")
	}
	if transport.apiKeyHash != "" {
		t.Errorf("apiKeyHash = %q, want empty", transport.apiKeyHash)
	}
}

func TestWithAddr_Option(t *testing.T) {
	transport := &HTTPTransport{}
	WithAddr("0.0.0.0:9000")(transport)

	if transport.addr != "0.0.0.0:9000" {
		t.Errorf("addr = %q, want 0.0.0.0:9000", transport.addr)
	}
}

func TestWithAPIKeyHash_Option(t *testing.T) {
	transport := &HTTPTransport{}
	WithAPIKeyHash("sha256:abc")(transport)

	if transport.apiKeyHash != "sha256:abc" {
		t.Errorf("apiKeyHash = %q, want sha256:abc", transport.apiKeyHash)
	}
}

func TestWithHealthChecker_Option(t *testing.T) {
	hc := NewHealthChecker(nil, nil, nil, "")
	transport := &HTTPTransport{}
	WithHealthChecker(hc)(transport)

	if transport.healthChecker != hc {
		t.Error("WithHealthChecker did not set healthChecker")
	}
}

func TestTransport_StartAndShutdown(t *testing.T) {
	// Integration test: the real Start() wires metrics, the middleware
	// chain, and the session gauge mirror, then shuts down on cancel.
	src := memory.NewSimulatedStatusSource(memory.DefaultSimulatedConfig())
	ctrl := session.NewTimeoutController(src, nil, session.WithLogger(discardLogger()))
	api := NewAPIHandler(WithController(ctrl), WithAPILogger(discardLogger()))

	transport := NewHTTPTransport(api,
		WithAddr("127.0.0.1:0"),
		WithLogger(discardLogger()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- transport.Start(ctx)
	}()

	// Give the server a moment to start
	time.Sleep(100 * time.Millisecond)

	// Cancel context to trigger shutdown
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return within 5 seconds after cancel")
	}

	// Close after shutdown is a no-op.
	if err := transport.Close(); err != nil {
		t.Errorf("Close() after shutdown returned error: %v", err)
	}
}

func TestTransport_CloseWithoutStart(t *testing.T) {
	transport := NewHTTPTransport(NewAPIHandler())

	if err := transport.Close(); err != nil {
		t.Errorf("Close() without Start returned error: %v", err)
	}
}

// Package statusapi implements the session status source over HTTP.
// It talks to the session authority's REST endpoints and maps their
// responses and failures into domain types.
package statusapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Session-Vigil/Sessionvigil/internal/domain/session"
)

const (
	// DefaultTimeout bounds every request to the status authority.
	DefaultTimeout = 10 * time.Second

	// maxResponseBodySize caps how much of a response body is read.
	// Protects against a misbehaving authority sending unbounded output.
	maxResponseBodySize = 1024 * 1024 // 1MiB

	// errorMessagePreview is how many bytes of a non-JSON error body
	// survive into the APIError message.
	errorMessagePreview = 256

	// scopeName is the otel instrumentation scope for spans and counters.
	scopeName = "statusapi"
)

// ClientConfig holds connection settings for the status authority.
type ClientConfig struct {
	// BaseURL is the authority's API root, e.g. "https://hub.internal/api/session".
	BaseURL string
	// Token authenticates every request as a bearer credential. Only
	// its xxhash64 fingerprint ever reaches the logs.
	Token string
	// Timeout bounds each request (default 10s).
	Timeout time.Duration
}

// Client implements session.StatusSource against the HTTP status API.
type Client struct {
	baseURL     string
	token       string
	fingerprint string
	httpClient  *http.Client
	logger      *slog.Logger
	tracer      trace.Tracer
	meter       metric.Meter
	calls       metric.Int64Counter
}

// Option is a functional option for configuring Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTracerProvider sets the tracer provider for request spans. The
// global provider is used otherwise, which is a no-op unless telemetry
// is installed at boot.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracer = tp.Tracer(scopeName)
	}
}

// WithMeterProvider sets the meter provider for the call counter. The
// global provider is used otherwise.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Client) {
		c.meter = mp.Meter(scopeName)
	}
}

// NewClient creates a status API client. The base URL must be set; the
// timeout defaults to 10s when unset.
func NewClient(cfg ClientConfig, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("status base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		fingerprint: TokenFingerprint(cfg.Token),
		logger:      slog.Default(),
		tracer:      otel.Tracer(scopeName),
		meter:       otel.Meter(scopeName),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	calls, err := c.meter.Int64Counter("statusapi.calls",
		metric.WithDescription("Requests to the status authority by operation and outcome."))
	if err != nil {
		return nil, fmt.Errorf("create call counter: %w", err)
	}
	c.calls = calls

	c.logger.Debug("status client configured",
		"base_url", c.baseURL, "token_fp", c.fingerprint)

	return c, nil
}

// TokenFingerprint returns the 16-hex-char xxhash64 digest of a token.
// The digest identifies a credential in logs without exposing it.
func TokenFingerprint(token string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(token))
}

// Fingerprint returns the loggable digest of the configured token.
func (c *Client) Fingerprint() string {
	return c.fingerprint
}

// statusResponse is the wire form of GET /status.
type statusResponse struct {
	TimeRemainingMS int64 `json:"time_remaining_ms"`
	CanExtend       bool  `json:"can_extend"`
	ExtensionsUsed  int   `json:"extensions_used"`
	MaxExtensions   int   `json:"max_extensions"`
}

// extendResponse is the wire form of POST /extend.
type extendResponse struct {
	TimeRemainingMS     int64 `json:"time_remaining_ms"`
	ExtensionsRemaining int   `json:"extensions_remaining"`
}

// activityRequest is the wire form of POST /activity.
type activityRequest struct {
	LastActivity time.Time `json:"last_activity"`
}

// GetStatus fetches the current session snapshot.
func (c *Client) GetStatus(ctx context.Context) (session.Snapshot, error) {
	body, err := c.do(ctx, "status", http.MethodGet, "/status", nil)
	if err != nil {
		return session.Snapshot{}, err
	}

	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return session.Snapshot{}, &session.TransportError{
			Op: "status", Err: fmt.Errorf("decode response: %w", err),
		}
	}

	return session.Snapshot{
		TimeRemaining:  time.Duration(resp.TimeRemainingMS) * time.Millisecond,
		CanExtend:      resp.CanExtend,
		ExtensionsUsed: resp.ExtensionsUsed,
		MaxExtensions:  resp.MaxExtensions,
	}, nil
}

// Extend requests a session extension.
func (c *Client) Extend(ctx context.Context) (session.ExtendGrant, error) {
	body, err := c.do(ctx, "extend", http.MethodPost, "/extend", nil)
	if err != nil {
		return session.ExtendGrant{}, err
	}

	var resp extendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return session.ExtendGrant{}, &session.TransportError{
			Op: "extend", Err: fmt.Errorf("decode response: %w", err),
		}
	}

	return session.ExtendGrant{
		TimeRemaining:       time.Duration(resp.TimeRemainingMS) * time.Millisecond,
		ExtensionsRemaining: resp.ExtensionsRemaining,
	}, nil
}

// ReportActivity tells the authority the session saw recent user
// activity. The response body is ignored.
func (c *Client) ReportActivity(ctx context.Context) error {
	payload, err := json.Marshal(activityRequest{LastActivity: time.Now().UTC()})
	if err != nil {
		return &session.TransportError{Op: "activity", Err: err}
	}

	_, err = c.do(ctx, "activity", http.MethodPost, "/activity", payload)
	return err
}

// do executes one request against the authority and returns the
// (limit-read) response body. Connectivity failures come back as
// TransportError, non-2xx responses as APIError.
func (c *Client) do(ctx context.Context, op, method, path string, payload []byte) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "statusapi."+op,
		trace.WithAttributes(attribute.String("http.method", method)))
	defer span.End()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, c.fail(ctx, span, op, &session.TransportError{Op: op, Err: err})
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(ctx, span, op, &session.TransportError{Op: op, Err: err})
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, c.fail(ctx, span, op, &session.TransportError{
			Op: op, Err: fmt.Errorf("read response: %w", err),
		})
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &session.APIError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.logger.Warn("status authority rejected credentials",
				"op", op, "token_fp", c.fingerprint)
		}
		return nil, c.fail(ctx, span, op, apiErr)
	}

	span.SetAttributes(attribute.String("outcome", "ok"))
	c.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", "ok")))
	return body, nil
}

// fail records the error on the span and the call counter, then
// passes the error through.
func (c *Client) fail(ctx context.Context, span trace.Span, op string, err error) error {
	outcome := "transport_error"
	if _, ok := err.(*session.APIError); ok {
		outcome = "api_error"
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome)))
	return err
}

// errorMessage extracts a human-readable message from an error body.
// JSON bodies with an "error" field win; anything else is previewed.
func errorMessage(body []byte) string {
	var wire struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error != "" {
		return wire.Error
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > errorMessagePreview {
		msg = msg[:errorMessagePreview]
	}
	return msg
}

// Compile-time interface verification.
var _ session.StatusSource = (*Client)(nil)

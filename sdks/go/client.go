package sessionvigil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// maxResponseBody caps how much of an error response body is read.
const maxResponseBody = 64 * 1024

// Client is the Session Vigil SDK client. It talks to the sidecar's
// presenter API to read session state, request extensions, and publish
// activity.
type Client struct {
	serverAddr string
	apiKey     string
	source     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a new Session Vigil SDK client.
// It reads configuration from SESSION_VIGIL_* environment variables by
// default. Options can be used to override the defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr: envOrDefault("SESSION_VIGIL_SERVER_ADDR", "http://127.0.0.1:8750"),
		apiKey:     os.Getenv("SESSION_VIGIL_API_KEY"),
		source:     envOrDefault("SESSION_VIGIL_SOURCE", "sdk"),
		timeout:    parseDurationEnv("SESSION_VIGIL_TIMEOUT", 10*time.Second),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// GetState returns the current presenter-facing session state.
func (c *Client) GetState(ctx context.Context) (*State, error) {
	var st State
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/session", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Extend asks the sidecar for more session time and returns the
// refreshed state. When the sidecar or its upstream refuses, the error
// matches ErrDenied; present the current state instead of retrying.
func (c *Client) Extend(ctx context.Context) (*State, error) {
	var st State
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/session/extend", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ReportActivity tells the sidecar the user is still there. Unlike
// PublishEvents this skips the detector's debounce and rate limits and
// forwards a keepalive directly.
func (c *Client) ReportActivity(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/api/v1/session/activity", nil, nil)
}

// PublishEvents sends raw interaction events to the sidecar's activity
// bus, where the detector debounces and rate-limits them. Events with a
// zero timestamp are stamped with the current time; events without a
// source get the client's configured source. Publishing no events is a
// no-op.
func (c *Client) PublishEvents(ctx context.Context, events ...Event) (*IngestResult, error) {
	if len(events) == 0 {
		return &IngestResult{}, nil
	}

	now := time.Now().UTC()
	batch := make([]Event, len(events))
	for i, ev := range events {
		if ev.At.IsZero() {
			ev.At = now
		}
		if ev.Source == "" {
			ev.Source = c.source
		}
		batch[i] = ev
	}

	body := struct {
		Events []Event `json:"events"`
	}{Events: batch}

	var result IngestResult
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/events", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// doRequest performs an HTTP request against the sidecar. Non-2xx
// responses become *APIError; transport failures are returned wrapped.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	url := strings.TrimRight(c.serverAddr, "/") + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sessionvigil: %s %s: %w", method, path, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return newAPIError(httpResp, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// newAPIError builds an *APIError from an error response. The sidecar
// sends {"error": "..."} bodies; anything else is kept verbatim.
func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var wire struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error != "" {
		apiErr.Message = wire.Error
	} else if msg := strings.TrimSpace(string(body)); msg != "" {
		apiErr.Message = msg
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}

	return apiErr
}

// Helper functions for env var parsing.

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	// Try parsing as seconds (integer).
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	// Try parsing as duration string.
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}

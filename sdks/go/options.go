package sessionvigil

import (
	"net/http"
	"time"
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithServerAddr sets the sidecar base URL.
// If not set, defaults to the SESSION_VIGIL_SERVER_ADDR environment
// variable, falling back to http://127.0.0.1:8750.
func WithServerAddr(addr string) Option {
	return func(c *Client) {
		c.serverAddr = addr
	}
}

// WithAPIKey sets the API key for authenticating with the sidecar.
// If not set, defaults to the SESSION_VIGIL_API_KEY environment variable.
// Leave empty when the sidecar runs without auth.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithSource sets the source name stamped on published events that do
// not carry one. If not set, defaults to the SESSION_VIGIL_SOURCE
// environment variable or "sdk".
func WithSource(source string) Option {
	return func(c *Client) {
		c.source = source
	}
}

// WithTimeout sets the HTTP request timeout.
// If not set, defaults to 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient supplies the http.Client used for requests, for
// callers that need their own transport, proxy, or TLS setup. It takes
// precedence over WithTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

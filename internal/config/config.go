// Package config provides the configuration schema for Session Vigil.
//
// Configuration is file-based (session-vigil.yaml) with environment
// overrides under the SESSION_VIGIL_ prefix. The schema covers:
//
//   - server: HTTP listener and logging
//   - session: status source, polling, extension and tier settings
//   - activity: detector tracking, debounce, sync and filter settings
//   - ingest: per-client rate limiting for the event endpoint
//   - journal: activity event persistence (ring buffer or SQLite)
//   - auth: presenter API key hash
//   - telemetry: optional OpenTelemetry export
//
// Duration fields hold strings ("30s", "5m") validated by the duration
// rule and parsed at boot.
package config

import (
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for Session Vigil.
type Config struct {
	// Server configures the HTTP listener and logging.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Session configures the status source and timeout controller.
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// Activity configures the activity detector.
	Activity ActivityConfig `yaml:"activity" mapstructure:"activity"`

	// Ingest configures rate limiting on the event ingest endpoint.
	Ingest IngestConfig `yaml:"ingest" mapstructure:"ingest"`

	// Journal configures activity event persistence.
	Journal JournalConfig `yaml:"journal" mapstructure:"journal"`

	// Auth configures the presenter API key.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Telemetry configures optional OpenTelemetry export.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// DevMode enables development features: simulated session source
	// when no status URL is configured, debug logging.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
// TLS is out of scope; put a reverse proxy in front for network exposure.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8750", ":8750").
	// Defaults to "127.0.0.1:8750" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// LogFormat selects the log handler.
	// "text" is plain slog text, "pretty" is the tinted dev handler,
	// "json" is structured output for collectors. Defaults to "text".
	LogFormat string `yaml:"log_format" mapstructure:"log_format" validate:"omitempty,oneof=text pretty json"`
}

// SessionConfig configures the session status source and the timeout
// controller built on it.
type SessionConfig struct {
	// Source selects the status backend: "http" polls StatusURL,
	// "simulated" runs the in-memory countdown. Defaults to "http";
	// dev mode falls back to "simulated" when no StatusURL is set.
	Source string `yaml:"source" mapstructure:"source" validate:"omitempty,oneof=http simulated"`

	// StatusURL is the session status endpoint base URL.
	// Required when Source is "http".
	StatusURL string `yaml:"status_url" mapstructure:"status_url" validate:"omitempty,url"`

	// Token is the bearer token sent to the status endpoint. Only its
	// fingerprint ever appears in logs.
	Token string `yaml:"token" mapstructure:"token"`

	// RequestTimeout bounds each status call (e.g., "10s").
	// Defaults to "10s".
	RequestTimeout string `yaml:"request_timeout" mapstructure:"request_timeout" validate:"omitempty,duration"`

	// PollInterval is the controller's poll cadence (e.g., "30s").
	// Defaults to "30s".
	PollInterval string `yaml:"poll_interval" mapstructure:"poll_interval" validate:"omitempty,duration"`

	// LoginURL is where presenters are redirected after expiry.
	// Defaults to "/login".
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`

	// MaxExtensions caps session extensions. Defaults to 3; 0 disables
	// extensions entirely.
	MaxExtensions int `yaml:"max_extensions" mapstructure:"max_extensions" validate:"omitempty,min=0"`

	// TierProfile selects the warning thresholds: "server" (60s/5m/10m),
	// "presenter" (30s/2m/5m), or "custom" using Tiers. Defaults to
	// "server".
	TierProfile string `yaml:"tier_profile" mapstructure:"tier_profile" validate:"omitempty,oneof=server presenter custom"`

	// Tiers holds the explicit thresholds used when TierProfile is
	// "custom". Thresholds must ascend: critical < prominent < subtle.
	Tiers TiersConfig `yaml:"tiers" mapstructure:"tiers"`

	// Simulated configures the in-memory source used when Source is
	// "simulated".
	Simulated SimulatedSourceConfig `yaml:"simulated" mapstructure:"simulated"`
}

// TiersConfig holds custom warning thresholds.
type TiersConfig struct {
	// Critical is the remaining time below which the warning is critical.
	Critical string `yaml:"critical" mapstructure:"critical" validate:"omitempty,duration"`

	// Prominent is the remaining time below which the warning is prominent.
	Prominent string `yaml:"prominent" mapstructure:"prominent" validate:"omitempty,duration"`

	// Subtle is the remaining time below which the warning is subtle.
	Subtle string `yaml:"subtle" mapstructure:"subtle" validate:"omitempty,duration"`
}

// SimulatedSourceConfig configures the in-memory session simulation.
type SimulatedSourceConfig struct {
	// TTL is the simulated session lifetime (e.g., "20m").
	// Defaults to "20m".
	TTL string `yaml:"ttl" mapstructure:"ttl" validate:"omitempty,duration"`

	// KeepAlive makes activity reports refresh the simulated deadline.
	// Defaults to true.
	KeepAlive bool `yaml:"keepalive" mapstructure:"keepalive"`
}

// ActivityConfig configures the activity detector.
type ActivityConfig struct {
	// Enabled turns activity detection on or off. Defaults to true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// TrackClicks subscribes the detector to click events. Defaults to true.
	TrackClicks bool `yaml:"track_clicks" mapstructure:"track_clicks"`

	// TrackScrolls subscribes the detector to scroll events. Defaults to true.
	TrackScrolls bool `yaml:"track_scrolls" mapstructure:"track_scrolls"`

	// TrackKeypresses subscribes the detector to keypress events. Defaults to true.
	TrackKeypresses bool `yaml:"track_keypresses" mapstructure:"track_keypresses"`

	// TrackPointerMove subscribes the detector to pointer-move events.
	// Off by default; pointer moves are high-volume and low-signal.
	TrackPointerMove bool `yaml:"track_pointer_move" mapstructure:"track_pointer_move"`

	// Debounce is the window collapsing raw-event bursts into one
	// notification (e.g., "1s"). Defaults to "1s".
	Debounce string `yaml:"debounce" mapstructure:"debounce" validate:"omitempty,duration"`

	// MaxEventsPerMinute caps counted events per kind per minute.
	// Defaults to 120.
	MaxEventsPerMinute int `yaml:"max_events_per_minute" mapstructure:"max_events_per_minute" validate:"omitempty,min=1"`

	// InactivityThreshold is how long without events counts as idle
	// (e.g., "5m"). Defaults to "5m".
	InactivityThreshold string `yaml:"inactivity_threshold" mapstructure:"inactivity_threshold" validate:"omitempty,duration"`

	// SyncBatchSize is the pending-event count that triggers an early
	// sink flush. Defaults to 50.
	SyncBatchSize int `yaml:"sync_batch_size" mapstructure:"sync_batch_size" validate:"omitempty,min=1"`

	// SyncInterval is the periodic sink flush cadence (e.g., "30s").
	// Defaults to "30s".
	SyncInterval string `yaml:"sync_interval" mapstructure:"sync_interval" validate:"omitempty,duration"`

	// PendingLimit caps the pending-event queue; events beyond it are
	// dropped and counted. Defaults to 1000.
	PendingLimit int `yaml:"pending_limit" mapstructure:"pending_limit" validate:"omitempty,min=1"`

	// Filter is an optional CEL expression over kind, source, and meta;
	// events it rejects are ignored by the detector. Compile errors
	// abort startup.
	Filter string `yaml:"filter" mapstructure:"filter"`
}

// IngestConfig configures rate limiting on POST /api/v1/events.
type IngestConfig struct {
	// RateLimitEnabled turns ingest rate limiting on or off.
	// Defaults to true.
	RateLimitEnabled bool `yaml:"rate_limit_enabled" mapstructure:"rate_limit_enabled"`

	// ClientRate is the maximum ingested events per minute per client.
	// Defaults to 300.
	ClientRate int `yaml:"client_rate" mapstructure:"client_rate" validate:"omitempty,min=1"`

	// CleanupInterval is how often idle limiter entries are pruned
	// (e.g., "5m"). Defaults to "5m".
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`
}

// JournalConfig configures activity event persistence.
type JournalConfig struct {
	// Output selects the journal backend: "none" keeps an in-memory
	// ring buffer only, "sqlite" persists to DBPath. Defaults to "none".
	Output string `yaml:"output" mapstructure:"output" validate:"omitempty,oneof=none sqlite"`

	// DBPath is the SQLite database file used when Output is "sqlite".
	// Defaults to "./activity.db".
	DBPath string `yaml:"db_path" mapstructure:"db_path"`

	// RecentBuffer is the ring buffer size backing the SSE replay when
	// Output is "none". Defaults to 256.
	RecentBuffer int `yaml:"recent_buffer" mapstructure:"recent_buffer" validate:"omitempty,min=1"`

	// Retention is the prune horizon for SQLite rows (e.g., "168h").
	// "0" disables pruning. Defaults to "168h".
	Retention string `yaml:"retention" mapstructure:"retention" validate:"omitempty,duration"`
}

// AuthConfig configures presenter API authentication.
type AuthConfig struct {
	// APIKeyHash is the stored hash presenters must present a matching
	// Bearer key for: an Argon2id PHC string from `session-vigil
	// hash-key`, or "sha256:<hex>". Empty disables authentication.
	APIKeyHash string `yaml:"api_key_hash" mapstructure:"api_key_hash" validate:"omitempty,api_key_hash"`
}

// TelemetryConfig configures optional OpenTelemetry export.
type TelemetryConfig struct {
	// Enabled turns OTel providers on. Prometheus metrics are served
	// regardless. Defaults to false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// ExportInterval is the metric export cadence (e.g., "30s").
	// Defaults to "30s".
	ExportInterval string `yaml:"export_interval" mapstructure:"export_interval" validate:"omitempty,duration"`
}

// SetDevDefaults applies permissive defaults for development mode.
// This allows running session-vigil with no config file at all.
// These defaults are applied BEFORE validation so required fields are
// satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	// No status endpoint configured: run against the simulation rather
	// than failing validation.
	if c.Session.Source == "http" && c.Session.StatusURL == "" {
		c.Session.Source = "simulated"
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Server defaults: bind to localhost only.
	// Network access requires an explicit http_addr: ":8750" or "0.0.0.0:8750".
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8750"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "text"
	}

	// Session defaults
	if c.Session.Source == "" {
		c.Session.Source = "http"
	}
	if c.Session.RequestTimeout == "" {
		c.Session.RequestTimeout = "10s"
	}
	if c.Session.PollInterval == "" {
		c.Session.PollInterval = "30s"
	}
	if c.Session.LoginURL == "" {
		c.Session.LoginURL = "/login"
	}
	// viper.IsSet distinguishes "not set" (zero value) from an explicit 0,
	// which disables extensions.
	if c.Session.MaxExtensions == 0 && !viper.IsSet("session.max_extensions") {
		c.Session.MaxExtensions = 3
	}
	if c.Session.TierProfile == "" {
		c.Session.TierProfile = "server"
	}
	if c.Session.Simulated.TTL == "" {
		c.Session.Simulated.TTL = "20m"
	}
	if !viper.IsSet("session.simulated.keepalive") {
		c.Session.Simulated.KeepAlive = true
	}

	// Activity defaults: tracking on except pointer moves.
	if !viper.IsSet("activity.enabled") {
		c.Activity.Enabled = true
	}
	if !viper.IsSet("activity.track_clicks") {
		c.Activity.TrackClicks = true
	}
	if !viper.IsSet("activity.track_scrolls") {
		c.Activity.TrackScrolls = true
	}
	if !viper.IsSet("activity.track_keypresses") {
		c.Activity.TrackKeypresses = true
	}
	if c.Activity.Debounce == "" {
		c.Activity.Debounce = "1s"
	}
	if c.Activity.MaxEventsPerMinute == 0 {
		c.Activity.MaxEventsPerMinute = 120
	}
	if c.Activity.InactivityThreshold == "" {
		c.Activity.InactivityThreshold = "5m"
	}
	if c.Activity.SyncBatchSize == 0 {
		c.Activity.SyncBatchSize = 50
	}
	if c.Activity.SyncInterval == "" {
		c.Activity.SyncInterval = "30s"
	}
	if c.Activity.PendingLimit == 0 {
		c.Activity.PendingLimit = 1000
	}

	// Ingest defaults: rate limiting on unless explicitly disabled.
	if !viper.IsSet("ingest.rate_limit_enabled") {
		c.Ingest.RateLimitEnabled = true
	}
	if c.Ingest.ClientRate == 0 {
		c.Ingest.ClientRate = 300
	}
	if c.Ingest.CleanupInterval == "" {
		c.Ingest.CleanupInterval = "5m"
	}

	// Journal defaults
	if c.Journal.Output == "" {
		c.Journal.Output = "none"
	}
	if c.Journal.DBPath == "" {
		c.Journal.DBPath = "./activity.db"
	}
	if c.Journal.RecentBuffer == 0 {
		c.Journal.RecentBuffer = 256
	}
	if c.Journal.Retention == "" {
		c.Journal.Retention = "168h"
	}

	// Telemetry defaults
	if c.Telemetry.ExportInterval == "" {
		c.Telemetry.ExportInterval = "30s"
	}
}

// Duration parses a config duration string, falling back when the value
// is empty. Validation keeps malformed strings out of loaded configs;
// the fallback also covers hand-built structs.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Dump renders the effective configuration as YAML with secrets
// redacted, for the startup debug log.
func (c *Config) Dump() ([]byte, error) {
	dup := *c
	if dup.Session.Token != "" {
		dup.Session.Token = "[redacted]"
	}
	if dup.Auth.APIKeyHash != "" {
		dup.Auth.APIKeyHash = "[redacted]"
	}
	return yaml.Marshal(&dup)
}

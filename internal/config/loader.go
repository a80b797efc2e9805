package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper points Viper at the configuration file and wires the
// SESSION_VIGIL_ environment prefix. When configFile is empty the
// standard locations are searched for session-vigil.yaml/.yml; the
// search insists on a YAML extension so the session-vigil binary
// sitting in the working directory is never mistaken for config.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// Nothing found. Leave name/type set without search paths so
		// ReadInConfig reports ConfigFileNotFoundError, which callers
		// treat as env-only operation.
		viper.SetConfigName("session-vigil")
		viper.SetConfigType("yaml")
	}

	// SESSION_VIGIL_SERVER_HTTP_ADDR overrides server.http_addr, etc.
	viper.SetEnvPrefix("SESSION_VIGIL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile checks the working directory, the user config dir, and
// the system config dir for session-vigil.yaml or .yml.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".session-vigil"),
	}
	if runtime.GOOS == "windows" {
		// %ProgramData%\session-vigil (typically C:\ProgramData\session-vigil)
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "session-vigil"))
		}
	} else {
		paths = append(paths, "/etc/session-vigil")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths returns the first session-vigil.yaml or .yml
// found in the given directories, or empty when none exists.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "session-vigil"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys registers every nested config key with Viper.
// AutomaticEnv alone does not see nested keys that are absent from the
// config file, so each one is bound explicitly.
func bindNestedEnvKeys() {
	// Server config
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.log_format")

	// Session config
	_ = viper.BindEnv("session.source")
	_ = viper.BindEnv("session.status_url")
	_ = viper.BindEnv("session.token")
	_ = viper.BindEnv("session.request_timeout")
	_ = viper.BindEnv("session.poll_interval")
	_ = viper.BindEnv("session.login_url")
	_ = viper.BindEnv("session.max_extensions")
	_ = viper.BindEnv("session.tier_profile")
	_ = viper.BindEnv("session.tiers.critical")
	_ = viper.BindEnv("session.tiers.prominent")
	_ = viper.BindEnv("session.tiers.subtle")
	_ = viper.BindEnv("session.simulated.ttl")
	_ = viper.BindEnv("session.simulated.keepalive")

	// Activity config
	_ = viper.BindEnv("activity.enabled")
	_ = viper.BindEnv("activity.track_clicks")
	_ = viper.BindEnv("activity.track_scrolls")
	_ = viper.BindEnv("activity.track_keypresses")
	_ = viper.BindEnv("activity.track_pointer_move")
	_ = viper.BindEnv("activity.debounce")
	_ = viper.BindEnv("activity.max_events_per_minute")
	_ = viper.BindEnv("activity.inactivity_threshold")
	_ = viper.BindEnv("activity.sync_batch_size")
	_ = viper.BindEnv("activity.sync_interval")
	_ = viper.BindEnv("activity.pending_limit")
	_ = viper.BindEnv("activity.filter")

	// Ingest config
	_ = viper.BindEnv("ingest.rate_limit_enabled")
	_ = viper.BindEnv("ingest.client_rate")
	_ = viper.BindEnv("ingest.cleanup_interval")

	// Journal config
	_ = viper.BindEnv("journal.output")
	_ = viper.BindEnv("journal.db_path")
	_ = viper.BindEnv("journal.recent_buffer")
	_ = viper.BindEnv("journal.retention")

	// Auth config
	_ = viper.BindEnv("auth.api_key_hash")

	// Telemetry config
	_ = viper.BindEnv("telemetry.enabled")
	_ = viper.BindEnv("telemetry.export_interval")

	// Dev mode
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file (when one exists), applies
// environment overrides, and fills remaining defaults. It does not run
// SetDevDefaults or Validate: CLI flags such as --dev may still flip
// DevMode, so the caller finishes those two steps after applying them.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No file anywhere. Env-only operation is supported.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or
// empty in env-only operation.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

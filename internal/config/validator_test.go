package config

import (
	"strings"
	"testing"
)

// minimalValidConfig returns a minimal valid Config for testing.
func minimalValidConfig() *Config {
	return &Config{
		Session: SessionConfig{
			Source:    "http",
			StatusURL: "https://idp.example.com/session",
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_ZeroConfig_RequiresStatusURL(t *testing.T) {
	t.Parallel()

	// Simulate "session-vigil start" with no config file: the default
	// source is http, which needs an endpoint.
	cfg := &Config{}
	cfg.SetDefaults()

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "session.status_url") {
		t.Errorf("error = %q, want to contain 'session.status_url'", err.Error())
	}
	if !strings.Contains(err.Error(), "--dev") {
		t.Errorf("error = %q, want to point at --dev", err.Error())
	}
}

func TestValidate_ZeroConfig_DevMode(t *testing.T) {
	t.Parallel()

	// "session-vigil start --dev" with no config file runs against the
	// simulated source.
	cfg := &Config{DevMode: true}
	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() dev zero-config unexpected error: %v", err)
	}
	if cfg.Session.Source != "simulated" {
		t.Errorf("Source = %q, want %q", cfg.Session.Source, "simulated")
	}
}

func TestValidate_SimulatedSourceNeedsNoURL(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Session.Source = "simulated"
	cfg.Session.StatusURL = ""

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with simulated source unexpected error: %v", err)
	}
}

func TestValidate_InvalidHTTPAddr(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Server.HTTPAddr = "not a listen address"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "Server.HTTPAddr") {
		t.Errorf("error = %q, want to contain 'Server.HTTPAddr'", errStr)
	}
	if !strings.Contains(errStr, "host:port") {
		t.Errorf("error = %q, want to contain 'host:port'", errStr)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Server.LogLevel = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "LogLevel") {
		t.Errorf("error = %q, want to contain 'LogLevel'", err.Error())
	}
}

func TestValidate_InvalidSource(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Session.Source = "ldap"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "Session.Source") || !strings.Contains(errStr, "one of") {
		t.Errorf("error = %q, want to name Session.Source and valid options", errStr)
	}
}

func TestValidate_InvalidStatusURL(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Session.StatusURL = "not-a-url"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "StatusURL") {
		t.Errorf("error = %q, want to contain 'StatusURL'", err.Error())
	}
}

func TestValidate_InvalidDuration(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Session.PollInterval = "thirty seconds"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "PollInterval") || !strings.Contains(errStr, "duration") {
		t.Errorf("error = %q, want to name PollInterval and duration format", errStr)
	}
}

func TestValidate_DurationFormats(t *testing.T) {
	t.Parallel()

	valid := []string{"30s", "5m", "1h30m", "500ms"}
	for _, v := range valid {
		cfg := minimalValidConfig()
		cfg.Activity.Debounce = v
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() rejected debounce %q: %v", v, err)
		}
	}

	invalid := []string{"30", "fast", "1 h"}
	for _, v := range invalid {
		cfg := minimalValidConfig()
		cfg.Activity.Debounce = v
		if err := cfg.Validate(); err == nil {
			t.Errorf("Validate() accepted debounce %q, want error", v)
		}
	}
}

func TestValidate_CustomTiers(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Session.TierProfile = "custom"
	cfg.Session.Tiers = TiersConfig{Critical: "30s", Prominent: "2m", Subtle: "8m"}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with ascending custom tiers unexpected error: %v", err)
	}
}

func TestValidate_CustomTiers_MissingThreshold(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Session.TierProfile = "custom"
	cfg.Session.Tiers = TiersConfig{Critical: "30s"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "session.tiers.prominent") {
		t.Errorf("error = %q, want to name the missing tier", err.Error())
	}
}

func TestValidate_CustomTiers_NotAscending(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Session.TierProfile = "custom"
	cfg.Session.Tiers = TiersConfig{Critical: "5m", Prominent: "2m", Subtle: "10m"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "must ascend") {
		t.Errorf("error = %q, want to contain 'must ascend'", err.Error())
	}
}

func TestValidate_CustomTiers_EqualThresholds(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Session.TierProfile = "custom"
	cfg.Session.Tiers = TiersConfig{Critical: "2m", Prominent: "2m", Subtle: "10m"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for equal thresholds, got nil")
	}
}

func TestValidate_TiersIgnoredForNamedProfiles(t *testing.T) {
	t.Parallel()

	// Inverted tiers are fine when a named profile is selected; the
	// ordering check only applies to the custom profile.
	cfg := minimalValidConfig()
	cfg.Session.TierProfile = "server"
	cfg.Session.Tiers = TiersConfig{Critical: "10m", Prominent: "2m", Subtle: "30s"}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with named profile unexpected error: %v", err)
	}
}

func TestValidate_InvalidTierProfile(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Session.TierProfile = "aggressive"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "TierProfile") {
		t.Errorf("error = %q, want to contain 'TierProfile'", err.Error())
	}
}

func TestValidate_APIKeyHashFormats(t *testing.T) {
	t.Parallel()

	valid := []string{
		"$argon2id$v=19$m=47104,t=1,p=1$c29tZXNhbHQ$aGFzaGhhc2g",
		"sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
	}
	for _, v := range valid {
		cfg := minimalValidConfig()
		cfg.Auth.APIKeyHash = v
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() rejected hash %q: %v", v, err)
		}
	}

	cfg := minimalValidConfig()
	cfg.Auth.APIKeyHash = "plaintext-key"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for plaintext key, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "APIKeyHash") {
		t.Errorf("error = %q, want to contain 'APIKeyHash'", errStr)
	}
	if !strings.Contains(errStr, "argon2id") {
		t.Errorf("error = %q, want to name accepted formats", errStr)
	}
}

func TestValidate_NegativeMaxExtensions(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Session.MaxExtensions = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for negative max_extensions, got nil")
	}
}

func TestValidate_InvalidJournalOutput(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Journal.Output = "kafka"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "Journal.Output") || !strings.Contains(errStr, "none sqlite") {
		t.Errorf("error = %q, want to name Journal.Output and valid outputs", errStr)
	}
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Session-Vigil/Sessionvigil/internal/auth"
)

// RegisterCustomValidators registers Session Vigil validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// duration: validates time.ParseDuration strings ("30s", "5m")
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	// api_key_hash: validates stored hash formats
	if err := v.RegisterValidation("api_key_hash", validateAPIKeyHash); err != nil {
		return fmt.Errorf("failed to register api_key_hash validator: %w", err)
	}
	return nil
}

// validateDuration validates duration string fields.
// Valid values parse with time.ParseDuration: "10s", "5m", "1h30m".
func validateDuration(fl validator.FieldLevel) bool {
	_, err := time.ParseDuration(fl.Field().String())
	return err == nil
}

// validateAPIKeyHash validates the stored API key hash field.
// Valid formats: Argon2id PHC string, "sha256:<hex>", or bare SHA-256 hex.
func validateAPIKeyHash(fl validator.FieldLevel) bool {
	return auth.SchemeOf(fl.Field().String()) != auth.SchemeUnknown
}

// Validate validates the Config using struct tags and custom cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	// Create validator with required struct enabled
	v := validator.New(validator.WithRequiredStructEnabled())

	// Register custom validators
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	// Run struct validation (tags)
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	// Cross-field validation: HTTP source needs a status URL
	if err := c.validateSessionSource(); err != nil {
		return err
	}

	// Cross-field validation: custom tier ordering
	if err := c.validateCustomTiers(); err != nil {
		return err
	}

	return nil
}

// validateSessionSource ensures the HTTP status source has an endpoint.
// The simulated source needs no URL.
func (c *Config) validateSessionSource() error {
	if c.Session.Source == "http" && c.Session.StatusURL == "" {
		return errors.New("session.status_url is required when session.source is http (or run with --dev for the simulated source)")
	}
	return nil
}

// validateCustomTiers ensures the custom tier profile has all three
// thresholds, strictly ascending: critical < prominent < subtle.
// Remaining time is checked against tiers from the smallest up, so equal
// or inverted thresholds would shadow each other.
func (c *Config) validateCustomTiers() error {
	if c.Session.TierProfile != "custom" {
		return nil
	}

	critical, err := tierDuration("critical", c.Session.Tiers.Critical)
	if err != nil {
		return err
	}
	prominent, err := tierDuration("prominent", c.Session.Tiers.Prominent)
	if err != nil {
		return err
	}
	subtle, err := tierDuration("subtle", c.Session.Tiers.Subtle)
	if err != nil {
		return err
	}

	if critical >= prominent || prominent >= subtle {
		return fmt.Errorf("session.tiers must ascend: critical (%s) < prominent (%s) < subtle (%s)",
			c.Session.Tiers.Critical, c.Session.Tiers.Prominent, c.Session.Tiers.Subtle)
	}
	return nil
}

// tierDuration parses one tier threshold, requiring a positive value.
func tierDuration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, fmt.Errorf("session.tiers.%s is required when session.tier_profile is custom", name)
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("session.tiers.%s: invalid duration %q", name, value)
	}
	if d <= 0 {
		return 0, fmt.Errorf("session.tiers.%s must be positive, got %q", name, value)
	}
	return d, nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			msg := formatSingleValidationError(e)
			messages = append(messages, msg)
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "duration":
		return fmt.Sprintf("%s must be a valid duration (e.g. \"30s\", \"5m\")", field)
	case "api_key_hash":
		return fmt.Sprintf("%s must be an argon2id PHC string or sha256:<hex>", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}

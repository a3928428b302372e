package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validator validates individual configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateEndpoint checks the agent project endpoint is an absolute https URL.
func (v *Validator) ValidateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("invalid endpoint scheme %q (must be https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint %q has no host", endpoint)
	}

	return nil
}

// ValidateAgentID checks the agent identifier looks like an assistant id.
func (v *Validator) ValidateAgentID(agentID string) error {
	if agentID == "" {
		return fmt.Errorf("agent id cannot be empty")
	}
	if strings.ContainsAny(agentID, " /?#") {
		return fmt.Errorf("invalid agent id %q", agentID)
	}
	return nil
}

// ValidateStrategy validates an auth strategy name
func (v *Validator) ValidateStrategy(strategy string) error {
	if strategy == "" {
		return nil // auto
	}

	validStrategies := []string{StrategyAuto, StrategyClientSecret, StrategyManagedIdentity, StrategyInteractive}
	for _, valid := range validStrategies {
		if strategy == valid {
			return nil
		}
	}

	return fmt.Errorf("invalid auth strategy: %s (must be one of: %s)", strategy, strings.Join(validStrategies, ", "))
}

// ValidateDuration checks a duration lies in [min, max].
func (v *Validator) ValidateDuration(name string, d, min, max time.Duration) error {
	if d < min || d > max {
		return fmt.Errorf("%s must be between %s and %s, got %s", name, min, max, d)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation and reports every problem
// rather than stopping at the first one.
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateEndpoint(cfg.Agent.Endpoint); err != nil {
		errors = append(errors, fmt.Errorf("agent: %w", err))
	}
	if err := v.ValidateAgentID(cfg.Agent.AgentID); err != nil {
		errors = append(errors, fmt.Errorf("agent: %w", err))
	}
	if err := v.ValidateDuration("agent poll_interval", cfg.Agent.PollInterval, 10*time.Millisecond, time.Minute); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateDuration("agent max_wait", cfg.Agent.MaxWait, cfg.Agent.PollInterval, 30*time.Minute); err != nil {
		errors = append(errors, err)
	}
	if cfg.Agent.MaxAttempts < 1 || cfg.Agent.MaxAttempts > 10 {
		errors = append(errors, fmt.Errorf("agent max_attempts must be between 1 and 10, got %d", cfg.Agent.MaxAttempts))
	}
	if cfg.Agent.BackoffMax < cfg.Agent.BackoffBase {
		errors = append(errors, fmt.Errorf("agent backoff_max (%s) must be >= backoff_base (%s)", cfg.Agent.BackoffMax, cfg.Agent.BackoffBase))
	}

	if err := v.ValidateStrategy(cfg.Auth.Strategy); err != nil {
		errors = append(errors, err)
	}
	if cfg.Auth.partialClientSecret() {
		errors = append(errors, fmt.Errorf("auth client_id, client_secret and tenant_id must be set together"))
	}

	if cfg.Maps.SubscriptionKey != "" {
		if err := v.ValidateEndpoint(cfg.Maps.BaseURL); err != nil {
			errors = append(errors, fmt.Errorf("maps: %w", err))
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}

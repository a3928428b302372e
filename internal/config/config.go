package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Config represents the main Zombinator configuration
type Config struct {
	// Remote agent service
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Authentication to the agent service
	Auth AuthConfig `json:"auth" mapstructure:"auth"`

	// Azure Maps passthrough
	Maps MapsConfig `json:"maps" mapstructure:"maps"`

	// Chat UI server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// AgentConfig identifies the hosted agent and bounds how long we wait on it.
type AgentConfig struct {
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	AgentID      string        `json:"agent_id" mapstructure:"agent_id"`
	APIVersion   string        `json:"api_version" mapstructure:"api_version"`
	PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
	MaxWait      time.Duration `json:"max_wait" mapstructure:"max_wait"`
	MaxAttempts  int           `json:"max_attempts" mapstructure:"max_attempts"`
	BackoffBase  time.Duration `json:"backoff_base" mapstructure:"backoff_base"`
	BackoffMax   time.Duration `json:"backoff_max" mapstructure:"backoff_max"`
}

// AuthConfig selects the credential strategy. ClientID, ClientSecret and
// TenantID are all-or-nothing.
type AuthConfig struct {
	Strategy         string `json:"strategy" mapstructure:"strategy"` // auto, client-secret, managed-identity, interactive
	ClientID         string `json:"client_id" mapstructure:"client_id"`
	ClientSecret     string `json:"client_secret" mapstructure:"client_secret"`
	TenantID         string `json:"tenant_id" mapstructure:"tenant_id"`
	AllowInteractive bool   `json:"allow_interactive" mapstructure:"allow_interactive"`
	Scope            string `json:"scope" mapstructure:"scope"`
}

// MapsConfig holds Azure Maps settings
type MapsConfig struct {
	SubscriptionKey string        `json:"subscription_key" mapstructure:"subscription_key"`
	BaseURL         string        `json:"base_url" mapstructure:"base_url"`
	APIVersion      string        `json:"api_version" mapstructure:"api_version"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
}

// ServerConfig holds chat UI server configuration
type ServerConfig struct {
	Host               string        `json:"host" mapstructure:"host"`
	Port               int           `json:"port" mapstructure:"port"`
	MinRequestInterval time.Duration `json:"min_request_interval" mapstructure:"min_request_interval"`
	SessionTTL         time.Duration `json:"session_ttl" mapstructure:"session_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"` // empty: audit events go to the process log
}

// TracingConfig toggles the OpenTelemetry tracer provider
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
}

// Auth strategies
const (
	StrategyAuto            = "auto"
	StrategyClientSecret    = "client-secret"
	StrategyManagedIdentity = "managed-identity"
	StrategyInteractive     = "interactive"
)

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			APIVersion:   "v1",
			PollInterval: time.Second,
			MaxWait:      60 * time.Second,
			MaxAttempts:  3,
			BackoffBase:  2 * time.Second,
			BackoffMax:   10 * time.Second,
		},
		Auth: AuthConfig{
			Strategy:         StrategyAuto,
			AllowInteractive: false,
			Scope:            "https://ai.azure.com/.default",
		},
		Maps: MapsConfig{
			BaseURL:    "https://atlas.microsoft.com",
			APIVersion: "1.0",
			Timeout:    15 * time.Second,
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8501,
			MinRequestInterval: 2 * time.Second,
			SessionTTL:         2 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "zombinator",
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.Auth.ClientSecret != "" {
		masked.Auth.ClientSecret = "***"
	}
	if masked.Maps.SubscriptionKey != "" {
		masked.Maps.SubscriptionKey = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// HasClientSecret reports whether the full client-secret triple is present.
func (a AuthConfig) HasClientSecret() bool {
	return a.ClientID != "" && a.ClientSecret != "" && a.TenantID != ""
}

// partialClientSecret reports whether some, but not all, of the triple is set.
func (a AuthConfig) partialClientSecret() bool {
	n := 0
	for _, v := range []string{a.ClientID, a.ClientSecret, a.TenantID} {
		if v != "" {
			n++
		}
	}
	return n > 0 && n < 3
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Agent.Endpoint) == "" {
		return fmt.Errorf("agent endpoint is required (set agent.endpoint or AZURE_AI_FOUNDRY_ENDPOINT)")
	}
	if strings.TrimSpace(c.Agent.AgentID) == "" {
		return fmt.Errorf("agent id is required (set agent.agent_id or AZURE_AI_FOUNDRY_AGENT_ID)")
	}
	if c.Agent.PollInterval <= 0 {
		return fmt.Errorf("agent poll_interval must be positive, got %s", c.Agent.PollInterval)
	}
	if c.Agent.MaxWait < c.Agent.PollInterval {
		return fmt.Errorf("agent max_wait (%s) must be at least poll_interval (%s)", c.Agent.MaxWait, c.Agent.PollInterval)
	}
	if c.Agent.MaxAttempts < 1 {
		return fmt.Errorf("agent max_attempts must be at least 1, got %d", c.Agent.MaxAttempts)
	}

	if c.Auth.partialClientSecret() {
		return fmt.Errorf("auth client_id, client_secret and tenant_id must be set together")
	}
	switch c.Auth.Strategy {
	case "", StrategyAuto, StrategyManagedIdentity:
	case StrategyClientSecret:
		if !c.Auth.HasClientSecret() {
			return fmt.Errorf("auth strategy %s requires client_id, client_secret and tenant_id", StrategyClientSecret)
		}
	case StrategyInteractive:
		if !c.Auth.AllowInteractive {
			return fmt.Errorf("auth strategy %s requires allow_interactive", StrategyInteractive)
		}
	default:
		return fmt.Errorf("invalid auth strategy: %s", c.Auth.Strategy)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	return nil
}

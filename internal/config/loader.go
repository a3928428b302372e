package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// envBindings maps config keys onto the environment variable names the Azure
// tooling and the original deployment scripts already use.
var envBindings = map[string][]string{
	"agent.endpoint":        {"AZURE_AI_FOUNDRY_ENDPOINT"},
	"agent.agent_id":        {"AZURE_AI_FOUNDRY_AGENT_ID"},
	"auth.client_id":        {"AZURE_CLIENT_ID"},
	"auth.client_secret":    {"AZURE_CLIENT_SECRET"},
	"auth.tenant_id":        {"AZURE_TENANT_ID"},
	"maps.subscription_key": {"AZURE_MAPS_SUBSCRIPTION_KEY", "AZURE_MAPS_API_KEY"},
}

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file (if present) and overlays environment variables.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("ZOMBINATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range envBindings {
		// ZOMBINATOR_* keeps priority over the Azure names.
		names := append([]string{"ZOMBINATOR_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, envs...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	configPath := l.GetConfigPath()
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".zombinator", "zombinator.yaml")
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("agent.endpoint", cfg.Agent.Endpoint)
	v.SetDefault("agent.agent_id", cfg.Agent.AgentID)
	v.SetDefault("agent.api_version", cfg.Agent.APIVersion)
	v.SetDefault("agent.poll_interval", cfg.Agent.PollInterval)
	v.SetDefault("agent.max_wait", cfg.Agent.MaxWait)
	v.SetDefault("agent.max_attempts", cfg.Agent.MaxAttempts)
	v.SetDefault("agent.backoff_base", cfg.Agent.BackoffBase)
	v.SetDefault("agent.backoff_max", cfg.Agent.BackoffMax)

	v.SetDefault("auth.strategy", cfg.Auth.Strategy)
	v.SetDefault("auth.client_id", cfg.Auth.ClientID)
	v.SetDefault("auth.client_secret", cfg.Auth.ClientSecret)
	v.SetDefault("auth.tenant_id", cfg.Auth.TenantID)
	v.SetDefault("auth.allow_interactive", cfg.Auth.AllowInteractive)
	v.SetDefault("auth.scope", cfg.Auth.Scope)

	v.SetDefault("maps.subscription_key", cfg.Maps.SubscriptionKey)
	v.SetDefault("maps.base_url", cfg.Maps.BaseURL)
	v.SetDefault("maps.api_version", cfg.Maps.APIVersion)
	v.SetDefault("maps.timeout", cfg.Maps.Timeout)

	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.min_request_interval", cfg.Server.MinRequestInterval)
	v.SetDefault("server.session_ttl", cfg.Server.SessionTTL)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)
	v.SetDefault("logging.audit_file", cfg.Logging.AuditFile)

	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.service_name", cfg.Tracing.ServiceName)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Agent.Endpoint = "https://demo.services.ai.azure.com/api/projects/demo-project"
	cfg.Agent.AgentID = "asst_test"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "v1", cfg.Agent.APIVersion)
	assert.Equal(t, time.Second, cfg.Agent.PollInterval)
	assert.Equal(t, 60*time.Second, cfg.Agent.MaxWait)
	assert.Equal(t, 3, cfg.Agent.MaxAttempts)
	assert.Equal(t, StrategyAuto, cfg.Auth.Strategy)
	assert.False(t, cfg.Auth.AllowInteractive)
	assert.Equal(t, "https://atlas.microsoft.com", cfg.Maps.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Server.MinRequestInterval)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing endpoint", func(c *Config) { c.Agent.Endpoint = "" }, "endpoint is required"},
		{"missing agent id", func(c *Config) { c.Agent.AgentID = " " }, "agent id is required"},
		{"zero poll interval", func(c *Config) { c.Agent.PollInterval = 0 }, "poll_interval"},
		{"max wait below poll interval", func(c *Config) { c.Agent.MaxWait = time.Millisecond }, "max_wait"},
		{"zero attempts", func(c *Config) { c.Agent.MaxAttempts = 0 }, "max_attempts"},
		{"partial client secret", func(c *Config) { c.Auth.ClientID = "id" }, "must be set together"},
		{"client-secret without triple", func(c *Config) { c.Auth.Strategy = StrategyClientSecret }, "requires client_id"},
		{"interactive not allowed", func(c *Config) { c.Auth.Strategy = StrategyInteractive }, "allow_interactive"},
		{"unknown strategy", func(c *Config) { c.Auth.Strategy = "kerberos" }, "invalid auth strategy"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("full triple with client-secret strategy", func(t *testing.T) {
		cfg := validConfig()
		cfg.Auth.Strategy = StrategyClientSecret
		cfg.Auth.ClientID = "id"
		cfg.Auth.ClientSecret = "secret"
		cfg.Auth.TenantID = "tenant"
		assert.NoError(t, cfg.Validate())
		assert.True(t, cfg.Auth.HasClientSecret())
	})
}

func TestConfigStringMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.ClientSecret = "super-secret-value"
	cfg.Maps.SubscriptionKey = "maps-key-value"

	out := cfg.String()
	assert.NotContains(t, out, "super-secret-value")
	assert.NotContains(t, out, "maps-key-value")
	assert.Contains(t, out, "asst_test")

	// the receiver is not modified
	assert.Equal(t, "super-secret-value", cfg.Auth.ClientSecret)
}

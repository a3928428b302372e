package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/zombinator/internal/config"
	"github.com/harun/zombinator/internal/logger"
	"github.com/harun/zombinator/internal/observability"
	"github.com/harun/zombinator/internal/tracing"
	"github.com/harun/zombinator/pkg/agent"
	"github.com/harun/zombinator/pkg/credential"
	"github.com/harun/zombinator/pkg/maps"
	"github.com/harun/zombinator/pkg/toolexecutor"
	"github.com/spf13/cobra"
)

// app is the configuration and logging every command starts from.
type app struct {
	cfg *config.Config
	log *logger.Logger
}

// loadConfig reads --config and applies --log-level when it was given.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// setup loads configuration, installs the process logger and, when enabled,
// the tracer provider. The returned cleanup is always safe to call.
func setup(cmd *cobra.Command) (*app, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, func() {}, err
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to initialize logger: %w", err)
	}

	auditFile := false
	if cfg.Logging.AuditFile != "" {
		if err := observability.OpenAuditLog(cfg.Logging.AuditFile); err != nil {
			_ = lg.Close()
			return nil, func() {}, err
		}
		auditFile = true
	}

	tracingOn := false
	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName); err != nil {
			lg.Warn().Err(err).Msg("Tracing disabled")
		} else {
			tracingOn = true
		}
	}

	cleanup := func() {
		if tracingOn {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracing.ShutdownOpenTelemetry(ctx)
		}
		if auditFile {
			_ = observability.CloseAuditLog()
		}
		_ = lg.Close()
	}

	return &app{cfg: cfg, log: lg}, cleanup, nil
}

func credentialOptions(a config.AuthConfig) credential.Options {
	return credential.Options{
		Strategy:         a.Strategy,
		ClientID:         a.ClientID,
		ClientSecret:     a.ClientSecret,
		TenantID:         a.TenantID,
		AllowInteractive: a.AllowInteractive,
		Scope:            a.Scope,
	}
}

func (a *app) credential() (*credential.Credential, error) {
	resolver := credential.NewResolver(
		credentialOptions(a.cfg.Auth),
		credential.WithLogger(a.log.Component("credential")),
	)
	return resolver.Resolve()
}

// mapsClient returns nil without error when no subscription key is set; the
// agent then runs without the route tool.
func (a *app) mapsClient() (*maps.Client, error) {
	if a.cfg.Maps.SubscriptionKey == "" {
		return nil, nil
	}
	return maps.New(a.mapsConfig())
}

func (a *app) mapsConfig() maps.Config {
	cfg := maps.ConfigFromSettings(a.cfg.Maps)
	if a.log != nil {
		l := a.log.Component("maps")
		cfg.Logger = &l
	}
	return cfg
}

func (a *app) agentClient(tokens credential.TokenProvider, mapsClient *maps.Client) (*agent.Client, error) {
	backend, err := agent.NewOpenAIBackend(agent.BackendConfig{
		Endpoint:   a.cfg.Agent.Endpoint,
		APIVersion: a.cfg.Agent.APIVersion,
		Tokens:     tokens,
	})
	if err != nil {
		return nil, err
	}

	tools := toolexecutor.New(toolexecutor.WithLogger(a.log.Component("tools")))
	if mapsClient != nil {
		if err := mapsClient.RegisterTools(tools); err != nil {
			return nil, fmt.Errorf("failed to register maps tools: %w", err)
		}
	}

	opts := agent.OptionsFromConfig(a.cfg.Agent)
	opts.Tools = tools
	agentLog := a.log.Component("agent")
	opts.Logger = &agentLog

	return agent.NewClient(backend, opts)
}

// connect validates the agent settings and builds the client with its
// credential and tools.
func (a *app) connect() (*agent.Client, *maps.Client, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cred, err := a.credential()
	if err != nil {
		return nil, nil, err
	}

	mapsClient, err := a.mapsClient()
	if err != nil {
		return nil, nil, err
	}

	client, err := a.agentClient(cred, mapsClient)
	if err != nil {
		return nil, nil, err
	}
	return client, mapsClient, nil
}

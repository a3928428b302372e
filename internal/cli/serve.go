package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/zombinator/pkg/gateway"
	"github.com/harun/zombinator/pkg/session"
	"github.com/spf13/cobra"
)

var shutdownTimeout time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	Long: `Run the chat server in the foreground.
It serves the chat page, the JSON API and the WebSocket endpoint, and stops
gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "how long to wait for in-flight requests on shutdown")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, cleanup, err := setup(cmd)
	defer cleanup()
	if err != nil {
		return err
	}

	pidFile := getPIDFilePath()
	if isRunning(pidFile) {
		return fmt.Errorf("server is already running (PID file: %s)", pidFile)
	}

	client, mapsClient, err := a.connect()
	if err != nil {
		return err
	}

	store := session.NewStore(session.WithMinInterval(a.cfg.Server.MinRequestInterval))
	janitor := session.NewJanitor(store, a.cfg.Server.SessionTTL, 0)
	if err := janitor.Start(); err != nil {
		return err
	}
	defer func() { _ = janitor.Stop() }()

	gwCfg := gateway.Config{
		Host:            a.cfg.Server.Host,
		Port:            a.cfg.Server.Port,
		Store:           store,
		Agent:           client,
		ShutdownTimeout: shutdownTimeout,
		Logger:          a.log.Component("gateway"),
	}
	if mapsClient != nil {
		gwCfg.Maps = mapsClient
	}

	srv, err := gateway.NewServer(gwCfg)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	if err := writePID(pidFile); err != nil {
		a.log.Warn().Err(err).Str("pid_file", pidFile).Msg("Failed to write PID file")
	} else {
		defer os.Remove(pidFile)
	}

	a.log.Info().
		Str("addr", srv.Addr()).
		Bool("maps", mapsClient != nil).
		Str("agent_id", a.cfg.Agent.AgentID).
		Msg("Zombinator is ready")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout+5*time.Second)
	defer cancel()
	return srv.Stop(stopCtx)
}

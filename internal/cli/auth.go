package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var authTimeout time.Duration

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Inspect agent service authentication",
}

var authCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Resolve the credential and fetch one token",
	Long: `Resolve the configured credential strategy and request one access token.
The token itself is never printed.`,
	RunE: runAuthCheck,
}

func init() {
	authCheckCmd.Flags().DurationVar(&authTimeout, "timeout", 2*time.Minute, "how long to wait for a token (interactive sign-in included)")
	authCmd.AddCommand(authCheckCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthCheck(cmd *cobra.Command, args []string) error {
	a, cleanup, err := setup(cmd)
	defer cleanup()
	if err != nil {
		return err
	}

	cred, err := a.credential()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), authTimeout)
	defer cancel()

	start := time.Now()
	if _, err := cred.Token(ctx); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Authenticated using %s credential (%s)\n",
		cred.Strategy(), time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(cmd.OutOrStdout(), "Scope: %s\n", a.cfg.Auth.Scope)
	return nil
}

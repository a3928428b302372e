package cli

import (
	"fmt"

	"github.com/harun/zombinator/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and report every problem",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		problems := config.NewValidator().ValidateConfig(cfg)
		if err := cfg.Validate(); err != nil && len(problems) == 0 {
			problems = append(problems, err)
		}
		if len(problems) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (%s)\n", config.NewLoader(cfgFile).GetConfigPath())
			return nil
		}

		for _, p := range problems {
			fmt.Fprintf(cmd.OutOrStdout(), "- %v\n", p)
		}
		return fmt.Errorf("configuration has %d problem(s)", len(problems))
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

package cmd

import (
	"fmt"

	"github.com/ethpandaops/wpt-action/internal/config"
	"github.com/spf13/cobra"
)

var showConfigCmd = &cobra.Command{
	Use:   "show-config",
	Short: "Display current environment configuration",
	Long:  `Shows the configuration loaded from action inputs, environment variables and .env file.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		applyRunFlags(cmd, cfg)

		fmt.Fprintln(cmd.OutOrStdout(), cfg.String())

		return nil
	},
}

func init() {
	registerRunFlags(showConfigCmd)
	rootCmd.AddCommand(showConfigCmd)
}

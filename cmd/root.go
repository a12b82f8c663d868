// Package cmd implements the wpt-action command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/ethpandaops/wpt-action/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Logger is the shared logger instance for all commands
	Logger *logrus.Logger

	verbose bool

	rootCmd = &cobra.Command{
		Use:   "wpt-action",
		Short: "Run WebPageTest against a set of URLs and report the changes",
		Long: `wpt-action submits WebPageTest runs for a list of URLs, compares the results
with the baseline of a reference branch and publishes a report on the pull
request or commit that triggered the workflow.

Run without a subcommand to execute a run.`,
		SilenceUsage: true,
		RunE:         runRun,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	Logger = logrus.New()

	cobra.OnInitialize(InitLogger)

	// Consumed by main before cobra runs; declared so cobra accepts it.
	rootCmd.PersistentFlags().String("env", "", "Environment file to load")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	registerRunFlags(rootCmd)
}

// InitLogger sets the log level from LOG_LEVEL, or debug with --verbose.
func InitLogger() {
	if verbose {
		Logger.SetLevel(logrus.DebugLevel)

		return
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = config.DefaultLogLevel
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		Logger.Warnf("Invalid LOG_LEVEL '%s', defaulting to 'info'", logLevel)
		level = logrus.InfoLevel
	}

	Logger.SetLevel(level)
}

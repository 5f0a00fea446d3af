package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"devguard-hq/devguard/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "devguard",
	Short: "DevGuard - telemetry aggregation and budget-alert engine",
	Long: `DevGuard is a telemetry aggregation and budget-alert engine for
development infrastructure.

It provides:
  - Durable recording of API, database, and dependency-scan telemetry
  - Deterministic hourly and daily rollup aggregation
  - Budget evaluation with at-most-once threshold alerts
  - Rule-based insight generation over aggregated signals
  - Watermark-aware raw event retention`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

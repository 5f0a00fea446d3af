package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"devguard-hq/devguard/pkg/config"
)

var validateFlags struct {
	env bool
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without starting the engine.

Validation checks storage paths, cron schedules, histogram buckets, and
logging settings, and reports every problem found rather than stopping
at the first.

Examples:
  # Validate the default config file
  devguard validate

  # Validate a specific file
  devguard validate --config /etc/devguard/config.yaml

  # Include environment variable overrides
  devguard validate --env`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateFlags.env, "env", false, "apply DEVGUARD_* environment overrides before validating")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	load := config.LoadConfig
	if validateFlags.env {
		load = config.LoadConfigWithEnvOverrides
	}

	cfg, err := load(cfgFile)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Configuration valid: %s\n", cfgFile)
	if verbose {
		fmt.Printf("  events store:    %s\n", cfg.Storage.EventsPath)
		fmt.Printf("  budgets store:   %s\n", cfg.Storage.BudgetsPath)
		fmt.Printf("  insights store:  %s\n", cfg.Storage.InsightsPath)
		fmt.Printf("  rollup schedule: %s\n", cfg.Rollup.Schedule)
		fmt.Printf("  retention:       %d days (%s)\n", cfg.Retention.Days, cfg.Retention.Schedule)
		fmt.Printf("  budgets:         %s\n", cfg.Budgets.Schedule)
		fmt.Printf("  insights:        %s (%d day window)\n", cfg.Insights.Schedule, cfg.Insights.WindowDays)
	}
	return nil
}

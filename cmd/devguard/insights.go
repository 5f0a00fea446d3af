package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"devguard-hq/devguard/pkg/cli"
	"devguard-hq/devguard/pkg/config"
	"devguard-hq/devguard/pkg/insights"
	insightstorage "devguard-hq/devguard/pkg/insights/storage"
)

var insightFlags struct {
	project  string
	category string
	severity string
	state    string
	limit    int
	offset   int
	format   string
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "List and manage generated insights",
	Long: `List and manage insights generated from aggregated telemetry.

Subcommands:
  list     - List insights with filters
  ack      - Acknowledge an open insight
  resolve  - Resolve an open or acknowledged insight

Examples:
  # List open cost insights
  devguard insights list --category cost --state open

  # Acknowledge an insight
  devguard insights ack 9a2b...

  # Resolve an insight
  devguard insights resolve 9a2b...`,
}

var insightsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List insights",
	RunE:  listInsights,
}

var insightsAckCmd = &cobra.Command{
	Use:   "ack <insight-id>",
	Short: "Acknowledge an open insight",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionInsight(args[0], insights.StateAcknowledged)
	},
}

var insightsResolveCmd = &cobra.Command{
	Use:   "resolve <insight-id>",
	Short: "Resolve an insight",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionInsight(args[0], insights.StateResolved)
	},
}

func init() {
	rootCmd.AddCommand(insightsCmd)
	insightsCmd.AddCommand(insightsListCmd, insightsAckCmd, insightsResolveCmd)

	insightsListCmd.Flags().StringVar(&insightFlags.project, "project", "", "filter by project ID")
	insightsListCmd.Flags().StringVar(&insightFlags.category, "category", "", "filter by category (cost, performance, security)")
	insightsListCmd.Flags().StringVar(&insightFlags.severity, "severity", "", "filter by severity (info, warning, critical)")
	insightsListCmd.Flags().StringVar(&insightFlags.state, "state", "", "filter by state (open, acknowledged, resolved)")
	insightsListCmd.Flags().IntVar(&insightFlags.limit, "limit", 100, "max results")
	insightsListCmd.Flags().IntVar(&insightFlags.offset, "offset", 0, "pagination offset")
	insightsListCmd.Flags().StringVar(&insightFlags.format, "format", "text", "output format: text, json")
}

// openInsightGenerator loads config and builds a generator over the
// SQLite insight store. The rollup store is not needed for lifecycle
// and listing operations.
func openInsightGenerator() (*insights.Generator, insights.Store, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	store, err := insightstorage.NewSQLiteStore(cfg.Storage.InsightsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open insight store: %w", err)
	}
	return insights.NewGenerator(store, nil, nil, nil), store, nil
}

func listInsights(cmd *cobra.Command, args []string) error {
	generator, store, err := openInsightGenerator()
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := generator.List(context.Background(), &insights.Query{
		ProjectID: insightFlags.project,
		Category:  insights.Category(insightFlags.category),
		Severity:  insights.Severity(insightFlags.severity),
		State:     insights.State(insightFlags.state),
		Limit:     insightFlags.limit,
		Offset:    insightFlags.offset,
	})
	if err != nil {
		return cli.NewCommandError("insights list", err)
	}

	if len(list) == 0 {
		fmt.Println("No insights found.")
		return nil
	}

	switch insightFlags.format {
	case "json":
		return cli.WriteJSON(os.Stdout, list)
	case "text":
		table := cli.NewTable("ID", "CATEGORY", "SEVERITY", "STATE", "CREATED AT", "TITLE")
		for _, in := range list {
			table.AddRow(
				in.ID,
				string(in.Category),
				string(in.Severity),
				string(in.State),
				in.CreatedAt.Format(time.RFC3339),
				in.Title,
			)
		}
		if err := table.Render(os.Stdout); err != nil {
			return err
		}
		fmt.Printf("\nTotal: %d insights\n", len(list))
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", insightFlags.format)
	}
}

func transitionInsight(id string, to insights.State) error {
	generator, store, err := openInsightGenerator()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	var insight *insights.Insight
	switch to {
	case insights.StateAcknowledged:
		insight, err = generator.Acknowledge(ctx, id)
	case insights.StateResolved:
		insight, err = generator.Resolve(ctx, id)
	default:
		return fmt.Errorf("unsupported transition: %s", to)
	}
	if err != nil {
		return cli.NewCommandError("insights", err)
	}

	fmt.Printf("✓ Insight %s is now %s\n", insight.ID, insight.State)
	return nil
}

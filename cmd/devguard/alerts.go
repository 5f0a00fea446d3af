package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"devguard-hq/devguard/pkg/budgets"
	budgetstorage "devguard-hq/devguard/pkg/budgets/storage"
	"devguard-hq/devguard/pkg/cli"
	"devguard-hq/devguard/pkg/config"
)

var alertFlags struct {
	project  string
	budget   string
	severity string
	state    string
	limit    int
	offset   int
	format   string
	actor    string
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List and acknowledge budget alerts",
	Long: `List and acknowledge budget threshold alerts.

Subcommands:
  list  - List alerts with filters
  ack   - Acknowledge an open alert

Examples:
  # List open alerts for a project
  devguard alerts list --project proj-1 --state open

  # Acknowledge an alert
  devguard alerts ack 4f7c... --by ops@example.com`,
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List budget alerts",
	RunE:  listAlerts,
}

var alertsAckCmd = &cobra.Command{
	Use:   "ack <alert-id>",
	Short: "Acknowledge an open alert",
	Args:  cobra.ExactArgs(1),
	RunE:  ackAlert,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsListCmd, alertsAckCmd)

	alertsListCmd.Flags().StringVar(&alertFlags.project, "project", "", "filter by project ID")
	alertsListCmd.Flags().StringVar(&alertFlags.budget, "budget", "", "filter by budget ID")
	alertsListCmd.Flags().StringVar(&alertFlags.severity, "severity", "", "filter by severity (warning, critical)")
	alertsListCmd.Flags().StringVar(&alertFlags.state, "state", "", "filter by state (open, acknowledged)")
	alertsListCmd.Flags().IntVar(&alertFlags.limit, "limit", 100, "max results")
	alertsListCmd.Flags().IntVar(&alertFlags.offset, "offset", 0, "pagination offset")
	alertsListCmd.Flags().StringVar(&alertFlags.format, "format", "text", "output format: text, json")

	alertsAckCmd.Flags().StringVar(&alertFlags.actor, "by", "", "who is acknowledging the alert")
	alertsAckCmd.MarkFlagRequired("by")
}

// openBudgetStore loads config and opens the SQLite budget store.
func openBudgetStore() (budgets.Store, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	store, err := budgetstorage.NewSQLiteStore(cfg.Storage.BudgetsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open budget store: %w", err)
	}
	return store, nil
}

func listAlerts(cmd *cobra.Command, args []string) error {
	store, err := openBudgetStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	evaluator := budgets.NewEvaluator(store, nil)
	alerts, err := evaluator.ListAlerts(ctx, &budgets.AlertQuery{
		ProjectID: alertFlags.project,
		BudgetID:  alertFlags.budget,
		Severity:  alertFlags.severity,
		State:     budgets.AlertState(alertFlags.state),
		Limit:     alertFlags.limit,
		Offset:    alertFlags.offset,
	})
	if err != nil {
		return cli.NewCommandError("alerts list", err)
	}

	if len(alerts) == 0 {
		fmt.Println("No alerts found.")
		return nil
	}

	switch alertFlags.format {
	case "json":
		return cli.WriteJSON(os.Stdout, alerts)
	case "text":
		table := cli.NewTable("ID", "SEVERITY", "PCT", "STATE", "CONSUMED", "FIRED AT")
		for _, a := range alerts {
			table.AddRow(
				a.ID,
				a.Severity,
				fmt.Sprintf("%.1f%%", a.ThresholdPct),
				string(a.State),
				fmt.Sprintf("%.2f", a.ConsumedUSD),
				a.FiredAt.Format(time.RFC3339),
			)
		}
		if err := table.Render(os.Stdout); err != nil {
			return err
		}
		fmt.Printf("\nTotal: %d alerts\n", len(alerts))
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", alertFlags.format)
	}
}

func ackAlert(cmd *cobra.Command, args []string) error {
	store, err := openBudgetStore()
	if err != nil {
		return err
	}
	defer store.Close()

	evaluator := budgets.NewEvaluator(store, nil)
	alert, err := evaluator.AcknowledgeAlert(context.Background(), args[0], alertFlags.actor)
	if err != nil {
		return cli.NewCommandError("alerts ack", err)
	}

	fmt.Printf("✓ Alert %s acknowledged by %s\n", alert.ID, alertFlags.actor)
	return nil
}

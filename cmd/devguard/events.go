package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"devguard-hq/devguard/pkg/cli"
	"devguard-hq/devguard/pkg/config"
	"devguard-hq/devguard/pkg/metering"
	"devguard-hq/devguard/pkg/metering/export"
	"devguard-hq/devguard/pkg/metering/query"
	"devguard-hq/devguard/pkg/metering/storage"
)

var eventFlags struct {
	project   string
	stream    string
	dimension string
	timeRange string
	limit     int
	offset    int
	format    string
	output    string
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query and export recorded telemetry events",
	Long: `Query and export raw telemetry events from the event store.

Subcommands:
  query   - Query events with filters
  export  - Export events to JSON or CSV

Examples:
  # Query last recorded events for a project
  devguard events query --project proj-1

  # Filter by stream and time range
  devguard events query --stream db_query --time-range "2026-08-01T00:00:00Z/2026-08-02T00:00:00Z"

  # Export to CSV file
  devguard events export --format csv --output events.csv`,
}

var eventsQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query telemetry events",
	Long: `Query raw telemetry events with filters.

Time Range Format:
  RFC3339 interval format: "start/end"
  Example: "2026-08-01T00:00:00Z/2026-08-02T00:00:00Z"

Examples:
  # Query a project's API call events
  devguard events query --project proj-1 --stream api_call

  # Query a specific dimension
  devguard events query --stream db_query --dimension conn-primary

  # Page through results
  devguard events query --limit 50 --offset 100`,
	RunE: queryEvents,
}

var eventsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export telemetry events",
	Long: `Export raw telemetry events to JSON or CSV for archival or
offline analysis.

Examples:
  # Export everything in a range to JSON
  devguard events export --time-range "2026-08-01T00:00:00Z/2026-08-02T00:00:00Z" --output events.json

  # Export a project's events to CSV
  devguard events export --project proj-1 --format csv --output events.csv`,
	RunE: exportEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsQueryCmd, eventsExportCmd)

	for _, cmd := range []*cobra.Command{eventsQueryCmd, eventsExportCmd} {
		cmd.Flags().StringVar(&eventFlags.project, "project", "", "filter by project ID")
		cmd.Flags().StringVar(&eventFlags.stream, "stream", "", "filter by stream (api_call, db_query, dep_scan)")
		cmd.Flags().StringVar(&eventFlags.dimension, "dimension", "", "filter by dimension")
		cmd.Flags().StringVar(&eventFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
		cmd.Flags().IntVar(&eventFlags.limit, "limit", 0, "max results (default from query limits)")
		cmd.Flags().IntVar(&eventFlags.offset, "offset", 0, "pagination offset")
		cmd.Flags().StringVarP(&eventFlags.output, "output", "o", "", "output file (default: stdout)")
	}
	eventsQueryCmd.Flags().StringVar(&eventFlags.format, "format", "text", "output format: text, json")
	eventsExportCmd.Flags().StringVar(&eventFlags.format, "format", "json", "export format: json, csv")
}

// openEventStore loads config and opens the SQLite event store.
func openEventStore() (*storage.SQLiteStore, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	store, err := storage.NewSQLiteStore(&storage.SQLiteConfig{
		Path:         cfg.Storage.EventsPath,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
		BusyTimeout:  cfg.Storage.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}
	return store, nil
}

// buildEventQuery assembles and validates the query from flags.
func buildEventQuery() (*metering.EventQuery, error) {
	q := &metering.EventQuery{
		ProjectID: eventFlags.project,
		Stream:    metering.Stream(eventFlags.stream),
		Dimension: eventFlags.dimension,
		Limit:     eventFlags.limit,
		Offset:    eventFlags.offset,
	}

	if eventFlags.timeRange != "" {
		parts := strings.Split(eventFlags.timeRange, "/")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid time range format (expected: start/end)")
		}
		start, err := time.Parse(time.RFC3339, parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid start time: %w", err)
		}
		end, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid end time: %w", err)
		}
		q.Start = &start
		q.End = &end
	}

	query.ApplyDefaults(q)
	if err := query.Validate(q); err != nil {
		return nil, err
	}
	return q, nil
}

// outputWriter returns the destination for command output.
func outputWriter() (*os.File, func(), error) {
	if eventFlags.output == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(eventFlags.output)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func queryEvents(cmd *cobra.Command, args []string) error {
	store, err := openEventStore()
	if err != nil {
		return err
	}
	defer store.Close()

	q, err := buildEventQuery()
	if err != nil {
		return err
	}

	ctx := context.Background()
	events, err := store.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("events query", err)
	}

	if len(events) == 0 {
		fmt.Println("No events found.")
		return nil
	}

	w, closeFn, err := outputWriter()
	if err != nil {
		return err
	}
	defer closeFn()

	switch eventFlags.format {
	case "json":
		exporter := export.NewJSONExporter(true)
		if err := exporter.Export(ctx, events, w); err != nil {
			return cli.NewCommandError("events query", err)
		}
	case "text":
		table := cli.NewTable("ID", "STREAM", "DIMENSION", "TIMESTAMP", "COST USD", "LATENCY MS")
		for _, e := range events {
			table.AddRow(
				e.ID,
				string(e.Stream),
				e.Dimension,
				e.Timestamp.Format(time.RFC3339),
				fmt.Sprintf("%.4f", e.Measures.CostUSD),
				fmt.Sprintf("%.1f", e.Measures.LatencyMS),
			)
		}
		if err := table.Render(w); err != nil {
			return cli.NewCommandError("events query", err)
		}
		fmt.Fprintf(w, "\nTotal: %d events\n", len(events))
	default:
		return fmt.Errorf("unsupported format: %s", eventFlags.format)
	}

	return nil
}

func exportEvents(cmd *cobra.Command, args []string) error {
	store, err := openEventStore()
	if err != nil {
		return err
	}
	defer store.Close()

	q, err := buildEventQuery()
	if err != nil {
		return err
	}

	ctx := context.Background()
	events, err := store.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("events export", err)
	}

	w, closeFn, err := outputWriter()
	if err != nil {
		return err
	}
	defer closeFn()

	switch eventFlags.format {
	case "json":
		exporter := export.NewJSONExporter(true)
		err = exporter.Export(ctx, events, w)
	case "csv":
		exporter := export.NewCSVExporter(true)
		err = exporter.Export(ctx, events, w)
	default:
		return fmt.Errorf("unsupported format: %s", eventFlags.format)
	}
	if err != nil {
		return cli.NewCommandError("events export", err)
	}

	if eventFlags.output != "" {
		fmt.Printf("✓ Exported %d events to %s\n", len(events), eventFlags.output)
	}
	return nil
}

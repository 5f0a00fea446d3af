package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"devguard-hq/devguard/pkg/budgets"
	budgetstorage "devguard-hq/devguard/pkg/budgets/storage"
	"devguard-hq/devguard/pkg/cli"
	"devguard-hq/devguard/pkg/config"
	"devguard-hq/devguard/pkg/insights"
	insightstorage "devguard-hq/devguard/pkg/insights/storage"
	"devguard-hq/devguard/pkg/metering/recorder"
	"devguard-hq/devguard/pkg/metering/retention"
	"devguard-hq/devguard/pkg/metering/rollup"
	"devguard-hq/devguard/pkg/metering/storage"
	"devguard-hq/devguard/pkg/telemetry/health"
	"devguard-hq/devguard/pkg/telemetry/logging"
	"devguard-hq/devguard/pkg/telemetry/metrics"
	"devguard-hq/devguard/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	watch         bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the DevGuard engine",
	Long: `Start the DevGuard engine with the specified configuration.

The engine records telemetry events, runs the aggregation, budget
evaluation, insight generation, and retention schedulers, and serves
Prometheus metrics and health checks on the operational listener.

Examples:
  # Start with default config
  devguard run

  # Start with custom config
  devguard run --config /etc/devguard/config.yaml

  # Override operational listen address
  devguard run --listen 0.0.0.0:9090

  # Validate config without starting
  devguard run --dry-run`,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override operational listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the engine")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", false, "reload configuration on file change")
}

func runEngine(cmd *cobra.Command, args []string) error {
	// Load configuration
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	// Initialize logging
	logger, err := logging.New(logging.Config{
		Level:          cfg.Telemetry.Logging.Level,
		Format:         cfg.Telemetry.Logging.Format,
		AddSource:      cfg.Telemetry.Logging.AddSource,
		RedactSecrets:  cfg.Telemetry.Logging.RedactSecrets,
		RedactPatterns: cfg.Telemetry.Logging.RedactPatterns,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	logger.Install()

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("DevGuard v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	// Tracing
	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewConfigError("telemetry.tracing", err.Error())
	}
	defer tracer.Shutdown(context.Background())
	if tracer.Enabled() {
		fmt.Printf("✓ Tracing enabled (exporting to %s)\n", cfg.Telemetry.Tracing.Endpoint)
	}

	// Metrics collector
	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	// Event and rollup store
	slog.Info("opening event store", "path", cfg.Storage.EventsPath)
	eventStore, err := storage.NewSQLiteStore(&storage.SQLiteConfig{
		Path:         cfg.Storage.EventsPath,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
		BusyTimeout:  cfg.Storage.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer eventStore.Close()

	// Budget store
	budgetStore, err := budgetstorage.NewSQLiteStore(cfg.Storage.BudgetsPath)
	if err != nil {
		return fmt.Errorf("failed to open budget store: %w", err)
	}
	defer budgetStore.Close()

	// Insight store
	insightStore, err := insightstorage.NewSQLiteStore(cfg.Storage.InsightsPath)
	if err != nil {
		return fmt.Errorf("failed to open insight store: %w", err)
	}
	defer insightStore.Close()

	fmt.Println("✓ Storage initialized")

	// Event recorder
	eventRecorder := recorder.New(eventStore, &recorder.Config{
		AsyncBuffer:  cfg.Recorder.AsyncBuffer,
		WriteTimeout: cfg.Recorder.WriteTimeout,
	})
	eventRecorder.SetMetrics(collector)
	defer eventRecorder.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Aggregation scheduler
	aggregator := rollup.NewAggregator(eventStore, eventStore)
	rollupScheduler := rollup.NewScheduler(aggregator, eventStore, &rollup.SchedulerConfig{
		Schedule: cfg.Rollup.Schedule,
		Lookback: cfg.Rollup.Lookback,
	})
	rollupScheduler.SetMetrics(collector)
	if err := rollupScheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start aggregation scheduler: %w", err)
	}
	defer rollupScheduler.Stop()

	// Retention pruner
	pruner := retention.NewPruner(eventStore, eventStore, &retention.Config{
		RetentionDays:       cfg.Retention.Days,
		PruneSchedule:       cfg.Retention.Schedule,
		ArchiveBeforeDelete: cfg.Retention.ArchiveBeforeDelete,
		ArchivePath:         cfg.Retention.ArchivePath,
	})
	pruner.SetMetrics(collector)
	if cfg.Retention.Days > 0 && cfg.Retention.Schedule != "" {
		if err := pruner.Start(ctx); err != nil {
			return fmt.Errorf("failed to start retention scheduler: %w", err)
		}
		defer pruner.Stop()
		if next := pruner.NextPruning(); next != nil {
			slog.Debug("retention scheduler started", "next_pruning", next)
		}
	}

	// Budget evaluation scheduler
	evaluator := budgets.NewEvaluator(budgetStore, eventStore, budgets.NewLogNotifier())
	evaluator.SetMetrics(collector)
	budgetScheduler := budgets.NewScheduler(evaluator, cfg.Budgets.Schedule)
	if err := budgetScheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start budget scheduler: %w", err)
	}
	defer budgetScheduler.Stop()

	// Insight generation scheduler
	generator := insights.NewGenerator(insightStore, eventStore, insights.DefaultRules(), &insights.GeneratorConfig{
		Window: time.Duration(cfg.Insights.WindowDays) * 24 * time.Hour,
	})
	generator.SetMetrics(collector)
	insightScheduler := insights.NewScheduler(generator, cfg.Insights.Schedule)
	if err := insightScheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start insight scheduler: %w", err)
	}
	defer insightScheduler.Stop()

	fmt.Println("✓ Schedulers started")

	// Configuration hot reload
	if runFlags.watch {
		watcher, err := config.NewWatcher(cfgFile, nil)
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		go func() {
			if err := watcher.Watch(ctx, config.SetConfig); err != nil {
				slog.Error("config watcher stopped", "error", err)
			}
		}()
		defer watcher.Stop()
	}

	// Operational HTTP listener: metrics, health, readiness, version
	checker := health.New(0)
	checker.Register("event_store", health.StoreCheck(eventStore))
	checker.Register("budget_store", health.StoreCheck(budgetStore))
	checker.Register("insight_store", health.StoreCheck(insightStore))
	checker.Register("rollup_scheduler", health.SchedulerCheck(rollupScheduler))
	checker.Register("budget_scheduler", health.SchedulerCheck(budgetScheduler))
	checker.Register("insight_scheduler", health.SchedulerCheck(insightScheduler))
	if cfg.Retention.Days > 0 && cfg.Retention.Schedule != "" {
		checker.Register("retention_scheduler", health.SchedulerCheck(pruner))
	}

	mux := http.NewServeMux()
	if cfg.Telemetry.Metrics.Enabled {
		mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
	}
	health.Register(mux, checker, Version, GitCommit, BuildDate)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting operational listener", "address", cfg.Server.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	fmt.Println()
	fmt.Printf("✓ Listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoints: http://%s/health http://%s/ready\n", cfg.Server.ListenAddress, cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for shutdown signal or server error
	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
			return cli.NewCommandError("run", err)
		}

		fmt.Println("✓ Engine stopped")
		return nil
	}
}

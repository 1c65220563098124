package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"halcyon-hq/spendwatch/pkg/alerts"
	"halcyon-hq/spendwatch/pkg/caps"
	"halcyon-hq/spendwatch/pkg/config"
	"halcyon-hq/spendwatch/pkg/ingest"
	"halcyon-hq/spendwatch/pkg/rollup"
	"halcyon-hq/spendwatch/pkg/server"
	"halcyon-hq/spendwatch/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the spend monitor",
	Long: `Start the spend monitor with the specified configuration.

The monitor schedules periodic ingestion cycles against the enabled
providers and serves the HTTP API on the configured address.

Examples:
  # Start with default config
  spendwatch run

  # Start with custom config
  spendwatch run --config /etc/spendwatch/config.yaml

  # Override listen address
  spendwatch run --listen 0.0.0.0:8080

  # Validate config without starting
  spendwatch run --dry-run`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}

	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Spendwatch v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	store := config.NewStore(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Config hot reload. Failure to watch is not fatal: the monitor runs
	// with the startup configuration.
	watcher, err := config.NewWatcher(cfgFile, store)
	if err != nil {
		logger.Warn("config hot reload disabled", "error", err)
	} else {
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config hot reload disabled", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	// Metrics are opt-in.
	var m *metrics.Metrics
	var promHandler http.Handler
	if cfg.Telemetry.MetricsEnabled {
		registry := prometheus.NewRegistry()
		m = metrics.New(registry)
		promHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		})
	}

	backend, raw, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()
	defer raw.Close()
	fmt.Println("✓ Storage initialized")

	dispatcher := alerts.NewDispatcher(alerts.DispatcherConfig{
		DebounceWindow: cfg.Alerts.DebounceWindow,
		Logger:         logger,
		Metrics:        m,
	})

	actor, err := rollup.New(rollup.Config{
		Backend:       backend,
		Dispatcher:    dispatcher,
		RetentionDays: cfg.Storage.RetentionDays,
		Logger:        logger,
		Metrics:       m,
	})
	if err != nil {
		return fmt.Errorf("failed to start rollup engine: %w", err)
	}
	defer actor.Close()
	fmt.Println("✓ Rollup engine restored")

	fetchers := buildFetchers(cfg, raw)
	if len(fetchers) == 0 {
		logger.Warn("no providers enabled")
	}
	fmt.Printf("✓ Providers initialized (%d enabled)\n", len(fetchers))

	runner, err := ingest.NewRunner(ingest.RunnerConfig{
		Fetchers:      fetchers,
		Actor:         actor,
		Raw:           raw,
		Backend:       backend,
		Caps:          func() caps.Config { return store.Get().Caps },
		Channels:      func() alerts.Channels { return store.Get().Alerts.Channels() },
		LookbackHours: cfg.Ingest.LookbackHours,
		RawTTLDays:    cfg.Storage.RawTTLDays,
		Logger:        logger,
		Metrics:       m,
	})
	if err != nil {
		return fmt.Errorf("failed to create ingestion runner: %w", err)
	}

	scheduler := ingest.NewScheduler(runner, cfg.Ingest.Schedule)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start ingestion scheduler: %w", err)
	}
	defer scheduler.Stop()
	if cfg.Ingest.Schedule != "" {
		fmt.Printf("✓ Ingestion scheduled (%s)\n", cfg.Ingest.Schedule)
	}

	srv, err := server.NewServer(server.Options{
		Config:     store,
		Actor:      actor,
		Raw:        raw,
		Backend:    backend,
		Dispatcher: dispatcher,
		Metrics:    promHandler,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Printf("✓ Listening on %s\n", cfg.Server.ListenAddress)
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.Start(ctx)
}

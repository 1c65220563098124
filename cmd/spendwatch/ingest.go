package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"halcyon-hq/spendwatch/pkg/alerts"
	"halcyon-hq/spendwatch/pkg/caps"
	"halcyon-hq/spendwatch/pkg/ingest"
	"halcyon-hq/spendwatch/pkg/rollup"
)

var ingestFlags struct {
	timeout time.Duration
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run a single ingestion cycle and exit",
	Long: `Run one ingestion cycle against the enabled providers and exit.

The cycle fetches the configured lookback window, merges the result into
the persisted rollup state, evaluates caps, and dispatches any due alerts.
This is the same cycle the scheduler runs periodically; use it for a
cron-external trigger or to backfill after a configuration change.

Examples:
  # Run one cycle with the default config
  spendwatch ingest

  # Run one cycle with a longer timeout
  spendwatch ingest --timeout 5m`,
	RunE: runIngestOnce,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().DurationVar(&ingestFlags.timeout, "timeout", 2*time.Minute, "cycle timeout")
}

func runIngestOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	backend, raw, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()
	defer raw.Close()

	dispatcher := alerts.NewDispatcher(alerts.DispatcherConfig{
		DebounceWindow: cfg.Alerts.DebounceWindow,
		Logger:         logger,
	})

	actor, err := rollup.New(rollup.Config{
		Backend:       backend,
		Dispatcher:    dispatcher,
		RetentionDays: cfg.Storage.RetentionDays,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to start rollup engine: %w", err)
	}
	defer actor.Close()

	fetchers := buildFetchers(cfg, raw)
	runner, err := ingest.NewRunner(ingest.RunnerConfig{
		Fetchers:      fetchers,
		Actor:         actor,
		Raw:           raw,
		Backend:       backend,
		Caps:          func() caps.Config { return cfg.Caps },
		Channels:      func() alerts.Channels { return cfg.Alerts.Channels() },
		LookbackHours: cfg.Ingest.LookbackHours,
		RawTTLDays:    cfg.Storage.RawTTLDays,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create ingestion runner: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestFlags.timeout)
	defer cancel()

	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("ingestion cycle failed: %w", err)
	}

	state, err := actor.Snapshot(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Ingestion cycle complete (%d records", len(state.Records))
	if state.LastError != "" {
		fmt.Printf(", partial: %s", state.LastError)
	}
	fmt.Println(")")
	return nil
}

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"halcyon-hq/spendwatch/pkg/alerts"
	"halcyon-hq/spendwatch/pkg/caps"
	"halcyon-hq/spendwatch/pkg/providers"
	"halcyon-hq/spendwatch/pkg/rawstore"
	"halcyon-hq/spendwatch/pkg/rollup"
	"halcyon-hq/spendwatch/pkg/rollup/storage"
	"halcyon-hq/spendwatch/pkg/spend"
	"halcyon-hq/spendwatch/pkg/telemetry/metrics"
)

// DefaultLookbackHours is the default fetch window width. Two days covers
// provider-side reporting lag across a day boundary.
const DefaultLookbackHours = 48

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Fetchers are the enabled providers. A run with no fetchers still
	// drives an engine update so cap state stays current.
	Fetchers []providers.Fetcher

	// Actor receives the merged batch. Required.
	Actor *rollup.Actor

	// Raw archives verbatim provider pages. Required.
	Raw rawstore.Store

	// Backend persists snapshot rows and run history. Required.
	Backend storage.Backend

	// Caps supplies the current thresholds; it is a function so that a
	// reloaded configuration takes effect without restarting.
	Caps func() caps.Config

	// Channels supplies the current alert channels.
	Channels func() alerts.Channels

	// LookbackHours is the fetch window width. Default: 48.
	LookbackHours int

	// RawTTLDays bounds raw page retention. Default: rawstore.DefaultTTLDays.
	RawTTLDays int

	// Logger overrides the default slog logger.
	Logger *slog.Logger

	// Metrics receives ingest counters. May be nil.
	Metrics *metrics.Metrics

	// Now overrides the clock, used in tests.
	Now func() time.Time
}

// Runner executes one ingestion cycle: fetch every enabled provider
// concurrently, archive raw pages, persist snapshot rows, feed the batch to
// the rollup actor, prune expired raw pages, and record the run.
//
// Provider failures are soft: the records of the providers that succeeded
// are still ingested, and the joined failure text is carried into the
// engine state as the last ingestion error.
type Runner struct {
	cfg     RunnerConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewRunner creates a Runner, applying defaults for unset fields.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Actor == nil || cfg.Raw == nil || cfg.Backend == nil {
		return nil, fmt.Errorf("actor, raw store, and backend are required")
	}
	if cfg.Caps == nil {
		cfg.Caps = func() caps.Config { return caps.Config{} }
	}
	if cfg.Channels == nil {
		cfg.Channels = func() alerts.Channels { return alerts.Channels{} }
	}
	if cfg.LookbackHours <= 0 {
		cfg.LookbackHours = DefaultLookbackHours
	}
	if cfg.RawTTLDays <= 0 {
		cfg.RawTTLDays = rawstore.DefaultTTLDays
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		cfg:     cfg,
		logger:  logger.With("component", "ingest.runner"),
		metrics: cfg.Metrics,
		now:     now,
	}, nil
}

type fetchOutcome struct {
	provider spend.Provider
	result   *providers.Result
	err      error
	duration time.Duration
}

// Run executes one ingestion cycle. It returns an error only when the
// engine update or run bookkeeping fails; provider failures are reported
// through the run record and the engine's last error field.
func (r *Runner) Run(ctx context.Context) error {
	startedAt := r.now().UTC()
	opts := providers.FetchOptions{
		From: spend.FormatDay(startedAt.Add(-time.Duration(r.cfg.LookbackHours) * time.Hour)),
		To:   spend.FormatDay(startedAt),
	}

	r.logger.Info("ingest cycle started",
		"from", opts.From,
		"to", opts.To,
		"fetchers", len(r.cfg.Fetchers),
	)

	outcomes := r.fetchAll(ctx, opts)

	var records []spend.Record
	var failures []string
	for _, outcome := range outcomes {
		if outcome.err != nil {
			r.logger.Error("provider fetch failed",
				"provider", outcome.provider,
				"duration", outcome.duration,
				"error", outcome.err,
			)
			failures = append(failures, fmt.Sprintf("%s: %v", outcome.provider, outcome.err))
			continue
		}
		r.logger.Info("provider fetch completed",
			"provider", outcome.provider,
			"duration", outcome.duration,
			"rows", len(outcome.result.Records),
		)
		r.metrics.RecordProviderRows(string(outcome.provider), len(outcome.result.Records))
		records = append(records, outcome.result.Records...)

		for _, page := range outcome.result.RawPages {
			if err := r.cfg.Raw.Put(ctx, page); err != nil {
				r.logger.Error("failed to archive raw page",
					"provider", outcome.provider,
					"page_id", page.ID,
					"error", err,
				)
			}
		}
	}

	if len(records) > 0 {
		stored, err := r.cfg.Backend.RecordSnapshots(ctx, records, startedAt)
		if err != nil {
			r.logger.Error("failed to persist snapshot rows", "error", err)
			failures = append(failures, fmt.Sprintf("snapshots: %v", err))
		} else {
			r.logger.Info("snapshot rows persisted", "rows", stored)
		}
	}

	lastError := strings.Join(failures, "; ")
	_, updateErr := r.cfg.Actor.Update(ctx, rollup.UpdateRequest{
		Records:   records,
		Caps:      r.cfg.Caps(),
		Now:       startedAt,
		LastError: &lastError,
		Channels:  channelsPtr(r.cfg.Channels()),
	})

	if _, err := r.cfg.Raw.Prune(ctx, startedAt, r.cfg.RawTTLDays); err != nil {
		r.logger.Error("failed to prune raw pages", "error", err)
	}

	status := storage.RunStatusSuccess
	runError := lastError
	if updateErr != nil {
		status = storage.RunStatusError
		runError = strings.Join(append(failures, fmt.Sprintf("rollup: %v", updateErr)), "; ")
	} else if len(failures) > 0 {
		status = storage.RunStatusError
	}

	completedAt := r.now().UTC()
	run := &storage.IngestRun{
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		Status:       status,
		RowsIngested: len(records),
		Error:        runError,
	}
	if err := r.cfg.Backend.RecordRun(ctx, run); err != nil {
		r.logger.Error("failed to record ingest run", "error", err)
	}
	r.metrics.RecordIngestRun(string(status), completedAt.Sub(startedAt))

	r.logger.Info("ingest cycle completed",
		"status", status,
		"rows", len(records),
		"failures", len(failures),
		"duration", completedAt.Sub(startedAt),
	)

	if updateErr != nil {
		return fmt.Errorf("rollup update failed: %w", updateErr)
	}
	return nil
}

// fetchAll runs every fetcher concurrently and returns outcomes in fetcher
// declaration order, keeping the merged batch deterministic.
func (r *Runner) fetchAll(ctx context.Context, opts providers.FetchOptions) []fetchOutcome {
	outcomes := make([]fetchOutcome, len(r.cfg.Fetchers))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for i, fetcher := range r.cfg.Fetchers {
		i, fetcher := i, fetcher
		g.Go(func() error {
			start := time.Now()
			result, err := fetcher.Fetch(gctx, opts)
			mu.Lock()
			outcomes[i] = fetchOutcome{
				provider: fetcher.Name(),
				result:   result,
				err:      err,
				duration: time.Since(start),
			}
			mu.Unlock()
			// Failures are collected, not propagated, so one provider
			// cannot cancel the others.
			return nil
		})
	}
	g.Wait()
	return outcomes
}

func channelsPtr(ch alerts.Channels) *alerts.Channels {
	return &ch
}

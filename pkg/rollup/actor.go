package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"halcyon-hq/spendwatch/pkg/alerts"
	"halcyon-hq/spendwatch/pkg/caps"
	"halcyon-hq/spendwatch/pkg/rollup/storage"
	"halcyon-hq/spendwatch/pkg/spend"
	"halcyon-hq/spendwatch/pkg/telemetry/metrics"
)

// DefaultInstance is the instance name used when an actor serves a single
// deployment-wide tenant.
const DefaultInstance = "global"

// Actor is the single serialized owner of all mutable spend state for one
// logical instance. It sequences merge, evaluate, dispatch, and persist for
// every update, guaranteeing at most one in-flight update at a time.
//
// Requests are serviced by one goroutine in arrival order, so an update
// always observes and extends the most recently persisted update, never a
// stale or in-progress one.
type Actor struct {
	instance      string
	backend       storage.Backend
	dispatcher    *alerts.Dispatcher
	retentionDays int
	logger        *slog.Logger
	metrics       *metrics.Metrics

	requests chan request

	// state is touched only by the actor goroutine.
	state *storage.State

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// Config configures an Actor.
type Config struct {
	// Instance names the logical tenant. Default: "global".
	Instance string

	// Backend is the persistence backend. Required.
	Backend storage.Backend

	// Dispatcher sends cap alerts. Required when updates carry channels.
	Dispatcher *alerts.Dispatcher

	// RetentionDays bounds how long merged records are kept.
	// Default: spend.DefaultRetentionDays.
	RetentionDays int

	// QueueSize is the request queue capacity. Default: 16.
	QueueSize int

	// Logger overrides the default slog logger.
	Logger *slog.Logger

	// Metrics receives engine counters. May be nil.
	Metrics *metrics.Metrics
}

// UpdateRequest is one batch of incoming records plus the cap and channel
// configuration to evaluate against.
type UpdateRequest struct {
	// Records is the incoming batch of normalized spend records.
	Records []spend.Record

	// Caps holds the thresholds to evaluate after merging.
	Caps caps.Config

	// Now is the caller-supplied wall-clock timestamp for this update.
	// The engine never reads the system clock, which keeps updates
	// deterministic for tests and replay.
	Now time.Time

	// Replace discards the existing record set before merging, used for
	// full reconciliation from source-of-truth storage.
	Replace bool

	// LastError, when non-nil, overwrites the persisted last ingestion
	// error. Point at an empty string to clear it; leave nil to keep the
	// previous value.
	LastError *string

	// Channels, when non-nil, enables alert dispatch for this update.
	Channels *alerts.Channels
}

// UpdateResult is the acknowledgment returned by Update: the persisted state
// snapshot and the per-channel delivery outcomes of this cycle's dispatch.
type UpdateResult struct {
	State    *storage.State
	Delivery []alerts.Result
}

type queryRequest struct {
	from    string
	to      string
	groupBy spend.GroupBy
}

type response struct {
	update  *UpdateResult
	state   *storage.State
	buckets []spend.Bucket
	err     error
}

type request struct {
	ctx    context.Context
	update *UpdateRequest
	query  *queryRequest
	// nil update and query means a plain snapshot request.
	reply chan response
}

// New creates an Actor, restoring its state from the backend, and starts the
// serving goroutine.
func New(cfg Config) (*Actor, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Instance == "" {
		cfg.Instance = DefaultInstance
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = spend.DefaultRetentionDays
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	state, err := cfg.Backend.LoadState(context.Background(), cfg.Instance)
	if err != nil {
		return nil, fmt.Errorf("failed to restore state: %w", err)
	}
	if state == nil {
		state = storage.NewState()
	}

	a := &Actor{
		instance:      cfg.Instance,
		backend:       cfg.Backend,
		dispatcher:    cfg.Dispatcher,
		retentionDays: cfg.RetentionDays,
		logger:        logger.With("component", "rollup.actor", "instance", cfg.Instance),
		metrics:       cfg.Metrics,
		requests:      make(chan request, cfg.QueueSize),
		state:         state,
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go a.serve()
	return a, nil
}

// Update submits a batch for merging, evaluates caps, dispatches alerts if
// channels are configured, and persists the resulting state before
// returning. Updates are strictly serialized: no two interleave, and each
// observes the previous one's persisted result.
func (a *Actor) Update(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	resp, err := a.submit(ctx, request{ctx: ctx, update: &req})
	if err != nil {
		return nil, err
	}
	return resp.update, nil
}

// Snapshot returns a copy of the current persisted state.
func (a *Actor) Snapshot(ctx context.Context) (*storage.State, error) {
	resp, err := a.submit(ctx, request{ctx: ctx})
	if err != nil {
		return nil, err
	}
	return resp.state, nil
}

// Query returns an aggregated view over the record set, filtered to the
// inclusive [from, to] day range (either bound may be empty) and grouped by
// groupBy. Queries never mutate state.
func (a *Actor) Query(ctx context.Context, from, to string, groupBy spend.GroupBy) ([]spend.Bucket, error) {
	resp, err := a.submit(ctx, request{ctx: ctx, query: &queryRequest{from: from, to: to, groupBy: groupBy}})
	if err != nil {
		return nil, err
	}
	return resp.buckets, nil
}

// Close stops the actor. Pending requests are drained; subsequent requests
// fail.
func (a *Actor) Close() error {
	a.closeOnce.Do(func() {
		close(a.done)
		<-a.stopped
	})
	return nil
}

func (a *Actor) submit(ctx context.Context, req request) (response, error) {
	req.reply = make(chan response, 1)

	select {
	case a.requests <- req:
	case <-a.done:
		return response{}, fmt.Errorf("rollup actor is closed")
	case <-ctx.Done():
		return response{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp, resp.err
	case <-ctx.Done():
		// The request stays queued and will still be applied; only the
		// caller stops waiting.
		return response{}, ctx.Err()
	case <-a.stopped:
		// The goroutine drains the queue before exiting, so any reply it
		// produced is already buffered.
		select {
		case resp := <-req.reply:
			return resp, resp.err
		default:
			return response{}, fmt.Errorf("rollup actor is closed")
		}
	}
}

// serve is the actor goroutine: it services requests strictly one at a time
// in arrival order until Close.
func (a *Actor) serve() {
	defer close(a.stopped)
	for {
		select {
		case req := <-a.requests:
			req.reply <- a.handle(req)
		case <-a.done:
			// Drain whatever was queued before the close.
			for {
				select {
				case req := <-a.requests:
					req.reply <- a.handle(req)
				default:
					return
				}
			}
		}
	}
}

func (a *Actor) handle(req request) response {
	switch {
	case req.update != nil:
		result, err := a.applyUpdate(req.ctx, req.update)
		return response{update: result, err: err}
	case req.query != nil:
		filtered := spend.FilterByRange(a.state.Records, req.query.from, req.query.to)
		return response{buckets: spend.Aggregate(filtered, req.query.groupBy)}
	default:
		return response{state: a.state.Clone()}
	}
}

// applyUpdate runs merge, evaluate, dispatch, persist against a clone of the
// current state. The clone becomes current only after the persistence write
// succeeds, so a failed write leaves the actor observably unchanged.
func (a *Actor) applyUpdate(ctx context.Context, req *UpdateRequest) (*UpdateResult, error) {
	next := a.state.Clone()

	if next.LastRun != nil && req.Now.Before(*next.LastRun) {
		// Debounce correctness depends on callers supplying non-decreasing
		// timestamps; a retried job can violate that.
		a.logger.Warn("update timestamp precedes last run",
			"now", req.Now, "last_run", *next.LastRun)
	}

	existing := next.Records
	if req.Replace {
		existing = nil
	}
	next.Records = spend.Merge(existing, req.Records, req.Now, a.retentionDays)
	a.metrics.RecordMerged(len(req.Records))

	now := req.Now
	next.LastRun = &now
	if req.LastError != nil {
		next.LastError = *req.LastError
	}

	eval := caps.Evaluate(next.Records, req.Caps, req.Now)
	next.LastEvaluation = &eval
	for scope, total := range eval.Totals {
		a.metrics.SetScopeSpend(string(scope), total)
	}
	for _, b := range eval.Breaches {
		a.metrics.RecordBreach(string(b.Scope), string(b.Level))
	}

	var delivery []alerts.Result
	if req.Channels != nil && !req.Channels.Empty() && a.dispatcher != nil {
		delivery, next.Ledger = a.dispatcher.Dispatch(ctx, eval.Breaches, eval.Totals,
			next.Ledger, *req.Channels, req.Now)
	}

	if err := a.backend.SaveState(ctx, a.instance, next); err != nil {
		a.logger.Error("failed to persist rollup state", "error", err)
		return nil, fmt.Errorf("failed to persist rollup state: %w", err)
	}
	a.state = next

	a.logger.Info("update applied",
		"incoming", len(req.Records),
		"records", len(next.Records),
		"breaches", len(eval.Breaches),
		"replace", req.Replace,
	)

	return &UpdateResult{State: next.Clone(), Delivery: delivery}, nil
}

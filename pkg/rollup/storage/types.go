package storage

import (
	"context"
	"time"

	"halcyon-hq/spendwatch/pkg/alerts"
	"halcyon-hq/spendwatch/pkg/caps"
	"halcyon-hq/spendwatch/pkg/spend"
)

// Backend defines the interface for rollup state persistence.
// Implementations must be thread-safe.
type Backend interface {
	// SaveState persists the full rollup state for an instance, replacing
	// any previous state atomically.
	SaveState(ctx context.Context, instance string, state *State) error

	// LoadState retrieves the rollup state for an instance.
	// Returns nil if no state exists. Returns error on system failure.
	LoadState(ctx context.Context, instance string) (*State, error)

	// RecordSnapshots upserts audit snapshots keyed by
	// (provider, model, day, source) with last-write-wins semantics.
	// Returns the number of rows written.
	RecordSnapshots(ctx context.Context, records []spend.Record, capturedAt time.Time) (int, error)

	// RecordRun appends one ingestion cycle record.
	RecordRun(ctx context.Context, run *IngestRun) error

	// ListRuns returns the most recent ingestion cycle records, newest first.
	ListRuns(ctx context.Context, limit int) ([]*IngestRun, error)

	// Close releases resources held by the backend.
	// The backend should not be used after calling Close.
	Close() error
}

// State is the aggregate persisted unit owned by the rollup actor: the full
// record set, the alert ledger, the last run timestamp, the last ingestion
// error, and the last cap evaluation snapshot.
type State struct {
	// Records is the merged, retention-pruned spend record set.
	Records []spend.Record `json:"records"`

	// Ledger maps "scope:level" to the last notification time.
	Ledger alerts.Ledger `json:"ledger"`

	// LastRun is the caller-supplied timestamp of the last applied update.
	LastRun *time.Time `json:"last_run,omitempty"`

	// LastError is the failure reason reported by the last ingestion cycle,
	// empty when the cycle succeeded for every provider.
	LastError string `json:"last_error,omitempty"`

	// LastEvaluation is the cap evaluation computed by the last update.
	LastEvaluation *caps.Evaluation `json:"last_evaluation,omitempty"`
}

// NewState returns the initial state: empty record set, empty ledger, no
// last run.
func NewState() *State {
	return &State{
		Records: []spend.Record{},
		Ledger:  alerts.Ledger{},
	}
}

// Clone returns a deep copy of the state. The rollup actor applies updates
// to a clone and commits it only after persistence succeeds, so an
// interrupted update never leaves partial state behind.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}

	c := &State{
		Records:   make([]spend.Record, len(s.Records)),
		Ledger:    make(alerts.Ledger, len(s.Ledger)),
		LastError: s.LastError,
	}
	copy(c.Records, s.Records)
	for k, v := range s.Ledger {
		c.Ledger[k] = v
	}
	if s.LastRun != nil {
		run := *s.LastRun
		c.LastRun = &run
	}
	if s.LastEvaluation != nil {
		eval := caps.Evaluation{
			Totals:   make(map[caps.Scope]float64, len(s.LastEvaluation.Totals)),
			Breaches: make([]caps.Breach, len(s.LastEvaluation.Breaches)),
		}
		for k, v := range s.LastEvaluation.Totals {
			eval.Totals[k] = v
		}
		copy(eval.Breaches, s.LastEvaluation.Breaches)
		c.LastEvaluation = &eval
	}
	return c
}

// IngestRun records one ingestion cycle for observability.
type IngestRun struct {
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	Status       string    `json:"status"` // "success" or "error"
	RowsIngested int       `json:"rows_ingested"`
	Error        string    `json:"error,omitempty"`
}

// Ingestion run statuses.
const (
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

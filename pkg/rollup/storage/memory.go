package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"halcyon-hq/spendwatch/pkg/spend"
)

// MemoryBackend implements Backend using in-memory storage.
// All data is lost when the process exits; it is intended for tests and
// ephemeral deployments.
//
// MemoryBackend is thread-safe using sync.RWMutex.
type MemoryBackend struct {
	// states maps instance name to the persisted rollup state.
	states map[string]*State

	// snapshots maps (provider|model|day|source) to the last audit snapshot.
	snapshots map[string]spend.Record

	// runs holds ingestion cycle records, oldest first.
	runs []*IngestRun

	mu     sync.RWMutex
	closed bool
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		states:    make(map[string]*State),
		snapshots: make(map[string]spend.Record),
	}
}

// SaveState stores a deep copy of the state for an instance.
func (m *MemoryBackend) SaveState(ctx context.Context, instance string, state *State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("backend is closed")
	}
	m.states[instance] = state.Clone()
	return nil
}

// LoadState returns a deep copy of the stored state, or nil if none exists.
func (m *MemoryBackend) LoadState(ctx context.Context, instance string) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("backend is closed")
	}
	state, ok := m.states[instance]
	if !ok {
		return nil, nil
	}
	return state.Clone(), nil
}

// RecordSnapshots upserts audit snapshots keyed by (provider, model, day,
// source), last write wins.
func (m *MemoryBackend) RecordSnapshots(ctx context.Context, records []spend.Record, capturedAt time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, fmt.Errorf("backend is closed")
	}
	for _, r := range records {
		key := r.Key() + "|" + string(r.Source)
		m.snapshots[key] = r
	}
	return len(records), nil
}

// RecordRun appends one ingestion cycle record.
func (m *MemoryBackend) RecordRun(ctx context.Context, run *IngestRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("backend is closed")
	}
	copied := *run
	m.runs = append(m.runs, &copied)
	return nil
}

// ListRuns returns the most recent ingestion cycle records, newest first.
func (m *MemoryBackend) ListRuns(ctx context.Context, limit int) ([]*IngestRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("backend is closed")
	}
	out := make([]*IngestRun, 0, limit)
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		copied := *m.runs[i]
		out = append(out, &copied)
	}
	return out, nil
}

// SnapshotCount returns the number of stored audit snapshots.
// Primarily for tests.
func (m *MemoryBackend) SnapshotCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots)
}

// Close marks the backend closed. Further operations fail.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

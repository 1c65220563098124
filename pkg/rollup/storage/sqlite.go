package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"halcyon-hq/spendwatch/pkg/spend"
)

// SQLiteBackend implements Backend using SQLite for persistence.
// It is suitable for single-instance deployments where the rollup state and
// the audit snapshot history must survive restarts.
//
// The backend runs with a write-ahead log (WAL) and periodic checkpointing
// to balance write performance with durability.
type SQLiteBackend struct {
	db               *sql.DB
	dbPath           string
	snapshotInterval time.Duration
	done             chan struct{}
	closeOnce        sync.Once

	saveStateStmt *sql.Stmt
	loadStateStmt *sql.Stmt
	snapshotStmt  *sql.Stmt
	recordRunStmt *sql.Stmt
	listRunsStmt  *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// SnapshotInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	SnapshotInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a new SQLite storage backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{DBPath: dbPath})
}

// NewSQLiteBackendWithConfig creates a new SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.SnapshotInterval == 0 {
		cfg.SnapshotInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:               db,
		dbPath:           cfg.DBPath,
		snapshotInterval: cfg.SnapshotInterval,
		done:             make(chan struct{}),
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go backend.checkpointLoop()

	return backend, nil
}

func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rollup_states (
		instance TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS spend_snapshots (
		provider TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		day TEXT NOT NULL,
		source TEXT NOT NULL,
		cost_usd_cents INTEGER NOT NULL,
		input_tokens INTEGER,
		output_tokens INTEGER,
		captured_at TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at TEXT NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (provider, model, day, source)
	);

	CREATE INDEX IF NOT EXISTS idx_spend_snapshots_day ON spend_snapshots(day);

	CREATE TABLE IF NOT EXISTS ingest_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL,
		status TEXT NOT NULL,
		rows_ingested INTEGER NOT NULL,
		error TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.saveStateStmt, err = s.db.Prepare(`
		INSERT INTO rollup_states (instance, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(instance) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare save state: %w", err)
	}

	s.loadStateStmt, err = s.db.Prepare(
		`SELECT state FROM rollup_states WHERE instance = ?`)
	if err != nil {
		return fmt.Errorf("prepare load state: %w", err)
	}

	s.snapshotStmt, err = s.db.Prepare(`
		INSERT INTO spend_snapshots (
			provider, model, day, source, cost_usd_cents,
			input_tokens, output_tokens, captured_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, model, day, source) DO UPDATE SET
			cost_usd_cents = excluded.cost_usd_cents,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			captured_at = excluded.captured_at,
			updated_at = datetime('now')`)
	if err != nil {
		return fmt.Errorf("prepare snapshot upsert: %w", err)
	}

	s.recordRunStmt, err = s.db.Prepare(`
		INSERT INTO ingest_runs (started_at, completed_at, status, rows_ingested, error)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare record run: %w", err)
	}

	s.listRunsStmt, err = s.db.Prepare(`
		SELECT started_at, completed_at, status, rows_ingested, error
		FROM ingest_runs ORDER BY id DESC LIMIT ?`)
	if err != nil {
		return fmt.Errorf("prepare list runs: %w", err)
	}

	return nil
}

// SaveState serializes the state to JSON and upserts it for the instance.
// The write is a single statement, so readers never observe a partial state.
func (s *SQLiteBackend) SaveState(ctx context.Context, instance string, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}
	_, err = s.saveStateStmt.ExecContext(ctx, instance, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// LoadState reads and deserializes the state for an instance, or returns nil
// if none has been persisted yet.
func (s *SQLiteBackend) LoadState(ctx context.Context, instance string) (*State, error) {
	var data string
	err := s.loadStateStmt.QueryRowContext(ctx, instance).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	var state State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to deserialize state: %w", err)
	}
	if state.Ledger == nil {
		state.Ledger = make(map[string]time.Time)
	}
	return &state, nil
}

// RecordSnapshots upserts one audit row per record inside a transaction.
// Costs are stored as integer cents to keep the audit table exact.
func (s *SQLiteBackend) RecordSnapshots(ctx context.Context, records []spend.Record, capturedAt time.Time) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt := tx.StmtContext(ctx, s.snapshotStmt)
	captured := capturedAt.UTC().Format(time.RFC3339)

	for _, r := range records {
		var input, output any
		if r.InputTokens != nil {
			input = *r.InputTokens
		}
		if r.OutputTokens != nil {
			output = *r.OutputTokens
		}
		_, err := stmt.ExecContext(ctx,
			string(r.Provider), r.Model, r.Day, string(r.Source),
			toCents(r.CostUSD), input, output, captured)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert snapshot for %s: %w", r.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit snapshots: %w", err)
	}
	return len(records), nil
}

// RecordRun appends one ingestion cycle record.
func (s *SQLiteBackend) RecordRun(ctx context.Context, run *IngestRun) error {
	var runErr any
	if run.Error != "" {
		runErr = run.Error
	}
	_, err := s.recordRunStmt.ExecContext(ctx,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.CompletedAt.UTC().Format(time.RFC3339),
		run.Status, run.RowsIngested, runErr)
	if err != nil {
		return fmt.Errorf("failed to record ingest run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent ingestion cycle records, newest first.
func (s *SQLiteBackend) ListRuns(ctx context.Context, limit int) ([]*IngestRun, error) {
	rows, err := s.listRunsStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingest runs: %w", err)
	}
	defer rows.Close()

	var out []*IngestRun
	for rows.Next() {
		var run IngestRun
		var started, completed string
		var runErr sql.NullString
		if err := rows.Scan(&started, &completed, &run.Status, &run.RowsIngested, &runErr); err != nil {
			return nil, fmt.Errorf("failed to scan ingest run: %w", err)
		}
		run.StartedAt, _ = time.Parse(time.RFC3339, started)
		run.CompletedAt, _ = time.Parse(time.RFC3339, completed)
		run.Error = runErr.String
		out = append(out, &run)
	}
	return out, rows.Err()
}

// checkpointLoop periodically checkpoints the WAL to bound recovery time.
func (s *SQLiteBackend) checkpointLoop() {
	ticker := time.NewTicker(s.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		case <-s.done:
			return
		}
	}
}

// Close stops the checkpoint loop and closes the database.
func (s *SQLiteBackend) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		for _, stmt := range []*sql.Stmt{
			s.saveStateStmt, s.loadStateStmt, s.snapshotStmt,
			s.recordRunStmt, s.listRunsStmt,
		} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = s.db.Close()
	})
	return err
}

// toCents converts a USD amount to integer cents, rounding half away from
// zero to match how the audit history is reported.
func toCents(usd float64) int64 {
	if usd < 0 {
		return -toCents(-usd)
	}
	return int64(usd*100 + 0.5)
}

package rawstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"halcyon-hq/spendwatch/pkg/spend"
)

// SQLiteConfig contains configuration for the SQLite raw page store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/rawpages.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore opens the database, applies the schema, and verifies the
// schema version.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "rawstore.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw page database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStore{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("raw page store initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
	)
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := s.db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("schema version mismatch: expected %d, got %d", SchemaVersion, version)
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, page *Page) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO raw_pages (id, provider, endpoint, fetched_at, window_from, window_to, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		page.ID, string(page.Provider), page.Endpoint, page.FetchedAt.UTC(),
		page.WindowFrom, page.WindowTo, []byte(page.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to store raw page: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Page, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, provider, endpoint, fetched_at, window_from, window_to, payload
		FROM raw_pages WHERE id = ?`, id)
	page, err := scanPage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load raw page: %w", err)
	}
	return page, nil
}

func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]*Page, error) {
	query := `
		SELECT id, provider, endpoint, fetched_at, window_from, window_to, payload
		FROM raw_pages`
	var clauses []string
	var args []interface{}
	if opts.Provider != "" {
		clauses = append(clauses, "provider = ?")
		args = append(args, string(opts.Provider))
	}
	if opts.Endpoint != "" {
		clauses = append(clauses, "endpoint = ?")
		args = append(args, opts.Endpoint)
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY fetched_at DESC, id ASC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw pages: %w", err)
	}
	defer rows.Close()

	var pages []*Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raw page: %w", err)
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

func (s *SQLiteStore) Latest(ctx context.Context, provider spend.Provider, endpoint string) (*Page, error) {
	pages, err := s.List(ctx, ListOptions{Provider: provider, Endpoint: endpoint, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, nil
	}
	return pages[0], nil
}

func (s *SQLiteStore) Prune(ctx context.Context, now time.Time, ttlDays int) (int, error) {
	if ttlDays <= 0 {
		ttlDays = DefaultTTLDays
	}
	cutoff := now.UTC().AddDate(0, 0, -ttlDays)

	result, err := s.db.ExecContext(ctx, "DELETE FROM raw_pages WHERE fetched_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune raw pages: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("pruned raw pages", "removed", removed, "cutoff", cutoff)
	}
	return int(removed), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPage(row rowScanner) (*Page, error) {
	var page Page
	var provider string
	var payload []byte
	if err := row.Scan(&page.ID, &provider, &page.Endpoint, &page.FetchedAt,
		&page.WindowFrom, &page.WindowTo, &payload); err != nil {
		return nil, err
	}
	page.Provider = spend.Provider(provider)
	page.Payload = payload
	return &page, nil
}

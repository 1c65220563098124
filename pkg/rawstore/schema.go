package rawstore

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the raw page database schema.
const Schema = `
CREATE TABLE IF NOT EXISTS raw_pages (
    id TEXT PRIMARY KEY,
    provider TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    fetched_at TIMESTAMP NOT NULL,
    window_from TEXT NOT NULL DEFAULT '',
    window_to TEXT NOT NULL DEFAULT '',
    payload BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_raw_pages_provider_endpoint
    ON raw_pages(provider, endpoint, fetched_at DESC);

CREATE INDEX IF NOT EXISTS idx_raw_pages_fetched_at
    ON raw_pages(fetched_at);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InsertSchemaVersion records the schema version after initialization.
const InsertSchemaVersion = `
INSERT OR IGNORE INTO schema_version (version) VALUES (?)
`

// GetSchemaVersion retrieves the latest applied schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1
`

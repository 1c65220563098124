// Package storage provides persistence backends for the rollup actor's
// state.
//
// Two backends are available:
//
//   - MemoryBackend: in-memory, for tests and ephemeral deployments
//   - SQLiteBackend: durable single-file storage with WAL journaling
//
// Beyond the serialized rollup state, the SQLite backend keeps an audit
// history: one spend_snapshots row per (provider, model, day, source) with
// last-write-wins upserts and costs in integer cents, plus an ingest_runs
// log of every ingestion cycle.
package storage

// Package ingest orchestrates the periodic ingestion cycle: concurrent
// provider fetches, raw page archival, snapshot persistence, the rollup
// update, and raw page pruning, driven by a cron schedule.
package ingest

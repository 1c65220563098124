// Package metrics exposes Prometheus collectors for the spend engine:
// merge volume, per-scope month-to-date totals, cap breaches, alert
// deliveries, and ingestion cycle outcomes.
package metrics

// Package alerts debounces cap breaches and delivers notifications to the
// configured webhook channels.
//
// # Debouncing
//
// The Ledger records, per (scope, level) pair, when the last notification
// went out. A breach is eligible again only once the debounce window has
// elapsed. The ledger is pure data returned to the caller, which persists it
// as part of the rollup state.
//
// # Delivery
//
// All eligible breaches in one cycle are combined into a single notification
// per channel, never one message per breach. Delivery is best-effort: each
// channel is attempted independently, failures are logged and reported as
// per-channel results, and the ledger advances either way so the same window
// is never re-raised.
package alerts

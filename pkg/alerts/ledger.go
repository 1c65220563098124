package alerts

import (
	"time"

	"halcyon-hq/spendwatch/pkg/caps"
)

// Ledger maps a "scope:level" key to the time of the last successful
// notification for that breach. It only ever grows (or is reset to empty);
// entries are never removed by normal operation.
//
// The ledger is a value: filtering and updating return new data rather than
// mutating in place, so the caller decides when the result is persisted.
type Ledger map[string]time.Time

// LedgerKey returns the debounce key for a scope and level.
func LedgerKey(scope caps.Scope, level caps.Level) string {
	return string(scope) + ":" + string(level)
}

// Eligible returns the breaches that pass the debounce filter: those with no
// ledger entry, or whose last notification is at least window old. Breaches
// failing the filter are silently dropped for this cycle; they re-qualify on
// a future evaluation once the window has elapsed.
func (l Ledger) Eligible(breaches []caps.Breach, now time.Time, window time.Duration) []caps.Breach {
	var eligible []caps.Breach
	for _, b := range breaches {
		last, ok := l[LedgerKey(b.Scope, b.Level)]
		if !ok || now.Sub(last) >= window {
			eligible = append(eligible, b)
		}
	}
	return eligible
}

// WithSent returns a copy of the ledger with entries for every given breach
// set to now. The receiver is not modified.
func (l Ledger) WithSent(breaches []caps.Breach, now time.Time) Ledger {
	updated := make(Ledger, len(l)+len(breaches))
	for k, v := range l {
		updated[k] = v
	}
	for _, b := range breaches {
		updated[LedgerKey(b.Scope, b.Level)] = now
	}
	return updated
}

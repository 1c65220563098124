package caps

import (
	"time"

	"halcyon-hq/spendwatch/pkg/spend"
)

// Evaluate computes month-to-date totals per scope and flags every threshold
// crossing.
//
// Only records within the current UTC calendar month up to and including
// now's date contribute. A scope breaches a level when its total is greater
// than or equal to the configured threshold; a zero threshold never breaches.
// Soft and hard are evaluated independently and can both fire for one scope.
//
// Breaches are emitted in fixed order: each provider scope soft then hard,
// followed by global soft then hard. Empty input yields zero totals and no
// breaches.
func Evaluate(records []spend.Record, cfg Config, now time.Time) Evaluation {
	month := spend.MonthToDate(records, now)

	totals := map[Scope]float64{
		ScopeOpenAI:    0,
		ScopeAnthropic: 0,
		ScopeVertex:    0,
		ScopeGlobal:    0,
	}
	for _, r := range month {
		totals[Scope(r.Provider)] += r.CostUSD
		totals[ScopeGlobal] += r.CostUSD
	}

	var breaches []Breach
	push := func(scope Scope, level Level, threshold float64) {
		if threshold == 0 {
			return
		}
		if total := totals[scope]; total >= threshold {
			breaches = append(breaches, Breach{
				Scope:       scope,
				Level:       level,
				Threshold:   threshold,
				Total:       total,
				TriggeredAt: now,
			})
		}
	}

	for _, scope := range Scopes() {
		soft, hard := cfg.Thresholds(scope)
		push(scope, LevelSoft, soft)
		push(scope, LevelHard, hard)
	}

	return Evaluation{Totals: totals, Breaches: breaches}
}

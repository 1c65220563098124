package spend

import (
	"sort"
	"time"
)

// DefaultRetentionDays is the default retention horizon for merged records.
// The default is deliberately far beyond any billing window so nothing is
// dropped unless an operator opts into a tighter horizon.
const DefaultRetentionDays = 9000

// Merge folds incoming records into existing ones with last-write-wins
// semantics per record key, prunes records older than the retention horizon,
// and returns the surviving records sorted ascending by day.
//
// Incoming always wins on key conflict, regardless of cost or of how now
// relates to earlier merges. Calling Merge twice with the same incoming batch
// and the same now is a no-op on the second call.
//
// The retention cutoff is now's UTC calendar date minus retentionDays; a
// record dated exactly at the cutoff is retained.
func Merge(existing, incoming []Record, now time.Time, retentionDays int) []Record {
	merged := make(map[string]Record, len(existing)+len(incoming))
	for _, r := range existing {
		merged[r.Key()] = r
	}
	for _, r := range incoming {
		merged[r.Key()] = r
	}

	cutoff := FormatDay(now.UTC().AddDate(0, 0, -retentionDays))
	out := make([]Record, 0, len(merged))
	for _, r := range merged {
		if r.Day >= cutoff {
			out = append(out, r)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

// MonthToDate returns the records whose day falls within the current UTC
// calendar month, from the first of the month through now's date inclusive.
func MonthToDate(records []Record, now time.Time) []Record {
	utc := now.UTC()
	start := time.Date(utc.Year(), utc.Month(), 1, 0, 0, 0, 0, time.UTC)
	return FilterByRange(records, FormatDay(start), FormatDay(utc))
}

package spend

import (
	"reflect"
	"testing"
	"time"
)

func day(s string) Record {
	return Record{Provider: ProviderOpenAI, Day: s, CostUSD: 1, Currency: "USD", Source: SourceUsageAPI}
}

// ============================================================================
// Merge Tests
// ============================================================================

func TestMerge_LastWriteWins(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	existing := []Record{{
		Provider: ProviderOpenAI,
		Model:    "gpt-4o",
		Day:      "2026-08-10",
		CostUSD:  42.00,
		Currency: "USD",
		Source:   SourceUsageAPI,
	}}
	// Incoming has a lower cost but must still replace the existing record.
	incoming := []Record{{
		Provider: ProviderOpenAI,
		Model:    "gpt-4o",
		Day:      "2026-08-10",
		CostUSD:  13.37,
		Currency: "USD",
		Source:   SourceCostAPI,
	}}

	out := Merge(existing, incoming, now, DefaultRetentionDays)
	if len(out) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(out))
	}
	if out[0].CostUSD != 13.37 {
		t.Errorf("Expected incoming cost 13.37 to win, got %.2f", out[0].CostUSD)
	}
	if out[0].Source != SourceCostAPI {
		t.Errorf("Expected incoming source to win, got %s", out[0].Source)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	existing := []Record{day("2026-08-01"), day("2026-08-02")}
	incoming := []Record{day("2026-08-02"), day("2026-08-03")}

	once := Merge(existing, incoming, now, DefaultRetentionDays)
	twice := Merge(once, incoming, now, DefaultRetentionDays)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Expected merge to be idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestMerge_DistinctKeysCoexist(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	existing := []Record{
		{Provider: ProviderOpenAI, Model: "gpt-4o", Day: "2026-08-10", CostUSD: 1, Currency: "USD", Source: SourceUsageAPI},
	}
	incoming := []Record{
		{Provider: ProviderOpenAI, Model: "gpt-4o-mini", Day: "2026-08-10", CostUSD: 2, Currency: "USD", Source: SourceUsageAPI},
		{Provider: ProviderAnthropic, Model: "gpt-4o", Day: "2026-08-10", CostUSD: 3, Currency: "USD", Source: SourceUsageAPI},
	}

	out := Merge(existing, incoming, now, DefaultRetentionDays)
	if len(out) != 3 {
		t.Errorf("Expected 3 records (distinct keys), got %d", len(out))
	}
}

func TestMerge_RetentionBoundary(t *testing.T) {
	now := time.Date(2026, 8, 15, 23, 59, 0, 0, time.UTC)
	retention := 30

	atCutoff := day("2026-07-16")  // exactly now - 30 days: retained
	tooOld := day("2026-07-15")    // one day older: dropped
	recent := day("2026-08-15")

	out := Merge(nil, []Record{atCutoff, tooOld, recent}, now, retention)
	if len(out) != 2 {
		t.Fatalf("Expected 2 records after pruning, got %d", len(out))
	}
	if out[0].Day != "2026-07-16" || out[1].Day != "2026-08-15" {
		t.Errorf("Expected [2026-07-16, 2026-08-15], got [%s, %s]", out[0].Day, out[1].Day)
	}
}

func TestMerge_SortedAscendingByDay(t *testing.T) {
	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	incoming := []Record{day("2026-08-12"), day("2026-08-03"), day("2026-08-09")}

	out := Merge(nil, incoming, now, DefaultRetentionDays)
	for i := 1; i < len(out); i++ {
		if out[i-1].Day > out[i].Day {
			t.Errorf("Expected ascending day order, got %s before %s", out[i-1].Day, out[i].Day)
		}
	}
}

func TestMerge_EmptyInputs(t *testing.T) {
	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	if out := Merge(nil, nil, now, DefaultRetentionDays); len(out) != 0 {
		t.Errorf("Expected empty output for empty inputs, got %d records", len(out))
	}

	existing := []Record{day("2026-08-01")}
	out := Merge(existing, nil, now, DefaultRetentionDays)
	if len(out) != 1 {
		t.Errorf("Expected existing records to survive an empty incoming batch, got %d", len(out))
	}
}

// ============================================================================
// Month-To-Date Tests
// ============================================================================

func TestMonthToDate_Window(t *testing.T) {
	now := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	records := []Record{
		day("2026-07-31"), // previous month: excluded
		day("2026-08-01"), // first of month: included
		day("2026-08-15"), // today: included
		day("2026-08-16"), // future: excluded
	}

	out := MonthToDate(records, now)
	if len(out) != 2 {
		t.Fatalf("Expected 2 month-to-date records, got %d", len(out))
	}
	if out[0].Day != "2026-08-01" || out[1].Day != "2026-08-15" {
		t.Errorf("Expected [2026-08-01, 2026-08-15], got [%s, %s]", out[0].Day, out[1].Day)
	}
}

func TestFormatDay_UTC(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC.
	loc := time.FixedZone("UTC-5", -5*60*60)
	local := time.Date(2026, 8, 15, 23, 30, 0, 0, loc)
	if got := FormatDay(local); got != "2026-08-16" {
		t.Errorf("Expected UTC date 2026-08-16, got %s", got)
	}
}

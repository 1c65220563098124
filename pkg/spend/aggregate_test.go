package spend

import "testing"

func sampleRecords() []Record {
	return []Record{
		{Provider: ProviderOpenAI, Model: "gpt-4o", Day: "2026-08-01", InputTokens: Tokens(100), OutputTokens: Tokens(50), CostUSD: 5, Currency: "USD", Source: SourceUsageAPI},
		{Provider: ProviderOpenAI, Model: "gpt-4o", Day: "2026-08-02", InputTokens: Tokens(200), OutputTokens: Tokens(80), CostUSD: 7, Currency: "USD", Source: SourceUsageAPI},
		{Provider: ProviderAnthropic, Model: "claude-sonnet-4", Day: "2026-08-01", CostUSD: 3, Currency: "USD", Source: SourceUsageAPI},
		{Provider: ProviderVertex, Day: "2026-08-02", CostUSD: 2, Currency: "USD", Source: SourceBudgetsAPI},
	}
}

// ============================================================================
// Range Filter Tests
// ============================================================================

func TestFilterByRange(t *testing.T) {
	records := sampleRecords()

	tests := []struct {
		name string
		from string
		to   string
		want int
	}{
		{"no bounds", "", "", 4},
		{"from only", "2026-08-02", "", 2},
		{"to only", "", "2026-08-01", 2},
		{"both inclusive", "2026-08-01", "2026-08-01", 2},
		{"empty window", "2026-09-01", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterByRange(records, tt.from, tt.to)
			if len(got) != tt.want {
				t.Errorf("Expected %d records, got %d", tt.want, len(got))
			}
		})
	}
}

// ============================================================================
// Aggregation Tests
// ============================================================================

func TestAggregate_None(t *testing.T) {
	records := sampleRecords()
	buckets := Aggregate(records, GroupByNone)

	if len(buckets) != len(records) {
		t.Fatalf("Expected pass-through bucket per record, got %d buckets", len(buckets))
	}
	for i, b := range buckets {
		if b.Key != records[i].Key() {
			t.Errorf("bucket %d: expected key %q, got %q", i, records[i].Key(), b.Key)
		}
		if len(b.Records) != 1 {
			t.Errorf("bucket %d: expected 1 constituent record, got %d", i, len(b.Records))
		}
	}
}

func TestAggregate_ByProvider(t *testing.T) {
	buckets := Aggregate(sampleRecords(), GroupByProvider)

	if len(buckets) != 3 {
		t.Fatalf("Expected 3 provider buckets, got %d", len(buckets))
	}
	// Sorted ascending by key: anthropic, openai, vertex.
	if buckets[0].Key != "anthropic" || buckets[1].Key != "openai" || buckets[2].Key != "vertex" {
		t.Errorf("Unexpected bucket order: %s, %s, %s", buckets[0].Key, buckets[1].Key, buckets[2].Key)
	}

	openai := buckets[1]
	if openai.CostUSD != 12 {
		t.Errorf("Expected openai cost 12, got %.2f", openai.CostUSD)
	}
	if openai.InputTokens == nil || *openai.InputTokens != 300 {
		t.Errorf("Expected openai input tokens 300, got %v", openai.InputTokens)
	}
	if openai.OutputTokens == nil || *openai.OutputTokens != 130 {
		t.Errorf("Expected openai output tokens 130, got %v", openai.OutputTokens)
	}
	if len(openai.Records) != 2 {
		t.Errorf("Expected 2 constituent records, got %d", len(openai.Records))
	}
}

func TestAggregate_ByDay_GlobalSentinel(t *testing.T) {
	buckets := Aggregate(sampleRecords(), GroupByDay)

	if len(buckets) != 2 {
		t.Fatalf("Expected 2 day buckets, got %d", len(buckets))
	}
	for _, b := range buckets {
		if b.Provider != ProviderGlobal {
			t.Errorf("Expected day bucket provider %q, got %q", ProviderGlobal, b.Provider)
		}
	}
	if buckets[0].Key != "2026-08-01" || buckets[0].CostUSD != 8 {
		t.Errorf("Expected 2026-08-01 total 8, got %s=%.2f", buckets[0].Key, buckets[0].CostUSD)
	}
	if buckets[1].Key != "2026-08-02" || buckets[1].CostUSD != 9 {
		t.Errorf("Expected 2026-08-02 total 9, got %s=%.2f", buckets[1].Key, buckets[1].CostUSD)
	}
}

func TestAggregate_ByModel_UnknownCoerced(t *testing.T) {
	buckets := Aggregate(sampleRecords(), GroupByModel)

	if len(buckets) != 3 {
		t.Fatalf("Expected 3 model buckets, got %d", len(buckets))
	}
	// The vertex record has no model and must land in an "unknown" bucket.
	var found bool
	for _, b := range buckets {
		if b.Key == "vertex:unknown" {
			found = true
			if b.Model != UnknownModel {
				t.Errorf("Expected model %q, got %q", UnknownModel, b.Model)
			}
			if b.CostUSD != 2 {
				t.Errorf("Expected unknown-model cost 2, got %.2f", b.CostUSD)
			}
		}
	}
	if !found {
		t.Error("Expected a vertex:unknown bucket, none found")
	}
}

func TestAggregate_TokenSumsOmittedWithoutData(t *testing.T) {
	// The anthropic record carries no token counts, so its provider bucket
	// must not report zeroed sums.
	buckets := Aggregate(sampleRecords(), GroupByProvider)
	anthropic := buckets[0]
	if anthropic.Key != "anthropic" {
		t.Fatalf("Expected anthropic bucket first, got %s", anthropic.Key)
	}
	if anthropic.InputTokens != nil || anthropic.OutputTokens != nil {
		t.Errorf("Expected token sums to be omitted, got input=%v output=%v",
			anthropic.InputTokens, anthropic.OutputTokens)
	}
}

func TestAggregate_ZeroTokensDistinctFromMissing(t *testing.T) {
	records := []Record{
		{Provider: ProviderOpenAI, Model: "gpt-4o", Day: "2026-08-01", InputTokens: Tokens(0), CostUSD: 1, Currency: "USD", Source: SourceUsageAPI},
	}
	buckets := Aggregate(records, GroupByProvider)
	if buckets[0].InputTokens == nil || *buckets[0].InputTokens != 0 {
		t.Errorf("Expected explicit zero token sum, got %v", buckets[0].InputTokens)
	}
}

func TestParseGroupBy(t *testing.T) {
	for _, valid := range []string{"", "provider", "day", "model"} {
		if _, ok := ParseGroupBy(valid); !ok {
			t.Errorf("Expected %q to parse", valid)
		}
	}
	if _, ok := ParseGroupBy("week"); ok {
		t.Error("Expected \"week\" to be rejected")
	}
}

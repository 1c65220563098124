package caps

import (
	"testing"
	"time"

	"halcyon-hq/spendwatch/pkg/spend"
)

func record(p spend.Provider, day string, cost float64) spend.Record {
	return spend.Record{Provider: p, Day: day, CostUSD: cost, Currency: "USD", Source: spend.SourceUsageAPI}
}

// ============================================================================
// Evaluation Tests
// ============================================================================

func TestEvaluate_BoundaryInclusive(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	cfg := Config{OpenAISoft: 10.00}

	// Exactly at threshold: breaches.
	eval := Evaluate([]spend.Record{record(spend.ProviderOpenAI, "2026-08-10", 10.00)}, cfg, now)
	if len(eval.Breaches) != 1 {
		t.Fatalf("Expected breach at exact threshold, got %d breaches", len(eval.Breaches))
	}

	// One cent below: does not.
	eval = Evaluate([]spend.Record{record(spend.ProviderOpenAI, "2026-08-10", 9.99)}, cfg, now)
	if len(eval.Breaches) != 0 {
		t.Errorf("Expected no breach one cent below threshold, got %d", len(eval.Breaches))
	}
}

func TestEvaluate_ZeroThresholdNotConfigured(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	eval := Evaluate([]spend.Record{record(spend.ProviderOpenAI, "2026-08-10", 1000)}, Config{}, now)
	if len(eval.Breaches) != 0 {
		t.Errorf("Expected zero thresholds to never breach, got %d breaches", len(eval.Breaches))
	}
	if eval.Totals[ScopeOpenAI] != 1000 || eval.Totals[ScopeGlobal] != 1000 {
		t.Errorf("Expected totals to be computed regardless of thresholds, got %+v", eval.Totals)
	}
}

func TestEvaluate_MonthToDateOnly(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	cfg := Config{OpenAISoft: 10.00}
	records := []spend.Record{
		record(spend.ProviderOpenAI, "2026-07-31", 100), // previous month
		record(spend.ProviderOpenAI, "2026-08-16", 100), // after now's date
		record(spend.ProviderOpenAI, "2026-08-05", 5),
	}

	eval := Evaluate(records, cfg, now)
	if eval.Totals[ScopeOpenAI] != 5 {
		t.Errorf("Expected month-to-date total 5, got %.2f", eval.Totals[ScopeOpenAI])
	}
	if len(eval.Breaches) != 0 {
		t.Errorf("Expected no breach from out-of-window records, got %d", len(eval.Breaches))
	}
}

func TestEvaluate_Scenario(t *testing.T) {
	// openai $20 and anthropic $10 this month with caps
	// openai 10/20, anthropic 5/10, global 25/40 -> five breaches.
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	cfg := Config{
		OpenAISoft:    10,
		OpenAIHard:    20,
		AnthropicSoft: 5,
		AnthropicHard: 10,
		GlobalSoft:    25,
		GlobalHard:    40,
	}
	records := []spend.Record{
		record(spend.ProviderOpenAI, "2026-08-10", 20),
		record(spend.ProviderAnthropic, "2026-08-11", 10),
	}

	eval := Evaluate(records, cfg, now)

	want := []struct {
		scope Scope
		level Level
		total float64
	}{
		{ScopeOpenAI, LevelSoft, 20},
		{ScopeOpenAI, LevelHard, 20},
		{ScopeAnthropic, LevelSoft, 10},
		{ScopeAnthropic, LevelHard, 10},
		{ScopeGlobal, LevelSoft, 30},
	}

	if len(eval.Breaches) != len(want) {
		t.Fatalf("Expected %d breaches, got %d: %+v", len(want), len(eval.Breaches), eval.Breaches)
	}
	for i, w := range want {
		b := eval.Breaches[i]
		if b.Scope != w.scope || b.Level != w.level {
			t.Errorf("breach %d: expected %s/%s, got %s/%s", i, w.scope, w.level, b.Scope, b.Level)
		}
		if b.Total != w.total {
			t.Errorf("breach %d: expected total %.2f, got %.2f", i, w.total, b.Total)
		}
		if !b.TriggeredAt.Equal(now) {
			t.Errorf("breach %d: expected triggered_at %v, got %v", i, now, b.TriggeredAt)
		}
	}
}

func TestEvaluate_EmptyRecords(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	eval := Evaluate(nil, Config{}, now)

	for _, scope := range Scopes() {
		if eval.Totals[scope] != 0 {
			t.Errorf("Expected zero total for %s, got %.2f", scope, eval.Totals[scope])
		}
	}
	if len(eval.Breaches) != 0 {
		t.Errorf("Expected no breaches, got %d", len(eval.Breaches))
	}
}

func TestEvaluate_SoftAndHardBothFire(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	cfg := Config{VertexSoft: 5, VertexHard: 10}

	eval := Evaluate([]spend.Record{record(spend.ProviderVertex, "2026-08-01", 12)}, cfg, now)
	if len(eval.Breaches) != 2 {
		t.Fatalf("Expected soft and hard to both fire, got %d breaches", len(eval.Breaches))
	}
	if eval.Breaches[0].Level != LevelSoft || eval.Breaches[1].Level != LevelHard {
		t.Errorf("Expected soft before hard, got %s then %s", eval.Breaches[0].Level, eval.Breaches[1].Level)
	}
}

// ============================================================================
// Config Tests
// ============================================================================

func TestConfigValidate(t *testing.T) {
	if err := (Config{OpenAISoft: 10}).Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
	if err := (Config{AnthropicHard: -1}).Validate(); err == nil {
		t.Error("Expected negative threshold to fail validation")
	}
}

func TestConfigThresholds(t *testing.T) {
	cfg := Config{OpenAISoft: 1, OpenAIHard: 2, AnthropicSoft: 3, AnthropicHard: 4, VertexSoft: 5, VertexHard: 6, GlobalSoft: 7, GlobalHard: 8}

	tests := []struct {
		scope Scope
		soft  float64
		hard  float64
	}{
		{ScopeOpenAI, 1, 2},
		{ScopeAnthropic, 3, 4},
		{ScopeVertex, 5, 6},
		{ScopeGlobal, 7, 8},
	}
	for _, tt := range tests {
		soft, hard := cfg.Thresholds(tt.scope)
		if soft != tt.soft || hard != tt.hard {
			t.Errorf("%s: expected (%.0f, %.0f), got (%.0f, %.0f)", tt.scope, tt.soft, tt.hard, soft, hard)
		}
	}
}

package spend

import "time"

// Provider identifies the vendor a spend record was observed for.
type Provider string

const (
	// ProviderOpenAI is the OpenAI platform (usage and costs endpoints).
	ProviderOpenAI Provider = "openai"
	// ProviderAnthropic is the Anthropic platform (usage endpoint).
	ProviderAnthropic Provider = "anthropic"
	// ProviderVertex is Google Vertex AI (billing budgets or BigQuery export).
	ProviderVertex Provider = "vertex"
)

// ProviderGlobal is the sentinel provider used on cross-provider aggregation
// buckets. It is never valid on an individual record.
const ProviderGlobal Provider = "global"

// Providers returns all known providers in declaration order. The order is
// load-bearing: cap breach emission follows it.
func Providers() []Provider {
	return []Provider{ProviderOpenAI, ProviderAnthropic, ProviderVertex}
}

// Valid reports whether p is a known record-level provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderVertex:
		return true
	}
	return false
}

// Source identifies which upstream billing endpoint produced a record.
type Source string

const (
	// SourceUsageAPI is a provider's usage/metering endpoint.
	SourceUsageAPI Source = "usage_api"
	// SourceCostAPI is a provider's dedicated cost endpoint.
	SourceCostAPI Source = "cost_api"
	// SourceBQExport is the GCP billing export queried through BigQuery.
	SourceBQExport Source = "bq_export"
	// SourceBudgetsAPI is the GCP Billing Budgets API.
	SourceBudgetsAPI Source = "budgets_api"
)

// Record is one provider/model/day cost observation. Records are immutable;
// a conflicting observation replaces the whole record rather than mutating it.
//
// Token counts are pointers to distinguish "endpoint did not report tokens"
// from "zero tokens used".
type Record struct {
	Provider     Provider `json:"provider"`
	Model        string   `json:"model,omitempty"`
	Day          string   `json:"day"` // YYYY-MM-DD, UTC calendar date
	InputTokens  *int64   `json:"input_tokens,omitempty"`
	OutputTokens *int64   `json:"output_tokens,omitempty"`
	CostUSD      float64  `json:"cost_usd"`
	Currency     string   `json:"currency"` // always "USD"
	Source       Source   `json:"source"`
}

// Key returns the canonical identity of a record: (provider, day, model).
// Two records with equal keys describe the same observation; the newer one
// wins on merge.
func (r Record) Key() string {
	return string(r.Provider) + "|" + r.Day + "|" + r.Model
}

// FormatDay renders t as the canonical UTC calendar date string.
func FormatDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Tokens returns a pointer to v, for building records with token counts.
func Tokens(v int64) *int64 {
	return &v
}

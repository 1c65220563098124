package caps

import (
	"fmt"
	"time"

	"halcyon-hq/spendwatch/pkg/spend"
)

// Scope is the unit of cap evaluation: one of the providers, or the
// cross-provider "global" aggregate.
type Scope string

const (
	ScopeOpenAI    Scope = Scope(spend.ProviderOpenAI)
	ScopeAnthropic Scope = Scope(spend.ProviderAnthropic)
	ScopeVertex    Scope = Scope(spend.ProviderVertex)
	ScopeGlobal    Scope = "global"
)

// Scopes returns all cap scopes in evaluation order: providers in declaration
// order, then global. Breach emission follows this order.
func Scopes() []Scope {
	return []Scope{ScopeOpenAI, ScopeAnthropic, ScopeVertex, ScopeGlobal}
}

// Level is a breach severity. Soft and hard thresholds are evaluated
// independently; both can breach at once for the same scope.
type Level string

const (
	LevelSoft Level = "soft"
	LevelHard Level = "hard"
)

// Config holds the eight spend thresholds in USD, soft and hard for each
// provider plus the global scope. A threshold of zero means "not configured"
// and never breaches. Negative thresholds are a fatal configuration error.
type Config struct {
	OpenAISoft    float64 `yaml:"openai_soft" json:"openai_soft"`
	OpenAIHard    float64 `yaml:"openai_hard" json:"openai_hard"`
	AnthropicSoft float64 `yaml:"anthropic_soft" json:"anthropic_soft"`
	AnthropicHard float64 `yaml:"anthropic_hard" json:"anthropic_hard"`
	VertexSoft    float64 `yaml:"vertex_soft" json:"vertex_soft"`
	VertexHard    float64 `yaml:"vertex_hard" json:"vertex_hard"`
	GlobalSoft    float64 `yaml:"global_soft" json:"global_soft"`
	GlobalHard    float64 `yaml:"global_hard" json:"global_hard"`
}

// Thresholds returns the (soft, hard) threshold pair for a scope.
func (c Config) Thresholds(scope Scope) (soft, hard float64) {
	switch scope {
	case ScopeOpenAI:
		return c.OpenAISoft, c.OpenAIHard
	case ScopeAnthropic:
		return c.AnthropicSoft, c.AnthropicHard
	case ScopeVertex:
		return c.VertexSoft, c.VertexHard
	case ScopeGlobal:
		return c.GlobalSoft, c.GlobalHard
	}
	return 0, 0
}

// Validate reports every negative threshold in the configuration.
func (c Config) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"openai_soft", c.OpenAISoft},
		{"openai_hard", c.OpenAIHard},
		{"anthropic_soft", c.AnthropicSoft},
		{"anthropic_hard", c.AnthropicHard},
		{"vertex_soft", c.VertexSoft},
		{"vertex_hard", c.VertexHard},
		{"global_soft", c.GlobalSoft},
		{"global_hard", c.GlobalHard},
	}
	for _, f := range fields {
		if f.value < 0 {
			return fmt.Errorf("cap %s must be non-negative, got %.2f", f.name, f.value)
		}
	}
	return nil
}

// Breach records one threshold crossing observed during evaluation.
// Breaches are ephemeral: recomputed in full on every evaluation, persisted
// only inside the last evaluation snapshot and the alert ledger.
type Breach struct {
	Scope       Scope     `json:"scope"`
	Level       Level     `json:"level"`
	Threshold   float64   `json:"threshold"`
	Total       float64   `json:"total"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// Evaluation is the full result of one cap evaluation pass.
type Evaluation struct {
	Totals   map[Scope]float64 `json:"totals"`
	Breaches []Breach          `json:"breaches"`
}

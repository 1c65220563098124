package providers

import (
	"halcyon-hq/spendwatch/pkg/rawstore"
	"halcyon-hq/spendwatch/pkg/spend"
)

// RecordsFromRaw rebuilds normalized records for one provider from its
// archived pages, without contacting the provider. This is the recompute
// path: replaying every archived page reproduces the merged record set.
func RecordsFromRaw(provider spend.Provider, pages []*rawstore.Page) ([]spend.Record, error) {
	switch provider {
	case spend.ProviderOpenAI:
		return OpenAIRecordsFromRaw(pages)
	case spend.ProviderAnthropic:
		return AnthropicRecordsFromRaw(pages)
	case spend.ProviderVertex:
		budget, err := VertexBudgetRecordsFromRaw(pages)
		if err != nil {
			return nil, err
		}
		bq, err := VertexBigQueryRecordsFromRaw(pages)
		if err != nil {
			return nil, err
		}
		return append(budget, bq...), nil
	default:
		return nil, &ProviderError{Provider: string(provider), Message: "unknown provider"}
	}
}

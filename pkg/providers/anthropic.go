package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"halcyon-hq/spendwatch/pkg/rawstore"
	"halcyon-hq/spendwatch/pkg/spend"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1/usage"
	anthropicAPIVersion     = "2023-06-01"
)

// AnthropicConfig configures the Anthropic usage fetcher.
type AnthropicConfig struct {
	// APIKey is sent as the x-api-key header.
	APIKey string

	// OrgID, when set, is sent as the anthropic-org-id header.
	OrgID string

	// BaseURL overrides the usage endpoint, used in tests.
	BaseURL string
}

// AnthropicFetcher pulls per-model daily usage from the Anthropic usage
// report endpoint, following next_page_token pagination.
type AnthropicFetcher struct {
	config AnthropicConfig
	client *Client
	now    func() time.Time
}

// NewAnthropicFetcher creates an AnthropicFetcher sharing the given client.
func NewAnthropicFetcher(config AnthropicConfig, client *Client) *AnthropicFetcher {
	if config.BaseURL == "" {
		config.BaseURL = defaultAnthropicBaseURL
	}
	return &AnthropicFetcher{config: config, client: client, now: time.Now}
}

func (f *AnthropicFetcher) Name() spend.Provider {
	return spend.ProviderAnthropic
}

type anthropicUsageDatum struct {
	Date         string  `json:"date"`
	Model        string  `json:"model"`
	InputTokens  *int64  `json:"input_tokens,omitempty"`
	OutputTokens *int64  `json:"output_tokens,omitempty"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
}

type anthropicUsageResponse struct {
	Data          []anthropicUsageDatum `json:"data"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

func (f *AnthropicFetcher) headers() map[string]string {
	headers := map[string]string{
		"x-api-key":         f.config.APIKey,
		"Content-Type":      "application/json",
		"anthropic-version": anthropicAPIVersion,
	}
	if f.config.OrgID != "" {
		headers["anthropic-org-id"] = f.config.OrgID
	}
	return headers
}

func (f *AnthropicFetcher) Fetch(ctx context.Context, opts FetchOptions) (*Result, error) {
	var records []spend.Record
	var pages []*rawstore.Page
	pageToken := ""

	for {
		values := url.Values{}
		values.Set("start_date", opts.From)
		values.Set("end_date", opts.To)
		if pageToken != "" {
			values.Set("page_token", pageToken)
		}

		var page anthropicUsageResponse
		raw, err := f.client.DoJSONRaw(ctx, string(spend.ProviderAnthropic), "GET",
			f.config.BaseURL+"?"+values.Encode(), nil, f.headers(), &page)
		if err != nil {
			return nil, fmt.Errorf("anthropic usage fetch failed: %w", err)
		}
		pages = append(pages, rawstore.NewPage(spend.ProviderAnthropic, "usage",
			f.now().UTC(), opts.From, opts.To, json.RawMessage(raw)))
		records = append(records, anthropicNormalize(page.Data)...)

		if page.NextPageToken == "" {
			return &Result{Records: records, RawPages: pages}, nil
		}
		pageToken = page.NextPageToken
	}
}

// AnthropicRecordsFromRaw rebuilds normalized records from archived pages.
func AnthropicRecordsFromRaw(pages []*rawstore.Page) ([]spend.Record, error) {
	var records []spend.Record
	for _, page := range pages {
		if page.Endpoint != "" && page.Endpoint != "usage" {
			continue
		}
		var parsed anthropicUsageResponse
		if err := json.Unmarshal(page.Payload, &parsed); err != nil {
			return nil, &ParseError{Provider: string(spend.ProviderAnthropic), RawResponse: string(page.Payload), Cause: err}
		}
		records = append(records, anthropicNormalize(parsed.Data)...)
	}
	return records, nil
}

func anthropicNormalize(data []anthropicUsageDatum) []spend.Record {
	records := make([]spend.Record, 0, len(data))
	for _, datum := range data {
		day := datum.Date
		if len(day) > 10 {
			day = day[:10]
		}
		records = append(records, spend.Record{
			Provider:     spend.ProviderAnthropic,
			Model:        datum.Model,
			Day:          day,
			InputTokens:  datum.InputTokens,
			OutputTokens: datum.OutputTokens,
			CostUSD:      datum.CostUSD,
			Currency:     "USD",
			Source:       spend.SourceUsageAPI,
		})
	}
	return records
}

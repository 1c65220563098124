package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"time"

	"halcyon-hq/spendwatch/pkg/rawstore"
	"halcyon-hq/spendwatch/pkg/spend"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIConfig configures the OpenAI usage fetcher.
type OpenAIConfig struct {
	// APIKey is the admin API key used for the usage and costs endpoints.
	APIKey string

	// OrgID, when set, is sent as the OpenAI-Organization header.
	OrgID string

	// ProjectID, when set, restricts results to one project.
	ProjectID string

	// BaseURL overrides the API base, used in tests.
	BaseURL string
}

// OpenAIFetcher pulls daily usage and cost data from the OpenAI usage and
// costs endpoints. Token counts come from the usage endpoint; where the
// costs endpoint reports a figure for the same model and day, its amount
// replaces the usage-derived cost.
type OpenAIFetcher struct {
	config OpenAIConfig
	client *Client
	now    func() time.Time
}

// NewOpenAIFetcher creates an OpenAIFetcher sharing the given client.
func NewOpenAIFetcher(config OpenAIConfig, client *Client) *OpenAIFetcher {
	if config.BaseURL == "" {
		config.BaseURL = defaultOpenAIBaseURL
	}
	return &OpenAIFetcher{config: config, client: client, now: time.Now}
}

func (f *OpenAIFetcher) Name() spend.Provider {
	return spend.ProviderOpenAI
}

type openAIUsageDatum struct {
	AggregationTimestamp  int64  `json:"aggregation_timestamp,omitempty"`
	Model                 string `json:"model,omitempty"`
	NContextTokensTotal   int64  `json:"n_context_tokens_total,omitempty"`
	NGeneratedTokensTotal int64  `json:"n_generated_tokens_total,omitempty"`
	Cost                  *struct {
		USD float64 `json:"usd,omitempty"`
	} `json:"cost,omitempty"`
	TimeBucket string `json:"time_bucket,omitempty"`
}

type openAIUsageResponse struct {
	Data     []openAIUsageDatum `json:"data"`
	NextPage string             `json:"next_page,omitempty"`
}

type openAICostDatum struct {
	Model           string `json:"model,omitempty"`
	TimePeriodStart string `json:"time_period_start,omitempty"`
	TotalCost       *struct {
		Amount   float64 `json:"amount,omitempty"`
		Currency string  `json:"currency,omitempty"`
	} `json:"total_cost,omitempty"`
}

type openAICostResponse struct {
	Data     []openAICostDatum `json:"data"`
	NextPage string            `json:"next_page,omitempty"`
}

func (f *OpenAIFetcher) headers() map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + f.config.APIKey,
		"Content-Type":  "application/json",
	}
	if f.config.OrgID != "" {
		headers["OpenAI-Organization"] = f.config.OrgID
	}
	return headers
}

func (f *OpenAIFetcher) endpointURL(endpoint string, opts FetchOptions, page string) string {
	values := url.Values{}
	values.Set("start_date", opts.From)
	values.Set("end_date", opts.To)
	if f.config.ProjectID != "" {
		values.Set("project_id", f.config.ProjectID)
	}
	if page != "" {
		values.Set("page", page)
	}
	return f.config.BaseURL + "/" + endpoint + "?" + values.Encode()
}

// fetchPaginated walks an endpoint's pages until next_page is exhausted,
// archiving every page verbatim.
func (f *OpenAIFetcher) fetchPaginated(ctx context.Context, endpoint string, opts FetchOptions) ([]json.RawMessage, []*rawstore.Page, error) {
	var payloads []json.RawMessage
	var pages []*rawstore.Page
	next := ""

	for {
		var probe struct {
			NextPage string `json:"next_page"`
		}
		raw, err := f.client.DoJSONRaw(ctx, string(spend.ProviderOpenAI), "GET",
			f.endpointURL(endpoint, opts, next), nil, f.headers(), &probe)
		if err != nil {
			return nil, nil, fmt.Errorf("openai %s fetch failed: %w", endpoint, err)
		}
		payloads = append(payloads, json.RawMessage(raw))
		pages = append(pages, rawstore.NewPage(spend.ProviderOpenAI, endpoint,
			f.now().UTC(), opts.From, opts.To, json.RawMessage(raw)))
		if probe.NextPage == "" {
			return payloads, pages, nil
		}
		next = probe.NextPage
	}
}

func (f *OpenAIFetcher) Fetch(ctx context.Context, opts FetchOptions) (*Result, error) {
	usagePayloads, usageRaw, err := f.fetchPaginated(ctx, "usage", opts)
	if err != nil {
		return nil, err
	}
	costPayloads, costRaw, err := f.fetchPaginated(ctx, "costs", opts)
	if err != nil {
		return nil, err
	}

	records, err := openAIRecords(usagePayloads, costPayloads)
	if err != nil {
		return nil, err
	}
	return &Result{Records: records, RawPages: append(usageRaw, costRaw...)}, nil
}

// OpenAIRecordsFromRaw rebuilds normalized records from archived pages,
// applying the same usage-then-costs merge as a live fetch.
func OpenAIRecordsFromRaw(pages []*rawstore.Page) ([]spend.Record, error) {
	var usagePayloads, costPayloads []json.RawMessage
	for _, page := range pages {
		switch page.Endpoint {
		case "usage":
			usagePayloads = append(usagePayloads, page.Payload)
		case "costs":
			costPayloads = append(costPayloads, page.Payload)
		}
	}
	return openAIRecords(usagePayloads, costPayloads)
}

func openAIRecords(usagePayloads, costPayloads []json.RawMessage) ([]spend.Record, error) {
	byKey := make(map[string]*spend.Record)

	for _, payload := range usagePayloads {
		var page openAIUsageResponse
		if err := json.Unmarshal(payload, &page); err != nil {
			return nil, &ParseError{Provider: string(spend.ProviderOpenAI), RawResponse: string(payload), Cause: err}
		}
		for _, datum := range page.Data {
			day := openAIUsageDay(datum)
			model := datum.Model
			if model == "" {
				model = spend.UnknownModel
			}
			key := model + "|" + day
			row, ok := byKey[key]
			if !ok {
				row = &spend.Record{
					Provider: spend.ProviderOpenAI,
					Model:    model,
					Day:      day,
					Currency: "USD",
					Source:   spend.SourceUsageAPI,
				}
				byKey[key] = row
			}
			if datum.NContextTokensTotal != 0 {
				addTokens(&row.InputTokens, datum.NContextTokensTotal)
			}
			if datum.NGeneratedTokensTotal != 0 {
				addTokens(&row.OutputTokens, datum.NGeneratedTokensTotal)
			}
			if datum.Cost != nil && datum.Cost.USD != 0 {
				row.CostUSD += datum.Cost.USD
			}
		}
	}

	for _, payload := range costPayloads {
		var page openAICostResponse
		if err := json.Unmarshal(payload, &page); err != nil {
			return nil, &ParseError{Provider: string(spend.ProviderOpenAI), RawResponse: string(payload), Cause: err}
		}
		for _, datum := range page.Data {
			day := ""
			if len(datum.TimePeriodStart) >= 10 {
				day = datum.TimePeriodStart[:10]
			}
			model := datum.Model
			if model == "" {
				model = spend.UnknownModel
			}
			var amount float64
			if datum.TotalCost != nil {
				amount = datum.TotalCost.Amount
			}
			dayKey := day
			if dayKey == "" {
				dayKey = "unknown"
			}
			if row, ok := byKey[model+"|"+dayKey]; ok {
				// The costs endpoint is authoritative for dollar amounts.
				row.CostUSD = amount
				if row.Source == spend.SourceUsageAPI {
					row.Source = spend.SourceCostAPI
				}
				continue
			}
			if day == "" {
				continue
			}
			byKey[model+"|"+day] = &spend.Record{
				Provider: spend.ProviderOpenAI,
				Model:    model,
				Day:      day,
				CostUSD:  amount,
				Currency: "USD",
				Source:   spend.SourceCostAPI,
			}
		}
	}

	records := make([]spend.Record, 0, len(byKey))
	for _, row := range byKey {
		row.CostUSD = round6(row.CostUSD)
		records = append(records, *row)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Day != records[j].Day {
			return records[i].Day < records[j].Day
		}
		return records[i].Model < records[j].Model
	})
	return records, nil
}

// openAIUsageDay resolves the day bucket of a usage datum: the legacy
// endpoint reports a unix aggregation timestamp, the newer one a time
// bucket string.
func openAIUsageDay(datum openAIUsageDatum) string {
	if datum.AggregationTimestamp != 0 {
		return spend.FormatDay(time.Unix(datum.AggregationTimestamp, 0).UTC())
	}
	if len(datum.TimeBucket) >= 10 {
		return datum.TimeBucket[:10]
	}
	return "unknown"
}

func addTokens(target **int64, delta int64) {
	if *target == nil {
		*target = new(int64)
	}
	**target += delta
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

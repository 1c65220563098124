package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2/google"

	"halcyon-hq/spendwatch/pkg/rawstore"
	"halcyon-hq/spendwatch/pkg/spend"
)

const (
	defaultBudgetsBaseURL  = "https://billingbudgets.googleapis.com/v1"
	defaultBigQueryBaseURL = "https://bigquery.googleapis.com/bigquery/v2"

	budgetScope   = "https://www.googleapis.com/auth/cloud-billing.read"
	bigQueryScope = "https://www.googleapis.com/auth/bigquery"
)

// VertexBigQueryConfig configures spend extraction from a billing export
// table in BigQuery.
type VertexBigQueryConfig struct {
	// ProjectID is the GCP project the query job runs in.
	ProjectID string

	// Dataset and Table locate the billing export table.
	Dataset string
	Table   string

	// ProjectFilter, when set, restricts rows to these billed project IDs.
	ProjectFilter []string

	// LabelFilters, when set, requires each label key/value pair to be
	// present on a row.
	LabelFilters map[string]string
}

// VertexConfig configures the Vertex AI spend fetcher. At least one of
// BudgetName and BigQuery must be set.
type VertexConfig struct {
	// ServiceAccountJSON is the GCP service account key, verbatim.
	ServiceAccountJSON string

	// BudgetName is the fully qualified billing budget resource name, e.g.
	// "billingAccounts/XXX/budgets/YYY". When set, spend is derived from
	// the budget's reported current spend.
	BudgetName string

	// BigQuery, when set, derives per-day spend from the billing export.
	BigQuery *VertexBigQueryConfig

	// BudgetsBaseURL and BigQueryBaseURL override the API bases, used in
	// tests.
	BudgetsBaseURL  string
	BigQueryBaseURL string

	// TokenURL overrides the OAuth token endpoint, used in tests.
	TokenURL string
}

// VertexFetcher derives Vertex AI spend from GCP billing. The budgets API
// only exposes a running total, so each fetch reports the positive delta
// against the previously archived budget page; the BigQuery export path
// reports exact per-day figures.
type VertexFetcher struct {
	config VertexConfig
	client *Client
	raw    rawstore.Store
	now    func() time.Time
}

// NewVertexFetcher creates a VertexFetcher. The raw store supplies the
// previous budget page for delta computation and may be nil, in which case
// the first fetch reports the full running total.
func NewVertexFetcher(config VertexConfig, client *Client, raw rawstore.Store) *VertexFetcher {
	if config.BudgetsBaseURL == "" {
		config.BudgetsBaseURL = defaultBudgetsBaseURL
	}
	if config.BigQueryBaseURL == "" {
		config.BigQueryBaseURL = defaultBigQueryBaseURL
	}
	return &VertexFetcher{config: config, client: client, raw: raw, now: time.Now}
}

func (f *VertexFetcher) Name() spend.Provider {
	return spend.ProviderVertex
}

type gcpAmount struct {
	Units string `json:"units,omitempty"`
	Nanos int64  `json:"nanos,omitempty"`
}

func (a *gcpAmount) Float() float64 {
	if a == nil {
		return 0
	}
	units, _ := strconv.ParseFloat(a.Units, 64)
	return units + float64(a.Nanos)/1e9
}

type budgetResponse struct {
	Name            string     `json:"name"`
	CurrentSpend    *gcpAmount `json:"currentSpend,omitempty"`
	AmountSpent     *gcpAmount `json:"amountSpent,omitempty"`
	ForecastedSpend *gcpAmount `json:"forecastedSpend,omitempty"`
}

func (b *budgetResponse) spent() float64 {
	if b.CurrentSpend != nil {
		return b.CurrentSpend.Float()
	}
	return b.AmountSpent.Float()
}

func (f *VertexFetcher) token(ctx context.Context, scope string) (string, error) {
	cfg, err := google.JWTConfigFromJSON([]byte(f.config.ServiceAccountJSON), scope)
	if err != nil {
		return "", fmt.Errorf("invalid service account JSON: %w", err)
	}
	if f.config.TokenURL != "" {
		cfg.TokenURL = f.config.TokenURL
	}
	tok, err := cfg.TokenSource(ctx).Token()
	if err != nil {
		return "", fmt.Errorf("failed to mint access token: %w", err)
	}
	return tok.AccessToken, nil
}

func (f *VertexFetcher) Fetch(ctx context.Context, opts FetchOptions) (*Result, error) {
	if f.config.BudgetName == "" && f.config.BigQuery == nil {
		return nil, &ProviderError{
			Provider: string(spend.ProviderVertex),
			Message:  "no budget name or BigQuery export configured",
		}
	}

	result := &Result{}
	if f.config.BudgetName != "" {
		records, page, err := f.fetchBudget(ctx, opts)
		if err != nil {
			return nil, err
		}
		result.Records = append(result.Records, records...)
		result.RawPages = append(result.RawPages, page)
	}
	if f.config.BigQuery != nil {
		records, page, err := f.fetchBigQuery(ctx, opts)
		if err != nil {
			return nil, err
		}
		result.Records = append(result.Records, records...)
		result.RawPages = append(result.RawPages, page)
	}
	return result, nil
}

func (f *VertexFetcher) fetchBudget(ctx context.Context, opts FetchOptions) ([]spend.Record, *rawstore.Page, error) {
	token, err := f.token(ctx, budgetScope)
	if err != nil {
		return nil, nil, err
	}

	var budget budgetResponse
	raw, err := f.client.DoJSONRaw(ctx, string(spend.ProviderVertex), "GET",
		f.config.BudgetsBaseURL+"/"+f.config.BudgetName, nil,
		map[string]string{"Authorization": "Bearer " + token}, &budget)
	if err != nil {
		return nil, nil, fmt.Errorf("vertex budget fetch failed: %w", err)
	}

	var previous *budgetResponse
	if f.raw != nil {
		prevPage, err := f.raw.Latest(ctx, spend.ProviderVertex, "budgets")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load previous budget page: %w", err)
		}
		if prevPage != nil {
			var prev budgetResponse
			if err := json.Unmarshal(prevPage.Payload, &prev); err == nil {
				previous = &prev
			}
		}
	}

	now := f.now().UTC()
	records := budgetRecords(&budget, now, previous)
	page := rawstore.NewPage(spend.ProviderVertex, "budgets", now, opts.From, opts.To, json.RawMessage(raw))
	return records, page, nil
}

// budgetRecords converts a running budget total into at most one delta
// record. A shrinking total (budget reset) yields nothing rather than a
// negative day.
func budgetRecords(budget *budgetResponse, fetchedAt time.Time, previous *budgetResponse) []spend.Record {
	current := budget.spent()
	delta := current
	if previous != nil {
		delta = current - previous.spent()
		if delta < 0 {
			delta = 0
		}
	}
	if delta <= 0 {
		return nil
	}
	return []spend.Record{{
		Provider: spend.ProviderVertex,
		Day:      spend.FormatDay(fetchedAt),
		CostUSD:  delta,
		Currency: "USD",
		Source:   spend.SourceBudgetsAPI,
	}}
}

// VertexBudgetRecordsFromRaw replays archived budget pages oldest-first,
// re-deriving the delta sequence.
func VertexBudgetRecordsFromRaw(pages []*rawstore.Page) ([]spend.Record, error) {
	sorted := make([]*rawstore.Page, 0, len(pages))
	for _, page := range pages {
		if page.Endpoint == "budgets" {
			sorted = append(sorted, page)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FetchedAt.Before(sorted[j].FetchedAt)
	})

	var records []spend.Record
	var previous *budgetResponse
	for _, page := range sorted {
		var budget budgetResponse
		if err := json.Unmarshal(page.Payload, &budget); err != nil {
			return nil, &ParseError{Provider: string(spend.ProviderVertex), RawResponse: string(page.Payload), Cause: err}
		}
		records = append(records, budgetRecords(&budget, page.FetchedAt, previous)...)
		prev := budget
		previous = &prev
	}
	return records, nil
}

type bqParameterType struct {
	Type      string           `json:"type"`
	ArrayType *bqParameterType `json:"arrayType,omitempty"`
}

type bqParameterValue struct {
	Value       string             `json:"value,omitempty"`
	ArrayValues []bqParameterValue `json:"arrayValues,omitempty"`
}

type bqParameter struct {
	Name           string           `json:"name"`
	ParameterType  bqParameterType  `json:"parameterType"`
	ParameterValue bqParameterValue `json:"parameterValue"`
}

type bqQueryRequest struct {
	UseLegacySQL    bool          `json:"useLegacySql"`
	Query           string        `json:"query"`
	ParameterMode   string        `json:"parameterMode"`
	QueryParameters []bqParameter `json:"queryParameters"`
}

type bqRowField struct {
	V string `json:"v"`
}

type bqRow struct {
	F []bqRowField `json:"f"`
}

type bqQueryResponse struct {
	JobComplete bool    `json:"jobComplete"`
	Rows        []bqRow `json:"rows,omitempty"`
}

// buildBigQueryRequest assembles a parameterized query over the billing
// export, summing Vertex AI SKU cost per day.
func buildBigQueryRequest(cfg *VertexBigQueryConfig, opts FetchOptions) bqQueryRequest {
	filters := []string{"LOWER(sku.description) LIKE 'vertex ai%'"}
	params := []bqParameter{
		{Name: "from", ParameterType: bqParameterType{Type: "STRING"}, ParameterValue: bqParameterValue{Value: opts.From}},
		{Name: "to", ParameterType: bqParameterType{Type: "STRING"}, ParameterValue: bqParameterValue{Value: opts.To}},
	}

	if len(cfg.ProjectFilter) > 0 {
		filters = append(filters, "project.id IN UNNEST(@projectIds)")
		values := make([]bqParameterValue, len(cfg.ProjectFilter))
		for i, id := range cfg.ProjectFilter {
			values[i] = bqParameterValue{Value: id}
		}
		params = append(params, bqParameter{
			Name:           "projectIds",
			ParameterType:  bqParameterType{Type: "ARRAY", ArrayType: &bqParameterType{Type: "STRING"}},
			ParameterValue: bqParameterValue{ArrayValues: values},
		})
	}

	// Label filters need stable parameter names, so sort keys.
	labelKeys := make([]string, 0, len(cfg.LabelFilters))
	for key := range cfg.LabelFilters {
		labelKeys = append(labelKeys, key)
	}
	sort.Strings(labelKeys)
	for i, key := range labelKeys {
		keyName := fmt.Sprintf("labelKey%d", i+1)
		valueName := fmt.Sprintf("labelValue%d", i+1)
		filters = append(filters, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM UNNEST(labels) AS label%d WHERE label%d.key = @%s AND label%d.value = @%s)",
			i+1, i+1, keyName, i+1, valueName))
		params = append(params,
			bqParameter{Name: keyName, ParameterType: bqParameterType{Type: "STRING"}, ParameterValue: bqParameterValue{Value: key}},
			bqParameter{Name: valueName, ParameterType: bqParameterType{Type: "STRING"}, ParameterValue: bqParameterValue{Value: cfg.LabelFilters[key]}},
		)
	}

	query := fmt.Sprintf(`
		SELECT
		  FORMAT_DATE('%%Y-%%m-%%d', DATE(usage_start_time)) AS day,
		  SUM(cost) AS cost_usd,
		  ANY_VALUE(currency) AS currency
		FROM `+"`%s.%s`"+`
		WHERE DATE(usage_start_time) BETWEEN @from AND @to
		  AND %s
		GROUP BY day
		ORDER BY day
	`, cfg.Dataset, cfg.Table, strings.Join(filters, " AND "))

	return bqQueryRequest{
		UseLegacySQL:    false,
		Query:           query,
		ParameterMode:   "NAMED",
		QueryParameters: params,
	}
}

func (f *VertexFetcher) fetchBigQuery(ctx context.Context, opts FetchOptions) ([]spend.Record, *rawstore.Page, error) {
	token, err := f.token(ctx, bigQueryScope)
	if err != nil {
		return nil, nil, err
	}

	request := buildBigQueryRequest(f.config.BigQuery, opts)
	var response bqQueryResponse
	raw, err := f.client.DoJSONRaw(ctx, string(spend.ProviderVertex), "POST",
		fmt.Sprintf("%s/projects/%s/queries", f.config.BigQueryBaseURL, f.config.BigQuery.ProjectID),
		request, map[string]string{"Authorization": "Bearer " + token}, &response)
	if err != nil {
		return nil, nil, fmt.Errorf("vertex bigquery fetch failed: %w", err)
	}

	now := f.now().UTC()
	page := rawstore.NewPage(spend.ProviderVertex, "bigquery", now, opts.From, opts.To, json.RawMessage(raw))
	return bigQueryRecords(&response, now), page, nil
}

func bigQueryRecords(response *bqQueryResponse, fetchedAt time.Time) []spend.Record {
	records := make([]spend.Record, 0, len(response.Rows))
	for _, row := range response.Rows {
		if len(row.F) < 3 {
			continue
		}
		day := row.F[0].V
		if day == "" {
			day = spend.FormatDay(fetchedAt)
		}
		cost, _ := strconv.ParseFloat(row.F[1].V, 64)
		currency := row.F[2].V
		if currency == "" {
			currency = "USD"
		}
		records = append(records, spend.Record{
			Provider: spend.ProviderVertex,
			Day:      day,
			CostUSD:  cost,
			Currency: currency,
			Source:   spend.SourceBQExport,
		})
	}
	return records
}

// VertexBigQueryRecordsFromRaw rebuilds records from archived BigQuery
// result pages.
func VertexBigQueryRecordsFromRaw(pages []*rawstore.Page) ([]spend.Record, error) {
	var records []spend.Record
	for _, page := range pages {
		if page.Endpoint != "bigquery" {
			continue
		}
		var response bqQueryResponse
		if err := json.Unmarshal(page.Payload, &response); err != nil {
			return nil, &ParseError{Provider: string(spend.ProviderVertex), RawResponse: string(page.Payload), Cause: err}
		}
		records = append(records, bigQueryRecords(&response, page.FetchedAt)...)
	}
	return records, nil
}

package spend

import "sort"

// GroupBy selects the bucket key used by Aggregate.
type GroupBy string

const (
	// GroupByNone produces one bucket per input record.
	GroupByNone GroupBy = ""
	// GroupByProvider buckets by provider.
	GroupByProvider GroupBy = "provider"
	// GroupByDay buckets by calendar day across all providers.
	GroupByDay GroupBy = "day"
	// GroupByModel buckets by provider+model composite.
	GroupByModel GroupBy = "model"
)

// ParseGroupBy maps a query-string value to a GroupBy, reporting whether the
// value is recognized. The empty string is valid and means no grouping.
func ParseGroupBy(s string) (GroupBy, bool) {
	switch GroupBy(s) {
	case GroupByNone, GroupByProvider, GroupByDay, GroupByModel:
		return GroupBy(s), true
	}
	return GroupByNone, false
}

// UnknownModel is the bucket label for records without a model when grouping
// by model. Such records are coerced into an "unknown" bucket, never dropped.
const UnknownModel = "unknown"

// Bucket is one aggregation group: a key, summed cost, summed token counts,
// and the constituent records.
//
// Token sums stay nil when no contributing record carries that field, so
// "no data" remains distinguishable from "zero usage".
type Bucket struct {
	Key          string   `json:"key"`
	Provider     Provider `json:"provider,omitempty"`
	Model        string   `json:"model,omitempty"`
	Day          string   `json:"day,omitempty"`
	CostUSD      float64  `json:"cost_usd"`
	InputTokens  *int64   `json:"input_tokens,omitempty"`
	OutputTokens *int64   `json:"output_tokens,omitempty"`
	Currency     string   `json:"currency"`
	Records      []Record `json:"records"`
}

// FilterByRange keeps records whose day is within [from, to] inclusive.
// Either bound may be empty to leave that side open.
func FilterByRange(records []Record, from, to string) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if from != "" && r.Day < from {
			continue
		}
		if to != "" && r.Day > to {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Aggregate groups records into buckets according to groupBy.
//
// GroupByNone passes records through one bucket each, preserving input order.
// All other groupings return buckets sorted ascending by bucket key.
func Aggregate(records []Record, groupBy GroupBy) []Bucket {
	if groupBy == GroupByNone {
		out := make([]Bucket, 0, len(records))
		for _, r := range records {
			b := Bucket{
				Key:      r.Key(),
				Provider: r.Provider,
				Model:    r.Model,
				Day:      r.Day,
				CostUSD:  r.CostUSD,
				Currency: "USD",
				Records:  []Record{r},
			}
			if r.InputTokens != nil {
				b.InputTokens = Tokens(*r.InputTokens)
			}
			if r.OutputTokens != nil {
				b.OutputTokens = Tokens(*r.OutputTokens)
			}
			out = append(out, b)
		}
		return out
	}

	buckets := make(map[string]*Bucket)
	for _, r := range records {
		var key string
		template := Bucket{Currency: "USD"}

		switch groupBy {
		case GroupByProvider:
			key = string(r.Provider)
			template.Provider = r.Provider
		case GroupByDay:
			key = r.Day
			template.Day = r.Day
			template.Provider = ProviderGlobal
		case GroupByModel:
			model := r.Model
			if model == "" {
				model = UnknownModel
			}
			key = string(r.Provider) + ":" + model
			template.Provider = r.Provider
			template.Model = model
		}

		b, ok := buckets[key]
		if !ok {
			template.Key = key
			b = &template
			buckets[key] = b
		}
		accumulate(b, r)
	}

	out := make([]Bucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func accumulate(b *Bucket, r Record) {
	b.CostUSD += r.CostUSD
	if r.InputTokens != nil {
		if b.InputTokens == nil {
			b.InputTokens = Tokens(0)
		}
		*b.InputTokens += *r.InputTokens
	}
	if r.OutputTokens != nil {
		if b.OutputTokens == nil {
			b.OutputTokens = Tokens(0)
		}
		*b.OutputTokens += *r.OutputTokens
	}
	b.Records = append(b.Records, r)
}

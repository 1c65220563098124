package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors for the spend engine.
// A nil *Metrics is safe to call; every method is a no-op on nil, so
// components can take metrics optionally.
type Metrics struct {
	recordsMerged   prometheus.Counter
	scopeSpend      *prometheus.GaugeVec
	capBreaches     *prometheus.CounterVec
	alertDeliveries *prometheus.CounterVec
	ingestRuns      *prometheus.CounterVec
	ingestDuration  prometheus.Histogram
	providerRows    *prometheus.CounterVec
}

// New creates the Metrics collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		recordsMerged: factory.NewCounter(prometheus.CounterOpts{
			Name: "spendwatch_records_merged_total",
			Help: "Total number of spend records merged into the rollup state",
		}),

		scopeSpend: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spendwatch_scope_spend_usd",
			Help: "Month-to-date spend in USD per cap scope, from the last evaluation",
		}, []string{"scope"}),

		capBreaches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spendwatch_cap_breaches_total",
			Help: "Total number of cap breaches observed during evaluation",
		}, []string{"scope", "level"}),

		alertDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spendwatch_alert_deliveries_total",
			Help: "Total number of alert delivery attempts per channel",
		}, []string{"channel", "result"}),

		ingestRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spendwatch_ingest_runs_total",
			Help: "Total number of ingestion cycles by outcome",
		}, []string{"status"}),

		ingestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "spendwatch_ingest_duration_seconds",
			Help:    "Duration of ingestion cycles in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		providerRows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spendwatch_provider_rows_total",
			Help: "Total number of normalized spend rows fetched per provider",
		}, []string{"provider"}),
	}
}

// RecordMerged counts records merged during an update.
func (m *Metrics) RecordMerged(n int) {
	if m == nil {
		return
	}
	m.recordsMerged.Add(float64(n))
}

// SetScopeSpend publishes the month-to-date total for a scope.
func (m *Metrics) SetScopeSpend(scope string, usd float64) {
	if m == nil {
		return
	}
	m.scopeSpend.WithLabelValues(scope).Set(usd)
}

// RecordBreach counts one observed cap breach.
func (m *Metrics) RecordBreach(scope, level string) {
	if m == nil {
		return
	}
	m.capBreaches.WithLabelValues(scope, level).Inc()
}

// RecordDelivery counts one alert delivery attempt.
func (m *Metrics) RecordDelivery(channel string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.alertDeliveries.WithLabelValues(channel, result).Inc()
}

// RecordIngestRun counts one ingestion cycle and its duration.
func (m *Metrics) RecordIngestRun(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ingestRuns.WithLabelValues(status).Inc()
	m.ingestDuration.Observe(duration.Seconds())
}

// RecordProviderRows counts normalized rows fetched from one provider.
func (m *Metrics) RecordProviderRows(provider string, n int) {
	if m == nil {
		return
	}
	m.providerRows.WithLabelValues(provider).Add(float64(n))
}

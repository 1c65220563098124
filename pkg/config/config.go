package config

import (
	"time"

	"halcyon-hq/spendwatch/pkg/alerts"
	"halcyon-hq/spendwatch/pkg/caps"
)

// Config is the root configuration for the spend monitor.
type Config struct {
	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`

	// Storage configures persistence.
	Storage StorageConfig `yaml:"storage"`

	// Ingest configures the scheduled ingestion cycle.
	Ingest IngestConfig `yaml:"ingest"`

	// Providers configures the upstream spend sources.
	Providers ProvidersConfig `yaml:"providers"`

	// Caps holds the monthly spend thresholds in USD.
	Caps caps.Config `yaml:"caps"`

	// Alerts configures alert delivery.
	Alerts AlertsConfig `yaml:"alerts"`

	// Telemetry configures logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// ListenAddress is the address the HTTP API binds to.
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout, WriteTimeout and IdleTimeout are the server timeouts.
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown when the server stops.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AdminToken protects the admin and test endpoints. When empty those
	// endpoints are disabled.
	AdminToken string `yaml:"admin_token"`
}

// StorageConfig contains persistence settings.
type StorageConfig struct {
	// Backend selects the storage backend: "sqlite" or "memory".
	Backend string `yaml:"backend"`

	// StatePath is the SQLite file holding engine state and snapshots.
	StatePath string `yaml:"state_path"`

	// RawPagesPath is the SQLite file archiving raw provider pages.
	RawPagesPath string `yaml:"raw_pages_path"`

	// RetentionDays bounds how long merged spend records are kept.
	RetentionDays int `yaml:"retention_days"`

	// RawTTLDays bounds how long raw provider pages are kept.
	RawTTLDays int `yaml:"raw_ttl_days"`
}

// IngestConfig contains scheduled ingestion settings.
type IngestConfig struct {
	// Schedule is a standard five-field cron expression. Empty disables
	// scheduled ingestion.
	Schedule string `yaml:"schedule"`

	// LookbackHours is the fetch window width in hours.
	LookbackHours int `yaml:"lookback_hours"`
}

// ProvidersConfig groups the per-provider settings.
type ProvidersConfig struct {
	OpenAI    OpenAIProviderConfig    `yaml:"openai"`
	Anthropic AnthropicProviderConfig `yaml:"anthropic"`
	Vertex    VertexProviderConfig    `yaml:"vertex"`
}

// OpenAIProviderConfig configures OpenAI ingestion.
type OpenAIProviderConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKey    string `yaml:"api_key"`
	OrgID     string `yaml:"org_id"`
	ProjectID string `yaml:"project_id"`
}

// AnthropicProviderConfig configures Anthropic ingestion.
type AnthropicProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	OrgID   string `yaml:"org_id"`
}

// VertexProviderConfig configures Vertex AI ingestion through GCP billing.
type VertexProviderConfig struct {
	// BillingAPIEnabled derives spend from the Billing Budgets API.
	BillingAPIEnabled bool `yaml:"billing_api_enabled"`

	// BigQueryEnabled derives spend from a billing export table.
	BigQueryEnabled bool `yaml:"bigquery_enabled"`

	// ServiceAccountJSON is the GCP service account key, verbatim.
	ServiceAccountJSON string `yaml:"service_account_json"`

	// BudgetName is the fully qualified budget resource name.
	BudgetName string `yaml:"budget_name"`

	// BigQueryProject, BigQueryDataset and BigQueryTable locate the
	// billing export.
	BigQueryProject string `yaml:"bigquery_project"`
	BigQueryDataset string `yaml:"bigquery_dataset"`
	BigQueryTable   string `yaml:"bigquery_table"`

	// ProjectFilter restricts export rows to these billed projects.
	ProjectFilter []string `yaml:"project_filter"`

	// LabelFilters requires each label key/value pair on export rows.
	LabelFilters map[string]string `yaml:"label_filters"`
}

// AlertsConfig contains alert delivery settings.
type AlertsConfig struct {
	// SlackWebhook receives Block Kit formatted breach alerts.
	SlackWebhook string `yaml:"slack_webhook"`

	// EmailWebhook receives subject/text/html breach alerts.
	EmailWebhook string `yaml:"email_webhook"`

	// HardCapWebhook receives machine-readable hard breach events.
	HardCapWebhook string `yaml:"hard_cap_webhook"`

	// DebounceWindow suppresses repeat alerts for the same scope and
	// level within the window.
	DebounceWindow time.Duration `yaml:"debounce_window"`
}

// Channels returns the alert channel set for dispatch.
func (a AlertsConfig) Channels() alerts.Channels {
	return alerts.Channels{
		SlackWebhook:   a.SlackWebhook,
		EmailWebhook:   a.EmailWebhook,
		HardCapWebhook: a.HardCapWebhook,
	}
}

// TelemetryConfig contains logging and metrics settings.
type TelemetryConfig struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is "json" or "text".
	LogFormat string `yaml:"log_format"`

	// MetricsEnabled exposes Prometheus metrics on /metrics.
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

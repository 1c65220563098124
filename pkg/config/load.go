package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Variables follow the naming
// convention SPENDWATCH_SECTION_FIELD (e.g. SPENDWATCH_OPENAI_API_KEY) and
// always take precedence over file values.
//
// The loading sequence is:
//  1. Load YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Server
	if val := os.Getenv("SPENDWATCH_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("SPENDWATCH_ADMIN_TOKEN"); val != "" {
		cfg.Server.AdminToken = val
	}

	// Storage
	if val := os.Getenv("SPENDWATCH_STORAGE_BACKEND"); val != "" {
		cfg.Storage.Backend = val
	}
	if val := os.Getenv("SPENDWATCH_STORAGE_STATE_PATH"); val != "" {
		cfg.Storage.StatePath = val
	}
	if val := os.Getenv("SPENDWATCH_STORAGE_RAW_PAGES_PATH"); val != "" {
		cfg.Storage.RawPagesPath = val
	}

	// Ingest
	if val := os.Getenv("SPENDWATCH_INGEST_SCHEDULE"); val != "" {
		cfg.Ingest.Schedule = val
	}
	if val := os.Getenv("SPENDWATCH_INGEST_LOOKBACK_HOURS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Ingest.LookbackHours = i
		}
	}

	// Providers
	if val := os.Getenv("SPENDWATCH_OPENAI_ENABLED"); val != "" {
		cfg.Providers.OpenAI.Enabled = parseBool(val)
	}
	if val := os.Getenv("SPENDWATCH_OPENAI_API_KEY"); val != "" {
		cfg.Providers.OpenAI.APIKey = val
	}
	if val := os.Getenv("SPENDWATCH_OPENAI_ORG_ID"); val != "" {
		cfg.Providers.OpenAI.OrgID = val
	}
	if val := os.Getenv("SPENDWATCH_OPENAI_PROJECT_ID"); val != "" {
		cfg.Providers.OpenAI.ProjectID = val
	}
	if val := os.Getenv("SPENDWATCH_ANTHROPIC_ENABLED"); val != "" {
		cfg.Providers.Anthropic.Enabled = parseBool(val)
	}
	if val := os.Getenv("SPENDWATCH_ANTHROPIC_API_KEY"); val != "" {
		cfg.Providers.Anthropic.APIKey = val
	}
	if val := os.Getenv("SPENDWATCH_ANTHROPIC_ORG_ID"); val != "" {
		cfg.Providers.Anthropic.OrgID = val
	}
	if val := os.Getenv("SPENDWATCH_GCP_BILLING_API_ENABLED"); val != "" {
		cfg.Providers.Vertex.BillingAPIEnabled = parseBool(val)
	}
	if val := os.Getenv("SPENDWATCH_GCP_BIGQUERY_ENABLED"); val != "" {
		cfg.Providers.Vertex.BigQueryEnabled = parseBool(val)
	}
	if val := os.Getenv("SPENDWATCH_GCP_SA_JSON"); val != "" {
		cfg.Providers.Vertex.ServiceAccountJSON = val
	}
	if val := os.Getenv("SPENDWATCH_GCP_BUDGET_NAME"); val != "" {
		cfg.Providers.Vertex.BudgetName = val
	}
	if val := os.Getenv("SPENDWATCH_GCP_BQ_PROJECT"); val != "" {
		cfg.Providers.Vertex.BigQueryProject = val
	}
	if val := os.Getenv("SPENDWATCH_GCP_BQ_DATASET"); val != "" {
		cfg.Providers.Vertex.BigQueryDataset = val
	}
	if val := os.Getenv("SPENDWATCH_GCP_BQ_TABLE"); val != "" {
		cfg.Providers.Vertex.BigQueryTable = val
	}

	// Caps
	applyCapOverride("SPENDWATCH_OPENAI_SOFT_CAP", &cfg.Caps.OpenAISoft)
	applyCapOverride("SPENDWATCH_OPENAI_HARD_CAP", &cfg.Caps.OpenAIHard)
	applyCapOverride("SPENDWATCH_ANTHROPIC_SOFT_CAP", &cfg.Caps.AnthropicSoft)
	applyCapOverride("SPENDWATCH_ANTHROPIC_HARD_CAP", &cfg.Caps.AnthropicHard)
	applyCapOverride("SPENDWATCH_VERTEX_SOFT_CAP", &cfg.Caps.VertexSoft)
	applyCapOverride("SPENDWATCH_VERTEX_HARD_CAP", &cfg.Caps.VertexHard)
	applyCapOverride("SPENDWATCH_GLOBAL_SOFT_CAP", &cfg.Caps.GlobalSoft)
	applyCapOverride("SPENDWATCH_GLOBAL_HARD_CAP", &cfg.Caps.GlobalHard)

	// Alerts
	if val := os.Getenv("SPENDWATCH_SLACK_WEBHOOK_URL"); val != "" {
		cfg.Alerts.SlackWebhook = val
	}
	if val := os.Getenv("SPENDWATCH_ALERT_EMAIL_WEBHOOK"); val != "" {
		cfg.Alerts.EmailWebhook = val
	}
	if val := os.Getenv("SPENDWATCH_ON_HARDCAP_WEBHOOK"); val != "" {
		cfg.Alerts.HardCapWebhook = val
	}
	if val := os.Getenv("SPENDWATCH_ALERT_DEBOUNCE_WINDOW"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Alerts.DebounceWindow = d
		}
	}

	// Telemetry
	if val := os.Getenv("SPENDWATCH_LOG_LEVEL"); val != "" {
		cfg.Telemetry.LogLevel = val
	}
	if val := os.Getenv("SPENDWATCH_LOG_FORMAT"); val != "" {
		cfg.Telemetry.LogFormat = val
	}
	if val := os.Getenv("SPENDWATCH_METRICS_ENABLED"); val != "" {
		cfg.Telemetry.MetricsEnabled = parseBool(val)
	}
}

func applyCapOverride(name string, target *float64) {
	if val := os.Getenv(name); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*target = f
		}
	}
}

func parseBool(val string) bool {
	return strings.EqualFold(val, "true") || val == "1"
}

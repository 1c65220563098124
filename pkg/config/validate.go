package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "storage.backend").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateIngest(&cfg.Ingest)...)
	errs = append(errs, validateProviders(&cfg.Providers)...)
	errs = append(errs, validateCaps(cfg)...)
	errs = append(errs, validateAlerts(&cfg.Alerts)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError
	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{"server.listen_address", "must not be empty"})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{"server.read_timeout", "must not be negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{"server.write_timeout", "must not be negative"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{"server.shutdown_timeout", "must not be negative"})
	}
	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError
	switch cfg.Backend {
	case "sqlite", "memory":
	default:
		errs = append(errs, FieldError{"storage.backend",
			fmt.Sprintf("unknown backend %q, must be \"sqlite\" or \"memory\"", cfg.Backend)})
	}
	if cfg.Backend == "sqlite" {
		if cfg.StatePath == "" {
			errs = append(errs, FieldError{"storage.state_path", "must not be empty for the sqlite backend"})
		}
		if cfg.RawPagesPath == "" {
			errs = append(errs, FieldError{"storage.raw_pages_path", "must not be empty for the sqlite backend"})
		}
	}
	if cfg.RetentionDays < 0 {
		errs = append(errs, FieldError{"storage.retention_days", "must not be negative"})
	}
	if cfg.RawTTLDays < 0 {
		errs = append(errs, FieldError{"storage.raw_ttl_days", "must not be negative"})
	}
	return errs
}

func validateIngest(cfg *IngestConfig) []FieldError {
	var errs []FieldError
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{"ingest.schedule", fmt.Sprintf("invalid cron expression: %v", err)})
		}
	}
	if cfg.LookbackHours < 0 {
		errs = append(errs, FieldError{"ingest.lookback_hours", "must not be negative"})
	}
	return errs
}

func validateProviders(cfg *ProvidersConfig) []FieldError {
	var errs []FieldError
	if cfg.OpenAI.Enabled && cfg.OpenAI.APIKey == "" {
		errs = append(errs, FieldError{"providers.openai.api_key", "required when the provider is enabled"})
	}
	if cfg.Anthropic.Enabled && cfg.Anthropic.APIKey == "" {
		errs = append(errs, FieldError{"providers.anthropic.api_key", "required when the provider is enabled"})
	}
	if cfg.Vertex.BillingAPIEnabled || cfg.Vertex.BigQueryEnabled {
		if cfg.Vertex.ServiceAccountJSON == "" {
			errs = append(errs, FieldError{"providers.vertex.service_account_json", "required when a Vertex source is enabled"})
		}
	}
	if cfg.Vertex.BillingAPIEnabled && cfg.Vertex.BudgetName == "" {
		errs = append(errs, FieldError{"providers.vertex.budget_name", "required when the billing API source is enabled"})
	}
	if cfg.Vertex.BigQueryEnabled {
		if cfg.Vertex.BigQueryProject == "" {
			errs = append(errs, FieldError{"providers.vertex.bigquery_project", "required when the BigQuery source is enabled"})
		}
		if cfg.Vertex.BigQueryDataset == "" {
			errs = append(errs, FieldError{"providers.vertex.bigquery_dataset", "required when the BigQuery source is enabled"})
		}
		if cfg.Vertex.BigQueryTable == "" {
			errs = append(errs, FieldError{"providers.vertex.bigquery_table", "required when the BigQuery source is enabled"})
		}
	}
	return errs
}

func validateCaps(cfg *Config) []FieldError {
	var errs []FieldError
	if err := cfg.Caps.Validate(); err != nil {
		errs = append(errs, FieldError{"caps", err.Error()})
	}
	return errs
}

func validateAlerts(cfg *AlertsConfig) []FieldError {
	var errs []FieldError
	for field, value := range map[string]string{
		"alerts.slack_webhook":    cfg.SlackWebhook,
		"alerts.email_webhook":    cfg.EmailWebhook,
		"alerts.hard_cap_webhook": cfg.HardCapWebhook,
	} {
		if value == "" {
			continue
		}
		parsed, err := url.Parse(value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, FieldError{field, fmt.Sprintf("invalid webhook URL %q", value)})
		}
	}
	if cfg.DebounceWindow < 0 {
		errs = append(errs, FieldError{"alerts.debounce_window", "must not be negative"})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{"telemetry.log_level",
			fmt.Sprintf("unknown level %q, must be debug, info, warn, or error", cfg.LogLevel)})
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, FieldError{"telemetry.log_format",
			fmt.Sprintf("unknown format %q, must be json or text", cfg.LogFormat)})
	}
	return errs
}

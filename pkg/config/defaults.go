package config

import (
	"time"

	"halcyon-hq/spendwatch/pkg/alerts"
	"halcyon-hq/spendwatch/pkg/ingest"
	"halcyon-hq/spendwatch/pkg/rawstore"
	"halcyon-hq/spendwatch/pkg/spend"
)

// DefaultConfig returns a configuration populated with defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in default values for any unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.StatePath == "" {
		cfg.Storage.StatePath = "data/spendwatch.db"
	}
	if cfg.Storage.RawPagesPath == "" {
		cfg.Storage.RawPagesPath = "data/rawpages.db"
	}
	if cfg.Storage.RetentionDays == 0 {
		cfg.Storage.RetentionDays = spend.DefaultRetentionDays
	}
	if cfg.Storage.RawTTLDays == 0 {
		cfg.Storage.RawTTLDays = rawstore.DefaultTTLDays
	}

	if cfg.Ingest.Schedule == "" {
		cfg.Ingest.Schedule = "*/30 * * * *"
	}
	if cfg.Ingest.LookbackHours == 0 {
		cfg.Ingest.LookbackHours = ingest.DefaultLookbackHours
	}

	if cfg.Alerts.DebounceWindow == 0 {
		cfg.Alerts.DebounceWindow = alerts.DefaultDebounceWindow
	}

	if cfg.Telemetry.LogLevel == "" {
		cfg.Telemetry.LogLevel = "info"
	}
	if cfg.Telemetry.LogFormat == "" {
		cfg.Telemetry.LogFormat = "json"
	}
}

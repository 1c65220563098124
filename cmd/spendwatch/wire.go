package main

import (
	"fmt"
	"log/slog"

	"halcyon-hq/spendwatch/pkg/config"
	"halcyon-hq/spendwatch/pkg/providers"
	"halcyon-hq/spendwatch/pkg/rawstore"
	"halcyon-hq/spendwatch/pkg/rollup/storage"
	"halcyon-hq/spendwatch/pkg/telemetry/logging"
)

// loadConfig loads the config file with environment overrides and applies
// the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Telemetry.LogLevel = "debug"
	}
	return cfg, nil
}

// setupLogging installs the configured logger as the process default.
func setupLogging(cfg *config.Config) (*slog.Logger, error) {
	return logging.Setup(logging.Config{
		Level:  cfg.Telemetry.LogLevel,
		Format: cfg.Telemetry.LogFormat,
	})
}

// openStores opens the rollup state backend and the raw page archive.
func openStores(cfg *config.Config) (storage.Backend, rawstore.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		backend, err := storage.NewSQLiteBackend(cfg.Storage.StatePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open state database: %w", err)
		}
		rawCfg := rawstore.DefaultSQLiteConfig()
		rawCfg.Path = cfg.Storage.RawPagesPath
		raw, err := rawstore.NewSQLiteStore(rawCfg)
		if err != nil {
			backend.Close()
			return nil, nil, fmt.Errorf("failed to open raw page database: %w", err)
		}
		return backend, raw, nil
	case "memory":
		return storage.NewMemoryBackend(), rawstore.NewMemoryStore(), nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

// buildFetchers creates one fetcher per enabled provider.
func buildFetchers(cfg *config.Config, raw rawstore.Store) []providers.Fetcher {
	client := providers.NewClient(providers.ClientConfig{})
	var fetchers []providers.Fetcher

	if cfg.Providers.OpenAI.Enabled {
		fetchers = append(fetchers, providers.NewOpenAIFetcher(providers.OpenAIConfig{
			APIKey:    cfg.Providers.OpenAI.APIKey,
			OrgID:     cfg.Providers.OpenAI.OrgID,
			ProjectID: cfg.Providers.OpenAI.ProjectID,
		}, client))
	}

	if cfg.Providers.Anthropic.Enabled {
		fetchers = append(fetchers, providers.NewAnthropicFetcher(providers.AnthropicConfig{
			APIKey: cfg.Providers.Anthropic.APIKey,
			OrgID:  cfg.Providers.Anthropic.OrgID,
		}, client))
	}

	vertex := cfg.Providers.Vertex
	if vertex.BillingAPIEnabled || vertex.BigQueryEnabled {
		vc := providers.VertexConfig{
			ServiceAccountJSON: vertex.ServiceAccountJSON,
		}
		if vertex.BillingAPIEnabled {
			vc.BudgetName = vertex.BudgetName
		}
		if vertex.BigQueryEnabled {
			vc.BigQuery = &providers.VertexBigQueryConfig{
				ProjectID:     vertex.BigQueryProject,
				Dataset:       vertex.BigQueryDataset,
				Table:         vertex.BigQueryTable,
				ProjectFilter: vertex.ProjectFilter,
				LabelFilters:  vertex.LabelFilters,
			}
		}
		fetchers = append(fetchers, providers.NewVertexFetcher(vc, client, raw))
	}

	return fetchers
}

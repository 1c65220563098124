package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"halcyon-hq/spendwatch/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without starting the monitor.

Validation applies defaults and environment overrides first, so the result
reflects the effective runtime configuration. Every violation is reported,
not just the first.

Examples:
  # Validate the default config file
  spendwatch validate

  # Validate a specific file
  spendwatch validate --config /etc/spendwatch/config.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			fmt.Printf("✗ %s is invalid:\n", cfgFile)
			for _, fe := range verr.Errors {
				fmt.Printf("  - %s: %s\n", fe.Field, fe.Message)
			}
			return fmt.Errorf("%d validation error(s)", len(verr.Errors))
		}
		return err
	}

	fmt.Printf("✓ %s is valid\n", cfgFile)
	fmt.Printf("  listen address: %s\n", cfg.Server.ListenAddress)
	fmt.Printf("  storage backend: %s\n", cfg.Storage.Backend)
	fmt.Printf("  ingest schedule: %s\n", cfg.Ingest.Schedule)

	enabled := 0
	if cfg.Providers.OpenAI.Enabled {
		enabled++
	}
	if cfg.Providers.Anthropic.Enabled {
		enabled++
	}
	if cfg.Providers.Vertex.BillingAPIEnabled || cfg.Providers.Vertex.BigQueryEnabled {
		enabled++
	}
	fmt.Printf("  providers enabled: %d\n", enabled)
	return nil
}

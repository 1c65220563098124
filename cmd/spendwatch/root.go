package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "spendwatch",
	Short: "Spendwatch - AI provider spend monitor",
	Long: `Spendwatch is a stateful spend monitor for AI providers.

It periodically pulls usage and cost data from OpenAI, Anthropic, and
Google Vertex AI billing, merges it into an idempotent month-to-date
rollup, evaluates soft and hard spend caps, and raises debounced alerts
over Slack, email, and hard-cap webhooks.

Raw provider responses are archived verbatim, so the entire rollup can be
recomputed from first principles at any time.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

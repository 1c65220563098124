// Spendwatch is a stateful AI provider spend monitor.
//
// It periodically pulls usage and cost data from OpenAI, Anthropic, and
// Google Vertex AI billing, merges it into an idempotent month-to-date
// rollup, evaluates soft and hard spend caps, and raises debounced alerts
// over Slack, email, and hard-cap webhooks.
//
// Usage:
//
//	# Start the monitor with default configuration
//	spendwatch run
//
//	# Start with a custom configuration file
//	spendwatch run --config /etc/spendwatch/config.yaml
//
//	# Run a single ingestion cycle and exit
//	spendwatch ingest
//
//	# Validate a configuration file
//	spendwatch validate --config config.yaml
//
//	# Show version information
//	spendwatch version
package main

func main() {
	Execute()
}

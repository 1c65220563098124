// Package providers contains the upstream spend fetchers: OpenAI usage and
// costs endpoints, the Anthropic usage report, and GCP billing for Vertex AI
// via the Budgets API or a BigQuery billing export. All fetchers share a
// retrying HTTP client, normalize into spend records, and hand back the
// verbatim response pages for archival and later replay.
package providers

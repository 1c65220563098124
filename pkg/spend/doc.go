// Package spend holds the normalized spend record model, the merge engine,
// and the aggregator.
//
// # Records
//
// A Record is one provider/model/day cost observation, uniquely identified
// by (provider, day, model). Records are produced by the provider adapters
// and merged into the rollup actor's record set on each ingestion cycle.
//
// # Merging
//
// Merge implements last-write-wins deduplication: an incoming record always
// replaces an existing record with the same key, never sums into it. Records
// older than the retention horizon are pruned at merge time. Merge is
// idempotent for a fixed incoming batch and timestamp.
//
// # Aggregation
//
// Aggregate groups records for reporting by provider, day, or provider+model
// composite (or passes them through ungrouped). Day buckets carry the
// "global" sentinel provider since they sum across providers. Token sums are
// omitted, not zeroed, when no contributing record reported tokens.
package spend

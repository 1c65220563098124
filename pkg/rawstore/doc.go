// Package rawstore archives verbatim provider API responses. Pages are kept
// for a bounded TTL so that ingestion can be audited, and so that the merged
// record set can be rebuilt by replaying stored pages instead of re-fetching.
package rawstore

package providers

import (
	"context"

	"halcyon-hq/spendwatch/pkg/rawstore"
	"halcyon-hq/spendwatch/pkg/spend"
)

// FetchOptions bounds a fetch to an inclusive day window.
type FetchOptions struct {
	// From is the first day of the window, YYYY-MM-DD.
	From string

	// To is the last day of the window, YYYY-MM-DD.
	To string
}

// Result is the outcome of one provider fetch: normalized records plus the
// verbatim response pages they were derived from. The pages are archived so
// the records can later be rebuilt without re-contacting the provider.
type Result struct {
	Records  []spend.Record
	RawPages []*rawstore.Page
}

// Fetcher retrieves and normalizes spend data from one upstream provider.
//
// Implementations must respect context cancellation and return promptly when
// the context is cancelled.
type Fetcher interface {
	// Name returns the provider this fetcher serves.
	Name() spend.Provider

	// Fetch retrieves spend for the given window.
	Fetch(ctx context.Context, opts FetchOptions) (*Result, error)
}

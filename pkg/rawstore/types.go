package rawstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"halcyon-hq/spendwatch/pkg/spend"
)

// DefaultTTLDays is how long raw provider pages are retained before pruning.
const DefaultTTLDays = 90

// Page is one verbatim provider API response, kept so that ingestion can be
// audited and replayed without re-contacting the provider.
type Page struct {
	// ID uniquely identifies the page.
	ID string `json:"id"`

	// Provider is the provider the page was fetched from.
	Provider spend.Provider `json:"provider"`

	// Endpoint names the provider API surface the page came from, e.g.
	// "usage", "costs", "budgets".
	Endpoint string `json:"endpoint"`

	// FetchedAt is when the page was retrieved.
	FetchedAt time.Time `json:"fetched_at"`

	// WindowFrom and WindowTo bound the day range the fetch requested,
	// inclusive, in YYYY-MM-DD form.
	WindowFrom string `json:"window_from"`
	WindowTo   string `json:"window_to"`

	// Payload is the unmodified response body.
	Payload json.RawMessage `json:"payload"`
}

// NewPage builds a Page with a fresh identifier.
func NewPage(provider spend.Provider, endpoint string, fetchedAt time.Time, windowFrom, windowTo string, payload json.RawMessage) *Page {
	return &Page{
		ID:         uuid.New().String(),
		Provider:   provider,
		Endpoint:   endpoint,
		FetchedAt:  fetchedAt,
		WindowFrom: windowFrom,
		WindowTo:   windowTo,
		Payload:    payload,
	}
}

// ListOptions filters List results.
type ListOptions struct {
	// Provider restricts results to one provider. Empty matches all.
	Provider spend.Provider

	// Endpoint restricts results to one endpoint. Empty matches all.
	Endpoint string

	// Limit caps the number of pages returned. Zero means no cap.
	Limit int

	// Offset skips that many pages, for cursor-style paging.
	Offset int
}

// Store archives raw provider responses.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Put persists a page.
	Put(ctx context.Context, page *Page) error

	// Get returns a page by ID, or nil if it does not exist.
	Get(ctx context.Context, id string) (*Page, error)

	// List returns pages matching opts, newest fetch first.
	List(ctx context.Context, opts ListOptions) ([]*Page, error)

	// Latest returns the most recently fetched page for a provider and
	// endpoint, or nil if none exists.
	Latest(ctx context.Context, provider spend.Provider, endpoint string) (*Page, error)

	// Prune deletes pages fetched more than ttlDays before now and
	// returns how many were removed.
	Prune(ctx context.Context, now time.Time, ttlDays int) (int, error)

	// Close releases resources held by the store.
	Close() error
}

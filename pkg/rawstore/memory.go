package rawstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"halcyon-hq/spendwatch/pkg/spend"
)

// MemoryStore is an in-memory Store for tests and ephemeral deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	pages  map[string]*Page
	closed bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pages: make(map[string]*Page)}
}

func (s *MemoryStore) Put(ctx context.Context, page *Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	clone := *page
	s.pages[page.ID] = &clone
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[id]
	if !ok {
		return nil, nil
	}
	clone := *page
	return &clone, nil
}

func (s *MemoryStore) List(ctx context.Context, opts ListOptions) ([]*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Page
	for _, page := range s.pages {
		if opts.Provider != "" && page.Provider != opts.Provider {
			continue
		}
		if opts.Endpoint != "" && page.Endpoint != opts.Endpoint {
			continue
		}
		clone := *page
		matched = append(matched, &clone)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].FetchedAt.Equal(matched[j].FetchedAt) {
			return matched[i].FetchedAt.After(matched[j].FetchedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

func (s *MemoryStore) Latest(ctx context.Context, provider spend.Provider, endpoint string) (*Page, error) {
	pages, err := s.List(ctx, ListOptions{Provider: provider, Endpoint: endpoint, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, nil
	}
	return pages[0], nil
}

func (s *MemoryStore) Prune(ctx context.Context, now time.Time, ttlDays int) (int, error) {
	if ttlDays <= 0 {
		ttlDays = DefaultTTLDays
	}
	cutoff := now.AddDate(0, 0, -ttlDays)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, page := range s.pages {
		if page.FetchedAt.Before(cutoff) {
			delete(s.pages, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

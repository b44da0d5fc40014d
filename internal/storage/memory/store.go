// Package memory keeps listings, runs and blobs in-process for tests and
// local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/car-listing-crawler/internal/crawler"
)

// Store is an in-memory crawler.ListingStore and crawler.RunLog.
type Store struct {
	mu       sync.RWMutex
	listings map[string]crawler.Listing
	runs     []crawler.RunSummary
	closed   bool
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{listings: make(map[string]crawler.Listing)}
}

// Upsert stores the listing, replacing any previous record for its URL.
func (s *Store) Upsert(_ context.Context, listing crawler.Listing) error {
	if listing.URL == "" {
		return fmt.Errorf("listing url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store closed")
	}
	s.listings[listing.URL] = listing
	return nil
}

// UpsertBatch applies all listings or none of them.
func (s *Store) UpsertBatch(_ context.Context, listings []crawler.Listing) error {
	for _, l := range listings {
		if l.URL == "" {
			return fmt.Errorf("commit batch: listing url is required")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store closed")
	}
	for _, l := range listings {
		s.listings[l.URL] = l
	}
	return nil
}

// Get returns the listing stored under url or crawler.ErrNotFound.
func (s *Store) Get(_ context.Context, url string) (crawler.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[url]
	if !ok {
		return crawler.Listing{}, crawler.ErrNotFound
	}
	return l, nil
}

// Each calls fn for every listing ordered by url.
func (s *Store) Each(ctx context.Context, fn func(crawler.Listing) error) error {
	s.mu.RLock()
	urls := make([]string, 0, len(s.listings))
	for u := range s.listings {
		urls = append(urls, u)
	}
	snapshot := make(map[string]crawler.Listing, len(s.listings))
	for u, l := range s.listings {
		snapshot[u] = l
	}
	s.mu.RUnlock()

	sort.Strings(urls)
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("iterate listings: %w", err)
		}
		if err := fn(snapshot[u]); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of stored listings.
func (s *Store) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.listings)), nil
}

// Close marks the store closed; later writes fail.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// StartRun records a running run.
func (s *Store) StartRun(_ context.Context, summary crawler.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.RunID == summary.RunID {
			return nil
		}
	}
	summary.Status = crawler.RunRunning
	s.runs = append(s.runs, summary)
	return nil
}

// FinishRun replaces the stored record for the run.
func (s *Store) FinishRun(_ context.Context, summary crawler.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.runs {
		if r.RunID == summary.RunID {
			s.runs[i] = summary
			return nil
		}
	}
	s.runs = append(s.runs, summary)
	return nil
}

// LastRun returns the most recently started run or crawler.ErrNotFound.
func (s *Store) LastRun(_ context.Context) (crawler.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return crawler.RunSummary{}, crawler.ErrNotFound
	}
	last := s.runs[0]
	for _, r := range s.runs[1:] {
		if !r.StartedAt.Before(last.StartedAt) {
			last = r
		}
	}
	return last, nil
}

package crawler

import (
	"context"
	"fmt"
	"sync"
)

// StoreSink commits each accepted listing immediately.
type StoreSink struct {
	store ListingStore
}

// NewStoreSink wraps store in a per-record Sink.
func NewStoreSink(store ListingStore) *StoreSink {
	return &StoreSink{store: store}
}

// Accept upserts the listing in its own commit.
func (s *StoreSink) Accept(ctx context.Context, listing Listing) error {
	if err := s.store.Upsert(ctx, listing); err != nil {
		return fmt.Errorf("upsert %s: %w", listing.URL, err)
	}
	return nil
}

// BatchSink buffers listings until Flush commits them in one transaction.
// A later listing for the same URL replaces the earlier one.
type BatchSink struct {
	mu       sync.Mutex
	listings []Listing
	index    map[string]int
}

// NewBatchSink returns an empty BatchSink.
func NewBatchSink() *BatchSink {
	return &BatchSink{index: make(map[string]int)}
}

// Accept buffers the listing.
func (s *BatchSink) Accept(_ context.Context, listing Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[listing.URL]; ok {
		s.listings[i] = listing
		return nil
	}
	s.index[listing.URL] = len(s.listings)
	s.listings = append(s.listings, listing)
	return nil
}

// Len returns the number of buffered listings.
func (s *BatchSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listings)
}

// Flush writes all buffered listings to store in one batch and clears the buffer
// on success.
func (s *BatchSink) Flush(ctx context.Context, store ListingStore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listings) == 0 {
		return nil
	}
	if err := store.UpsertBatch(ctx, s.listings); err != nil {
		return fmt.Errorf("commit batch of %d listings: %w", len(s.listings), err)
	}
	s.listings = nil
	s.index = make(map[string]int)
	return nil
}

package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves a URL and returns the body plus metadata. Timeouts and
// non-success statuses are reported as errors.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// ListingStore persists listings keyed by URL with insert-or-replace semantics.
type ListingStore interface {
	Upsert(ctx context.Context, listing Listing) error
	UpsertBatch(ctx context.Context, listings []Listing) error
	Get(ctx context.Context, url string) (Listing, error)
	Each(ctx context.Context, fn func(Listing) error) error
	Count(ctx context.Context) (int64, error)
	Close()
}

// ListingReader is the read side of a ListingStore.
type ListingReader interface {
	Get(ctx context.Context, url string) (Listing, error)
}

// RunLog records the lifecycle of pipeline runs.
type RunLog interface {
	StartRun(ctx context.Context, summary RunSummary) error
	FinishRun(ctx context.Context, summary RunSummary) error
	LastRun(ctx context.Context) (RunSummary, error)
}

// Sink accepts extracted listings from workers.
type Sink interface {
	Accept(ctx context.Context, listing Listing) error
}

// PhoneRevealer renders a detail page and returns the revealed phone number.
type PhoneRevealer interface {
	Reveal(ctx context.Context, rawURL string) (string, error)
}

// BlobStore writes an object read from r and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes run summaries to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

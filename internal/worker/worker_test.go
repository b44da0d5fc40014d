package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/car-listing-crawler/internal/crawler"
)

func TestProcessorSuccessFlow(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/auto_1.html": "BMW X5",
	}}
	sink := &recordingSink{}
	counters := &crawler.Counters{}
	proc := NewProcessor(fetcher, titleExtractor{}, nil, sink, counters, Config{Timeout: time.Second}, zap.NewNop())

	require.NoError(t, proc.Process(context.Background(), "https://example.com/auto_1.html"))

	require.Len(t, sink.listings, 1)
	assert.Equal(t, "https://example.com/auto_1.html", sink.listings[0].URL)
	assert.Equal(t, "BMW X5", *sink.listings[0].Title)
	assert.Nil(t, sink.listings[0].PhoneNumber)
	assert.Equal(t, int64(1), counters.Fetched.Load())
	assert.Equal(t, int64(1), counters.Stored.Load())
}

func TestProcessorFetchFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{errs: map[string]error{
		"https://example.com/bad": fmt.Errorf("%w: 500", crawler.ErrUnexpectedStatus),
	}}
	sink := &recordingSink{}
	counters := &crawler.Counters{}
	proc := NewProcessor(fetcher, titleExtractor{}, nil, sink, counters, Config{}, nil)

	require.NoError(t, proc.Process(context.Background(), "https://example.com/bad"))
	assert.Empty(t, sink.listings)
	assert.Equal(t, int64(1), counters.FetchFailed.Load())
	assert.Equal(t, int64(0), counters.Stored.Load())
}

func TestProcessorTimeoutIsFetchFailure(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{block: true}
	counters := &crawler.Counters{}
	proc := NewProcessor(fetcher, titleExtractor{}, nil, &recordingSink{}, counters, Config{Timeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	require.NoError(t, proc.Process(context.Background(), "https://example.com/slow"))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(1), counters.FetchFailed.Load())
}

func TestProcessorSinkFailureIsReturned(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{"https://example.com/a": "A"}}
	sink := &recordingSink{err: errors.New("db down")}
	counters := &crawler.Counters{}
	proc := NewProcessor(fetcher, titleExtractor{}, nil, sink, counters, Config{}, nil)

	err := proc.Process(context.Background(), "https://example.com/a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Equal(t, int64(1), counters.PersistFailed.Load())
}

func TestProcessorDeferredCommitDoesNotCountStored(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{"https://example.com/a": "A"}}
	counters := &crawler.Counters{}
	proc := NewProcessor(fetcher, titleExtractor{}, nil, &recordingSink{}, counters, Config{DeferredCommit: true}, nil)

	require.NoError(t, proc.Process(context.Background(), "https://example.com/a"))
	assert.Equal(t, int64(0), counters.Stored.Load())
	assert.Equal(t, int64(1), counters.Fetched.Load())
}

func TestProcessorPhoneReveal(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/a": "A",
		"https://example.com/b": "B",
	}}
	sink := &recordingSink{}
	phones := fakePhones{
		"https://example.com/a": "(067) 123 45 67",
	}
	proc := NewProcessor(fetcher, titleExtractor{}, phones, sink, nil, Config{}, nil)

	require.NoError(t, proc.Process(context.Background(), "https://example.com/a"))
	require.NoError(t, proc.Process(context.Background(), "https://example.com/b"))

	require.Len(t, sink.listings, 2)
	assert.Equal(t, "(067) 123 45 67", *sink.listings[0].PhoneNumber)
	assert.Equal(t, "", *sink.listings[1].PhoneNumber)
}

func TestWorkerRunMarksEveryItemDone(t *testing.T) {
	t.Parallel()

	queue := &sliceQueue{items: []string{
		"https://example.com/a",
		"https://example.com/missing",
		"https://example.com/b",
	}}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/a": "A",
		"https://example.com/b": "B",
	}}
	sink := &recordingSink{}
	proc := NewProcessor(fetcher, titleExtractor{}, nil, sink, nil, Config{}, nil)

	New(0, queue, proc, zap.NewNop()).Run(context.Background())

	assert.Equal(t, 3, queue.done)
	assert.Len(t, sink.listings, 2)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	queue := &blockingQueue{}
	done := make(chan struct{})
	go func() {
		New(1, queue, NewProcessor(&fakeFetcher{}, titleExtractor{}, nil, &recordingSink{}, nil, Config{}, nil), nil).Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

type fakeFetcher struct {
	pages map[string]string
	errs  map[string]error
	block bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (crawler.Page, error) {
	if f.block {
		<-ctx.Done()
		return crawler.Page{}, ctx.Err()
	}
	if err, ok := f.errs[url]; ok {
		return crawler.Page{}, err
	}
	body, ok := f.pages[url]
	if !ok {
		return crawler.Page{}, fmt.Errorf("%w: %d", crawler.ErrUnexpectedStatus, http.StatusNotFound)
	}
	return crawler.Page{URL: url, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

type titleExtractor struct{}

func (titleExtractor) ExtractHTML(url string, body []byte) (crawler.Listing, error) {
	return crawler.Listing{URL: url, Title: crawler.StringPtr(string(body)), DatetimeFound: time.Unix(0, 0)}, nil
}

type recordingSink struct {
	mu       sync.Mutex
	listings []crawler.Listing
	err      error
}

func (s *recordingSink) Accept(_ context.Context, listing crawler.Listing) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings = append(s.listings, listing)
	return nil
}

type fakePhones map[string]string

func (p fakePhones) Reveal(_ context.Context, url string) (string, error) {
	phone, ok := p[url]
	if !ok {
		return "", errors.New("phone element not found")
	}
	return phone, nil
}

type sliceQueue struct {
	items []string
	done  int
}

func (q *sliceQueue) Dequeue(_ context.Context) (string, error) {
	if len(q.items) == 0 {
		return "", errors.New("queue closed")
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, nil
}

func (q *sliceQueue) Done() error {
	q.done++
	return nil
}

type blockingQueue struct{}

func (q *blockingQueue) Dequeue(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", fmt.Errorf("dequeue canceled: %w", ctx.Err())
}

func (q *blockingQueue) Done() error { return nil }

package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/car-listing-crawler/internal/crawler"
	"github.com/JakeFAU/car-listing-crawler/internal/storage/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestObjectPath(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 10, 19, 12, 5, 9, 0, time.UTC)
	assert.Equal(t, "listings_20261019_120509.jsonl", ObjectPath("", ts))
	assert.Equal(t, "dumps/cars/listings_20261019_120509.jsonl", ObjectPath("/dumps/cars/", ts))
}

func TestRunWritesJSONLines(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	found := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(ctx, crawler.Listing{
		URL: "https://auto.example/b", Title: crawler.StringPtr("Audi A4"), DatetimeFound: found,
	}))
	require.NoError(t, store.Upsert(ctx, crawler.Listing{
		URL: "https://auto.example/a", PriceUSD: crawler.Int64Ptr(12345), DatetimeFound: found,
	}))
	blobs := memory.NewBlobStore()

	exp := New(store, blobs, fixedClock{t: found}, "dumps", nil)
	res, err := exp.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, "dumps/listings_20261019_120000.jsonl", res.Path)
	assert.Equal(t, "memory://dumps/listings_20261019_120000.jsonl", res.URI)
	assert.Equal(t, int64(2), res.Count)
	assert.Len(t, res.Checksum, 64)

	data, contentType, ok := blobs.Object(res.Path)
	require.True(t, ok)
	assert.Equal(t, ContentType, contentType)
	assert.Equal(t, int64(len(data)), res.Bytes)

	var urls []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var row map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &row))
		urls = append(urls, row["url"].(string))
		assert.Contains(t, row, "price_usd")
	}
	assert.Equal(t, []string{"https://auto.example/a", "https://auto.example/b"}, urls)
}

func TestRunEmptyStore(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	res, err := New(memory.NewStore(), blobs, fixedClock{t: time.Unix(0, 0)}, "", nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Count)
	data, _, ok := blobs.Object(res.Path)
	require.True(t, ok)
	assert.Empty(t, data)
}

type failingSource struct{}

func (failingSource) Each(_ context.Context, fn func(crawler.Listing) error) error {
	if err := fn(crawler.Listing{URL: "https://auto.example/a"}); err != nil {
		return err
	}
	return errors.New("connection reset")
}

func TestRunSourceFailure(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	_, err := New(failingSource{}, blobs, fixedClock{t: time.Unix(0, 0)}, "", nil).Run(context.Background())
	require.ErrorContains(t, err, "connection reset")
	assert.Empty(t, blobs.Paths())
}

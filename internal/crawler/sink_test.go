package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockListingStore is a mock implementation of the ListingStore interface.
type MockListingStore struct {
	mock.Mock
}

func (m *MockListingStore) Upsert(ctx context.Context, listing Listing) error {
	args := m.Called(ctx, listing)
	return args.Error(0)
}

func (m *MockListingStore) UpsertBatch(ctx context.Context, listings []Listing) error {
	args := m.Called(ctx, listings)
	return args.Error(0)
}

func (m *MockListingStore) Get(ctx context.Context, url string) (Listing, error) {
	args := m.Called(ctx, url)
	return args.Get(0).(Listing), args.Error(1)
}

func (m *MockListingStore) Each(ctx context.Context, fn func(Listing) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

func (m *MockListingStore) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockListingStore) Close() {
	m.Called()
}

func TestStoreSinkWrapsErrors(t *testing.T) {
	t.Parallel()

	store := new(MockListingStore)
	listing := Listing{URL: "https://cars.example/a"}
	store.On("Upsert", mock.Anything, listing).Return(errors.New("db down")).Once()

	err := NewStoreSink(store).Accept(context.Background(), listing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "https://cars.example/a")
	store.AssertExpectations(t)
}

func TestBatchSinkLastWriteWinsAndFlush(t *testing.T) {
	t.Parallel()

	sink := NewBatchSink()
	ctx := context.Background()
	require.NoError(t, sink.Accept(ctx, Listing{URL: "a", Title: StringPtr("old")}))
	require.NoError(t, sink.Accept(ctx, Listing{URL: "b"}))
	require.NoError(t, sink.Accept(ctx, Listing{URL: "a", Title: StringPtr("new")}))
	require.Equal(t, 2, sink.Len())

	store := new(MockListingStore)
	store.On("UpsertBatch", mock.Anything, []Listing{
		{URL: "a", Title: StringPtr("new")},
		{URL: "b"},
	}).Return(nil).Once()

	require.NoError(t, sink.Flush(ctx, store))
	assert.Zero(t, sink.Len())
	require.NoError(t, sink.Flush(ctx, store))
	store.AssertExpectations(t)
}

func TestBatchSinkKeepsBufferOnFailure(t *testing.T) {
	t.Parallel()

	sink := NewBatchSink()
	require.NoError(t, sink.Accept(context.Background(), Listing{URL: "a"}))

	store := new(MockListingStore)
	store.On("UpsertBatch", mock.Anything, mock.Anything).Return(errors.New("tx aborted"))

	err := sink.Flush(context.Background(), store)
	require.ErrorContains(t, err, "commit batch of 1 listings")
	assert.Equal(t, 1, sink.Len())
}

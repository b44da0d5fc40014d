package crawler

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func countingPredicate(lastTrue int, calls *int) Predicate {
	return func(_ context.Context, page int) bool {
		*calls++
		return page <= lastTrue
	}
}

func TestBinarySearchLastPageExhaustive(t *testing.T) {
	t.Parallel()

	for _, upper := range []int{1, 2, 3, 7, 64, 100} {
		maxCalls := int(math.Ceil(math.Log2(float64(upper)))) + 1
		for last := 0; last <= upper; last++ {
			calls := 0
			got := BinarySearchLastPage(context.Background(), upper, countingPredicate(last, &calls))
			require.Equal(t, last, got, "upper=%d last=%d", upper, last)
			require.LessOrEqual(t, calls, maxCalls, "upper=%d last=%d", upper, last)
		}
	}
}

func TestBinarySearchLastPageSevenOfHundred(t *testing.T) {
	t.Parallel()

	calls := 0
	got := BinarySearchLastPage(context.Background(), 100, countingPredicate(7, &calls))
	assert.Equal(t, 7, got)
	assert.LessOrEqual(t, calls, 8)
}

func TestBinarySearchLastPageFirstPageEmpty(t *testing.T) {
	t.Parallel()

	calls := 0
	assert.Equal(t, 0, BinarySearchLastPage(context.Background(), 100000, countingPredicate(0, &calls)))
}

func TestLinearScanLastPage(t *testing.T) {
	t.Parallel()

	t.Run("contiguous", func(t *testing.T) {
		t.Parallel()
		has := func(_ context.Context, p int) bool { return p <= 7 }
		assert.Equal(t, 7, LinearScanLastPage(context.Background(), 100, 3, 2, has))
	})

	t.Run("gap shorter than streak", func(t *testing.T) {
		t.Parallel()
		has := func(_ context.Context, p int) bool { return p <= 4 || (p >= 7 && p <= 9) }
		assert.Equal(t, 9, LinearScanLastPage(context.Background(), 100, 3, 4, has))
	})

	t.Run("gap equal to streak stops", func(t *testing.T) {
		t.Parallel()
		has := func(_ context.Context, p int) bool { return p <= 4 || p == 8 }
		assert.Equal(t, 4, LinearScanLastPage(context.Background(), 100, 3, 4, has))
	})

	t.Run("bounded by upper", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		has := func(_ context.Context, _ int) bool { calls.Add(1); return true }
		assert.Equal(t, 10, LinearScanLastPage(context.Background(), 10, 4, 4, has))
		assert.Equal(t, int32(10), calls.Load())
	})

	t.Run("nothing", func(t *testing.T) {
		t.Parallel()
		has := func(_ context.Context, _ int) bool { return false }
		assert.Equal(t, 0, LinearScanLastPage(context.Background(), 100, 2, 2, has))
	})
}

// indexServer serves index pages 1..lastPage with perPage anchors each and
// fails every page listed in failing with a 500.
func indexServer(t *testing.T, lastPage, perPage int, failing map[int]bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil {
			http.Error(w, "bad page", http.StatusBadRequest)
			return
		}
		if failing[page] {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "<html><body>")
		if page <= lastPage {
			for i := 0; i < perPage; i++ {
				// Every page repeats the first listing to exercise deduplication.
				fmt.Fprintf(w, `<a class="m-link-ticket" href="/auto_%d_%d.html">car</a>`, page, i)
				fmt.Fprint(w, `<a class="m-link-ticket" href="/auto_shared.html#photo">dup</a>`)
			}
		}
		fmt.Fprint(w, `<a class="other" href="/ignored.html">x</a></body></html>`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscovererAgainstServer(t *testing.T) {
	t.Parallel()

	srv := indexServer(t, 7, 2, nil)
	cfg := testConfig(srv.URL)
	cfg.MaxPages = 100
	index := NewIndexClient(cfg, &httpFetcher{client: srv.Client()}, zap.NewNop())

	d := NewDiscoverer(cfg, index, zap.NewNop())
	assert.Equal(t, 7, d.Discover(context.Background()))

	cfg.DiscoveryStrategy = DiscoveryLinear
	d = NewDiscoverer(cfg, index, zap.NewNop())
	assert.Equal(t, 7, d.Discover(context.Background()))
}

func TestDiscovererTreatsErrorsAsEmpty(t *testing.T) {
	t.Parallel()

	srv := indexServer(t, 7, 1, map[int]bool{1: true})
	cfg := testConfig(srv.URL)
	index := NewIndexClient(cfg, &httpFetcher{client: srv.Client()}, zap.NewNop())
	d := NewDiscoverer(cfg, index, zap.NewNop())

	assert.False(t, d.HasListings(context.Background(), 1))
	assert.True(t, d.HasListings(context.Background(), 2))
	assert.False(t, d.HasListings(context.Background(), 8))
}

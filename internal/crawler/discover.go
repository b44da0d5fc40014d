package crawler

import (
	"context"

	"go.uber.org/zap"
)

// Predicate reports whether an index page carries listings.
type Predicate func(ctx context.Context, page int) bool

// BinarySearchLastPage returns the largest L in [0, upper] such that has is
// true for pages 1..L, assuming truthiness never returns after the first
// false page. It evaluates has at most floor(log2(upper))+1 times.
func BinarySearchLastPage(ctx context.Context, upper int, has Predicate) int {
	low, high, last := 1, upper, 0
	for low <= high {
		if ctx.Err() != nil {
			break
		}
		mid := low + (high-low)/2
		if has(ctx, mid) {
			last = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return last
}

// LinearScanLastPage probes pages in windows of streak pages, each window in
// parallel, and stops after streak consecutive empty pages. It returns the
// last page with listings seen before the stop. Gaps shorter than streak are
// tolerated.
func LinearScanLastPage(ctx context.Context, upper, streak, parallelism int, has Predicate) int {
	if streak <= 0 {
		streak = 1
	}
	last, empty := 0, 0
	for start := 1; start <= upper && empty < streak; start += streak {
		if ctx.Err() != nil {
			break
		}
		end := min(start+streak-1, upper)
		pages := make([]int, 0, end-start+1)
		for p := start; p <= end; p++ {
			pages = append(pages, p)
		}
		results := ParallelMap(ctx, pages, parallelism, func(ctx context.Context, p int) bool {
			return has(ctx, p)
		})
		for i, ok := range results {
			if ok {
				last, empty = pages[i], 0
				continue
			}
			empty++
			if empty >= streak {
				break
			}
		}
	}
	return last
}

// Discoverer finds how many index pages carry listings.
type Discoverer struct {
	cfg    Config
	index  *IndexClient
	logger *zap.Logger
}

// NewDiscoverer constructs a Discoverer.
func NewDiscoverer(cfg Config, index *IndexClient, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{cfg: cfg, index: index, logger: logger}
}

// HasListings fetches page n and reports whether it has listing anchors.
// Fetch errors count as "no listings".
func (d *Discoverer) HasListings(ctx context.Context, page int) bool {
	links, err := d.index.Links(ctx, page)
	if err != nil {
		d.logger.Error("index page check failed", zap.Int("page", page), zap.Error(err))
		return false
	}
	d.logger.Debug("checked index page", zap.Int("page", page), zap.Int("links", len(links)))
	return len(links) > 0
}

// Discover returns the number of index pages with listings.
func (d *Discoverer) Discover(ctx context.Context) int {
	d.logger.Info("starting page discovery",
		zap.String("strategy", d.cfg.DiscoveryStrategy),
		zap.Int("max_pages", d.cfg.MaxPages),
	)
	var total int
	if d.cfg.DiscoveryStrategy == DiscoveryLinear {
		total = LinearScanLastPage(ctx, d.cfg.MaxPages, d.cfg.EmptyStreak, d.cfg.Parallelism(), d.HasListings)
	} else {
		total = BinarySearchLastPage(ctx, d.cfg.MaxPages, d.HasListings)
	}
	d.logger.Info("total pages found", zap.Int("pages", total))
	return total
}

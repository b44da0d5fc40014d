package crawler

import (
	"context"

	"go.uber.org/zap"
)

// Collector gathers listing URLs from index pages 1..N.
type Collector struct {
	cfg    Config
	index  *IndexClient
	logger *zap.Logger
}

// NewCollector constructs a Collector.
func NewCollector(cfg Config, index *IndexClient, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{cfg: cfg, index: index, logger: logger}
}

// Collect fetches every page in parallel and returns the deduplicated union
// of their listing URLs. A failed page contributes nothing.
func (c *Collector) Collect(ctx context.Context, pages int) []string {
	if pages <= 0 {
		return nil
	}
	c.logger.Info("collecting links", zap.Int("pages", pages), zap.Int("parallelism", c.cfg.Parallelism()))
	nums := make([]int, pages)
	for i := range nums {
		nums[i] = i + 1
	}
	perPage := ParallelMap(ctx, nums, c.cfg.Parallelism(), c.pageLinks)
	links := FlattenUnique(perPage)
	c.logger.Info("collected unique links", zap.Int("links", len(links)), zap.Int("pages", pages))
	return links
}

func (c *Collector) pageLinks(ctx context.Context, page int) []string {
	links, err := c.index.Links(ctx, page)
	if err != nil {
		c.logger.Error("index page failed", zap.Int("page", page), zap.Error(err))
		return nil
	}
	c.logger.Debug("fetched links from page", zap.Int("page", page), zap.Int("links", len(links)))
	return links
}

// Package pipeline wires discovery, collection, the detail worker pool and
// persistence into a single crawl run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/car-listing-crawler/internal/crawler"
	"github.com/JakeFAU/car-listing-crawler/internal/dispatcher"
	"github.com/JakeFAU/car-listing-crawler/internal/metrics"
	"github.com/JakeFAU/car-listing-crawler/internal/worker"
)

var tracer = otel.Tracer("github.com/JakeFAU/car-listing-crawler/internal/pipeline")

// Deps holds the collaborators of a Pipeline. Runs, Publisher and Phones are optional.
type Deps struct {
	Config    crawler.Config
	Fetcher   crawler.Fetcher
	Extractor worker.Extractor
	Phones    crawler.PhoneRevealer
	Store     crawler.ListingStore
	Runs      crawler.RunLog
	Publisher crawler.Publisher
	Topic     string
	Clock     crawler.Clock
	IDs       crawler.IDGenerator
	Logger    *zap.Logger
}

// Pipeline executes full crawl runs.
type Pipeline struct {
	deps       Deps
	discoverer *crawler.Discoverer
	collector  *crawler.Collector
	logger     *zap.Logger
}

// New validates the dependencies and builds a Pipeline.
func New(deps Deps) (*Pipeline, error) {
	if err := deps.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid crawler config: %w", err)
	}
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("extractor is required")
	case deps.Store == nil:
		return nil, errors.New("listing store is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	case deps.Config.PhoneStrategy == crawler.PhoneBrowser && deps.Phones == nil:
		return nil, errors.New("browser phone strategy requires a phone revealer")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	index := crawler.NewIndexClient(deps.Config, deps.Fetcher, logger)
	return &Pipeline{
		deps:       deps,
		discoverer: crawler.NewDiscoverer(deps.Config, index, logger),
		collector:  crawler.NewCollector(deps.Config, index, logger),
		logger:     logger,
	}, nil
}

// Run performs one complete crawl. Network and parse failures are counted in
// the summary; persistence failures are returned as an error.
func (p *Pipeline) Run(ctx context.Context) (crawler.RunSummary, error) {
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return crawler.RunSummary{}, fmt.Errorf("new run id: %w", err)
	}
	ctx, span := tracer.Start(ctx, "crawl.run", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	summary := crawler.RunSummary{
		RunID:     runID,
		Status:    crawler.RunRunning,
		StartedAt: p.deps.Clock.Now(),
	}
	logger := p.logger.With(zap.String("run_id", runID))
	logger.Info("crawl run started", zap.String("base_url", p.deps.Config.BaseURL))
	if p.deps.Runs != nil {
		if err := p.deps.Runs.StartRun(ctx, summary); err != nil {
			logger.Warn("record run start failed", zap.Error(err))
		}
	}

	runErr := p.execute(ctx, logger, &summary)

	summary.FinishedAt = p.deps.Clock.Now()
	summary.Status = crawler.RunSucceeded
	if runErr != nil {
		summary.Status = crawler.RunFailed
		summary.Error = runErr.Error()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "crawl run failed")
	}
	span.SetAttributes(
		attribute.Int("crawl.pages", summary.Pages),
		attribute.Int("crawl.links", summary.Links),
		attribute.Int64("crawl.stored", summary.Stored),
	)
	p.finish(ctx, logger, summary)
	return summary, runErr
}

func (p *Pipeline) execute(ctx context.Context, logger *zap.Logger, summary *crawler.RunSummary) error {
	cfg := p.deps.Config

	summary.Pages = p.discoverer.Discover(ctx)
	logger.Info("index pages discovered", zap.Int("pages", summary.Pages))
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("discover pages: %w", err)
	}

	links := p.collector.Collect(ctx, summary.Pages)
	summary.Links = len(links)
	logger.Info("listing links collected", zap.Int("links", len(links)))
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("collect links: %w", err)
	}

	counters := &crawler.Counters{}
	defer counters.Apply(summary)

	var (
		sink  crawler.Sink
		batch *crawler.BatchSink
	)
	if cfg.CommitMode == crawler.CommitBatch {
		batch = crawler.NewBatchSink()
		sink = batch
	} else {
		sink = crawler.NewStoreSink(p.deps.Store)
	}

	var phones crawler.PhoneRevealer
	if cfg.PhoneStrategy == crawler.PhoneBrowser {
		phones = p.deps.Phones
	}
	proc := worker.NewProcessor(
		p.deps.Fetcher,
		p.deps.Extractor,
		phones,
		sink,
		counters,
		worker.Config{Timeout: cfg.RequestTimeout, DeferredCommit: batch != nil},
		logger,
	)

	if phones != nil {
		if err := p.processSequential(ctx, logger, proc, links); err != nil {
			return err
		}
	} else if err := dispatcher.New(cfg.Workers, proc, logger).Run(ctx, links); err != nil {
		return fmt.Errorf("fetch details: %w", err)
	}

	if batch != nil {
		return p.commitBatch(ctx, batch, counters)
	}
	if failed := counters.PersistFailed.Load(); failed > 0 {
		return fmt.Errorf("%d of %d listing commits failed", failed, failed+counters.Stored.Load())
	}
	return nil
}

// processSequential handles each URL in turn. The browser phone reveal is
// too heavy to run inside the worker pool.
func (p *Pipeline) processSequential(ctx context.Context, logger *zap.Logger, proc *worker.Processor, links []string) error {
	logger.Info("processing listings sequentially", zap.Int("urls", len(links)))
	for _, u := range links {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("fetch details: %w", err)
		}
		if err := proc.Process(ctx, u); err != nil {
			logger.Error("persist listing failed", zap.String("url", u), zap.Error(err))
		}
	}
	return nil
}

func (p *Pipeline) commitBatch(ctx context.Context, batch *crawler.BatchSink, counters *crawler.Counters) error {
	n := batch.Len()
	if err := batch.Flush(ctx, p.deps.Store); err != nil {
		counters.PersistFailed.Add(int64(n))
		metrics.ObserveListingsStored("error", n)
		return err
	}
	counters.Stored.Add(int64(n))
	metrics.ObserveListingsStored("ok", n)
	return nil
}

func (p *Pipeline) finish(ctx context.Context, logger *zap.Logger, summary crawler.RunSummary) {
	// The run record and notification should still go out when the run was canceled.
	ctx = context.WithoutCancel(ctx)

	metrics.ObserveRun(string(summary.Status), summary.FinishedAt.Sub(summary.StartedAt))
	fields := []zap.Field{
		zap.String("status", string(summary.Status)),
		zap.Int("pages", summary.Pages),
		zap.Int("links", summary.Links),
		zap.Int64("fetched", summary.Fetched),
		zap.Int64("fetch_failed", summary.FetchFailed),
		zap.Int64("stored", summary.Stored),
		zap.Int64("persist_failed", summary.PersistFailed),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	}
	if summary.Error != "" {
		logger.Error("crawl run failed", append(fields, zap.String("error", summary.Error))...)
	} else {
		logger.Info("crawl run finished", fields...)
	}

	if p.deps.Runs != nil {
		if err := p.deps.Runs.FinishRun(ctx, summary); err != nil {
			logger.Warn("record run finish failed", zap.Error(err))
		}
	}
	if p.deps.Publisher != nil && p.deps.Topic != "" {
		pubCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if _, err := p.deps.Publisher.Publish(pubCtx, p.deps.Topic, summary); err != nil {
			logger.Warn("publish run summary failed", zap.String("topic", p.deps.Topic), zap.Error(err))
		}
	}
}

// Package worker implements the detail-page processing loop run by each pool member.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/car-listing-crawler/internal/crawler"
	"github.com/JakeFAU/car-listing-crawler/internal/metrics"
)

// Queue is the work source a Worker drains.
type Queue interface {
	Dequeue(ctx context.Context) (string, error)
	Done() error
}

// Extractor maps a fetched detail page into a listing.
type Extractor interface {
	ExtractHTML(url string, body []byte) (crawler.Listing, error)
}

// Config controls Processor behavior.
type Config struct {
	// Timeout bounds each detail fetch.
	Timeout time.Duration
	// DeferredCommit marks the sink as buffering; records are counted as
	// stored by whoever flushes it.
	DeferredCommit bool
}

// Processor handles a single listing URL: fetch, extract, optional phone
// reveal, hand-off to the sink.
type Processor struct {
	fetcher   crawler.Fetcher
	extractor Extractor
	phones    crawler.PhoneRevealer
	sink      crawler.Sink
	counters  *crawler.Counters
	cfg       Config
	logger    *zap.Logger
}

// NewProcessor constructs a Processor. phones may be nil.
func NewProcessor(
	fetcher crawler.Fetcher,
	extractor Extractor,
	phones crawler.PhoneRevealer,
	sink crawler.Sink,
	counters *crawler.Counters,
	cfg Config,
	logger *zap.Logger,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if counters == nil {
		counters = &crawler.Counters{}
	}
	return &Processor{
		fetcher:   fetcher,
		extractor: extractor,
		phones:    phones,
		sink:      sink,
		counters:  counters,
		cfg:       cfg,
		logger:    logger,
	}
}

// Process runs one URL through the pipeline. Fetch and parse failures are
// logged and counted; only a sink failure is returned.
func (p *Processor) Process(ctx context.Context, url string) error {
	page, err := p.fetch(ctx, url)
	if err != nil {
		p.counters.FetchFailed.Add(1)
		p.logger.Warn("detail fetch failed", zap.String("url", url), zap.Error(err))
		return nil
	}
	p.counters.Fetched.Add(1)

	listing, err := p.extractor.ExtractHTML(url, page.Body)
	if err != nil {
		p.counters.FetchFailed.Add(1)
		p.logger.Warn("detail parse failed", zap.String("url", url), zap.Error(err))
		return nil
	}

	if p.phones != nil {
		listing.PhoneNumber = crawler.StringPtr(p.revealPhone(ctx, url))
	}

	if err := p.sink.Accept(ctx, listing); err != nil {
		p.counters.PersistFailed.Add(1)
		metrics.ObserveListingStored("error")
		return fmt.Errorf("persist %s: %w", url, err)
	}
	if !p.cfg.DeferredCommit {
		p.counters.Stored.Add(1)
		metrics.ObserveListingStored("ok")
	}
	p.logger.Debug("listing processed", zap.String("url", url))
	return nil
}

func (p *Processor) fetch(ctx context.Context, url string) (crawler.Page, error) {
	fetchCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	page, err := p.fetcher.Fetch(fetchCtx, url)
	outcome := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case errors.Is(err, crawler.ErrUnexpectedStatus):
		outcome = "status"
	case err != nil:
		outcome = "error"
	}
	metrics.ObserveDetailFetch(url, outcome, time.Since(start))
	if err != nil {
		return crawler.Page{}, fmt.Errorf("fetch detail: %w", err)
	}
	return page, nil
}

func (p *Processor) revealPhone(ctx context.Context, url string) string {
	phone, err := p.phones.Reveal(ctx, url)
	if err != nil {
		p.logger.Warn("phone reveal failed", zap.String("url", url), zap.Error(err))
		return ""
	}
	return phone
}

// Worker drains a queue through a Processor.
type Worker struct {
	id     int
	queue  Queue
	proc   *Processor
	logger *zap.Logger
}

// New constructs a Worker.
func New(id int, queue Queue, proc *Processor, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:     id,
		queue:  queue,
		proc:   proc,
		logger: logger.With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed. Every dequeued item is marked done, whatever its outcome.
func (w *Worker) Run(ctx context.Context) {
	for {
		url, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Debug("worker stopping", zap.Error(err))
			}
			return
		}
		w.handle(ctx, url)
	}
}

func (w *Worker) handle(ctx context.Context, url string) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer func() {
		if err := w.queue.Done(); err != nil {
			w.logger.Error("queue done failed", zap.String("url", url), zap.Error(err))
		}
	}()

	if err := w.proc.Process(ctx, url); err != nil {
		w.logger.Error("persist listing failed", zap.String("url", url), zap.Error(err))
	}
}

// Package dispatcher runs a bounded pool of workers over a pre-loaded queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/car-listing-crawler/internal/queue/memory"
	"github.com/JakeFAU/car-listing-crawler/internal/worker"
)

// Dispatcher fans queue work out to a fixed number of workers.
type Dispatcher struct {
	workers int
	proc    *worker.Processor
	logger  *zap.Logger
}

// New creates a Dispatcher with the given pool size.
func New(workers int, proc *worker.Processor, logger *zap.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		workers: workers,
		proc:    proc,
		logger:  logger,
	}
}

// Run enqueues every URL, starts the pool and blocks until all items are
// marked done. Workers are stopped only after that join returns.
func (d *Dispatcher) Run(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("dispatch canceled: %w", err)
	}
	queue := memory.NewQueue(len(urls))
	defer queue.Close()
	for _, u := range urls {
		if err := queue.Enqueue(ctx, u); err != nil {
			return fmt.Errorf("queue enqueue: %w", err)
		}
	}

	size := d.workers
	if size > len(urls) {
		size = len(urls)
	}
	d.logger.Info("starting worker pool", zap.Int("workers", size), zap.Int("urls", len(urls)))

	workerCtx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(workerCtx)
		}(worker.New(i, queue, d.proc, d.logger))
	}

	joinErr := queue.Join(ctx)
	stop()
	wg.Wait()
	if joinErr != nil {
		return fmt.Errorf("queue join: %w", joinErr)
	}
	d.logger.Info("worker pool drained", zap.Int("unfinished", queue.Unfinished()), zap.Int("pending", queue.Len()))
	return nil
}

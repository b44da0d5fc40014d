// Package scheduler triggers crawl runs on a cron schedule or on demand,
// never letting two runs overlap.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/car-listing-crawler/internal/crawler"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("crawl run already in progress")

// Runner executes one crawl.
type Runner interface {
	Run(ctx context.Context) (crawler.RunSummary, error)
}

// Scheduler owns the cron loop and the single-run guard.
type Scheduler struct {
	runner Runner
	spec   string
	cron   *cron.Cron
	logger *zap.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.RWMutex
	last    crawler.RunSummary
	hasLast bool
	entry   cron.EntryID
}

// New validates the cron spec (standard five fields) and builds a Scheduler.
func New(spec string, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	cl := cronLogger{logger: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:  runner,
		spec:    spec,
		cron:    cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cl)), cron.WithLogger(cl)),
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}, nil
}

// Start registers the schedule and starts the cron loop.
func (s *Scheduler) Start() error {
	id, err := s.cron.AddFunc(s.spec, func() {
		if err := s.Trigger("cron"); err != nil {
			s.logger.Warn("scheduled run skipped", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule crawl: %w", err)
	}
	s.mu.Lock()
	s.entry = id
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("schedule", s.spec), zap.Time("next_run", s.Next()))
	return nil
}

// Next returns the next scheduled run time, or zero before Start.
func (s *Scheduler) Next() time.Time {
	s.mu.RLock()
	id := s.entry
	s.mu.RUnlock()
	if id == 0 {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Trigger starts a run in the background. It returns ErrRunInProgress when a
// run is already active.
func (s *Scheduler) Trigger(reason string) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.execute(s.baseCtx, reason)
	}()
	return nil
}

// RunOnce runs a crawl synchronously under the same single-run guard.
func (s *Scheduler) RunOnce(ctx context.Context, reason string) (crawler.RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return crawler.RunSummary{}, ErrRunInProgress
	}
	defer s.running.Store(false)
	return s.execute(ctx, reason)
}

func (s *Scheduler) execute(ctx context.Context, reason string) (crawler.RunSummary, error) {
	s.logger.Info("crawl run triggered", zap.String("reason", reason))
	summary, err := s.runner.Run(ctx)
	if summary.RunID != "" {
		s.mu.Lock()
		s.last = summary
		s.hasLast = true
		s.mu.Unlock()
	}
	if err != nil {
		s.logger.Error("crawl run failed", zap.String("reason", reason), zap.Error(err))
	}
	return summary, err
}

// Running reports whether a run is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// LastRun returns the summary of the most recent run started by this scheduler.
func (s *Scheduler) LastRun() (crawler.RunSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.hasLast
}

// Stop halts the cron loop and waits for an active run to finish. If ctx
// ends first the active run is canceled.
func (s *Scheduler) Stop(ctx context.Context) error {
	<-s.cron.Stop().Done()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// Serve runs the scheduler and HTTP API until ctx is canceled or the process
// receives SIGINT/SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := a.Pipeline()
	if err != nil {
		_ = ln.Close()
		return err
	}
	sched, err := a.Scheduler(p)
	if err != nil {
		_ = ln.Close()
		return err
	}
	if err := sched.Start(); err != nil {
		_ = ln.Close()
		return fmt.Errorf("start scheduler: %w", err)
	}
	if a.cfg.Schedule.RunOnStart {
		if err := sched.Trigger("startup"); err != nil {
			a.logger.Warn("startup run skipped", zap.Error(err))
		}
	}

	srv := &http.Server{
		Handler:           a.Handler(sched),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown initiated")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler stop error", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return runErr
}

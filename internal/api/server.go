package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/car-listing-crawler/internal/crawler"
	"github.com/JakeFAU/car-listing-crawler/internal/metrics"
	"github.com/JakeFAU/car-listing-crawler/internal/middleware"
	"github.com/JakeFAU/car-listing-crawler/internal/scheduler"
)

const (
	defaultRequestTimeout = 60 * time.Second
	lookupTimeout         = 3 * time.Second
)

// Trigger starts crawl runs on demand.
type Trigger interface {
	Trigger(reason string) error
	Running() bool
}

// Pinger reports whether a downstream dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server's collaborators. Nil Ready means always ready.
type Options struct {
	Listings       crawler.ListingReader
	Runs           crawler.RunLog
	Trigger        Trigger
	Ready          Pinger
	APIKey         string
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Server routes HTTP requests to the store and scheduler.
type Server struct {
	router   chi.Router
	listings crawler.ListingReader
	runs     crawler.RunLog
	trigger  Trigger
	ready    Pinger
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	s := &Server{
		listings: opts.Listings,
		runs:     opts.Runs,
		trigger:  opts.Trigger,
		ready:    opts.Ready,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Metrics)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.TimeoutHandler(next, timeout, "request timed out")
		})
		r.Get("/listings", s.getListing)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/last", s.lastRun)
			r.With(middleware.APIKey(opts.APIKey)).Post("/", s.triggerRun)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			middleware.WriteError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// getListing handles GET /v1/listings?url=. It returns {"listing": {...}},
// 400 without a url, 404 when nothing is stored for it, or 503 when no store
// is configured.
func (s *Server) getListing(w http.ResponseWriter, r *http.Request) {
	if s.listings == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "listing store unavailable")
		return
	}
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		middleware.WriteError(w, http.StatusBadRequest, "url is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
	defer cancel()

	listing, err := s.listings.Get(ctx, target)
	if err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "listing not found")
			return
		}
		s.logger.Error("get listing failed", zap.String("url", target), zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, "failed to load listing")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"listing": listing})
}

func (s *Server) lastRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "run log unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
	defer cancel()

	run, err := s.runs.LastRun(ctx)
	if err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "no runs recorded")
			return
		}
		s.logger.Error("load last run failed", zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"run":     run,
		"running": s.trigger != nil && s.trigger.Running(),
	})
}

func (s *Server) triggerRun(w http.ResponseWriter, _ *http.Request) {
	if s.trigger == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	if err := s.trigger.Trigger("api"); err != nil {
		if errors.Is(err, scheduler.ErrRunInProgress) {
			middleware.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("trigger run failed", zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// Package app builds the long-lived services of the crawler from a loaded
// config.Config and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/car-listing-crawler/internal/api"
	"github.com/JakeFAU/car-listing-crawler/internal/clock/system"
	"github.com/JakeFAU/car-listing-crawler/internal/config"
	"github.com/JakeFAU/car-listing-crawler/internal/crawler"
	"github.com/JakeFAU/car-listing-crawler/internal/export"
	"github.com/JakeFAU/car-listing-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/car-listing-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/car-listing-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/car-listing-crawler/internal/id/uuid"
	"github.com/JakeFAU/car-listing-crawler/internal/pipeline"
	"github.com/JakeFAU/car-listing-crawler/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/car-listing-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/car-listing-crawler/internal/scheduler"
	gcsstorage "github.com/JakeFAU/car-listing-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/car-listing-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/car-listing-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/car-listing-crawler/internal/storage/postgres"
	"github.com/JakeFAU/car-listing-crawler/internal/telemetry"
)

// Store is the persistence surface the app needs: listings plus the run log.
type Store interface {
	crawler.ListingStore
	crawler.RunLog
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store     Store
	pg        *pgstore.Store
	publisher *gcppublisher.Publisher
	phones    *headless.PhoneRevealer
	gcs       *storage.Client
	clock     crawler.Clock
	ids       crawler.IDGenerator

	tracerShutdown func(context.Context) error
}

// New wires the store, publisher and tracing. Fetchers and the browser are
// built on demand by Pipeline.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
	}

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{ServiceName: "car-listing-crawler"})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracerShutdown = shutdown

	if err := a.setupStore(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.setupPublisher(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.cfg.Store.Provider {
	case config.StoreMemory:
		a.logger.Warn("using in-memory listing store, data is lost on exit")
		a.store = memorystorage.NewStore()
	case config.StorePostgres:
		pg, err := pgstore.New(ctx, pgstore.Config{
			DSN:       a.cfg.DatabaseURL(),
			Table:     a.cfg.Store.Table,
			RunsTable: a.cfg.Store.RunsTable,
			MaxConns:  a.cfg.Store.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("listing store init failed: %w", err)
		}
		a.pg = pg
		a.store = pg
		a.logger.Info("postgres listing store initialized", zap.String("table", a.cfg.Store.Table))
	default:
		return fmt.Errorf("unknown store provider %q", a.cfg.Store.Provider)
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.Topic == "" {
		a.logger.Info("no Pub/Sub topic configured, run summaries will not be published")
		return nil
	}
	pub, err := gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.publisher = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return nil
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store exposes the listing store and run log.
func (a *App) Store() Store {
	return a.store
}

// Pipeline assembles a crawl pipeline from the configured fetcher, extractor
// and phone strategy.
func (a *App) Pipeline() (*pipeline.Pipeline, error) {
	crawlCfg := a.cfg.Crawler()

	var limiter collyfetcher.Waiter
	if a.cfg.HTTP.RequestsPerSecond > 0 {
		limiter = ratelimit.New(ratelimit.Config{
			RPS:   a.cfg.HTTP.RequestsPerSecond,
			Burst: a.cfg.HTTP.Burst,
		})
		a.logger.Info("rate limiter enabled",
			zap.Float64("rps", a.cfg.HTTP.RequestsPerSecond),
			zap.Int("burst", a.cfg.HTTP.Burst),
		)
	}
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Site.UserAgent,
		Timeout:   crawlCfg.RequestTimeout,
	}, limiter)

	extractor, err := extract.New(extract.DefaultRules(crawlCfg.PhoneStrategy), a.clock)
	if err != nil {
		return nil, fmt.Errorf("extractor init failed: %w", err)
	}

	var phones crawler.PhoneRevealer
	if crawlCfg.PhoneStrategy == crawler.PhoneBrowser {
		if a.phones == nil {
			a.phones, err = headless.NewChromedp(headless.Config{
				MaxParallel: 1,
				UserAgent:   a.cfg.Site.UserAgent,
				WaitTimeout: a.cfg.PhoneWait(),
				Settle:      a.cfg.PhoneSettle(),
			})
			if err != nil {
				return nil, fmt.Errorf("phone revealer init failed: %w", err)
			}
			a.logger.Info("using headless browser for phone numbers")
		}
		phones = a.phones
	}

	deps := pipeline.Deps{
		Config:    crawlCfg,
		Fetcher:   fetcher,
		Extractor: extractor,
		Phones:    phones,
		Store:     a.store,
		Runs:      a.store,
		Topic:     a.cfg.PubSub.Topic,
		Clock:     a.clock,
		IDs:       a.ids,
		Logger:    a.logger.Named("pipeline"),
	}
	if a.publisher != nil {
		deps.Publisher = a.publisher
	}
	p, err := pipeline.New(deps)
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}
	return p, nil
}

// Exporter builds a snapshot exporter for the configured blob store.
func (a *App) Exporter(ctx context.Context) (*export.Exporter, error) {
	var blobs crawler.BlobStore
	switch a.cfg.Export.Provider {
	case config.ExportGCS:
		if a.gcs == nil {
			client, err := gcsstorage.NewClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("gcs client init failed: %w", err)
			}
			a.gcs = client
		}
		store, err := gcsstorage.New(a.gcs, gcsstorage.Config{Bucket: a.cfg.Export.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		blobs = store
		a.logger.Debug("exporting to GCS", zap.String("bucket", a.cfg.Export.GCSBucket))
	case config.ExportLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Export.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		blobs = store
		a.logger.Debug("exporting to local directory", zap.String("path", a.cfg.Export.LocalDir))
	default:
		return nil, fmt.Errorf("unknown export provider %q", a.cfg.Export.Provider)
	}
	return export.New(a.store, blobs, a.clock, a.cfg.Export.Prefix, a.logger.Named("export")), nil
}

// Migrate creates the listing and run tables. The memory store needs none.
func (a *App) Migrate(ctx context.Context) error {
	if a.pg == nil {
		a.logger.Info("store has no schema to migrate", zap.String("provider", a.cfg.Store.Provider))
		return nil
	}
	if err := a.pg.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.logger.Info("schema ensured", zap.String("table", a.cfg.Store.Table))
	return nil
}

// Scheduler wraps runner in a cron scheduler on the configured schedule.
func (a *App) Scheduler(runner scheduler.Runner) (*scheduler.Scheduler, error) {
	s, err := scheduler.New(a.cfg.CronSpec(), runner, a.logger.Named("scheduler"))
	if err != nil {
		return nil, fmt.Errorf("scheduler init failed: %w", err)
	}
	return s, nil
}

// Handler builds the operator HTTP API.
func (a *App) Handler(trigger api.Trigger) http.Handler {
	opts := api.Options{
		Listings: a.store,
		Runs:     a.store,
		Trigger:  trigger,
		APIKey:   a.cfg.Auth.APIKey,
		Logger:   a.logger.Named("api"),
	}
	if a.pg != nil {
		opts.Ready = a.pg
	}
	return api.NewServer(opts).Handler()
}

// Close releases every service the App opened. It is safe to call on a
// partially built App.
func (a *App) Close(ctx context.Context) {
	var errs []error
	if a.phones != nil {
		a.phones.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gcs client: %w", err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown incomplete", zap.Error(err))
	}
	_ = a.logger.Sync()
}

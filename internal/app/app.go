// Package app initializes and holds long-lived application services, acting
// as the dependency container for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/pubsub"
	gcsstorage "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikidot-crawler/internal/api"
	"github.com/JakeFAU/wikidot-crawler/internal/clock/system"
	"github.com/JakeFAU/wikidot-crawler/internal/config"
	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
	"github.com/JakeFAU/wikidot-crawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/wikidot-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/wikidot-crawler/internal/hash/sha256"
	"github.com/JakeFAU/wikidot-crawler/internal/hubmerge"
	"github.com/JakeFAU/wikidot-crawler/internal/id/uuid"
	"github.com/JakeFAU/wikidot-crawler/internal/pipeline"
	pubsubpublisher "github.com/JakeFAU/wikidot-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/wikidot-crawler/internal/queue/memory"
	"github.com/JakeFAU/wikidot-crawler/internal/storage/gcs"
	"github.com/JakeFAU/wikidot-crawler/internal/storage/local"
	memorysink "github.com/JakeFAU/wikidot-crawler/internal/storage/memory"
	"github.com/JakeFAU/wikidot-crawler/internal/storage/postgres"
	"github.com/JakeFAU/wikidot-crawler/internal/worker"
)

// App holds the shared services of one crawler process.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	fetcher  crawler.Fetcher
	pipeline *pipeline.Pipeline
	server   *api.Server
	closers  []func() error
	closed   bool
}

// Option overrides a service New would otherwise build from config.
type Option func(*options)

type options struct {
	fetcher   crawler.Fetcher
	publisher crawler.Publisher
	sinks     []pipeline.Sink
	clock     crawler.Clock
}

// WithFetcher replaces the colly fetcher.
func WithFetcher(f crawler.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithPublisher replaces the Pub/Sub publisher.
func WithPublisher(p crawler.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithSinks adds sinks next to the configured storage backend.
func WithSinks(sinks ...pipeline.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

// WithClock replaces the system clock.
func WithClock(c crawler.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New builds every service the configuration asks for. It fails fast when a
// configured backend cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, logger: logger}
	logger.Info("initializing application services")

	sinks, err := a.buildStorage(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	sinks = append(sinks, o.sinks...)

	var (
		runs *postgres.RunStore
		deps = map[string]api.Pinger{}
	)
	if cfg.DB.DSN != "" {
		pool, err := a.connectPostgres(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		pages, err := postgres.NewPageStore(pool, cfg.DB.PagesTable)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init page store: %w", err)
		}
		runs, err = postgres.NewRunStore(pool, cfg.DB.RunsTable)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init run store: %w", err)
		}
		sinks = append(sinks, pipeline.Sink{Name: "postgres", Sink: pages})
		deps["postgres"] = pool
	}

	publisher := o.publisher
	if publisher == nil && cfg.PubSub.ProjectID != "" {
		publisher, err = a.connectPubSub(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.fetcher = o.fetcher
	if a.fetcher == nil {
		a.fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.FetchTimeout(),
		})
	}

	clock := o.clock
	if clock == nil {
		clock = system.New()
	}
	popts := pipeline.Options{
		Sinks:     sinks,
		Publisher: publisher,
		Topic:     cfg.PubSub.TopicName,
		Hasher:    sha256.New(),
		Clock:     clock,
		IDs:       uuid.New(),
		Logger:    logger.Named("pipeline"),
	}
	var lookup api.RunLookup
	if runs != nil {
		popts.Runs = runs
		lookup = runs
	}
	a.pipeline = pipeline.New(hubmerge.NewCoordinator(hubmerge.NewStore(), logger.Named("hubmerge")), popts)
	a.server = api.NewServer(a.pipeline, lookup, deps, logger.Named("api"))

	logger.Info("application services initialized", zap.Int("sinks", len(sinks)), zap.Bool("publisher", publisher != nil))
	return a, nil
}

func (a *App) buildStorage(ctx context.Context) ([]pipeline.Sink, error) {
	cfg := a.cfg.Storage
	switch cfg.Backend {
	case config.StorageLocal:
		sink, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		a.logger.Info("using local storage", zap.String("base_dir", cfg.BaseDir))
		return []pipeline.Sink{{Name: "local", Sink: sink}}, nil
	case config.StorageMemory:
		a.logger.Info("using in-memory storage; records are discarded on exit")
		return []pipeline.Sink{{Name: "memory", Sink: memorysink.NewSink()}}, nil
	case config.StorageGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		sink, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		a.logger.Info("using gcs storage", zap.String("bucket", cfg.Bucket))
		return []pipeline.Sink{{Name: "gcs", Sink: sink}}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

func (a *App) connectPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	a.logger.Info("connecting to postgres")
	pool, err := postgres.Connect(ctx, postgres.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.MaxConnLifetime(),
	})
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	if a.cfg.DB.EnsureSchema {
		if err := postgres.EnsureSchema(ctx, pool, a.cfg.DB.PagesTable, a.cfg.DB.RunsTable); err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
	}
	return pool, nil
}

func (a *App) connectPubSub(ctx context.Context) (crawler.Publisher, error) {
	a.logger.Info("connecting to pub/sub", zap.String("topic", a.cfg.PubSub.TopicName))
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub: %w", err)
	}
	topic := client.Topic(a.cfg.PubSub.TopicName)
	a.closers = append(a.closers, func() error {
		topic.Stop()
		return client.Close()
	})
	return pubsubpublisher.New(topic), nil
}

// Closed reports whether Close has run.
func (a *App) Closed() bool {
	return a.closed
}

// Handler exposes the operator HTTP routes.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Pipeline exposes the item pipeline.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Crawl runs one crawl over targets and returns its summary. The run is
// recorded as failed when the dispatcher stops early.
func (a *App) Crawl(ctx context.Context, targets []crawler.Target) (crawler.RunSummary, error) {
	runID, err := a.pipeline.Open(ctx)
	if err != nil {
		return crawler.RunSummary{}, err
	}
	logger := a.logger.With(zap.String("run_id", runID))

	queue := memory.NewQueue[worker.Task](a.cfg.Crawler.QueueCapacity)
	d := dispatcher.New(queue, logger.Named("dispatcher"))
	wcfg := worker.Config{
		Domain:          a.cfg.Wiki.Domain,
		BaseURL:         a.cfg.Wiki.BaseURL,
		Token:           a.cfg.Wiki.Token,
		MaxHistoryPages: a.cfg.History.MaxPages,
	}
	for i := 0; i < a.cfg.Crawler.Concurrency; i++ {
		d.AddWorkers(worker.New(queue, d, a.fetcher, a.pipeline, wcfg, logger.Named("worker").With(zap.Int("worker", i))))
	}

	seeds := make([]worker.Task, 0, len(targets))
	for _, target := range targets {
		seeds = append(seeds, worker.PageTask(target))
	}
	runErr := d.Run(ctx, seeds)

	summary, closeErr := a.pipeline.Close(context.WithoutCancel(ctx), runErr)
	if err := errors.Join(runErr, closeErr); err != nil {
		return summary, fmt.Errorf("crawl run %s: %w", runID, err)
	}
	return summary, nil
}

// Close releases every client New opened.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	a.closed = true
	// Sync errors on stderr/stdout are expected on some platforms.
	_ = a.logger.Sync()
}

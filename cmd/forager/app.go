package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"forager/internal/config"
	"forager/internal/feedparser"
	"forager/internal/httpclient"
	"forager/internal/publisher"
	"forager/internal/service"
	"forager/internal/storage/postgres"
)

// app holds the wired dependencies shared by the storage-backed commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sqlx.DB
	pub    *publisher.RabbitMQ

	categories *postgres.CategoryStore
	tags       *postgres.TagStore
	feeds      *postgres.FeedStore
	articles   *postgres.ArticleStore

	fetcher    *service.FetchService
	reconciler *service.ReconcileService
}

func loadConfig(opts *options) (*config.Config, *slog.Logger, error) {
	logger := setupLogger("info")

	cfg, err := config.Load(opts.Config)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return nil, nil, err
	}

	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	return cfg, setupLogger(level), nil
}

func newApp(opts *options, withPublisher bool) (*app, error) {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)

	if cfg.Database.Migrate {
		version, dirty, err := postgres.Migrate(db)
		if err != nil {
			db.Close()
			logger.Error("failed to run migrations", "error", err)
			return nil, err
		}
		logger.Info("database schema up to date", "version", version, "dirty", dirty)
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		categories: postgres.NewCategoryStore(db),
		tags:       postgres.NewTagStore(db),
		feeds:      postgres.NewFeedStore(db),
		articles:   postgres.NewArticleStore(db),
	}

	var pub service.Publisher
	if withPublisher && cfg.RabbitMQ.Enabled {
		a.pub, err = publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			db.Close()
			logger.Error("failed to connect to rabbitmq", "error", err)
			return nil, err
		}
		pub = a.pub
	}

	a.fetcher = service.NewFetchService(
		a.feeds,
		a.articles,
		a.categories,
		a.tags,
		postgres.NewTransactionManager(db),
		httpclient.NewDefault(httpConfig(cfg.Fetch), logger),
		feedparser.New(logger),
		pub,
		logger,
		cfg.Fetch,
	)
	a.reconciler = service.NewReconcileService(a.feeds, a.categories, a.tags, logger)

	return a, nil
}

func (a *app) Close() {
	if a.pub != nil {
		if err := a.pub.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq connection", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}

func (a *app) loadSubscriptions() (*config.Subscriptions, error) {
	return config.LoadSubscriptions(a.cfg.Sync.Subscriptions)
}

func httpConfig(f config.FetchConfig) httpclient.Config {
	return httpclient.Config{
		UserAgent:     f.UserAgent,
		UserAgents:    f.UserAgents,
		MinDelay:      f.MinDelay,
		MaxDelay:      f.MaxDelay,
		DisableJitter: f.DisableJitter,
		Retries:       f.Retries,
		BackoffBase:   f.BackoffFactor,
		Timeout:       f.Timeout,
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

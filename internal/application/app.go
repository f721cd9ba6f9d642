// Package application assembles the service from configuration: primary
// store, Redis client, job queue, list cache and search index. It is shared
// by the HTTP server and the worker binaries.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/partsync/internal/cache"
	"github.com/JonMunkholm/partsync/internal/config"
	"github.com/JonMunkholm/partsync/internal/core"
	"github.com/JonMunkholm/partsync/internal/database"
	"github.com/JonMunkholm/partsync/internal/memstore"
	"github.com/JonMunkholm/partsync/internal/queue"
	"github.com/JonMunkholm/partsync/internal/search"
)

// App holds the wired service and the resources it owns.
type App struct {
	Config  *config.Config
	Service *core.Service
	Queue   queue.Queue

	closers []func()
}

// New connects every configured backend and builds the service. On error,
// anything already opened is closed.
func New(ctx context.Context, cfg *config.Config) (app *App, err error) {
	app = &App{Config: cfg}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	deps := core.Dependencies{
		Database:       cfg.Database.Name,
		MaxUploadBytes: cfg.Upload.MaxFileSize,
		Limiter:        core.NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
	}

	switch cfg.Store.Driver {
	case config.DriverMemory:
		store := memstore.New()
		deps.Sessions, deps.Reader = store, store
		slog.Warn("using in-memory product store; data is lost on exit")
	default:
		factory, err := app.connectPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		deps.Sessions, deps.Reader = factory, factory
	}

	var rdb *redis.Client
	if cfg.Queue.Driver == config.DriverRedis || cfg.Cache.Enabled {
		if rdb, err = app.connectRedis(ctx, cfg); err != nil {
			return nil, err
		}
	}

	switch cfg.Queue.Driver {
	case config.DriverMemory:
		app.Queue = queue.NewMemory(cfg.Queue.Capacity, cfg.Queue.JobTTL)
	default:
		app.Queue = queue.NewRedis(rdb, queue.RedisConfig{
			QueueKey:     cfg.Queue.Key,
			StatusPrefix: cfg.Queue.StatusPrefix,
			StatusTTL:    cfg.Queue.JobTTL,
			PollTimeout:  cfg.Queue.PollTimeout,
		})
	}
	deps.Dispatcher = app.Queue

	if cfg.Cache.Enabled {
		deps.Cache = cache.New(rdb, cfg.Cache.Prefix, cfg.Cache.TTL)
		slog.Info("list cache enabled", "ttl", cfg.Cache.TTL)
	}

	if cfg.Search.Enabled() {
		idx, err := search.New(cfg.Search.URLs, cfg.Search.Index)
		if err != nil {
			return nil, err
		}
		if err := idx.EnsureIndex(ctx); err != nil {
			slog.Warn("search index not ready; lookups fall back on failure", "error", err)
		}
		deps.Searcher, deps.Indexer = idx, idx
		slog.Info("search index enabled", "index", cfg.Search.Index)
	}

	app.Service, err = core.NewService(deps)
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return app, nil
}

func (a *App) connectPostgres(ctx context.Context, cfg *config.Config) (*database.Factory, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	slog.Info("connected to database", "descriptor", cfg.Database.Name, "database", poolConfig.ConnConfig.Database)

	if cfg.Database.Migrate {
		if err := database.Migrate(ctx, pool); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		slog.Info("schema ready")
	}
	return database.NewFactory(pool), nil
}

func (a *App) connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	a.closers = append(a.closers, func() { _ = client.Close() })

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("connected to redis", "addr", opts.Addr, "db", opts.DB)
	return client, nil
}

// RunWorkers processes queued jobs until ctx is cancelled. Jobs already
// started when ctx is cancelled run to completion.
func (a *App) RunWorkers(ctx context.Context) error {
	err := queue.NewPool(a.Queue, a.Service.ProcessJob, a.Config.Queue.Workers).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Package app assembles the stores, buses and clients selected by the
// configuration. The api server, the worker and historyctl share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/historyhub/internal/api/handlers"
	"github.com/nikhilbhutani/historyhub/internal/audit"
	"github.com/nikhilbhutani/historyhub/internal/config"
	"github.com/nikhilbhutani/historyhub/internal/database"
	"github.com/nikhilbhutani/historyhub/internal/events"
	"github.com/nikhilbhutani/historyhub/internal/github"
	"github.com/nikhilbhutani/historyhub/internal/history"
	"github.com/nikhilbhutani/historyhub/internal/kvstore"
	"github.com/nikhilbhutani/historyhub/internal/llm"
	"github.com/nikhilbhutani/historyhub/internal/multimodal/stt"
	"github.com/nikhilbhutani/historyhub/internal/queue"
	"github.com/nikhilbhutani/historyhub/internal/webhook"
)

type App struct {
	Config  *config.Config
	KV      kvstore.Store
	Bus     events.Bus
	Stream  events.Streamer
	History *history.Store
	Catalog *llm.Catalog
	STT     stt.Provider
	GitHub  *github.Client
	Audit   *audit.Service // nil unless AUDIT_ENABLED
	Checks  map[string]handlers.Check

	logger  *slog.Logger
	redis   *redis.Client
	pool    *pgxpool.Pool
	closers []func() error
}

// New wires everything cfg selects. Call Close when done.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		Config: cfg,
		Checks: make(map[string]handlers.Check),
		logger: logger,
	}

	if err := a.openKV(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openBus(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.History = history.New(a.KV, a.Bus, history.WithKey(cfg.History.Key), history.WithLogger(logger))

	catalog, err := llm.Load(cfg.Catalog.Path)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Catalog = catalog

	provider, err := stt.FromConfig(cfg.STT)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.STT = provider
	a.GitHub = github.NewClient(cfg.GitHub, logger)

	return a, nil
}

// Redis returns the shared client, connecting on first use.
func (a *App) Redis() *redis.Client {
	if a.redis == nil {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		a.closers = append(a.closers, a.redis.Close)
		rdb := a.redis
		a.Checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return a.redis
}

// Pool returns the shared Postgres pool, connecting and migrating on first use.
func (a *App) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool == nil {
		pool, err := database.Open(ctx, a.Config.Database)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.Checks["database"] = pool.Ping
	}
	return a.pool, nil
}

func (a *App) openKV(ctx context.Context) error {
	cfg := a.Config
	switch cfg.KV.Backend {
	case "memory":
		a.KV = kvstore.NewMemory()
	case "redis":
		rdb := a.Redis()
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.logger.Warn("redis unavailable, history reads will degrade", "error", err)
		}
		a.KV = kvstore.NewRedis(rdb, cfg.KV.Namespace)
	case "postgres":
		pool, err := a.Pool(ctx)
		if err != nil {
			return fmt.Errorf("open postgres kv store: %w", err)
		}
		a.KV = kvstore.NewPostgres(pool)
	case "sqlite":
		s, err := kvstore.OpenSQLite(ctx, cfg.KV.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite kv store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		a.KV = s
	default:
		return fmt.Errorf("unknown kv backend %q", cfg.KV.Backend)
	}
	return nil
}

func (a *App) openBus(ctx context.Context) error {
	cfg := a.Config
	var buses events.Multi

	switch cfg.Events.Backend {
	case "local":
		local := events.NewLocal(cfg.Events.BufferSize, a.logger)
		a.closers = append(a.closers, local.Close)
		buses = append(buses, local)
	case "redis":
		buses = append(buses, events.NewRedisBus(a.Redis(), cfg.Events.ChannelPrefix, a.logger))
	case "queue":
		qb := queue.NewBus(cfg.Redis, a.logger)
		a.closers = append(a.closers, qb.Close)
		buses = append(buses, qb)
		// Subscribers on this process still see events through redis pub/sub.
		buses = append(buses, events.NewRedisBus(a.Redis(), cfg.Events.ChannelPrefix, a.logger))
	default:
		return fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}

	// The worker delivers webhooks for the queue backend; otherwise deliver here.
	if cfg.Events.Backend != "queue" && len(cfg.Webhook.URLs) > 0 {
		d := webhook.NewDispatcher(webhook.NewSink(cfg.Webhook.URLs, cfg.Webhook.Secret), a.logger)
		a.closers = append(a.closers, d.Close)
		buses = append(buses, d)
	}

	if cfg.Audit.Enabled {
		pool, err := a.Pool(ctx)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		a.Audit = audit.NewService(pool)
		rec := audit.NewRecorder(a.Audit, cfg.Events.BufferSize, a.logger)
		a.closers = append(a.closers, rec.Close)
		buses = append(buses, rec)
	}

	a.Bus = buses
	a.Stream = buses
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Package app wires configuration, storage, locking and services into one
// running instance shared by the HTTP API, the MCP server and the CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"maglink/internal/config"
	"maglink/internal/domain"
	"maglink/internal/httpapi"
	"maglink/internal/layout"
	mcpserver "maglink/internal/mcp"
	"maglink/internal/pagelock"
	"maglink/internal/service"
	"maglink/internal/storage"
	"maglink/internal/storage/mongostore"
)

// App holds every long-lived component.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	Pages  *service.PageService
	Blocks *service.BlockService
	Audit  *service.LayoutAudit

	sqlDB   *storage.DB
	mongo   *mongostore.Store
	redis   *redis.Client
	closers []func(context.Context) error
}

// stores groups the persistence backends the services run on.
type stores struct {
	blocks    domain.BlockStore
	pages     domain.PageStore
	snapshots domain.SnapshotStore
}

// New opens storage and the page locker named by cfg and builds the
// services on top of them. Close releases everything New opened.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	st, err := a.openStorage(ctx)
	if err != nil {
		return nil, a.fail(err)
	}
	locker, err := a.openLocker(ctx)
	if err != nil {
		return nil, a.fail(err)
	}

	emitter := service.NewLogEmitter(logger.Named("events"))
	engine := layout.NewEngine(cfg.LayoutGrid())

	a.Blocks = service.NewBlockService(st.blocks, st.pages, st.snapshots, locker, engine, emitter, logger.Named("blocks"))
	a.Blocks.SetBlockLimit(cfg.Limits.BlocksPerPage)
	a.Pages = service.NewPageService(st.pages, st.blocks, emitter, logger.Named("pages"))
	a.Audit = service.NewLayoutAudit(st.pages, a.Blocks, logger.Named("audit"))

	logger.Info("app ready",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("lock", cfg.Lock.Backend),
		zap.Int("columns", engine.Grid().Columns),
		zap.Int("blocks_per_page", cfg.Limits.BlocksPerPage),
	)
	return a, nil
}

func (a *App) openStorage(ctx context.Context) (stores, error) {
	cfg := a.Config
	if cfg.Storage.Driver == "mongodb" {
		m, err := mongostore.Open(ctx, cfg.Storage)
		if err != nil {
			return stores{}, err
		}
		a.mongo = m
		a.closers = append(a.closers, m.Close)
		return stores{blocks: m.Blocks(), pages: m.Pages(), snapshots: m.Snapshots(cfg.History.MaxSnapshots)}, nil
	}

	db, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return stores{}, err
	}
	a.sqlDB = db
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })
	return stores{
		blocks:    storage.NewBlockStore(db),
		pages:     storage.NewPageStore(db),
		snapshots: storage.NewSnapshotStore(db, cfg.History.MaxSnapshots),
	}, nil
}

func (a *App) openLocker(ctx context.Context) (pagelock.Locker, error) {
	lc := a.Config.Lock
	if lc.Backend != "redis" {
		return pagelock.NewMemory(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     lc.RedisAddr,
		Password: lc.RedisPassword,
		DB:       lc.RedisDB,
	})
	a.redis = client
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", lc.RedisAddr, err)
	}
	return pagelock.NewRedis(client, config.Duration(lc.TTL, 10*time.Second), a.Logger.Named("pagelock")), nil
}

// fail closes whatever was opened before err and returns err.
func (a *App) fail(err error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return multierr.Append(err, a.Close(ctx))
}

// Ping checks every backend the app depends on.
func (a *App) Ping(ctx context.Context) error {
	var err error
	if a.sqlDB != nil {
		err = multierr.Append(err, a.sqlDB.Ping(ctx))
	}
	if a.mongo != nil {
		err = multierr.Append(err, a.mongo.Ping(ctx))
	}
	if a.redis != nil {
		err = multierr.Append(err, a.redis.Ping(ctx).Err())
	}
	return err
}

// Migrate applies the SQL schema. Document stores create their indexes on
// open, so there is nothing to do for them.
func (a *App) Migrate(ctx context.Context) error {
	if a.sqlDB == nil {
		return nil
	}
	return a.sqlDB.Migrate(ctx)
}

// HTTP builds the HTTP API over the app's services.
func (a *App) HTTP() *httpapi.Server {
	return httpapi.New(a.Pages, a.Blocks, a.Logger.Named("http"),
		config.Duration(a.Config.Server.RequestTimeout, 0))
}

// MCP builds the MCP server over the app's services.
func (a *App) MCP(version string) *mcpserver.Server {
	return mcpserver.New(mcpserver.Deps{
		Pages:   a.Pages,
		Blocks:  a.Blocks,
		Logger:  a.Logger.Named("mcp"),
		Version: version,
	})
}

// WatchConfig reloads the config file on change and applies the settings
// that can change at runtime. It blocks until ctx is done.
func (a *App) WatchConfig(ctx context.Context, path string) error {
	return config.Watch(ctx, path, a.Logger.Named("config"), a.applyConfig)
}

func (a *App) applyConfig(cfg *config.Config) {
	if cfg.Limits.BlocksPerPage != a.Blocks.BlockLimit() {
		a.Logger.Info("block limit changed",
			zap.Int("from", a.Blocks.BlockLimit()),
			zap.Int("to", cfg.Limits.BlocksPerPage),
		)
		a.Blocks.SetBlockLimit(cfg.Limits.BlocksPerPage)
	}
}

// Close stops the audit and releases every backend, newest first.
func (a *App) Close(ctx context.Context) error {
	if a.Audit != nil {
		a.Audit.Stop(ctx)
	}
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i](ctx))
	}
	a.closers = nil
	return err
}

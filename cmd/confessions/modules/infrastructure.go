package modules

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.uber.org/fx"

	"github.com/memohai/confessions/db"
	"github.com/memohai/confessions/internal/boot"
	"github.com/memohai/confessions/internal/config"
	idb "github.com/memohai/confessions/internal/db"
	"github.com/memohai/confessions/internal/logger"
	"github.com/memohai/confessions/internal/store"
	"github.com/memohai/confessions/internal/store/postgres"
	"github.com/memohai/confessions/internal/store/sqlite"
)

// ConfigPath is the TOML file the application reads. Empty falls back to
// CONFIG_PATH and then config.DefaultConfigPath.
type ConfigPath string

var InfraModule = fx.Module(
	"infra",
	fx.Provide(
		ProvideConfig,
		ProvideLogger,
		boot.ProvideRuntimeConfig,
		provideStore,
	),
)

// ---------------------------------------------------------------------------
// infrastructure providers
// ---------------------------------------------------------------------------

// ProvideConfig loads the configuration file.
func ProvideConfig(path ConfigPath) (config.Config, error) {
	cfgPath := string(path)
	if cfgPath == "" {
		cfgPath = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func ProvideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) (store.Store, error) {
	st, closeFn, err := OpenStore(context.Background(), log, cfg, rc)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			closeFn()
			return nil
		},
	})
	return st, nil
}

// OpenStore opens the configured backend, applies migrations when enabled and
// wraps it in the read-through cache when a TTL is set. The returned func
// releases the backend.
func OpenStore(ctx context.Context, log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) (store.Store, func(), error) {
	var (
		st      store.Store
		closeFn = func() {}
	)
	switch rc.StoreDriver {
	case "postgres":
		pool, err := idb.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		if cfg.Store.AutoMigrate {
			if err := idb.RunMigrate(log, idb.DSN(cfg.Postgres), db.MigrationsFS, "migrations", "up", nil); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		st, closeFn = postgres.New(log, pool), pool.Close
	case "sqlite":
		sqliteStore, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Store.AutoMigrate {
			if err := idb.RunMigrate(log, idb.SQLiteURL(cfg.SQLite.Path), db.MigrationsFS, "migrations", "up", nil); err != nil {
				_ = sqliteStore.Close()
				return nil, nil, err
			}
		}
		st, closeFn = sqliteStore, func() {
			if err := sqliteStore.Close(); err != nil {
				log.Warn("close sqlite store failed", slog.Any("error", err))
			}
		}
	case "memory":
		log.Warn("memory store selected, configuration is lost on restart")
		st = store.NewMemory()
	default:
		return nil, nil, fmt.Errorf("unknown store driver: %s", rc.StoreDriver)
	}

	if rc.CacheTTL > 0 {
		st = store.NewCached(st, rc.CacheTTL)
	}
	log.Info("config store ready", slog.String("driver", rc.StoreDriver), slog.Duration("cache_ttl", rc.CacheTTL))
	return st, closeFn, nil
}

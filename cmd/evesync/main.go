// Command evesync polls the remote API into the relational store and serves
// the operator API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/evesync/internal/access"
	"github.com/JonMunkholm/evesync/internal/cache"
	"github.com/JonMunkholm/evesync/internal/config"
	"github.com/JonMunkholm/evesync/internal/core"
	_ "github.com/JonMunkholm/evesync/internal/core/endpoints" // Register all endpoints
	"github.com/JonMunkholm/evesync/internal/database"
	"github.com/JonMunkholm/evesync/internal/logging"
	"github.com/JonMunkholm/evesync/internal/retriever"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "evesync",
		Short:         "Synchronise remote API documents into a relational store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newPollCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newMaskCommand())
	cmd.AddCommand(newKeyCommand())
	cmd.AddCommand(newLocksCommand())
	return cmd
}

// app holds the process-wide dependencies built from configuration.
type app struct {
	cfg     *config.Config
	db      *database.DB
	redis   *redis.Client
	locker  cache.Locker
	service *core.Service
}

// loadConfig reads .env (overwriting existing variables), loads the
// configuration and sets up logging.
func loadConfig() (*config.Config, error) {
	envErr := godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if envErr != nil {
		slog.Debug("no .env file found, using environment variables")
	}
	return cfg, nil
}

// openDB loads configuration, connects to the database and applies
// migrations.
func openDB(ctx context.Context) (*config.Config, *database.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	opts, err := cfg.DatabaseOptions()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Debug("connected to database", "driver", string(opts.Driver))
	return cfg, db, nil
}

// openApp wires the service over a migrated database.
func openApp(ctx context.Context) (*app, error) {
	cfg, db, err := openDB(ctx)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, db: db}

	if err := a.openLocker(ctx); err != nil {
		a.Close()
		return nil, err
	}

	registry, err := access.Load(ctx, db)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load capability table: %w", err)
	}

	a.service, err = core.NewService(db, registry, core.Options{
		Retriever: retriever.NewHTTP(retriever.Options{
			BaseURL:       cfg.API.BaseURL,
			Timeout:       cfg.API.Timeout,
			RetryAttempts: cfg.API.RetryAttempts,
			RetryBackoff:  cfg.API.RetryBackoff,
			UserAgent:     cfg.API.UserAgent,
		}),
		Locker:           a.locker,
		FallbackInterval: cfg.Poll.FallbackInterval,
		Concurrency:      cfg.Poll.Concurrency,
		MaxWait:          cfg.Poll.MaxWait,
		ArchiveValid:     cfg.Poll.ArchiveValid,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create service: %w", err)
	}
	return a, nil
}

func (a *app) openLocker(ctx context.Context) error {
	backend, err := cache.ParseBackend(a.cfg.Lock.Backend)
	if err != nil {
		return err
	}
	holder := cache.NewHolderID()

	if backend != cache.BackendRedis {
		a.locker = cache.NewSQLLocker(a.db, holder)
		return nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis at %s: %w", a.cfg.Redis.Addr, err)
	}
	a.locker = cache.NewRedisLocker(a.redis, holder)
	slog.Info("using redis lock backend", "addr", a.cfg.Redis.Addr)
	return nil
}

// Close releases the database and redis connections.
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("close redis", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		slog.Warn("close database", "error", err)
	}
}

// withApp runs fn with a wired app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

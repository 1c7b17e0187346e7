// Package bootstrap is the shared startup path for the api, worker and
// cron-worker binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/commitscribe-backend/pkg/config"
	"github.com/angelmondragon/commitscribe-backend/pkg/db"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/migrate"
	"github.com/angelmondragon/commitscribe-backend/pkg/redis"
)

// Runtime is the process-wide infrastructure handed to a service.
type Runtime struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	Redis  *redis.Client
}

// Load reads .env when present, then the environment, and builds the
// service logger from the result.
func Load(service string) (*config.Config, *logger.Logger, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = service
	logg := logger.New(logger.Options{
		ServiceName: service,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	return cfg, logg, nil
}

// Open connects Postgres and Redis. In dev with auto-migrate on, the bundled
// migrations are applied before Redis is dialed.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Runtime, error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	return &Runtime{Config: cfg, Logger: logg, DB: dbClient, Redis: redisClient}, nil
}

func (r *Runtime) Close() error {
	var err error
	if r.Redis != nil {
		err = multierr.Append(err, r.Redis.Close())
	}
	if r.DB != nil {
		err = multierr.Append(err, r.DB.Close())
	}
	return err
}

// Main runs fn until SIGINT/SIGTERM and exits 1 when startup or fn fails.
// A fn that returns because its context was canceled is a clean stop.
func Main(service string, fn func(ctx context.Context, rt *Runtime) error) {
	cfg, logg, err := Load(service)
	if err != nil {
		logger.New(logger.Options{ServiceName: service}).Error(context.Background(), "startup failed", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": service})

	code := run(ctx, cfg, logg, fn)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, fn func(context.Context, *Runtime) error) int {
	rt, err := Open(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "startup failed", err)
		return 1
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logg.Error(context.WithoutCancel(ctx), "closing connections", err)
		}
	}()

	logg.Info(ctx, "service starting")
	if err := fn(ctx, rt); !Stopped(err) {
		logg.Error(ctx, "service stopped unexpectedly", err)
		return 1
	}
	logg.Info(ctx, "service stopped")
	return 0
}

// Stopped reports whether err is nil or only a context cancellation.
func Stopped(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

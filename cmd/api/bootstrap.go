package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	natsgo "github.com/nats-io/nats.go"

	"github.com/lorrc/event-updates-backend/internal/adapters/secondary/memory"
	"github.com/lorrc/event-updates-backend/internal/adapters/secondary/nats"
	"github.com/lorrc/event-updates-backend/internal/adapters/secondary/postgres"
	"github.com/lorrc/event-updates-backend/internal/adapters/secondary/push"
	"github.com/lorrc/event-updates-backend/internal/config"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
	"github.com/lorrc/event-updates-backend/internal/core/services"
	"github.com/lorrc/event-updates-backend/internal/infrastructure/logging"
)

// app holds the dependencies shared by the serve and worker commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	pool     *pgxpool.Pool
	nc       *natsgo.Conn // nil when NATS is disabled
	broker   ports.Broker
	presence ports.PresenceTracker
	metrics  *services.Metrics

	logCloser io.Closer
}

// loadConfig loads configuration and builds the structured logger.
func loadConfig() (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, closer := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
	})
	slog.SetDefault(logger)

	return cfg, logger, closer, nil
}

// bootstrap connects to Postgres and, when enabled, NATS. Each check runs
// against the loaded config before any connection is opened.
func bootstrap(ctx context.Context, checks ...func(*config.Config) error) (*app, error) {
	cfg, logger, closer, err := loadConfig()
	if err != nil {
		return nil, err
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			if closer != nil {
				_ = closer.Close()
			}
			return nil, err
		}
	}

	rt := &app{cfg: cfg, logger: logger, logCloser: closer}

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"config", cfg.String(),
	)

	// 1. Database pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	rt.pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := rt.pool.Ping(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("database connection established")

	// 2. Broker and presence
	if cfg.NATS.Enabled {
		rt.nc, err = nats.Connect(ctx, nats.ConnConfig{
			URL:            cfg.NATS.URL,
			Name:           cfg.NATS.Name,
			ConnectTimeout: cfg.NATS.ConnectTimeout,
		}, logger)
		if err != nil {
			rt.Close()
			return nil, err
		}

		js, err := rt.nc.JetStream()
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("open jetstream context: %w", err)
		}
		presence, err := nats.NewPresence(js, cfg.Presence.TTL, logger)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("open presence buckets: %w", err)
		}
		rt.broker = nats.NewBroker(rt.nc, logger)
		rt.presence = presence
	} else {
		logger.Warn("nats disabled, using in-process broker and presence; run a single instance")
		rt.broker = memory.NewBroker()
		rt.presence = memory.NewPresenceTracker(nil)
	}

	// 3. Metrics
	rt.metrics, err = services.NewMetrics()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	return rt, nil
}

// limiter builds the shared sliding-window limiter, or nil when disabled.
func (rt *app) limiter() *services.SlidingWindowLimiter {
	if !rt.cfg.RateLimit.Enabled {
		return nil
	}
	policies := map[string]services.RatePolicy{
		services.OpCreateUpdate: {Limit: rt.cfg.RateLimit.CreatePerHour, Window: time.Hour},
		services.OpReaction:     {Limit: rt.cfg.RateLimit.ReactionsPerMin, Window: time.Minute},
		services.OpAPI:          {Limit: rt.cfg.RateLimit.APIPerMin, Window: time.Minute},
	}
	return services.NewSlidingWindowLimiter(postgres.NewCounterStore(rt.pool), policies, rt.metrics, rt.logger, nil)
}

// fallbackWorker builds the offline delivery worker.
func (rt *app) fallbackWorker() *services.FallbackWorker {
	fc := rt.cfg.Fallback
	return services.NewFallbackWorker(
		postgres.NewFallbackQueue(rt.pool),
		rt.presence,
		push.NewLogNotifier(rt.logger),
		rt.metrics,
		rt.logger,
		services.FallbackWorkerConfig{
			PollInterval: fc.PollInterval,
			Lease:        fc.Lease,
			BatchSize:    fc.BatchSize,
			Concurrency:  fc.Concurrency,
			MaxAttempts:  fc.MaxAttempts,
			BaseBackoff:  fc.BaseBackoff,
			MaxBackoff:   fc.MaxBackoff,
		},
	)
}

// natsCheck reports whether the NATS connection can round-trip.
func (rt *app) natsCheck(ctx context.Context) error {
	if rt.nc.Status() != natsgo.CONNECTED {
		return fmt.Errorf("nats connection is %s", rt.nc.Status())
	}
	return rt.nc.FlushWithContext(ctx)
}

// Close releases connections in reverse order of acquisition.
func (rt *app) Close() {
	if rt.nc != nil {
		if err := rt.nc.Drain(); err != nil {
			rt.logger.Warn("failed to drain nats connection", "error", err)
		}
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
	if rt.logCloser != nil {
		_ = rt.logCloser.Close()
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpAdapter "github.com/lorrc/event-updates-backend/internal/adapters/primary/http"
	mw "github.com/lorrc/event-updates-backend/internal/adapters/primary/http/middleware"
	"github.com/lorrc/event-updates-backend/internal/adapters/primary/websocket"
	"github.com/lorrc/event-updates-backend/internal/adapters/secondary/postgres"
	"github.com/lorrc/event-updates-backend/internal/auth"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
	"github.com/lorrc/event-updates-backend/internal/core/services"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var noWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket gateway",
		Long: `Run the HTTP API and websocket gateway.

The offline fallback worker runs in the same process unless SERVER_RUN_WORKER
is false or --no-worker is given; run "worker" separately in that case.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, noWorker)
		},
	}

	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "do not run the fallback worker in this process")
	return cmd
}

func serve(ctx context.Context, noWorker bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, logger := rt.cfg, rt.logger
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	// 1. Rate limiting
	var limiter ports.RateLimiter
	var ipLimiter *mw.RateLimiter
	if l := rt.limiter(); l != nil {
		limiter = l
		go l.RunSweeper(ctx, cfg.RateLimit.SweepInterval)

		ipLimiter = mw.NewRateLimiter(ctx, mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
		})
	}

	// 2. Realtime hub
	hub := websocket.NewHub(rt.broker, logger)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		if err := hub.Run(ctx); err != nil {
			logger.Error("websocket hub failed", "error", err)
		}
	}()

	// 3. Core services
	updateService := services.NewUpdateService(services.UpdateServiceDeps{
		Updates:     postgres.NewUpdateRepository(rt.pool),
		Engagement:  postgres.NewEngagementRepository(rt.pool),
		Events:      postgres.NewEventDirectory(rt.pool),
		Queue:       postgres.NewFallbackQueue(rt.pool),
		Limiter:     limiter,
		Broadcaster: hub,
		TxManager:   postgres.NewTransactionManager(rt.pool),
		Metrics:     rt.metrics,
		Logger:      logger,
		EditWindow:  cfg.Updates.EditWindow,
	})

	workerDone := make(chan struct{})
	if cfg.Server.RunWorker && !noWorker {
		go func() {
			defer close(workerDone)
			if err := rt.fallbackWorker().Run(ctx); err != nil {
				logger.Error("fallback worker failed", "error", err)
			}
		}()
	} else {
		close(workerDone)
	}

	// 4. Primary adapters
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Leeway)
	gateway := websocket.NewGateway(updateService, rt.presence, hub, logger, websocket.GatewayConfig{
		PresenceTTL: cfg.Presence.TTL,
		Heartbeat:   cfg.Presence.Heartbeat,
	}, nil)

	checks := map[string]httpAdapter.HealthChecker{"database": rt.pool}
	if rt.nc != nil {
		checks["nats"] = httpAdapter.HealthCheckFunc(rt.natsCheck)
	}

	router := httpAdapter.NewRouter(httpAdapter.RouterDeps{
		Updates: httpAdapter.NewUpdateHandler(updateService, httpAdapter.NewErrorHandler(logger), logger),
		WebSocket: httpAdapter.NewWebSocketHandler(hub, gateway, tokenManager, httpAdapter.WebSocketConfig{
			AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
			ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.WebSocket.WriteBufferSize,
			AllowAllOrigins: cfg.IsDevelopment() && len(cfg.WebSocket.AllowedOrigins) == 0,
			Client: websocket.ClientConfig{
				PongWait:       cfg.WebSocket.PongWait,
				PingPeriod:     cfg.WebSocket.PingInterval,
				MaxMessageSize: cfg.WebSocket.MaxMessageSize,
				SendBufferSize: cfg.WebSocket.SendBufferSize,
			},
		}, logger),
		Health:         httpAdapter.NewHealthHandler(checks, hub, cfg.App.Version),
		Verifier:       tokenManager,
		Limiter:        limiter,
		APIOperation:   services.OpAPI,
		IPLimiter:      ipLimiter,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
		Logger:         logger,
	})

	// 5. Server with graceful shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Hijacked websocket connections are not tracked by Shutdown; the hub
	// closes them once ctx is cancelled.
	cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	waitOrTimeout(shutdownCtx, hubDone, workerDone)
	logger.Info("server shutdown complete")
	return nil
}

// waitOrTimeout waits for every channel to close or ctx to expire.
func waitOrTimeout(ctx context.Context, done ...<-chan struct{}) {
	for _, ch := range done {
		select {
		case <-ch:
		case <-ctx.Done():
			return
		}
	}
}

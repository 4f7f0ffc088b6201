package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lorrc/event-updates-backend/internal/config"
)

// errWorkerNeedsNATS is returned when the standalone worker would read
// presence from its own empty in-process tracker and notify everyone.
var errWorkerNeedsNATS = errors.New("worker requires NATS_ENABLED=true: presence is only shared across processes through NATS")

// NewWorkerCmd creates the worker command.
func NewWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the offline fallback worker",
		Long: `Run the offline fallback worker without the HTTP server.

The worker claims queued fallback jobs, computes which ticket holders are
still offline and sends them a push notification. Any number of workers may
run against the same database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx)
		},
	}
}

func runWorker(ctx context.Context) error {
	rt, err := bootstrap(ctx, checkWorkerConfig)
	if err != nil {
		return err
	}
	defer rt.Close()

	return rt.fallbackWorker().Run(ctx)
}

func checkWorkerConfig(cfg *config.Config) error {
	if !cfg.NATS.Enabled {
		return errWorkerNeedsNATS
	}
	return nil
}

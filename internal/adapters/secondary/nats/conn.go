// Package nats holds the NATS adapters: core pub/sub for cross-process room
// fan-out and JetStream key-value buckets for presence.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
)

// ConnConfig holds connection settings.
type ConnConfig struct {
	URL            string
	Name           string
	ConnectTimeout time.Duration
}

// Connect dials NATS, retrying with exponential backoff until
// ConnectTimeout elapses or ctx is cancelled.
func Connect(ctx context.Context, cfg ConnConfig, logger *slog.Logger) (*nats.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = cfg.ConnectTimeout

	var nc *nats.Conn
	attempt := 0
	operation := func() error {
		attempt++
		conn, err := nats.Connect(cfg.URL,
			nats.Name(cfg.Name),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					logger.Warn("nats disconnected", "error", err)
				}
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				logger.Info("nats reconnected", "url", c.ConnectedUrl())
			}),
		)
		if err != nil {
			logger.Info("waiting for nats", "attempt", attempt, "error", err)
			return err
		}
		nc = conn
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.URL, err)
	}

	logger.Info("connected to nats", "url", nc.ConnectedUrl())
	return nc, nil
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"

	"github.com/lorrc/event-updates-backend/internal/core/domain"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

// Fallback job outcomes, used for logs and metrics.
const (
	FallbackDelivered   = "delivered"
	FallbackNothingToDo = "nothing_to_deliver"
	FallbackRetried     = "retried"
	FallbackDiscarded   = "discarded"
)

const pushBodyMaxRunes = 140

// FallbackWorkerConfig holds worker tuning.
type FallbackWorkerConfig struct {
	PollInterval time.Duration
	Lease        time.Duration
	BatchSize    int
	Concurrency  int
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

// DefaultFallbackWorkerConfig returns sensible defaults.
func DefaultFallbackWorkerConfig() FallbackWorkerConfig {
	return FallbackWorkerConfig{
		PollInterval: 2 * time.Second,
		Lease:        time.Minute,
		BatchSize:    20,
		Concurrency:  4,
		MaxAttempts:  5,
		BaseBackoff:  2 * time.Second,
		MaxBackoff:   5 * time.Minute,
	}
}

// FallbackWorker delivers queued updates to ticket holders who were not
// connected. The offline set is computed when the job runs, not when it was
// enqueued, so users who reconnected in between are skipped.
type FallbackWorker struct {
	queue    ports.FallbackQueue
	presence ports.PresenceTracker
	notifier ports.PushNotifier
	metrics  *Metrics
	logger   *slog.Logger
	cfg      FallbackWorkerConfig
}

// NewFallbackWorker creates a worker. Retry times come from the queue's clock.
func NewFallbackWorker(
	queue ports.FallbackQueue,
	presence ports.PresenceTracker,
	notifier ports.PushNotifier,
	metrics *Metrics,
	logger *slog.Logger,
	cfg FallbackWorkerConfig,
) *FallbackWorker {
	defaults := DefaultFallbackWorkerConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.Lease <= 0 {
		cfg.Lease = defaults.Lease
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaults.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaults.MaxBackoff
	}
	return &FallbackWorker{
		queue:    queue,
		presence: presence,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.With("component", "fallback_worker"),
		cfg:      cfg,
	}
}

// Run polls the queue until ctx is cancelled.
func (w *FallbackWorker) Run(ctx context.Context) error {
	w.logger.Info("fallback worker started",
		"poll_interval", w.cfg.PollInterval,
		"batch_size", w.cfg.BatchSize,
		"max_attempts", w.cfg.MaxAttempts,
	)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Drain while there is work, then wait for the next tick.
		for {
			n, err := w.ProcessBatch(ctx)
			if err != nil {
				w.logger.Error("failed to process fallback batch", "error", err)
				break
			}
			if n < w.cfg.BatchSize || ctx.Err() != nil {
				break
			}
		}

		select {
		case <-ctx.Done():
			w.logger.Info("fallback worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessBatch claims and processes one batch of due jobs. It returns the
// number of jobs claimed.
func (w *FallbackWorker) ProcessBatch(ctx context.Context) (int, error) {
	jobs, err := w.queue.Claim(ctx, w.cfg.BatchSize, w.cfg.Lease)
	if err != nil {
		return 0, fmt.Errorf("claim fallback jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, w.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, job := range jobs {
		sem <- struct{}{}
		wg.Add(1)
		go func(job *domain.FallbackJob) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := w.ProcessJob(ctx, job); err != nil {
				w.logger.Error("failed to settle fallback job", "job_id", job.ID, "error", err)
			}
		}(job)
	}
	wg.Wait()

	return len(jobs), nil
}

// ProcessJob attempts delivery for a single job and settles it in the queue.
// Notifier failures are not returned; they reschedule or discard the job.
func (w *FallbackWorker) ProcessJob(ctx context.Context, job *domain.FallbackJob) error {
	online, err := w.presence.OnlineUsers(ctx, job.EventID)
	if err != nil {
		// Notifying someone who is online is cheaper than missing someone offline.
		w.logger.Warn("presence lookup failed, treating all targets as offline",
			"job_id", job.ID,
			"event_id", job.EventID,
			"error", err,
		)
		online = nil
	}

	offline := job.OfflineTargets(online)
	if len(offline) == 0 {
		w.metrics.fallbackJobProcessed(ctx, FallbackNothingToDo)
		w.logger.Debug("no offline targets", "job_id", job.ID, "targets", len(job.Payload.TargetUserIDs))
		return w.queue.Complete(ctx, job.ID)
	}

	sendErr := w.notifier.Send(ctx, offline, newPushNotification(job))
	if sendErr == nil {
		w.metrics.fallbackJobProcessed(ctx, FallbackDelivered)
		w.logger.Info("fallback delivered",
			"job_id", job.ID,
			"update_id", job.Payload.Update.ID,
			"offline", len(offline),
			"targets", len(job.Payload.TargetUserIDs),
		)
		return w.queue.Complete(ctx, job.ID)
	}

	attempts := job.Attempts + 1
	if attempts >= w.cfg.MaxAttempts {
		w.metrics.fallbackJobProcessed(ctx, FallbackDiscarded)
		w.logger.Warn("fallback job discarded",
			"job_id", job.ID,
			"attempts", attempts,
			"error", sendErr,
		)
		return w.queue.Discard(ctx, job.ID, sendErr.Error())
	}

	delay := w.retryDelay(attempts)
	w.metrics.fallbackJobProcessed(ctx, FallbackRetried)
	w.logger.Warn("fallback delivery failed, rescheduling",
		"job_id", job.ID,
		"attempts", attempts,
		"retry_in", delay,
		"error", sendErr,
	)
	return w.queue.Reschedule(ctx, job.ID, delay, sendErr.Error())
}

// retryDelay returns the exponential delay before the given attempt.
func (w *FallbackWorker) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.BaseBackoff
	b.MaxInterval = w.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

func newPushNotification(job *domain.FallbackJob) ports.PushNotification {
	body := job.Payload.Update.Content
	if utf8.RuneCountInString(body) > pushBodyMaxRunes {
		runes := []rune(body)
		body = string(runes[:pushBodyMaxRunes-1]) + "…"
	}

	title := "New event update"
	if job.Payload.Update.Priority == string(domain.PriorityHigh) {
		title = "Important event update"
	}

	return ports.PushNotification{
		EventID:  job.EventID,
		UpdateID: job.Payload.Update.ID,
		Title:    title,
		Body:     body,
		Priority: job.Payload.Update.Priority,
	}
}

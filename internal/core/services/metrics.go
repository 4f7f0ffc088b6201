package services

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

const meterName = "github.com/lorrc/event-updates-backend/services"

// Metrics records persistence and delivery outcomes as separate counters.
type Metrics struct {
	persisted         metric.Int64Counter
	liveDelivery      metric.Int64Counter
	fallbackEnqueue   metric.Int64Counter
	fallbackProcessed metric.Int64Counter
	rateLimitDenied   metric.Int64Counter
}

// NewMetrics registers counters on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewNoopMetrics returns metrics that record nothing.
func NewNoopMetrics() *Metrics {
	m, _ := NewMetricsWithMeter(noop.NewMeterProvider().Meter(meterName))
	return m
}

// NewMetricsWithMeter registers counters on the given meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	if m.persisted, err = meter.Int64Counter("updates_persisted_total",
		metric.WithDescription("Updates durably stored")); err != nil {
		return nil, fmt.Errorf("updates_persisted_total: %w", err)
	}
	if m.liveDelivery, err = meter.Int64Counter("updates_live_delivery_total",
		metric.WithDescription("Live room broadcasts by outcome")); err != nil {
		return nil, fmt.Errorf("updates_live_delivery_total: %w", err)
	}
	if m.fallbackEnqueue, err = meter.Int64Counter("updates_fallback_enqueue_total",
		metric.WithDescription("Fallback job enqueues by outcome")); err != nil {
		return nil, fmt.Errorf("updates_fallback_enqueue_total: %w", err)
	}
	if m.fallbackProcessed, err = meter.Int64Counter("fallback_jobs_processed_total",
		metric.WithDescription("Fallback jobs processed by outcome")); err != nil {
		return nil, fmt.Errorf("fallback_jobs_processed_total: %w", err)
	}
	if m.rateLimitDenied, err = meter.Int64Counter("rate_limit_denied_total",
		metric.WithDescription("Calls rejected by the rate limiter")); err != nil {
		return nil, fmt.Errorf("rate_limit_denied_total: %w", err)
	}

	return &m, nil
}

func (m *Metrics) updatePersisted(ctx context.Context) {
	if m == nil {
		return
	}
	m.persisted.Add(ctx, 1)
}

func (m *Metrics) liveDelivered(ctx context.Context, outcome ports.DeliveryOutcome) {
	if m == nil {
		return
	}
	m.liveDelivery.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
}

func (m *Metrics) fallbackEnqueued(ctx context.Context, outcome ports.DeliveryOutcome) {
	if m == nil {
		return
	}
	m.fallbackEnqueue.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
}

func (m *Metrics) fallbackJobProcessed(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.fallbackProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) rateLimited(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

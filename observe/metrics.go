package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Fetch sources reported by strategy handlers.
const (
	SourceNetwork = "network"
	SourceCache   = "cache"
	SourceOffline = "offline"
)

// SourceHeader carries the fetch source on responses produced by the worker.
const SourceHeader = "X-Worker-Source"

// Metrics records worker outcomes.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordFetch records one intercepted fetch by route class and source.
	RecordFetch(ctx context.Context, route, source string, duration time.Duration, err error)

	// RecordNotification records a push outcome (shown, deferred, dropped, fallback).
	RecordNotification(ctx context.Context, kind, outcome string)

	// RecordSync records the result of one sync target.
	RecordSync(ctx context.Context, tag string, err error)
}

type otelMetrics struct {
	fetches       metric.Int64Counter
	fetchErrors   metric.Int64Counter
	fetchDuration metric.Float64Histogram
	notifications metric.Int64Counter
	syncTargets   metric.Int64Counter
}

// NewMetrics creates Metrics backed by meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	fetches, err := meter.Int64Counter(
		"worker.fetch.total",
		metric.WithDescription("Intercepted fetches"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	fetchErrors, err := meter.Int64Counter(
		"worker.fetch.errors",
		metric.WithDescription("Intercepted fetches that were rejected"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	fetchDuration, err := meter.Float64Histogram(
		"worker.fetch.duration_ms",
		metric.WithDescription("Fetch handling duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	notifications, err := meter.Int64Counter(
		"worker.push.notifications",
		metric.WithDescription("Push notifications by outcome"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	syncTargets, err := meter.Int64Counter(
		"worker.sync.targets",
		metric.WithDescription("Background sync targets by result"),
		metric.WithUnit("{target}"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		fetches:       fetches,
		fetchErrors:   fetchErrors,
		fetchDuration: fetchDuration,
		notifications: notifications,
		syncTargets:   syncTargets,
	}, nil
}

func (m *otelMetrics) RecordFetch(ctx context.Context, route, source string, duration time.Duration, err error) {
	opt := metric.WithAttributes(
		attribute.String("worker.route", route),
		attribute.String("worker.source", source),
	)
	m.fetches.Add(ctx, 1, opt)
	if err != nil {
		m.fetchErrors.Add(ctx, 1, opt)
	}
	m.fetchDuration.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *otelMetrics) RecordNotification(ctx context.Context, kind, outcome string) {
	m.notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("push.type", kind),
		attribute.String("push.outcome", outcome),
	))
}

func (m *otelMetrics) RecordSync(ctx context.Context, tag string, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.syncTargets.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sync.tag", tag),
		attribute.String("sync.result", result),
	))
}

// NopMetrics returns Metrics that record nothing.
func NopMetrics() Metrics { return nopMetrics{} }

type nopMetrics struct{}

func (nopMetrics) RecordFetch(context.Context, string, string, time.Duration, error) {}
func (nopMetrics) RecordNotification(context.Context, string, string)                {}
func (nopMetrics) RecordSync(context.Context, string, error)                         {}

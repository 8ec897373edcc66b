package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SchemaRefreshMetrics tracks content model rebuilds.
type SchemaRefreshMetrics struct {
	refreshes metric.Int64Counter
	failures  metric.Int64Counter
	duration  metric.Float64Histogram

	lastSuccess atomic.Int64
}

// NewSchemaRefreshMetrics registers the refresh instruments, including an
// observable gauge with the time of the last successful rebuild.
func NewSchemaRefreshMetrics() (*SchemaRefreshMetrics, error) {
	b := newInstruments()
	m := &SchemaRefreshMetrics{
		refreshes: b.counter("schema.refresh.total", "Total number of schema refresh attempts"),
		failures:  b.counter("schema.refresh.errors.total", "Total number of failed schema refresh attempts"),
		duration:  b.millis("schema.refresh.duration", "Duration of schema refresh attempts in milliseconds"),
	}
	if b.err != nil {
		return nil, b.err
	}

	_, err := b.meter.Int64ObservableGauge(
		"schema.refresh.last_success_unix",
		metric.WithDescription("Unix time of the last successful schema refresh"),
		metric.WithUnit("s"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			if ts := m.lastSuccess.Load(); ts > 0 {
				o.Observe(ts)
			}
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema.refresh.last_success_unix: %w", err)
	}
	return m, nil
}

// RecordRefresh records one attempt. trigger is startup, poll,
// poll_no_change or manual.
func (m *SchemaRefreshMetrics) RecordRefresh(ctx context.Context, duration time.Duration, success bool, trigger string) {
	if m == nil {
		return
	}
	by := attribute.String("trigger", trigger)
	m.refreshes.Add(ctx, 1, metric.WithAttributes(by, attribute.Bool("success", success)))
	m.duration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(by, attribute.Bool("success", success)))
	if !success {
		m.failures.Add(ctx, 1, metric.WithAttributes(by))
		return
	}
	m.lastSuccess.Store(time.Now().Unix())
}

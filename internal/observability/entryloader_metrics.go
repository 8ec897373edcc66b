package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EntryLoaderMetrics covers entry store reads made on behalf of GraphQL
// requests and the loads the request cache answered instead.
type EntryLoaderMetrics struct {
	queries   metric.Int64Counter
	failures  metric.Int64Counter
	duration  metric.Float64Histogram
	entries   metric.Int64Histogram
	cacheHits metric.Int64Counter
}

// NewEntryLoaderMetrics registers the entry store and loader cache instruments.
func NewEntryLoaderMetrics() (*EntryLoaderMetrics, error) {
	b := newInstruments()
	m := &EntryLoaderMetrics{
		queries:   b.counter("entrystore.queries.total", "Total number of entry store queries"),
		failures:  b.counter("entrystore.errors.total", "Total number of failed entry store queries"),
		duration:  b.millis("entrystore.query.duration", "Duration of entry store queries in milliseconds"),
		entries:   b.sizes("entrystore.query.entries", "Entries returned per entry store query"),
		cacheHits: b.counter("entryloader.cache_hits", "Loads served from the request-scoped cache"),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// RecordQuery records one entry store query. Safe on a nil receiver.
func (m *EntryLoaderMetrics) RecordQuery(ctx context.Context, operation string, duration time.Duration, entries int, err error) {
	if m == nil {
		return
	}
	op := attribute.String("operation", operation)
	outcome := metric.WithAttributes(op, attribute.Bool("success", err == nil))
	m.queries.Add(ctx, 1, outcome)
	m.duration.Record(ctx, float64(duration.Milliseconds()), outcome)
	if err != nil {
		m.failures.Add(ctx, 1, metric.WithAttributes(op))
		return
	}
	m.entries.Record(ctx, int64(entries), metric.WithAttributes(op))
}

// RecordCacheHit records a load answered without touching the store.
func (m *EntryLoaderMetrics) RecordCacheHit(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

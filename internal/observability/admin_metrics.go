package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AdminMetrics counts requests to token-protected admin endpoints.
type AdminMetrics struct {
	requests metric.Int64Counter
	denied   metric.Int64Counter
}

func NewAdminMetrics() (*AdminMetrics, error) {
	b := newInstruments()
	m := &AdminMetrics{
		requests: b.counter("admin.requests.total", "Total number of admin endpoint requests"),
		denied:   b.counter("admin.unauthorized.total", "Admin requests rejected for a missing or wrong token"),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// RecordAccess records one admin request. Safe on a nil receiver.
func (m *AdminMetrics) RecordAccess(ctx context.Context, path string, authorized bool) {
	if m == nil {
		return
	}
	at := attribute.String("path", path)
	m.requests.Add(ctx, 1, metric.WithAttributes(at, attribute.Bool("authorized", authorized)))
	if !authorized {
		m.denied.Add(ctx, 1, metric.WithAttributes(at))
	}
}

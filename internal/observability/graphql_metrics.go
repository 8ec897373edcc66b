package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GraphQLMetrics holds request-level instruments for the /graphql endpoint.
type GraphQLMetrics struct {
	duration metric.Float64Histogram
	requests metric.Int64Counter
	errors   metric.Int64Counter
	active   metric.Int64UpDownCounter
	depth    metric.Int64Histogram
	backrefs metric.Int64Histogram
}

// GraphQLRequest describes one finished GraphQL request. Depth and Backrefs
// are only recorded when Analyzed is set.
type GraphQLRequest struct {
	OperationType string
	Duration      time.Duration
	Failed        bool
	Analyzed      bool
	Depth         int
	Backrefs      int
}

// NewGraphQLMetrics registers the GraphQL request instruments.
func NewGraphQLMetrics() (*GraphQLMetrics, error) {
	b := newInstruments()
	m := &GraphQLMetrics{
		duration: b.millis("graphql.request.duration", "Duration of GraphQL requests in milliseconds"),
		requests: b.counter("graphql.requests.total", "Total number of GraphQL requests"),
		errors:   b.counter("graphql.errors.total", "Total number of GraphQL requests that returned errors"),
		active:   b.gauge("graphql.requests.active", "Number of GraphQL requests in flight"),
		depth:    b.sizes("graphql.query.depth", "Selection depth of GraphQL operations"),
		backrefs: b.sizes("graphql.query.backrefs", "Backref fields selected per GraphQL operation"),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// Begin marks a request in flight. Call the returned func when it ends.
func (m *GraphQLMetrics) Begin(ctx context.Context) func() {
	if m == nil {
		return func() {}
	}
	m.active.Add(ctx, 1)
	return func() { m.active.Add(ctx, -1) }
}

// Record records a finished request.
func (m *GraphQLMetrics) Record(ctx context.Context, req GraphQLRequest) {
	if m == nil {
		return
	}
	op := attribute.String("operation_type", req.OperationType)
	outcome := metric.WithAttributes(op, attribute.Bool("has_errors", req.Failed))

	m.duration.Record(ctx, float64(req.Duration.Milliseconds()), outcome)
	m.requests.Add(ctx, 1, outcome)
	if req.Failed {
		m.errors.Add(ctx, 1, metric.WithAttributes(op))
	}
	if req.Analyzed {
		m.depth.Record(ctx, int64(req.Depth), metric.WithAttributes(op))
		m.backrefs.Record(ctx, int64(req.Backrefs), metric.WithAttributes(op))
	}
}

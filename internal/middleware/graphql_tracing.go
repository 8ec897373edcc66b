package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"cms-graphql/internal/entryloader"
	"cms-graphql/internal/gqlrequest"
	"cms-graphql/internal/logging"
	"cms-graphql/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type loaderStats interface {
	Stats() entryloader.Stats
}

// GraphQLTracingMiddleware instruments GraphQL execution with an inner span.
// It must run inside the entry loader middleware to report loader traffic.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			analysis := gqlrequest.AnalysisFromContext(r.Context())
			if analysis == nil || strings.TrimSpace(analysis.Envelope.Query) == "" {
				next.ServeHTTP(w, r)
				return
			}
			meta, _ := gqlrequest.ExecMetaFromContext(r.Context())

			tracer := otel.Tracer("cms-graphql/graphql")
			ctx, span := tracer.Start(r.Context(), "graphql.execute")
			defer span.End()
			if spanCtx := span.SpanContext(); spanCtx.IsValid() {
				reqLogger := logging.FromContext(ctx).WithFields(
					slog.String("span_id", spanCtx.SpanID().String()),
				)
				ctx = logging.WithLogger(ctx, reqLogger)
			}

			if span.IsRecording() {
				span.SetAttributes(observability.GraphQLSpanAttributes(analysis, meta)...)
			}

			next.ServeHTTP(w, r.WithContext(ctx))

			reader, ok := entryloader.FromContext(ctx)
			if !ok || !span.IsRecording() {
				return
			}
			counter, ok := reader.(loaderStats)
			if !ok {
				return
			}
			stats := counter.Stats()
			span.SetAttributes(
				attribute.Int64("graphql.execution.store_queries", stats.Queries),
				attribute.Int64("graphql.execution.cache_hits", stats.CacheHits),
			)
			if total := stats.Queries + stats.CacheHits; total > 0 {
				span.SetAttributes(attribute.Float64("graphql.execution.cache_hit_ratio", float64(stats.CacheHits)/float64(total)))
			}
		})
	}
}

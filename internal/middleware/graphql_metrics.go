package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"cms-graphql/internal/gqlrequest"
	"cms-graphql/internal/observability"
)

// GraphQLMetricsMiddleware records request metrics for POSTed operations.
// Operation type, depth and backref counts come from the request analysis
// in context; requests without one are recorded as "unknown".
func GraphQLMetricsMiddleware(metrics *observability.GraphQLMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			end := metrics.Begin(ctx)
			defer end()

			obs := observability.GraphQLRequest{OperationType: "unknown"}
			if a := gqlrequest.AnalysisFromContext(ctx); a != nil && strings.TrimSpace(a.OperationType) != "" {
				obs.OperationType = a.OperationType
				obs.Analyzed = true
				obs.Depth = a.SelectionDepth
				obs.Backrefs = a.BackrefCount
			}

			rec := newStatusRecorder(w, true)
			start := time.Now()
			next.ServeHTTP(rec, r)
			obs.Duration = time.Since(start)
			obs.Failed = rec.status >= http.StatusBadRequest || hasGraphQLErrors(rec.body.Bytes())

			metrics.Record(ctx, obs)
		})
	}
}

// hasGraphQLErrors reports whether body is a GraphQL response with a
// non-empty errors list.
func hasGraphQLErrors(body []byte) bool {
	var payload struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	return len(payload.Errors) > 0
}

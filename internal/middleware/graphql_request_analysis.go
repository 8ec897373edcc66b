package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"cms-graphql/internal/gqlrequest"
	"cms-graphql/internal/logging"
	"cms-graphql/internal/observability"
)

// GraphQLRequestAnalysisConfig controls request analysis and query limits.
type GraphQLRequestAnalysisConfig struct {
	Analyzer gqlrequest.Analyzer
	Limits   gqlrequest.Limits
	// ModelFingerprint reports the fingerprint of the content model the
	// request will execute against.
	ModelFingerprint func() string
}

// GraphQLRequestAnalysisMiddleware decodes and analyzes the GraphQL request once
// and stores derived metadata in request context for downstream middleware.
// Requests over the configured limits are rejected before execution.
func GraphQLRequestAnalysisMiddleware(cfg GraphQLRequestAnalysisConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			analysis := cfg.Analyzer.AnalyzeRequest(r)
			ctx := gqlrequest.WithAnalysis(r.Context(), analysis)

			fingerprint := ""
			if cfg.ModelFingerprint != nil {
				fingerprint = cfg.ModelFingerprint()
			}
			meta := gqlrequest.MetaFromAnalysis(analysis, fingerprint)
			ctx = gqlrequest.WithExecMeta(ctx, meta)

			logger := logging.FromContext(ctx)
			logFields := observability.GraphQLLogFields(ctx, analysis, meta)
			if len(logFields) > 0 {
				logger = logger.WithFields(logFields...)
				ctx = logging.WithLogger(ctx, logger)
			}

			if errors.Is(analysis.DecodeError, gqlrequest.ErrBodyTooLarge) {
				writeGraphQLError(w, http.StatusRequestEntityTooLarge, analysis.DecodeError.Error())
				return
			}
			if err := cfg.Limits.Check(analysis); err != nil {
				logger.Warn("graphql request rejected", slog.String("error", err.Error()))
				writeGraphQLError(w, http.StatusBadRequest, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeGraphQLError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]string{{"message": message}},
	})
}

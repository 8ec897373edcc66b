package entryloader

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"cms-graphql/internal/logging"
	"cms-graphql/internal/observability"
)

// ErrNoLoader is returned by resolvers executed without a request-scoped
// loader in context.
var ErrNoLoader = errors.New("no entry loader in request context")

type loaderContextKey struct{}

// WithLoader stores a request-scoped reader in context.
func WithLoader(ctx context.Context, reader Reader) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loaderContextKey{}, reader)
}

// FromContext retrieves the request-scoped reader.
func FromContext(ctx context.Context) (Reader, bool) {
	if ctx == nil {
		return nil, false
	}
	reader, ok := ctx.Value(loaderContextKey{}).(Reader)
	return reader, ok && reader != nil
}

// Factory creates one Loader per request for a fixed source and page type set.
type Factory struct {
	Source    Source
	PageTypes []string
	Metrics   *observability.EntryLoaderMetrics
}

// New creates a loader bound to the request logger.
func (f Factory) New(logger *slog.Logger) *Loader {
	return New(f.Source, Options{
		PageTypes: f.PageTypes,
		Metrics:   f.Metrics,
		Logger:    logger,
	})
}

// Middleware attaches a fresh Loader to every request.
func (f Factory) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.FromContext(r.Context())
		ctx := WithLoader(r.Context(), f.New(logger.Logger))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

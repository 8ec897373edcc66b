package schemarefresh

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cms-graphql/internal/contentmodel"
	"cms-graphql/internal/entryloader"
	"cms-graphql/internal/naming"
	"cms-graphql/internal/observability"
	"cms-graphql/internal/schema"

	"github.com/graphql-go/handler"
)

// BuildConfig defines inputs for snapshot assembly.
type BuildConfig struct {
	Naming   naming.Config
	Schema   schema.Options
	Source   entryloader.Source
	Metrics  *observability.EntryLoaderMetrics
	GraphiQL bool
	// Wrap decorates the GraphQL handler inside the per-request loader, so
	// wrapped middleware can observe the request's entry loader.
	Wrap   func(http.Handler) http.Handler
	Logger *slog.Logger
}

// BuildSnapshot parses a content model document and assembles everything a
// request needs: the GraphQL schema, its HTTP handler and the loader factory.
func BuildSnapshot(data []byte, cfg BuildConfig) (*Snapshot, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("snapshot builder requires an entry source")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	model, err := contentmodel.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse content model: %w", err)
	}
	prepared, err := contentmodel.Prepare(model, naming.New(cfg.Naming, logger))
	if err != nil {
		return nil, err
	}

	opts := cfg.Schema
	if opts.Logger == nil {
		opts.Logger = logger
	}
	result, err := schema.Build(prepared, opts)
	if err != nil {
		return nil, err
	}

	loaders := entryloader.Factory{
		Source:    cfg.Source,
		PageTypes: prepared.PageTypeIDs(),
		Metrics:   cfg.Metrics,
	}

	var h http.Handler = handler.New(&handler.Config{
		Schema:   &result.Schema,
		Pretty:   true,
		GraphiQL: cfg.GraphiQL,
	})
	if cfg.Wrap != nil {
		h = cfg.Wrap(h)
	}

	return &Snapshot{
		Result:      result,
		Handler:     loaders.Middleware(h),
		Loaders:     loaders,
		BuiltAt:     time.Now(),
		Fingerprint: prepared.Fingerprint(),
	}, nil
}

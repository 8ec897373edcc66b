package entryloader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"cms-graphql/internal/entry"
	"cms-graphql/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Reader is the data access surface resolvers see for the lifetime of one
// GraphQL request.
type Reader interface {
	// QueryAll returns every entry of the content type.
	QueryAll(ctx context.Context, contentTypeID string) ([]entry.Entry, error)
	// QueryBasePages returns every entry of every page type. The content type
	// id is the unresolved backref target and does not narrow the result.
	QueryBasePages(ctx context.Context, contentTypeID string) ([]entry.Entry, error)
	// Get returns an entry or asset by id; found is false for unknown ids.
	Get(ctx context.Context, id string) (e entry.Entry, found bool, err error)
	// Assets returns every asset.
	Assets(ctx context.Context) ([]entry.Entry, error)
}

const assetsKey = "\x00assets"

type listCall struct {
	done    chan struct{}
	entries []entry.Entry
	err     error
}

type getCall struct {
	done  chan struct{}
	entry entry.Entry
	found bool
	err   error
}

// Loader memoizes store reads for a single request. Concurrent loads of the
// same key share one store query.
type Loader struct {
	source    Source
	pageTypes []string
	metrics   *observability.EntryLoaderMetrics
	logger    *slog.Logger

	mu    sync.Mutex
	lists map[string]*listCall
	gets  map[string]*getCall
	known map[string]entry.Entry

	queries   atomic.Int64
	cacheHits atomic.Int64
}

// Stats summarizes the store traffic of one loader.
type Stats struct {
	Queries   int64
	CacheHits int64
}

// Stats returns the store queries issued and the loads served from memo.
func (l *Loader) Stats() Stats {
	return Stats{Queries: l.queries.Load(), CacheHits: l.cacheHits.Load()}
}

func (l *Loader) recordHit(ctx context.Context, operation string) {
	l.cacheHits.Add(1)
	l.metrics.RecordCacheHit(ctx, operation)
}

// Options configures a Loader.
type Options struct {
	// PageTypes lists page content type ids in content model order.
	PageTypes []string
	Metrics   *observability.EntryLoaderMetrics
	Logger    *slog.Logger
}

// New creates a request-scoped loader over source.
func New(source Source, opts Options) *Loader {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		source:    source,
		pageTypes: append([]string(nil), opts.PageTypes...),
		metrics:   opts.Metrics,
		logger:    logger,
		lists:     make(map[string]*listCall),
		gets:      make(map[string]*getCall),
		known:     make(map[string]entry.Entry),
	}
}

// QueryAll returns every entry of contentTypeID, querying the store at most
// once per request.
func (l *Loader) QueryAll(ctx context.Context, contentTypeID string) ([]entry.Entry, error) {
	return l.loadList(ctx, contentTypeID, "query_all", func(ctx context.Context) ([]entry.Entry, error) {
		return l.source.EntriesByContentType(ctx, contentTypeID)
	})
}

// Assets returns every asset, querying the store at most once per request.
func (l *Loader) Assets(ctx context.Context) ([]entry.Entry, error) {
	return l.loadList(ctx, assetsKey, "assets", l.source.Assets)
}

// QueryBasePages loads every page type concurrently and concatenates the
// results in content model order.
func (l *Loader) QueryBasePages(ctx context.Context, contentTypeID string) ([]entry.Entry, error) {
	l.logger.Debug("loading base pages",
		slog.String("requested_content_type", contentTypeID),
		slog.Int("page_types", len(l.pageTypes)),
	)

	results := make([][]entry.Entry, len(l.pageTypes))
	g, gctx := errgroup.WithContext(ctx)
	for i, pageType := range l.pageTypes {
		g.Go(func() error {
			entries, err := l.QueryAll(gctx, pageType)
			if err != nil {
				return err
			}
			results[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	merged := make([]entry.Entry, 0, total)
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}

// Get returns the entry or asset with id, answering from entries already
// loaded by this request when possible.
func (l *Loader) Get(ctx context.Context, id string) (entry.Entry, bool, error) {
	l.mu.Lock()
	if e, ok := l.known[id]; ok {
		l.mu.Unlock()
		l.recordHit(ctx, "get")
		return e, true, nil
	}
	call, inflight := l.gets[id]
	if !inflight {
		call = &getCall{done: make(chan struct{})}
		l.gets[id] = call
	}
	l.mu.Unlock()

	if inflight {
		l.recordHit(ctx, "get")
		return waitGet(ctx, call)
	}

	l.queries.Add(1)
	ctx, span := startLoaderSpan(ctx, "entryloader.get", attribute.String("entry.id", id))
	start := time.Now()
	e, err := l.source.EntryByID(ctx, id)
	found := err == nil
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	count := 0
	if found {
		count = 1
	}
	l.metrics.RecordQuery(ctx, "get", time.Since(start), count, err)
	finishLoaderSpan(span, err, count)

	call.entry, call.found, call.err = e, found, err
	close(call.done)
	return e, found, err
}

func (l *Loader) loadList(ctx context.Context, key, operation string, fetch func(context.Context) ([]entry.Entry, error)) ([]entry.Entry, error) {
	l.mu.Lock()
	call, inflight := l.lists[key]
	if !inflight {
		call = &listCall{done: make(chan struct{})}
		l.lists[key] = call
	}
	l.mu.Unlock()

	if inflight {
		l.recordHit(ctx, operation)
		return waitList(ctx, call)
	}

	attrs := []attribute.KeyValue{attribute.String("entryloader.operation", operation)}
	if key != assetsKey {
		attrs = append(attrs, attribute.String("content_type.id", key))
	}
	l.queries.Add(1)
	spanCtx, span := startLoaderSpan(ctx, "entryloader."+operation, attrs...)
	start := time.Now()
	entries, err := fetch(spanCtx)
	l.metrics.RecordQuery(ctx, operation, time.Since(start), len(entries), err)
	finishLoaderSpan(span, err, len(entries))

	if err == nil {
		l.mu.Lock()
		for _, e := range entries {
			l.known[e.Sys.ID] = e
		}
		l.mu.Unlock()
	} else {
		l.logger.Warn("entry store query failed",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
	}

	call.entries, call.err = entries, err
	close(call.done)
	return entries, err
}

func waitList(ctx context.Context, call *listCall) ([]entry.Entry, error) {
	select {
	case <-call.done:
		return call.entries, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func waitGet(ctx context.Context, call *getCall) (entry.Entry, bool, error) {
	select {
	case <-call.done:
		return call.entry, call.found, call.err
	case <-ctx.Done():
		return entry.Entry{}, false, ctx.Err()
	}
}

func startLoaderSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("cms-graphql/entryloader")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func finishLoaderSpan(span trace.Span, err error, entries int) {
	span.SetAttributes(attribute.Int("entryloader.entries", entries))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

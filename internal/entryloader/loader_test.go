package entryloader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"cms-graphql/internal/entry"
	"cms-graphql/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// loaderMetrics installs a collectable meter provider and returns loader
// metrics registered on it.
func loaderMetrics(t *testing.T) (*observability.EntryLoaderMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	previous := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetMeterProvider(previous)
	})
	metrics, err := observability.NewEntryLoaderMetrics()
	require.NoError(t, err)
	return metrics, reader
}

// cacheHits sums entryloader.cache_hits for one operation.
func cacheHits(t *testing.T, reader *sdkmetric.ManualReader, operation string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || m.Name != "entryloader.cache_hits" {
				continue
			}
			for _, point := range sum.DataPoints {
				if op, _ := point.Attributes.Value("operation"); op.AsString() == operation {
					total += point.Value
				}
			}
		}
	}
	return total
}

type countingSource struct {
	Source
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func newCountingSource(entries ...entry.Entry) *countingSource {
	return &countingSource{
		Source: NewMemorySource(entries...),
		calls:  map[string]int{},
		fail:   map[string]error{},
	}
}

func (c *countingSource) EntriesByContentType(ctx context.Context, id string) ([]entry.Entry, error) {
	c.mu.Lock()
	c.calls[id]++
	err := c.fail[id]
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.Source.EntriesByContentType(ctx, id)
}

func (c *countingSource) EntryByID(ctx context.Context, id string) (entry.Entry, error) {
	c.mu.Lock()
	c.calls["get:"+id]++
	c.mu.Unlock()
	return c.Source.EntryByID(ctx, id)
}

func (c *countingSource) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[key]
}

func page(id, ct string) entry.Entry {
	return entry.Entry{Sys: entry.Sys{ID: id, Type: entry.TypeEntry, ContentTypeID: ct}, Fields: map[string]any{}}
}

func TestLoader_QueryAllIsMemoized(t *testing.T) {
	source := newCountingSource(page("p1", "post"), page("p2", "post"), page("a1", "author"))
	metrics, reader := loaderMetrics(t)
	loader := New(source, Options{Metrics: metrics})
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entries, err := loader.QueryAll(ctx, "post")
			assert.NoError(t, err)
			assert.Len(t, entries, 2)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, source.count("post"))
	assert.Equal(t, Stats{Queries: 1, CacheHits: 7}, loader.Stats())
	assert.EqualValues(t, 7, cacheHits(t, reader, "query_all"))
}

func TestLoader_RepeatedQueryAllCountsCacheHit(t *testing.T) {
	source := newCountingSource(page("p1", "post"), page("p2", "post"))
	metrics, reader := loaderMetrics(t)
	loader := New(source, Options{Metrics: metrics})
	ctx := context.Background()

	first, err := loader.QueryAll(ctx, "post")
	require.NoError(t, err)
	second, err := loader.QueryAll(ctx, "post")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, source.count("post"))
	assert.EqualValues(t, 1, loader.Stats().CacheHits)
	assert.EqualValues(t, 1, cacheHits(t, reader, "query_all"))
}

func TestLoader_GetUsesLoadedEntries(t *testing.T) {
	source := newCountingSource(page("p1", "post"), page("a1", "author"))
	metrics, reader := loaderMetrics(t)
	loader := New(source, Options{Metrics: metrics})
	ctx := context.Background()

	_, err := loader.QueryAll(ctx, "post")
	require.NoError(t, err)

	e, found, err := loader.Get(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "p1", e.Sys.ID)
	assert.Equal(t, 0, source.count("get:p1"))

	_, found, err = loader.Get(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, found)
	_, _, _ = loader.Get(ctx, "a1")
	assert.Equal(t, 1, source.count("get:a1"))

	_, found, err = loader.Get(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, Stats{Queries: 3, CacheHits: 2}, loader.Stats())
	assert.EqualValues(t, 2, cacheHits(t, reader, "get"))
}

func TestLoader_QueryBasePagesMergesInModelOrder(t *testing.T) {
	source := newCountingSource(
		page("l1", "landingPage"),
		page("p1", "post"),
		page("l2", "landingPage"),
		page("a1", "author"),
	)
	loader := New(source, Options{PageTypes: []string{"post", "landingPage"}})

	entries, err := loader.QueryBasePages(context.Background(), "basePage")
	require.NoError(t, err)

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Sys.ID)
	}
	assert.Equal(t, []string{"p1", "l1", "l2"}, ids)
	assert.Equal(t, 0, source.count("basePage"), "the sentinel id is never queried directly")
}

func TestLoader_QueryBasePagesPropagatesErrors(t *testing.T) {
	source := newCountingSource(page("p1", "post"))
	source.fail["landingPage"] = errors.New("store offline")
	loader := New(source, Options{PageTypes: []string{"post", "landingPage"}})

	_, err := loader.QueryBasePages(context.Background(), "basePage")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store offline")
}

func TestLoader_NoPageTypes(t *testing.T) {
	loader := New(NewMemorySource(), Options{})
	entries, err := loader.QueryBasePages(context.Background(), "basePage")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestLoader_Assets(t *testing.T) {
	asset := entry.Entry{Sys: entry.Sys{ID: "img", Type: entry.TypeAsset}}
	loader := New(NewMemorySource(asset, page("p1", "post")), Options{})

	assets, err := loader.Assets(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "img", assets[0].Sys.ID)

	posts, err := loader.QueryAll(context.Background(), "post")
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestFactoryMiddleware_FreshLoaderPerRequest(t *testing.T) {
	factory := Factory{Source: NewMemorySource(page("p1", "post"))}

	var seen []Reader
	var calls atomic.Int32
	handler := factory.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reader, ok := FromContext(r.Context())
		require.True(t, ok)
		seen = append(seen, reader)
		calls.Add(1)
	}))

	for range 2 {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/graphql", nil))
	}

	require.Equal(t, int32(2), calls.Load())
	assert.NotSame(t, seen[0], seen[1])

	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entries.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"sys": {"id": "a1", "contentTypeId": "author"}, "fields": {"name": "Ada"}},
		{"sys": {"id": "img", "type": "Asset"}, "fields": {"title": "Logo"}}
	]`), 0o600))

	source, err := LoadFile(path)
	require.NoError(t, err)

	all := source.All()
	require.Len(t, all, 2)
	assert.Equal(t, entry.TypeEntry, all[0].Sys.Type)
	assert.Equal(t, "Ada", all[0].Fields["name"])

	authors, err := source.EntriesByContentType(context.Background(), "author")
	require.NoError(t, err)
	assert.Len(t, authors, 1)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestMemorySource_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemorySource(page("p1", "post")).EntriesByContentType(ctx, "post")
	assert.ErrorIs(t, err, context.Canceled)
}

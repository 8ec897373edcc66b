package observability

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// useManualReader installs a meter provider that tests can collect from.
func useManualReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	previous := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetMeterProvider(previous)
	})
	return reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, scope := range rm.ScopeMetrics {
		assert.Equal(t, meterName, scope.Scope.Name)
		for _, m := range scope.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestMeterProvider_ServesPrometheus(t *testing.T) {
	mp, err := InitMeterProvider(Config{ServiceName: "cms-graphql-test", ServiceVersion: "1.0.0", Environment: "test"})
	require.NoError(t, err)
	require.NotNil(t, mp.Exporter())
	t.Cleanup(func() { assert.NoError(t, mp.Shutdown(context.Background(), quietLogger())) })

	metrics, err := NewGraphQLMetrics()
	require.NoError(t, err)
	metrics.Record(context.Background(), GraphQLRequest{OperationType: "query", Duration: time.Millisecond})

	rec := httptest.NewRecorder()
	mp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Regexp(t, `graphql.requests.total`, rec.Body.String())
}

func TestGraphQLMetrics_Record(t *testing.T) {
	reader := useManualReader(t)
	metrics, err := NewGraphQLMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	end := metrics.Begin(ctx)
	metrics.Record(ctx, GraphQLRequest{OperationType: "query", Duration: 5 * time.Millisecond, Analyzed: true, Depth: 4, Backrefs: 2})
	metrics.Record(ctx, GraphQLRequest{OperationType: "query", Failed: true})

	got := collect(t, reader)
	active := got["graphql.requests.active"].(metricdata.Sum[int64])
	require.Len(t, active.DataPoints, 1)
	assert.EqualValues(t, 1, active.DataPoints[0].Value)

	requests := got["graphql.requests.total"].(metricdata.Sum[int64])
	assert.Len(t, requests.DataPoints, 2, "one series per has_errors value")

	errs := got["graphql.errors.total"].(metricdata.Sum[int64])
	require.Len(t, errs.DataPoints, 1)
	assert.EqualValues(t, 1, errs.DataPoints[0].Value)

	backrefs := got["graphql.query.backrefs"].(metricdata.Histogram[int64])
	require.Len(t, backrefs.DataPoints, 1)
	assert.EqualValues(t, 1, backrefs.DataPoints[0].Count, "unanalyzed requests are not recorded")
	assert.EqualValues(t, 2, backrefs.DataPoints[0].Sum)

	end()
	active = collect(t, reader)["graphql.requests.active"].(metricdata.Sum[int64])
	assert.EqualValues(t, 0, active.DataPoints[0].Value)
}

func TestSchemaRefreshMetrics_LastSuccess(t *testing.T) {
	reader := useManualReader(t)
	metrics, err := NewSchemaRefreshMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordRefresh(ctx, time.Millisecond, false, "poll")
	_, observed := collect(t, reader)["schema.refresh.last_success_unix"]
	assert.False(t, observed, "no gauge point before a successful refresh")

	before := time.Now().Unix()
	metrics.RecordRefresh(ctx, time.Millisecond, true, "manual")
	got := collect(t, reader)
	gauge := got["schema.refresh.last_success_unix"].(metricdata.Gauge[int64])
	require.Len(t, gauge.DataPoints, 1)
	assert.GreaterOrEqual(t, gauge.DataPoints[0].Value, before)

	failures := got["schema.refresh.errors.total"].(metricdata.Sum[int64])
	require.Len(t, failures.DataPoints, 1)
	assert.EqualValues(t, 1, failures.DataPoints[0].Value)
}

func TestMetrics_NilReceivers(t *testing.T) {
	var graphql *GraphQLMetrics
	var refresh *SchemaRefreshMetrics
	assert.NotPanics(t, func() {
		graphql.Begin(context.Background())()
		graphql.Record(context.Background(), GraphQLRequest{OperationType: "query"})
		refresh.RecordRefresh(context.Background(), time.Second, true, "startup")
	})
}

func TestBuildTLSConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not-a-cert"), 0o600))

	tests := []struct {
		name string
		cfg  OTLPExporterConfig
		want string
	}{
		{name: "missing CA", cfg: OTLPExporterConfig{TLSCertFile: filepath.Join(dir, "absent.pem")}, want: "failed to read OTLP TLS CA file"},
		{name: "unparseable CA", cfg: OTLPExporterConfig{TLSCertFile: garbage}, want: "failed to parse OTLP TLS CA file"},
		{name: "cert without key", cfg: OTLPExporterConfig{TLSClientCertFile: garbage}, want: "OTLP TLS client cert and key must both be set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildTLSConfig(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func sampleDecision(s sdktrace.Sampler, parent context.Context, id byte) sdktrace.SamplingDecision {
	return s.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parent,
		TraceID:       trace.TraceID{id},
		Name:          "resolve",
	}).Decision
}

func remoteParent(id byte, flags trace.TraceFlags) context.Context {
	return trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{id},
		SpanID:     trace.SpanID{id},
		TraceFlags: flags,
		Remote:     true,
	}))
}

func TestTraceSamplerForRatio(t *testing.T) {
	assert.Equal(t, sdktrace.Drop, sampleDecision(traceSamplerForRatio(0), context.Background(), 1))
	assert.Equal(t, sdktrace.Drop, sampleDecision(traceSamplerForRatio(-1), context.Background(), 1))
	assert.Equal(t, sdktrace.RecordAndSample, sampleDecision(traceSamplerForRatio(1), context.Background(), 2))

	half := traceSamplerForRatio(0.5)
	assert.Equal(t, sdktrace.RecordAndSample, sampleDecision(half, remoteParent(3, trace.FlagsSampled), 4))
	assert.Equal(t, sdktrace.Drop, sampleDecision(half, remoteParent(5, 0), 6))
}

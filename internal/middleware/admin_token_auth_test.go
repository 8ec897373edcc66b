package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"cms-graphql/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestAdminTokenAuthMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AdminTokenAuthConfig
		headers map[string]string
		want    int
	}{
		{name: "missing token", headers: nil, want: http.StatusUnauthorized},
		{name: "wrong token", headers: map[string]string{defaultAdminTokenHeader: "wrong-token"}, want: http.StatusUnauthorized},
		{name: "prefix of token", headers: map[string]string{defaultAdminTokenHeader: "secret"}, want: http.StatusUnauthorized},
		{name: "default header", headers: map[string]string{defaultAdminTokenHeader: " secret-token "}, want: http.StatusNoContent},
		{name: "bearer fallback", headers: map[string]string{"Authorization": "bearer secret-token"}, want: http.StatusNoContent},
		{name: "basic scheme ignored", headers: map[string]string{"Authorization": "Basic secret-token"}, want: http.StatusUnauthorized},
		{
			name:    "custom header",
			cfg:     AdminTokenAuthConfig{HeaderName: "X-Reload-Token"},
			headers: map[string]string{"X-Reload-Token": "secret-token"},
			want:    http.StatusNoContent,
		},
		{
			name:    "default header unused when custom is set",
			cfg:     AdminTokenAuthConfig{HeaderName: "X-Reload-Token"},
			headers: map[string]string{defaultAdminTokenHeader: "secret-token"},
			want:    http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Token = "secret-token"
			mw, err := AdminTokenAuthMiddleware(cfg)
			require.NoError(t, err)
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodPost, "/admin/reload-schema", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
				assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
			}
		})
	}
}

func TestAdminTokenAuthMiddleware_RecordsAccessMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	oldProvider := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetMeterProvider(oldProvider)
	})

	metrics, err := observability.NewAdminMetrics()
	require.NoError(t, err)
	mw, err := AdminTokenAuthMiddleware(AdminTokenAuthConfig{Token: "secret-token", HeaderName: "X-Reload-Token", Metrics: metrics})
	require.NoError(t, err)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, token := range []string{"secret-token", "wrong", ""} {
		req := httptest.NewRequest(http.MethodPost, "/admin/reload-schema", nil)
		req.Header.Set("X-Reload-Token", token)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(3), counterTotal(rm, "admin.requests.total"))
	assert.Equal(t, int64(2), counterTotal(rm, "admin.unauthorized.total"))
}

func counterTotal(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok && m.Name == name {
				for _, point := range sum.DataPoints {
					total += point.Value
				}
			}
		}
	}
	return total
}

func TestAdminTokenAuthMiddleware_RequiresToken(t *testing.T) {
	_, err := AdminTokenAuthMiddleware(AdminTokenAuthConfig{Token: "   "})
	assert.Error(t, err)
}

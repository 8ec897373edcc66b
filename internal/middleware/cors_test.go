package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const studioOrigin = "https://studio.example.com"

func corsRecorder(t *testing.T, cfg CORSConfig, method, origin string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	reached := false
	handler := CORSMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/graphql", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, reached
}

func TestCORSMiddleware_SimpleRequests(t *testing.T) {
	tests := []struct {
		name        string
		cfg         CORSConfig
		origin      string
		allowOrigin string
		vary        string
		credentials string
		expose      string
	}{
		{
			name:   "disabled",
			cfg:    CORSConfig{AllowedOrigins: []string{"*"}},
			origin: studioOrigin,
		},
		{
			name:        "listed origin",
			cfg:         CORSConfig{Enabled: true, AllowedOrigins: []string{" " + studioOrigin + " "}},
			origin:      studioOrigin,
			allowOrigin: studioOrigin,
			vary:        "Origin",
		},
		{
			name:   "unlisted origin",
			cfg:    CORSConfig{Enabled: true, AllowedOrigins: []string{studioOrigin}},
			origin: "https://evil.example",
		},
		{
			name:   "no origin header",
			cfg:    CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}},
			origin: "",
		},
		{
			name:        "wildcard never sends credentials",
			cfg:         CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}, AllowCredentials: true},
			origin:      "https://anything.example",
			allowOrigin: "*",
		},
		{
			name:        "credentials and exposed headers",
			cfg:         CORSConfig{Enabled: true, AllowedOrigins: []string{studioOrigin}, AllowCredentials: true, ExposeHeaders: []string{RequestIDHeader, "X-Model-Fingerprint"}},
			origin:      studioOrigin,
			allowOrigin: studioOrigin,
			vary:        "Origin",
			credentials: "true",
			expose:      "X-Request-ID, X-Model-Fingerprint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, reached := corsRecorder(t, tt.cfg, http.MethodPost, tt.origin)
			assert.True(t, reached)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.allowOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.vary, rec.Header().Get("Vary"))
			assert.Equal(t, tt.credentials, rec.Header().Get("Access-Control-Allow-Credentials"))
			assert.Equal(t, tt.expose, rec.Header().Get("Access-Control-Expose-Headers"))
			assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	rec, reached := corsRecorder(t, CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{studioOrigin},
		AllowedMethods: []string{http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         600,
	}, http.MethodOptions, studioOrigin)

	assert.False(t, reached)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, studioOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORSMiddleware_PreflightDefaults(t *testing.T) {
	rec, _ := corsRecorder(t, CORSConfig{Enabled: true, AllowedOrigins: []string{studioOrigin}}, http.MethodOptions, studioOrigin)

	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, X-Request-ID", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Empty(t, rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORSMiddleware_PreflightFromUnlistedOrigin(t *testing.T) {
	rec, reached := corsRecorder(t, CORSConfig{Enabled: true, AllowedOrigins: []string{studioOrigin}}, http.MethodOptions, "https://evil.example")

	assert.False(t, reached)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

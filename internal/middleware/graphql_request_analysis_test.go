package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cms-graphql/internal/gqlrequest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphQLRequestAnalysisMiddleware_PopulatesContextAndRewindsBody(t *testing.T) {
	var (
		seenAnalysis *gqlrequest.Analysis
		seenMeta     gqlrequest.ExecMeta
		seenMetaOK   bool
		bodyCopy     string
	)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAnalysis = gqlrequest.AnalysisFromContext(r.Context())
		seenMeta, seenMetaOK = gqlrequest.ExecMetaFromContext(r.Context())
		bodyBytes, _ := io.ReadAll(r.Body)
		bodyCopy = string(bodyBytes)
		w.WriteHeader(http.StatusOK)
	})

	handler := GraphQLRequestAnalysisMiddleware(GraphQLRequestAnalysisConfig{
		ModelFingerprint: func() string { return "fp-42" },
	})(next)
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"query GetAuthor { author(id: \"a1\") { name _backrefs { posts__via__author { title } } } }","operationName":"GetAuthor","variables":{"x":1}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.NotNil(t, seenAnalysis)
	require.True(t, seenMetaOK)
	assert.Equal(t, "query", seenAnalysis.OperationType)
	assert.Equal(t, 1, seenAnalysis.BackrefCount)
	assert.NotEmpty(t, seenAnalysis.OperationHash)
	assert.Equal(t, "query", seenMeta.OperationType)
	assert.Equal(t, "GetAuthor", seenMeta.OperationName)
	assert.Equal(t, "fp-42", seenMeta.ModelFingerprint)
	assert.Contains(t, bodyCopy, `"operationName":"GetAuthor"`)
}

func TestGraphQLRequestAnalysisMiddleware_RejectsOverLimit(t *testing.T) {
	called := false
	handler := GraphQLRequestAnalysisMiddleware(GraphQLRequestAnalysisConfig{
		Limits: gqlrequest.Limits{MaxBackrefs: 1},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	body := `{"query":"{ author(id: \"a1\") { _backrefs { posts__via__author { title } basePages__via__owner { url } } } }"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var payload struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Errors, 1)
	assert.Contains(t, payload.Errors[0].Message, "maximum backref selections is 1")
}

func TestGraphQLRequestAnalysisMiddleware_PassesMalformedQueryThrough(t *testing.T) {
	called := false
	handler := GraphQLRequestAnalysisMiddleware(GraphQLRequestAnalysisConfig{
		Limits: gqlrequest.Limits{MaxDepth: 1},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ posts {"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGraphQLRequestAnalysisMiddleware_RejectsOversizedBody(t *testing.T) {
	handler := GraphQLRequestAnalysisMiddleware(GraphQLRequestAnalysisConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	}))

	body := `{"query":"` + strings.Repeat(" ", int(gqlrequest.MaxBodyBytes)) + `{ posts { title } }"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

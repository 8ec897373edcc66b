package gqlrequest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGraphQLRequest(method, target, contentType, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name          string
		req           *http.Request
		wantQuery     string
		wantOperation string
		wantVariables string
	}{
		{
			name:          "GET query string",
			req:           newGraphQLRequest(http.MethodGet, `/graphql?query=%7B%20authors%20%7B%20name%20%7D%20%7D&operationName=Authors&variables=%20%7B%22skip%22%3A1%7D`, "", ""),
			wantQuery:     "{ authors { name } }",
			wantOperation: "Authors",
			wantVariables: `{"skip":1}`,
		},
		{
			name:          "JSON body",
			req:           newGraphQLRequest(http.MethodPost, "/graphql", "application/json; charset=utf-8", `{"query":"query Post($id: String!) { post(id: $id) { title } }","operationName":"Post","variables":{"id":"p1"}}`),
			wantQuery:     "query Post($id: String!) { post(id: $id) { title } }",
			wantOperation: "Post",
			wantVariables: `{"id":"p1"}`,
		},
		{
			name:      "null variables dropped",
			req:       newGraphQLRequest(http.MethodPost, "/graphql", "application/json", `{"query":"{ posts { title } }","variables":null}`),
			wantQuery: "{ posts { title } }",
		},
		{
			name:      "application/graphql body",
			req:       newGraphQLRequest(http.MethodPost, "/graphql", "application/graphql", "{ basePages { sys { id } } }"),
			wantQuery: "{ basePages { sys { id } } }",
		},
		{
			name: "empty JSON body",
			req:  newGraphQLRequest(http.MethodPost, "/graphql", "application/json", "   "),
		},
		{
			name: "other methods carry nothing",
			req:  newGraphQLRequest(http.MethodPut, "/graphql?query=%7Bx%7D", "", ""),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := DecodeEnvelope(tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.req.Method, env.Method)
			assert.Equal(t, tt.wantQuery, env.Query)
			assert.Equal(t, tt.wantOperation, env.OperationName)
			assert.Equal(t, len(tt.wantQuery), env.DocumentSizeBytes)
			if tt.wantVariables == "" {
				assert.Nil(t, env.VariablesRaw)
			} else {
				assert.JSONEq(t, tt.wantVariables, string(env.VariablesRaw))
			}
		})
	}
}

func TestDecodeEnvelope_BodyStaysReadable(t *testing.T) {
	body := `{"query":"{ authors { name } }"}`
	req := newGraphQLRequest(http.MethodPost, "/graphql", "application/json", body)

	_, err := DecodeEnvelope(req)
	require.NoError(t, err)
	again, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(again))
}

func TestDecodeEnvelope_Errors(t *testing.T) {
	_, err := DecodeEnvelope(nil)
	require.Error(t, err)

	_, err = DecodeEnvelope(newGraphQLRequest(http.MethodPost, "/graphql", "application/json", `{"query":`))
	require.Error(t, err)

	huge := `{"query":"` + strings.Repeat("a", int(MaxBodyBytes)) + `"}`
	_, err = DecodeEnvelope(newGraphQLRequest(http.MethodPost, "/graphql", "application/json", huge))
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

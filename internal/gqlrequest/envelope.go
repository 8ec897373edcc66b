package gqlrequest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// MaxBodyBytes bounds the request body read for analysis.
const MaxBodyBytes int64 = 1 << 20

// ErrBodyTooLarge is returned for bodies over MaxBodyBytes.
var ErrBodyTooLarge = errors.New("request body too large")

// Envelope stores normalized request payload data used for GraphQL analysis.
type Envelope struct {
	Method      string
	ContentType string

	Query         string
	OperationName string
	VariablesRaw  json.RawMessage

	DocumentSizeBytes int
}

type jsonPayload struct {
	Query         string          `json:"query"`
	OperationName string          `json:"operationName"`
	Variables     json.RawMessage `json:"variables"`
}

// DecodeEnvelope extracts GraphQL payload fields from an HTTP request and rewinds
// the body so downstream handlers can read it again.
func DecodeEnvelope(r *http.Request) (Envelope, error) {
	if r == nil {
		return Envelope{}, fmt.Errorf("request is nil")
	}

	env := Envelope{
		Method:      r.Method,
		ContentType: r.Header.Get("Content-Type"),
	}

	switch {
	case r.Method == http.MethodGet:
		values := r.URL.Query()
		env.Query = values.Get("query")
		env.OperationName = values.Get("operationName")
		env.VariablesRaw = rawVariables([]byte(values.Get("variables")))
	case r.Method == http.MethodPost && r.Body != nil:
		body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
		if err != nil {
			return env, err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		if int64(len(body)) > MaxBodyBytes {
			return env, ErrBodyTooLarge
		}
		if err := decodeBody(&env, body); err != nil {
			return env, err
		}
	}

	env.DocumentSizeBytes = len(env.Query)
	return env, nil
}

func decodeBody(env *Envelope, body []byte) error {
	mediaType, _, err := mime.ParseMediaType(env.ContentType)
	if err != nil || mediaType == "" {
		mediaType = strings.TrimSpace(env.ContentType)
	}

	if mediaType == "application/graphql" {
		env.Query = string(body)
		return nil
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	var payload jsonPayload
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return err
	}
	env.Query = payload.Query
	env.OperationName = payload.OperationName
	env.VariablesRaw = rawVariables(payload.Variables)
	return nil
}

func rawVariables(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return append(json.RawMessage(nil), trimmed...)
}

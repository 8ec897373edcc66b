package observability

import (
	"context"
	"log/slog"
	"testing"

	"cms-graphql/internal/gqlrequest"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestGraphQLSpanAttributes(t *testing.T) {
	analysis := &gqlrequest.Analysis{
		Envelope: gqlrequest.Envelope{
			Query:             "query Q { posts { title } }",
			DocumentSizeBytes: 27,
		},
		RequestedOperationName: "Q",
		OperationName:          "Q",
		OperationType:          "query",
		OperationHash:          "hash123",
		FieldCount:             2,
		SelectionDepth:         2,
		VariableCount:          1,
		BackrefCount:           3,
		Operation:              &ast.OperationDefinition{},
	}

	attrs := GraphQLSpanAttributes(analysis, gqlrequest.ExecMeta{ModelFingerprint: "fp-1"})

	set := attribute.NewSet(attrs...)
	name, ok := set.Value("graphql.operation.name")
	assert.True(t, ok)
	assert.Equal(t, "Q", name.AsString())
	backrefs, ok := set.Value("graphql.query.backref_count")
	assert.True(t, ok)
	assert.Equal(t, int64(3), backrefs.AsInt64())
	fingerprint, ok := set.Value("cms.model.fingerprint")
	assert.True(t, ok)
	assert.Equal(t, "fp-1", fingerprint.AsString())
}

func TestGraphQLSpanAttributes_SkipsEmptyValues(t *testing.T) {
	attrs := GraphQLSpanAttributes(&gqlrequest.Analysis{}, gqlrequest.ExecMeta{})
	assert.Empty(t, attrs)
	assert.Empty(t, GraphQLSpanAttributes(nil, gqlrequest.ExecMeta{}))
}

func TestGraphQLLogFieldsIncludesTraceID(t *testing.T) {
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3},
		SpanID:  trace.SpanID{4, 5, 6},
		Remote:  true,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)
	fields := GraphQLLogFields(ctx, &gqlrequest.Analysis{
		RequestedOperationName: "Q",
		OperationName:          "Q",
		OperationType:          "query",
		OperationHash:          "hash123",
	}, gqlrequest.ExecMeta{ModelFingerprint: "fp-1"})

	keys := map[string]string{}
	for _, field := range fields {
		attr := field.(slog.Attr)
		keys[attr.Key] = attr.Value.String()
	}
	assert.Equal(t, "Q", keys["operation_name"])
	assert.Equal(t, "fp-1", keys["model_fingerprint"])
	assert.Equal(t, spanCtx.TraceID().String(), keys["trace_id"])
	assert.NotContains(t, keys, "backref_count")
}

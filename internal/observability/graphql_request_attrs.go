package observability

import (
	"context"
	"log/slog"

	"cms-graphql/internal/gqlrequest"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GraphQLSpanAttributes builds canonical span attributes from request analysis.
func GraphQLSpanAttributes(analysis *gqlrequest.Analysis, meta gqlrequest.ExecMeta) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 10)

	if analysis != nil {
		attrs = appendNonEmpty(attrs, "graphql.operation.requested_name", analysis.RequestedOperationName)
		attrs = appendNonEmpty(attrs, "graphql.operation.name", analysis.OperationName)
		attrs = appendNonEmpty(attrs, "graphql.operation.type", analysis.OperationType)
		attrs = appendNonEmpty(attrs, "graphql.operation.hash", analysis.OperationHash)
		if analysis.Envelope.DocumentSizeBytes > 0 {
			attrs = append(attrs, attribute.Int("graphql.document.size_bytes", analysis.Envelope.DocumentSizeBytes))
		}
		if analysis.Operation != nil {
			attrs = append(attrs,
				attribute.Int("graphql.query.field_count", analysis.FieldCount),
				attribute.Int("graphql.query.depth", analysis.SelectionDepth),
				attribute.Int("graphql.query.variable_count", analysis.VariableCount),
				attribute.Int("graphql.query.backref_count", analysis.BackrefCount),
			)
		}
	}

	return appendNonEmpty(attrs, "cms.model.fingerprint", meta.ModelFingerprint)
}

func appendNonEmpty(attrs []attribute.KeyValue, key, value string) []attribute.KeyValue {
	if value == "" {
		return attrs
	}
	return append(attrs, attribute.String(key, value))
}

// GraphQLLogFields builds canonical structured log fields from request analysis.
func GraphQLLogFields(ctx context.Context, analysis *gqlrequest.Analysis, meta gqlrequest.ExecMeta) []any {
	fields := make([]any, 0, 8)

	add := func(key, value string) {
		if value != "" {
			fields = append(fields, slog.String(key, value))
		}
	}
	if analysis != nil {
		add("operation_requested_name", analysis.RequestedOperationName)
		add("operation_name", analysis.OperationName)
		add("operation_type", analysis.OperationType)
		add("operation_hash", analysis.OperationHash)
		if analysis.BackrefCount > 0 {
			fields = append(fields, slog.Int("backref_count", analysis.BackrefCount))
		}
	}
	add("model_fingerprint", meta.ModelFingerprint)

	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		fields = append(fields, slog.String("trace_id", spanCtx.TraceID().String()))
	}

	return fields
}

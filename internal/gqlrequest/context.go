package gqlrequest

import "context"

// ExecMeta is the operation identity carried through execution for logs,
// spans and metrics.
type ExecMeta struct {
	ModelFingerprint string
	OperationName    string
	OperationType    string
	OperationHash    string
}

// MetaFromAnalysis copies the operation identity out of an analysis.
// A nil analysis yields meta with only the fingerprint set.
func MetaFromAnalysis(analysis *Analysis, modelFingerprint string) ExecMeta {
	if analysis == nil {
		return ExecMeta{ModelFingerprint: modelFingerprint}
	}
	return ExecMeta{
		ModelFingerprint: modelFingerprint,
		OperationName:    analysis.OperationName,
		OperationType:    analysis.OperationType,
		OperationHash:    analysis.OperationHash,
	}
}

type contextKey int

const (
	analysisKey contextKey = iota
	execMetaKey
)

func withValue(ctx context.Context, key contextKey, value any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func value[T any](ctx context.Context, key contextKey) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	v, ok := ctx.Value(key).(T)
	return v, ok
}

// WithAnalysis attaches a request analysis to ctx.
func WithAnalysis(ctx context.Context, analysis *Analysis) context.Context {
	return withValue(ctx, analysisKey, analysis)
}

// AnalysisFromContext returns the analysis attached by WithAnalysis, or nil.
func AnalysisFromContext(ctx context.Context) *Analysis {
	analysis, _ := value[*Analysis](ctx, analysisKey)
	return analysis
}

// WithExecMeta attaches execution metadata to ctx.
func WithExecMeta(ctx context.Context, meta ExecMeta) context.Context {
	return withValue(ctx, execMetaKey, meta)
}

func ExecMetaFromContext(ctx context.Context) (ExecMeta, bool) {
	return value[ExecMeta](ctx, execMetaKey)
}

package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type runCtxKey struct{}

// RunInfo identifies the pipeline run a context belongs to.
type RunInfo struct {
	RunID      string
	PipelineID string
	UserID     string
}

// WithRun attaches run identifiers to ctx.
func WithRun(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runCtxKey{}, info)
}

// RunFromContext returns the run identifiers stored in ctx, if any.
func RunFromContext(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runCtxKey{}).(RunInfo)
	return info, ok
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 5)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if info, ok := RunFromContext(ctx); ok {
		if info.RunID != "" {
			fields = append(fields, zap.String("run.id", info.RunID))
		}
		if info.PipelineID != "" {
			fields = append(fields, zap.String("pipeline.id", info.PipelineID))
		}
		if info.UserID != "" {
			fields = append(fields, zap.String("user.id", info.UserID))
		}
	}
	return fields
}

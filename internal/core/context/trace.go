package context

import (
	"context"

	"github.com/google/uuid"
)

// TraceContext contains request tracing information.
type TraceContext struct {
	TraceID   string
	RequestID string
	// Origin names the background task that created this trace ("" for HTTP requests).
	Origin string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// GetRequestID returns request ID from context or empty string.
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// NewTraceContext creates a new TraceContext with generated IDs.
func NewTraceContext() *TraceContext {
	return &TraceContext{
		TraceID:   uuid.New().String(),
		RequestID: uuid.New().String(),
	}
}

// Background derives a trace for work spawned by ctx that outlives it
// (async refills, scheduled jobs). The trace ID is kept so logs correlate.
func Background(ctx context.Context, origin string) context.Context {
	child := NewTraceContext()
	child.Origin = origin
	if parent := GetTrace(ctx); parent != nil {
		child.TraceID = parent.TraceID
	}
	return WithTrace(context.WithoutCancel(ctx), child)
}

package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appctx "cardvault/internal/core/context"
)

func TestWithContext_AddsTraceAndUser(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := &Logger{zap.New(core).Sugar()}

	ctx := appctx.WithTrace(context.Background(), &appctx.TraceContext{
		TraceID:   "t-1",
		RequestID: "r-1",
		Origin:    "card-refill",
	})
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: "u-1"})

	log.WithContext(ctx).WithComponent("card-cache").Infow("filled", "count", 3)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "t-1", fields["trace_id"])
		assert.Equal(t, "r-1", fields["request_id"])
		assert.Equal(t, "card-refill", fields["origin"])
		assert.Equal(t, "u-1", fields["user_id"])
		assert.Equal(t, "card-cache", fields["component"])
		assert.Equal(t, int64(3), fields["count"])
	}
}

func TestFromContext_UsesStoredLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ctx := WithLogger(context.Background(), &Logger{zap.New(core).Sugar()})

	Warn(ctx, "ledger busy", "attempt", 1)

	assert.Equal(t, 1, logs.Len())
}

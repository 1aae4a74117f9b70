package context

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackground_KeepsTraceDropsCancellation(t *testing.T) {
	parent := NewTraceContext()
	ctx, cancel := context.WithTimeout(WithTrace(context.Background(), parent), time.Millisecond)
	cancel()

	bg := Background(ctx, "card-refill")
	require.NoError(t, bg.Err())

	got := GetTrace(bg)
	require.NotNil(t, got)
	assert.Equal(t, parent.TraceID, got.TraceID)
	assert.NotEqual(t, parent.RequestID, got.RequestID)
	assert.Equal(t, "card-refill", got.Origin)
}

func TestHasRole(t *testing.T) {
	ctx := WithUser(context.Background(), &UserContext{UserID: "u1", Roles: []string{RoleUser}})
	assert.True(t, HasRole(ctx, RoleUser))
	assert.False(t, HasRole(ctx, RoleAdmin))
	assert.False(t, HasRole(context.Background(), RoleUser))
	assert.Equal(t, "u1", GetUserID(ctx))
}

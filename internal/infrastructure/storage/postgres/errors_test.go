package postgres

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("lock ledger: %w", &pgconn.PgError{Code: CodeLockNotAvailable})

	assert.Equal(t, CodeLockNotAvailable, ErrorCode(wrapped))
	assert.True(t, IsLockTimeout(wrapped))
	assert.False(t, IsUniqueViolation(wrapped))

	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: CodeUniqueViolation}))
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: CodeForeignKeyViolation}))
	assert.Empty(t, ErrorCode(fmt.Errorf("plain")))
	assert.Empty(t, ErrorCode(nil))
}

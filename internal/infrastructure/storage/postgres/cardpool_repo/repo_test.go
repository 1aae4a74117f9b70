package cardpool_repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardvault/internal/domain/cardpool"
	"cardvault/internal/infrastructure/storage/postgres"
)

func newTxManager() *postgres.TxManager {
	return postgres.NewTxManager(&postgres.Pool{})
}

func TestGeneratedCardRepo_ClaimQuery(t *testing.T) {
	repo := NewGeneratedCardRepo(newTxManager())

	sql, args, err := repo.claimQuery(5).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"DELETE FROM pregenerated_cards WHERE id IN (SELECT id FROM pregenerated_cards ORDER BY id LIMIT 5 FOR UPDATE SKIP LOCKED) RETURNING id, encrypted_number, created_at",
		sql)
	assert.Empty(t, args)
}

func TestGeneratedCardRepo_ClaimNothing(t *testing.T) {
	repo := NewGeneratedCardRepo(newTxManager())

	claimed, err := repo.ClaimOldest(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestCheckpointRepo_LatestQuery(t *testing.T) {
	repo := NewCheckpointRepo(newTxManager())

	sql, _, err := repo.latestQuery().ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, encrypted_suffix, created_at FROM card_sequence_checkpoints ORDER BY id DESC LIMIT 1 FOR UPDATE",
		sql)
}

func TestCheckpointRepo_RequiresTransaction(t *testing.T) {
	repo := NewCheckpointRepo(newTxManager())
	ctx := context.Background()

	_, err := repo.LockLatest(ctx)
	assert.Error(t, err)
	assert.Error(t, repo.Append(ctx, "x"))
}

func TestMapLockError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		busy bool
	}{
		{name: "lock_timeout", err: &pgconn.PgError{Code: postgres.CodeLockNotAvailable}, busy: true},
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), busy: true},
		{name: "other", err: errors.New("connection reset"), busy: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapLockError(tt.err)
			assert.Equal(t, tt.busy, errors.Is(err, cardpool.ErrLedgerBusy))
		})
	}
}

package cardpool_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"cardvault/internal/domain/cardpool"
	"cardvault/internal/infrastructure/storage/postgres"
)

const checkpointTable = "card_sequence_checkpoints"

// ledgerLockKey identifies the ledger's transaction-scoped advisory lock.
// It also covers the empty ledger, where there is no row to lock yet.
const ledgerLockKey int64 = 0x63617264_6c656467

var _ cardpool.CheckpointRepository = (*CheckpointRepo)(nil)

// CheckpointRepo implements cardpool.CheckpointRepository.
type CheckpointRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewCheckpointRepo creates a new repository.
func NewCheckpointRepo(txManager *postgres.TxManager) *CheckpointRepo {
	return &CheckpointRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// LockLatest takes the ledger lock for the current transaction and returns
// the newest checkpoint. The wait is bounded by the ctx deadline through
// lock_timeout.
func (r *CheckpointRepo) LockLatest(ctx context.Context) (*cardpool.Checkpoint, error) {
	tx := r.txManager.GetTx(ctx)
	if tx == nil {
		return nil, fmt.Errorf("LockLatest requires transaction context")
	}

	if deadline, ok := ctx.Deadline(); ok {
		ms := max(time.Until(deadline).Milliseconds(), 1)
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)); err != nil {
			return nil, fmt.Errorf("set lock_timeout: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", ledgerLockKey); err != nil {
		return nil, mapLockError(err)
	}

	sql, args, err := r.latestQuery().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build latest checkpoint: %w", err)
	}

	var cp cardpool.Checkpoint
	if err := pgxscan.Get(ctx, tx, &cp, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, mapLockError(err)
	}
	return &cp, nil
}

// Append inserts a new checkpoint row.
func (r *CheckpointRepo) Append(ctx context.Context, encryptedSuffix string) error {
	tx := r.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("Append requires transaction context")
	}

	sql, args, err := r.builder.
		Insert(checkpointTable).
		Columns("encrypted_suffix").
		Values(encryptedSuffix).
		ToSql()
	if err != nil {
		return fmt.Errorf("build append checkpoint: %w", err)
	}

	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("append checkpoint: %w", err)
	}
	return nil
}

func (r *CheckpointRepo) latestQuery() squirrel.SelectBuilder {
	return r.builder.
		Select("id", "encrypted_suffix", "created_at").
		From(checkpointTable).
		OrderBy("id DESC").
		Limit(1).
		Suffix("FOR UPDATE")
}

func mapLockError(err error) error {
	if postgres.IsLockTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", cardpool.ErrLedgerBusy, err)
	}
	return fmt.Errorf("lock latest checkpoint: %w", err)
}

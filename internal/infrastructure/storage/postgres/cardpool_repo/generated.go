// Package cardpool_repo provides PostgreSQL implementations for the card
// number pool: pre-generated numbers and the sequence ledger.
package cardpool_repo

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"cardvault/internal/domain/cardpool"
	"cardvault/internal/infrastructure/storage/postgres"
)

const generatedTable = "pregenerated_cards"

var _ cardpool.GeneratedCardRepository = (*GeneratedCardRepo)(nil)

// GeneratedCardRepo implements cardpool.GeneratedCardRepository.
type GeneratedCardRepo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
	builder   squirrel.StatementBuilderType
}

// NewGeneratedCardRepo creates a new repository.
func NewGeneratedCardRepo(txManager *postgres.TxManager) *GeneratedCardRepo {
	return &GeneratedCardRepo{
		txManager: txManager,
		inserter:  postgres.NewBatchInserter(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Count returns the number of stored records.
func (r *GeneratedCardRepo) Count(ctx context.Context) (int, error) {
	sql, args, err := r.builder.Select("COUNT(*)").From(generatedTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var n int
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count generated cards: %w", err)
	}
	return n, nil
}

// InsertBatch copies encrypted numbers into the store.
func (r *GeneratedCardRepo) InsertBatch(ctx context.Context, encrypted []string) (int, error) {
	rows := make([][]any, len(encrypted))
	for i, e := range encrypted {
		rows[i] = []any{e}
	}

	n, err := r.inserter.CopyFromSlice(ctx, generatedTable, []string{"encrypted_number"}, rows)
	if err != nil {
		return 0, fmt.Errorf("insert generated cards: %w", err)
	}
	return int(n), nil
}

// ClaimOldest deletes and returns up to n oldest records in one statement.
// Rows locked by a concurrent claim are skipped, never delivered twice.
func (r *GeneratedCardRepo) ClaimOldest(ctx context.Context, n int) ([]cardpool.GeneratedCard, error) {
	if n <= 0 {
		return nil, nil
	}

	sql, args, err := r.claimQuery(n).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build claim: %w", err)
	}

	var claimed []cardpool.GeneratedCard
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &claimed, sql, args...); err != nil {
		return nil, fmt.Errorf("claim generated cards: %w", err)
	}

	// RETURNING order is unspecified.
	slices.SortFunc(claimed, func(a, b cardpool.GeneratedCard) int { return cmp.Compare(a.ID, b.ID) })
	return claimed, nil
}

func (r *GeneratedCardRepo) claimQuery(n int) squirrel.DeleteBuilder {
	oldest := r.builder.
		Select("id").
		From(generatedTable).
		OrderBy("id").
		Limit(uint64(n)).
		Suffix("FOR UPDATE SKIP LOCKED")

	return r.builder.
		Delete(generatedTable).
		Where(squirrel.Expr("id IN (?)", oldest)).
		Suffix("RETURNING id, encrypted_number, created_at")
}

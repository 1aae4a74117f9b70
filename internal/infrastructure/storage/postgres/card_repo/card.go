// Package card_repo provides the PostgreSQL card repository and the
// outbox-backed card event publisher.
package card_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"cardvault/internal/core/apperror"
	"cardvault/internal/core/id"
	"cardvault/internal/domain/cards"
	"cardvault/internal/infrastructure/storage/postgres"
)

const (
	cardsTable        = "cards"
	transactionsTable = "card_transactions"
)

var (
	cardColumns        = postgres.ExtractDBColumns[cards.Card]()
	transactionColumns = postgres.ExtractDBColumns[cards.Transaction]()
)

var _ cards.Repository = (*CardRepo)(nil)

// CardRepo implements cards.Repository.
type CardRepo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
	builder   squirrel.StatementBuilderType
}

// NewCardRepo creates a new card repository.
func NewCardRepo(txManager *postgres.TxManager) *CardRepo {
	return &CardRepo{
		txManager: txManager,
		inserter:  postgres.NewBatchInserter(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new card.
func (r *CardRepo) Create(ctx context.Context, card *cards.Card) error {
	sql, args, err := r.insertQuery(card).ToSql()
	if err != nil {
		return fmt.Errorf("build insert card: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewConflict("card number already issued").WithCause(err)
		}
		if postgres.IsForeignKeyViolation(err) {
			return apperror.NewNotFound("user", card.HolderID).WithCause(err)
		}
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

func (r *CardRepo) insertQuery(card *cards.Card) squirrel.InsertBuilder {
	return r.builder.Insert(cardsTable).SetMap(postgres.StructToMap(card))
}

// GetByID retrieves a card.
func (r *CardRepo) GetByID(ctx context.Context, cardID id.ID) (*cards.Card, error) {
	sql, args, err := r.builder.Select(cardColumns...).From(cardsTable).Where(squirrel.Eq{"id": cardID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select card: %w", err)
	}

	var card cards.Card
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &card, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("card", cardID)
		}
		return nil, fmt.Errorf("query card: %w", err)
	}
	return &card, nil
}

// Update saves status and balance with optimistic locking on version.
func (r *CardRepo) Update(ctx context.Context, card *cards.Card) error {
	sql, args, err := r.updateQuery(card).ToSql()
	if err != nil {
		return fmt.Errorf("build update card: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, card.ID); getErr != nil {
			return getErr
		}
		return apperror.NewConcurrentModification("card", card.ID)
	}

	card.Version++
	return nil
}

func (r *CardRepo) updateQuery(card *cards.Card) squirrel.UpdateBuilder {
	return r.builder.
		Update(cardsTable).
		Set("status", card.Status).
		Set("balance", card.Balance).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", card.UpdatedAt).
		Where(squirrel.Eq{"id": card.ID, "version": card.Version})
}

// Delete removes a card.
func (r *CardRepo) Delete(ctx context.Context, cardID id.ID) error {
	sql, args, err := r.builder.Delete(cardsTable).Where(squirrel.Eq{"id": cardID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete card: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("card", cardID)
	}
	return nil
}

// List returns a filtered page and the total count.
func (r *CardRepo) List(ctx context.Context, filter cards.ListFilter) ([]cards.Card, int, error) {
	q := r.txManager.GetQuerier(ctx)

	countSQL, countArgs, err := applyFilter(r.builder.Select("COUNT(*)").From(cardsTable), filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count cards: %w", err)
	}
	var total int
	if err := q.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cards: %w", err)
	}

	sql, args, err := r.listQuery(filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list cards: %w", err)
	}
	var items []cards.Card
	if err := pgxscan.Select(ctx, q, &items, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("list cards: %w", err)
	}
	return items, total, nil
}

func (r *CardRepo) listQuery(filter cards.ListFilter) squirrel.SelectBuilder {
	return applyFilter(r.builder.Select(cardColumns...).From(cardsTable), filter).
		OrderBy("created_at", "id").
		Limit(uint64(filter.Page.Limit)).
		Offset(uint64(filter.Page.Offset))
}

func applyFilter(b squirrel.SelectBuilder, filter cards.ListFilter) squirrel.SelectBuilder {
	if filter.HolderID != nil {
		b = b.Where(squirrel.Eq{"holder_id": *filter.HolderID})
	}
	if filter.Status != nil {
		b = b.Where(squirrel.Eq{"status": *filter.Status})
	}
	return b
}

// ListByHolder returns all cards of a holder, oldest first.
func (r *CardRepo) ListByHolder(ctx context.Context, holderID id.ID) ([]cards.Card, error) {
	sql, args, err := r.builder.
		Select(cardColumns...).
		From(cardsTable).
		Where(squirrel.Eq{"holder_id": holderID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list holder cards: %w", err)
	}

	var items []cards.Card
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list holder cards: %w", err)
	}
	return items, nil
}

// ListOverdue returns up to limit unexpired cards whose expiry date is before the given day.
func (r *CardRepo) ListOverdue(ctx context.Context, before time.Time, limit int) ([]cards.Card, error) {
	sql, args, err := r.overdueQuery(before, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build overdue cards: %w", err)
	}

	var items []cards.Card
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list overdue cards: %w", err)
	}
	return items, nil
}

func (r *CardRepo) overdueQuery(before time.Time, limit int) squirrel.SelectBuilder {
	return r.builder.
		Select(cardColumns...).
		From(cardsTable).
		Where(squirrel.Eq{"status": []cards.Status{cards.StatusActive, cards.StatusBlocked}}).
		Where(squirrel.Lt{"expiry_date": before}).
		OrderBy("expiry_date", "id").
		Limit(uint64(limit))
}

// RecordTransactions copies transfer entries in the current transaction.
func (r *CardRepo) RecordTransactions(ctx context.Context, txs []cards.Transaction) error {
	rows := make([][]any, len(txs))
	for i, t := range txs {
		rows[i] = []any{t.ID, t.TransferID, t.CardID, string(t.Direction), t.Amount, t.BalanceAfter, t.CreatedAt}
	}

	if _, err := r.inserter.CopyFromSlice(ctx, transactionsTable, transactionColumns, rows); err != nil {
		return fmt.Errorf("record card transactions: %w", err)
	}
	return nil
}

package card_repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardvault/internal/core/id"
	"cardvault/internal/domain/cards"
	"cardvault/internal/infrastructure/storage/postgres"
)

func newRepo() *CardRepo {
	return NewCardRepo(postgres.NewTxManager(&postgres.Pool{}))
}

func TestCardRepo_InsertQuery(t *testing.T) {
	repo := newRepo()
	card := &cards.Card{ID: id.New(), HolderID: id.New(), Status: cards.StatusActive, Version: 1}

	sql, args, err := repo.insertQuery(card).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"INSERT INTO cards (balance,created_at,encrypted_number,expiry_date,holder_id,holder_name,id,status,updated_at,version) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)",
		sql)
	require.Len(t, args, 10)
	assert.Equal(t, card.ID, args[6])
	assert.Equal(t, cards.StatusActive, args[7])
}

func TestCardRepo_UpdateQuery(t *testing.T) {
	repo := newRepo()
	card := &cards.Card{ID: id.New(), Status: cards.StatusBlocked, Version: 4, UpdatedAt: time.Now()}

	sql, args, err := repo.updateQuery(card).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"UPDATE cards SET status = $1, balance = $2, version = version + 1, updated_at = $3 WHERE id = $4 AND version = $5",
		sql)
	require.Len(t, args, 5)
	assert.Equal(t, card.ID, args[3])
	assert.Equal(t, 4, args[4])
}

func TestCardRepo_ListQuery(t *testing.T) {
	repo := newRepo()
	holder := id.New()
	blocked := cards.StatusBlocked

	tests := []struct {
		name   string
		filter cards.ListFilter
		want   string
		args   int
	}{
		{
			name:   "unfiltered",
			filter: cards.ListFilter{Page: cards.Page{Limit: 20}},
			want:   "SELECT id, encrypted_number, holder_id, holder_name, status, balance, expiry_date, version, created_at, updated_at FROM cards ORDER BY created_at, id LIMIT 20 OFFSET 0",
		},
		{
			name:   "holder and status",
			filter: cards.ListFilter{HolderID: &holder, Status: &blocked, Page: cards.Page{Limit: 10, Offset: 30}},
			want:   "SELECT id, encrypted_number, holder_id, holder_name, status, balance, expiry_date, version, created_at, updated_at FROM cards WHERE holder_id = $1 AND status = $2 ORDER BY created_at, id LIMIT 10 OFFSET 30",
			args:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := repo.listQuery(tt.filter).ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.want, sql)
			assert.Len(t, args, tt.args)
		})
	}
}

func TestCardRepo_OverdueQuery(t *testing.T) {
	repo := newRepo()
	day := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)

	sql, args, err := repo.overdueQuery(day, 500).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id, encrypted_number, holder_id, holder_name, status, balance, expiry_date, version, created_at, updated_at FROM cards WHERE status IN ($1,$2) AND expiry_date < $3 ORDER BY expiry_date, id LIMIT 500",
		sql)
	assert.Equal(t, []any{cards.StatusActive, cards.StatusBlocked, day}, args)
}

func TestEventOutbox_RequiresTransaction(t *testing.T) {
	pub := NewEventOutbox(postgres.NewOutboxPublisher(postgres.NewTxManager(&postgres.Pool{})))

	err := pub.Publish(context.Background(), cards.Event{Type: cards.EventCardIssued, CardID: id.New()})
	assert.Error(t, err)
}

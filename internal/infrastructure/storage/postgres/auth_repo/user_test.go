package auth_repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardvault/internal/domain/auth"
	"cardvault/internal/infrastructure/storage/postgres"
)

func TestUserRepo_InsertQuery(t *testing.T) {
	repo := NewUserRepo(postgres.NewTxManager(&postgres.Pool{}))
	user := auth.NewUser("a@example.com", "A", "hash")

	sql, args, err := repo.insertQuery(user).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"INSERT INTO users (id,email,password_hash,full_name,roles,is_active,created_at,updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)",
		sql)
	require.Len(t, args, 8)
	assert.Equal(t, user.ID, args[0])
	assert.Equal(t, []string{"user"}, args[4])
}

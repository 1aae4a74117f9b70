// Package auth_repo provides PostgreSQL implementations for auth repositories.
package auth_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"cardvault/internal/core/apperror"
	"cardvault/internal/core/id"
	"cardvault/internal/domain/auth"
	"cardvault/internal/infrastructure/storage/postgres"
)

const usersTable = "users"

var userColumns = postgres.ExtractDBColumns[auth.User]()

var _ auth.UserRepository = (*UserRepo)(nil)

// UserRepo implements auth.UserRepository.
type UserRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewUserRepo creates a new user repository.
func NewUserRepo(txManager *postgres.TxManager) *UserRepo {
	return &UserRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create creates a new user.
func (r *UserRepo) Create(ctx context.Context, user *auth.User) error {
	sql, args, err := r.insertQuery(user).ToSql()
	if err != nil {
		return fmt.Errorf("build insert user: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewDuplicate("user", "email", user.Email).WithCause(err)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves user by ID.
func (r *UserRepo) GetByID(ctx context.Context, userID id.ID) (*auth.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": userID}, userID.String())
}

// GetByEmail retrieves user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.getOne(ctx, squirrel.Eq{"email": email}, email)
}

// Exists checks if email is registered.
func (r *UserRepo) Exists(ctx context.Context, email string) (bool, error) {
	sql, args, err := r.builder.
		Select("1").
		Prefix("SELECT EXISTS (").
		From(usersTable).
		Where(squirrel.Eq{"email": email}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists: %w", err)
	}

	var exists bool
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

func (r *UserRepo) getOne(ctx context.Context, where squirrel.Eq, key string) (*auth.User, error) {
	sql, args, err := r.builder.Select(userColumns...).From(usersTable).Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user: %w", err)
	}

	var user auth.User
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &user, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("user", key)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

func (r *UserRepo) insertQuery(user *auth.User) squirrel.InsertBuilder {
	return r.builder.
		Insert(usersTable).
		Columns(userColumns...).
		Values(user.ID, user.Email, user.PasswordHash, user.FullName,
			user.Roles, user.IsActive, user.CreatedAt, user.UpdatedAt)
}

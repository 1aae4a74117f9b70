package auth

import (
	"context"

	"cardvault/internal/core/id"
)

// UserRepository defines user storage operations.
type UserRepository interface {
	// Create creates a new user. A taken email yields a duplicate error.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves user by ID.
	GetByID(ctx context.Context, userID id.ID) (*User, error)

	// GetByEmail retrieves user by normalized email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Exists checks if email is registered.
	Exists(ctx context.Context, email string) (bool, error)
}

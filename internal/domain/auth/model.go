// Package auth provides authentication and authorization domain logic.
package auth

import (
	"slices"
	"strings"
	"time"

	"cardvault/internal/core/apperror"
	appctx "cardvault/internal/core/context"
	"cardvault/internal/core/id"
)

// User represents a card holder or an administrator.
type User struct {
	ID           id.ID     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FullName     string    `db:"full_name" json:"fullName"`
	Roles        []string  `db:"roles" json:"roles"`
	IsActive     bool      `db:"is_active" json:"isActive"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// NewUser creates a new active user. Without roles it gets the user role.
func NewUser(email, fullName, passwordHash string, roles ...string) *User {
	if len(roles) == 0 {
		roles = []string{appctx.RoleUser}
	}
	now := time.Now().UTC()
	return &User{
		ID:           id.New(),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		FullName:     strings.TrimSpace(fullName),
		Roles:        roles,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return slices.Contains(u.Roles, appctx.RoleAdmin)
}

// CanLogin checks if user can login.
func (u *User) CanLogin() error {
	if !u.IsActive {
		return apperror.NewForbidden("account is disabled")
	}
	return nil
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RegisterRequest contains registration data.
type RegisterRequest struct {
	Email    string
	Password string
	FullName string
}

// Credentials contains login credentials.
type Credentials struct {
	Email    string
	Password string
}

// TokenPair is the result of a successful login.
type TokenPair struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

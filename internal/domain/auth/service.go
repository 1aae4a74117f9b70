package auth

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"cardvault/internal/core/apperror"
	appctx "cardvault/internal/core/context"
	"cardvault/internal/core/id"
	"cardvault/internal/core/tx"
	"cardvault/pkg/logger"
)

// ServiceConfig holds auth service configuration.
type ServiceConfig struct {
	PasswordMinLength int
	BcryptCost        int
}

// DefaultServiceConfig returns default configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		PasswordMinLength: 8,
		BcryptCost:        bcrypt.DefaultCost,
	}
}

// Service provides authentication logic.
type Service struct {
	userRepo   UserRepository
	txManager  tx.Manager
	jwtService *JWTService
	config     ServiceConfig
}

// NewService creates a new auth service.
func NewService(
	userRepo UserRepository,
	txManager tx.Manager,
	jwtService *JWTService,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:   userRepo,
		txManager:  txManager,
		jwtService: jwtService,
		config:     config,
	}
}

// Register registers a new card holder.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	return s.register(ctx, req, appctx.RoleUser)
}

// EnsureAdmin creates an administrator unless the email is already taken.
// It returns the existing or created user and whether it was created.
func (s *Service) EnsureAdmin(ctx context.Context, req RegisterRequest) (*User, bool, error) {
	existing, err := s.userRepo.GetByEmail(ctx, NormalizeEmail(req.Email))
	if err == nil {
		return existing, false, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, false, fmt.Errorf("lookup admin: %w", err)
	}

	user, err := s.register(ctx, req, appctx.RoleAdmin, appctx.RoleUser)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func (s *Service) register(ctx context.Context, req RegisterRequest, roles ...string) (*User, error) {
	email := NormalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperror.NewValidation("valid email is required").WithDetail("field", "email")
	}
	if strings.TrimSpace(req.FullName) == "" {
		return nil, apperror.NewValidation("full name is required").WithDetail("field", "fullName")
	}
	if len(req.Password) < s.config.PasswordMinLength {
		return nil, apperror.NewValidation(
			fmt.Sprintf("password must be at least %d characters", s.config.PasswordMinLength),
		).WithDetail("field", "password")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := NewUser(email, req.FullName, string(passwordHash), roles...)

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		exists, err := s.userRepo.Exists(ctx, email)
		if err != nil {
			return fmt.Errorf("check email exists: %w", err)
		}
		if exists {
			return apperror.NewConflict("email already registered").WithDetail("email", email)
		}
		return s.userRepo.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "user registered",
		"user_id", user.ID,
		"roles", user.Roles)

	return user, nil
}

// Login authenticates user and returns an access token.
func (s *Service) Login(ctx context.Context, creds Credentials) (*TokenPair, *User, error) {
	user, err := s.userRepo.GetByEmail(ctx, NormalizeEmail(creds.Email))
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil, apperror.NewUnauthorized("invalid credentials")
		}
		return nil, nil, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		logger.Warn(ctx, "failed login attempt", "user_id", user.ID)
		return nil, nil, apperror.NewUnauthorized("invalid credentials")
	}
	if err := user.CanLogin(); err != nil {
		return nil, nil, err
	}

	token, expiresAt, err := s.jwtService.GenerateAccessToken(user)
	if err != nil {
		return nil, nil, fmt.Errorf("generate access token: %w", err)
	}

	logger.Info(ctx, "user logged in", "user_id", user.ID)

	return &TokenPair{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	}, user, nil
}

// ValidateToken validates an access token.
func (s *Service) ValidateToken(token string) (*appctx.UserContext, error) {
	return s.jwtService.ValidateToken(token)
}

// GetUser returns a user by ID.
func (s *Service) GetUser(ctx context.Context, userID id.ID) (*User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

package usecase

import (
	"context"
	"time"

	"accounts/internal/domain/entity"

	"github.com/google/uuid"
)

// --- Input DTOs ---

// RegisterInput defines the data required to register a new user.
type RegisterInput = CreateUserInput

// LoginInput defines the data required for a user to log in.
type LoginInput struct {
	Email    string
	Password string
}

// ChangePasswordInput defines the data required to rotate a password.
type ChangePasswordInput struct {
	OldPassword string
	NewPassword string
}

// --- Output DTOs ---

// AuthenticatedUser is the identity summary returned at login.
type AuthenticatedUser struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// LoginOutput returns the session artifact after a successful login.
type LoginOutput struct {
	AccessToken string            `json:"access_token"`
	TokenType   string            `json:"token_type"`
	ExpiresIn   time.Duration     `json:"-"`
	User        AuthenticatedUser `json:"user"`
}

// AuthUsecase defines registration and credential operations.
type AuthUsecase interface {
	Register(ctx context.Context, input *RegisterInput) (*entity.User, error)
	Login(ctx context.Context, input *LoginInput) (*LoginOutput, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, input *ChangePasswordInput) error
}

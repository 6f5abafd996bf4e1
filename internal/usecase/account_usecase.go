// Package usecase contains the application-specific business rules.
// It orchestrates the domain layer to perform tasks.
package usecase

import (
	"context"

	"accounts/internal/domain/entity"

	"github.com/google/uuid"
)

// --- Input DTOs ---

// CreateUserInput defines the data required to create a user.
type CreateUserInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// AccountUsecase defines user record management.
// It owns the uniqueness and existence invariants around every mutation.
type AccountUsecase interface {
	// ListAll returns every live user.
	ListAll(ctx context.Context) ([]*entity.User, error)

	// GetByID fails with ErrUserNotFound when no live user matches.
	GetByID(ctx context.Context, id uuid.UUID) (*entity.User, error)

	// Create fails with ErrUserAlreadyExists when the email is taken.
	Create(ctx context.Context, input *CreateUserInput) (*entity.User, error)

	// Update applies a partial update; fails with ErrUserNotFound or ErrUserAlreadyExists.
	Update(ctx context.Context, id uuid.UUID, patch entity.UserPatch) (*entity.User, error)

	// Delete removes the user and returns it as it was before removal.
	Delete(ctx context.Context, id uuid.UUID) (*entity.User, error)
}

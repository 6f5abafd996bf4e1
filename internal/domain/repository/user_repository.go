// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers and the infrastructure layer.
package repository

import (
	"context"
	"errors"

	"accounts/internal/domain/entity"

	"github.com/google/uuid"
)

// ErrUserNotFound is a domain-specific error returned when a user is not found.
var ErrUserNotFound = errors.New("user not found")

// UserRepository defines the standard operations for user persistence.
// Only live (non-deleted) users are visible through it.
type UserRepository interface {
	// List returns every live user ordered by creation time.
	List(ctx context.Context) ([]*entity.User, error)

	// FindByID retrieves a single user by their unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error)

	// FindByIDForUpdate retrieves a user and locks the row until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.User, error)

	// FindByEmail retrieves a single user by their normalized email address.
	FindByEmail(ctx context.Context, email string) (*entity.User, error)

	// Create persists a new user entity to the storage.
	// A duplicate live email surfaces as domainerrors.ErrUserAlreadyExists.
	Create(ctx context.Context, user *entity.User) error

	// Update modifies an existing user entity in the storage.
	// Returns ErrUserNotFound when no live row matched.
	Update(ctx context.Context, user *entity.User) error

	// Delete removes a user. Returns ErrUserNotFound when no live row matched.
	Delete(ctx context.Context, id uuid.UUID) error
}

// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is the single account entity of the system.
type User struct {
	ID           uuid.UUID `json:"id"`         // Assigned once at creation, never changed afterwards.
	FirstName    string    `json:"first_name"` // Given name.
	LastName     string    `json:"last_name"`  // Family name.
	Email        string    `json:"email"`      // Login identifier, unique across live users.
	PasswordHash string    `json:"-"`          // bcrypt digest. Never serialized.
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserPatch describes a partial update of a User. Nil fields are left unchanged.
type UserPatch struct {
	FirstName *string
	LastName  *string
	Email     *string
	Password  *string // Plaintext; hashed before it reaches the repository.
}

// IsEmpty reports whether the patch carries no field at all.
func (p UserPatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Email == nil && p.Password == nil
}

// Apply copies the name and email fields of the patch onto the user.
// Passwords are not applied here because they need hashing first.
func (p UserPatch) Apply(user *User) {
	if p.FirstName != nil {
		user.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		user.LastName = *p.LastName
	}
	if p.Email != nil {
		user.Email = NormalizeEmail(*p.Email)
	}
}

// NormalizeEmail returns the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTypeAccess is the only token type issued by this service.
const TokenTypeAccess = "access"

// Claims defines the custom claims for the JWT tokens.
type Claims struct {
	Email string `json:"email"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// TokenService issues and verifies the session artifact handed out at login.
type TokenService interface {
	// GenerateAccessToken creates a signed access token for the given user.
	GenerateAccessToken(userID uuid.UUID, email string) (string, error)

	// ValidateToken verifies signature, expiry and type of an access token.
	ValidateToken(tokenString string) (*Claims, error)

	// AccessTokenTTL returns the lifetime of issued access tokens.
	AccessTokenTTL() time.Duration
}

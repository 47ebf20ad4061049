package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fieldforce/fieldforce/internal/users"
)

// Claims is the JWT payload carried by the session cookie or bearer token.
type Claims struct {
	Email            string `json:"email,omitempty"`
	Role             string `json:"role"`
	OrganizationID   string `json:"organizationId,omitempty"`
	OrganizationRole string `json:"organizationRole,omitempty"`
	jwt.RegisteredClaims
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User      users.User
	Token     string
	ExpiresAt time.Time
}

package users

import (
	"time"

	"github.com/fieldforce/fieldforce/internal/rbac"
)

// User is an account that can sign in and act on the workflow.
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Role             rbac.Role `json:"role"`
	OrganizationID   string    `json:"organizationId,omitempty"`
	OrganizationRole string    `json:"organizationRole,omitempty"`
	PasswordHash     string    `json:"-"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// ListFilters narrows List. Empty fields match everything.
type ListFilters struct {
	OrganizationID string
	Role           rbac.Role
	Limit          int
	Offset         int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
	minPasswordLen   = 8
)

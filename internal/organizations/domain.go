// Package organizations manages tenant organizations and their feature settings.
package organizations

import (
	"time"

	"github.com/fieldforce/fieldforce/internal/rbac"
)

// Kind classifies an organization.
type Kind string

const (
	KindInternal Kind = "internal"
	KindBrand    Kind = "brand"
	KindClient   Kind = "client"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindInternal, KindBrand, KindClient:
		return true
	}
	return false
}

// Organization is a tenant.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Kind      Kind      `json:"kind"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// FeatureSettings is the response body of the feature-settings endpoints.
type FeatureSettings struct {
	OrganizationID string        `json:"organizationId"`
	Features       rbac.Features `json:"features"`
	Defaults       rbac.Features `json:"defaults"`
}

// CreateInput describes a new organization.
type CreateInput struct {
	ID   string `json:"id"`
	Name string `json:"name" validate:"required,max=200"`
	Slug string `json:"slug" validate:"required,max=100"`
	Kind Kind   `json:"kind" validate:"required"`
}

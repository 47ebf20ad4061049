package shared

import (
	"strings"

	"github.com/fieldforce/fieldforce/internal/rbac"
)

// Session is the authenticated actor attached to a request.
type Session struct {
	UserID           string    `json:"id"`
	Email            string    `json:"email,omitempty"`
	Role             rbac.Role `json:"role"`
	OrganizationID   string    `json:"organizationId,omitempty"`
	OrganizationRole string    `json:"organizationRole,omitempty"`
}

// GetID implements rbac.Principal.
func (s *Session) GetID() string {
	if s == nil {
		return ""
	}
	return s.UserID
}

// GetRoles implements rbac.Principal. An unrecognised role is reported as rbac.RoleUnknown so it
// resolves to the read-only permission map.
func (s *Session) GetRoles() []rbac.Role {
	if s == nil {
		return nil
	}
	if !s.Role.Valid() {
		return []rbac.Role{rbac.RoleUnknown}
	}
	return []rbac.Role{s.Role}
}

// Can reports whether the session's roles grant permission.
func (s *Session) Can(permission string) bool {
	return rbac.HasPermission(permission, s.GetRoles()...)
}

// SameOrganization reports whether orgID matches the session's organization.
func (s *Session) SameOrganization(orgID string) bool {
	if s == nil || s.OrganizationID == "" {
		return false
	}
	return strings.EqualFold(s.OrganizationID, orgID)
}

// SeesAllOrganizations reports whether the actor may read data across tenants.
func (s *Session) SeesAllOrganizations() bool {
	return s != nil && s.Role.Internal()
}

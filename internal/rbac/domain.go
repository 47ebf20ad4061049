package rbac

import "strings"

// Role is an actor's global privilege tier.
type Role string

// Known roles. Anything else parses to RoleUnknown.
const (
	RoleSuperAdmin           Role = "super_admin"
	RoleInternalAdmin        Role = "internal_admin"
	RoleInternalFieldManager Role = "internal_field_manager"
	RoleBrandAgent           Role = "brand_agent"
	RoleClientManager        Role = "client_manager"
	RoleClientUser           Role = "client_user"
	RoleUnknown              Role = ""
)

// Roles lists every known role in privilege order.
func Roles() []Role {
	return []Role{
		RoleSuperAdmin,
		RoleInternalAdmin,
		RoleInternalFieldManager,
		RoleBrandAgent,
		RoleClientManager,
		RoleClientUser,
	}
}

// ParseRole maps a stored role string onto the enum.
func ParseRole(value string) Role {
	candidate := Role(strings.ToLower(strings.TrimSpace(value)))
	for _, role := range Roles() {
		if role == candidate {
			return role
		}
	}
	return RoleUnknown
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return ParseRole(string(r)) != RoleUnknown
}

// Internal reports whether the role belongs to the operating company rather than a client.
func (r Role) Internal() bool {
	switch r {
	case RoleSuperAdmin, RoleInternalAdmin, RoleInternalFieldManager:
		return true
	}
	return false
}

// Client reports whether the role belongs to a client organization.
func (r Role) Client() bool {
	return r == RoleClientManager || r == RoleClientUser
}

func (r Role) String() string {
	if r == RoleUnknown {
		return "unknown"
	}
	return string(r)
}

// Resource names a protected entity type.
type Resource string

// Protected resources.
const (
	ResourceLocations     Resource = "locations"
	ResourceBookings      Resource = "bookings"
	ResourceKits          Resource = "kits"
	ResourceOrganizations Resource = "organizations"
	ResourceUsers         Resource = "users"
	ResourceAudit         Resource = "audit"
	ResourceSettings      Resource = "settings"
	ResourceAvailability  Resource = "availability"
	ResourceReports       Resource = "reports"
)

// Action names an operation on a resource.
type Action string

// Actions. Manage implies every other action on the same resource.
const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionManage  Action = "manage"
	ActionExport  Action = "export"
)

// PermissionMap maps resources to the actions a role may perform on them.
type PermissionMap map[Resource][]Action

// Principal describes the authenticated actor.
type Principal interface {
	GetID() string
	GetRoles() []Role
}

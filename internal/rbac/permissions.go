package rbac

import (
	"sort"
	"strings"
)

// Permission strings checked by handlers.
const (
	PermLocationsCreate     = "create:locations"
	PermLocationsRead       = "read:locations"
	PermLocationsUpdate     = "update:locations"
	PermBookingsCreate      = "create:bookings"
	PermBookingsRead        = "read:bookings"
	PermBookingsUpdate      = "update:bookings"
	PermBookingsApprove     = "approve:bookings"
	PermBookingsReject      = "reject:bookings"
	PermKitsCreate          = "create:kits"
	PermKitsRead            = "read:kits"
	PermKitsUpdate          = "update:kits"
	PermOrganizationsRead   = "read:organizations"
	PermSettingsUpdate      = "update:settings"
	PermUsersRead           = "read:users"
	PermAuditRead           = "read:audit"
	wildcard                = "*"
	permissionSeparator     = ":"
)

var rolePermissions = map[Role]PermissionMap{
	RoleSuperAdmin: {
		ResourceLocations:     {ActionManage},
		ResourceBookings:      {ActionManage},
		ResourceKits:          {ActionManage},
		ResourceOrganizations: {ActionManage},
		ResourceUsers:         {ActionManage},
		ResourceAudit:         {ActionManage},
		ResourceSettings:      {ActionManage},
		ResourceAvailability:  {ActionManage},
		ResourceReports:       {ActionManage},
	},
	RoleInternalAdmin: {
		ResourceLocations:     {ActionManage},
		ResourceBookings:      {ActionManage},
		ResourceKits:          {ActionManage},
		ResourceOrganizations: {ActionManage},
		ResourceUsers:         {ActionManage},
		ResourceAudit:         {ActionRead, ActionExport},
		ResourceSettings:      {ActionRead, ActionUpdate},
		ResourceAvailability:  {ActionManage},
		ResourceReports:       {ActionRead, ActionExport},
	},
	RoleInternalFieldManager: {
		ResourceLocations:     {ActionCreate, ActionRead, ActionUpdate},
		ResourceBookings:      {ActionCreate, ActionRead, ActionUpdate, ActionApprove, ActionReject},
		ResourceKits:          {ActionCreate, ActionRead, ActionUpdate},
		ResourceOrganizations: {ActionRead},
		ResourceUsers:         {ActionRead},
		ResourceAudit:         {ActionRead},
		ResourceAvailability:  {ActionManage},
		ResourceReports:       {ActionRead},
	},
	RoleBrandAgent: {
		ResourceLocations:    {ActionRead},
		ResourceBookings:     {ActionRead},
		ResourceKits:         {ActionRead},
		ResourceAvailability: {ActionRead, ActionUpdate},
	},
	RoleClientManager: {
		ResourceLocations:     {ActionCreate, ActionRead},
		ResourceBookings:      {ActionCreate, ActionRead, ActionUpdate},
		ResourceKits:          {ActionRead},
		ResourceOrganizations: {ActionRead},
		ResourceUsers:         {ActionRead},
		ResourceAudit:         {ActionRead},
		ResourceReports:       {ActionRead},
	},
	RoleClientUser: {
		ResourceLocations: {ActionRead},
		ResourceBookings:  {ActionCreate, ActionRead},
		ResourceKits:      {ActionRead},
	},
}

var readOnlyPermissions = PermissionMap{
	ResourceLocations: {ActionRead},
	ResourceBookings:  {ActionRead},
}

// GetRolePermissions returns a copy of the permission map for role. Unknown roles get a minimal
// read-only map.
func GetRolePermissions(role Role) PermissionMap {
	source, ok := rolePermissions[role]
	if !ok {
		source = readOnlyPermissions
	}
	out := make(PermissionMap, len(source))
	for resource, actions := range source {
		out[resource] = append([]Action(nil), actions...)
	}
	return out
}

// Strings flattens the map into action:resource strings. Manage becomes resource:*.
func (m PermissionMap) Strings() []string {
	perms := make([]string, 0, len(m)*2)
	for resource, actions := range m {
		for _, action := range actions {
			if action == ActionManage {
				perms = append(perms, string(resource)+permissionSeparator+wildcard)
				continue
			}
			perms = append(perms, string(action)+permissionSeparator+string(resource))
		}
	}
	return perms
}

// PermissionsFor returns the sorted union of permissions granted by roles.
func PermissionsFor(roles ...Role) []string {
	set := permissionSet(roles)
	out := make([]string, 0, len(set))
	for perm := range set {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out
}

func permissionSet(roles []Role) map[string]struct{} {
	set := make(map[string]struct{})
	for _, role := range roles {
		if role == RoleSuperAdmin {
			set[wildcard] = struct{}{}
		}
		for _, perm := range GetRolePermissions(role).Strings() {
			set[perm] = struct{}{}
		}
	}
	return set
}

// HasPermission reports whether any of roles grants permission, either exactly or through a
// resource wildcard. An empty role set grants nothing.
func HasPermission(permission string, roles ...Role) bool {
	if len(roles) == 0 {
		return false
	}
	permission = strings.ToLower(strings.TrimSpace(permission))
	if permission == "" {
		return false
	}
	set := permissionSet(roles)
	return matches(set, permission)
}

func matches(set map[string]struct{}, permission string) bool {
	if _, ok := set[wildcard]; ok {
		return true
	}
	if _, ok := set[permission]; ok {
		return true
	}
	_, resource, found := strings.Cut(permission, permissionSeparator)
	if !found {
		return false
	}
	_, ok := set[resource+permissionSeparator+wildcard]
	return ok
}

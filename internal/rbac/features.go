package rbac

import "sort"

// FeatureCategory is the organization_settings category holding feature overrides.
const FeatureCategory = "rbac_features"

// Named organization feature flags.
const (
	FeatureBrandAgentsManageAvailability = "brand_agents_manage_availability"
	FeatureBrandAgentsViewAllBookings    = "brand_agents_view_all_bookings"
	FeatureClientsCanCreateLocations     = "clients_can_create_locations"
	FeatureClientsCanRequestKits         = "clients_can_request_kits"
	FeatureRequireBookingApproval        = "require_booking_approval"
	FeatureFieldManagersApproveLocations = "field_managers_approve_locations"
)

var defaultFeatures = map[string]bool{
	FeatureBrandAgentsManageAvailability: true,
	FeatureBrandAgentsViewAllBookings:    false,
	FeatureClientsCanCreateLocations:     true,
	FeatureClientsCanRequestKits:         true,
	FeatureRequireBookingApproval:        true,
	FeatureFieldManagersApproveLocations: true,
}

// Features is the resolved set of boolean feature flags for an organization.
type Features map[string]bool

// DefaultFeatures returns a copy of the named defaults.
func DefaultFeatures() Features {
	out := make(Features, len(defaultFeatures))
	for k, v := range defaultFeatures {
		out[k] = v
	}
	return out
}

// IsKnownFeature reports whether key is one of the named flags.
func IsKnownFeature(key string) bool {
	_, ok := defaultFeatures[key]
	return ok
}

// FeatureKeys returns the named flags in stable order.
func FeatureKeys() []string {
	keys := make([]string, 0, len(defaultFeatures))
	for k := range defaultFeatures {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MergeFeatures overlays overrides on the defaults. Unknown keys are dropped.
func MergeFeatures(overrides map[string]bool) Features {
	merged := DefaultFeatures()
	for k, v := range overrides {
		if IsKnownFeature(k) {
			merged[k] = v
		}
	}
	return merged
}

// Enabled returns the flag value, falling back to the named default.
func (f Features) Enabled(key string) bool {
	if v, ok := f[key]; ok {
		return v
	}
	return defaultFeatures[key]
}

package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultFeaturesNamed(t *testing.T) {
	defaults := DefaultFeatures()
	require.True(t, defaults[FeatureBrandAgentsManageAvailability])
	require.False(t, defaults[FeatureBrandAgentsViewAllBookings])
	require.Len(t, defaults, len(FeatureKeys()))

	defaults[FeatureBrandAgentsManageAvailability] = false
	require.True(t, DefaultFeatures()[FeatureBrandAgentsManageAvailability])
}

func TestMergeFeaturesOverrideWins(t *testing.T) {
	merged := MergeFeatures(map[string]bool{
		FeatureBrandAgentsManageAvailability: false,
		FeatureBrandAgentsViewAllBookings:    true,
		"not_a_feature":                      true,
	})
	require.False(t, merged.Enabled(FeatureBrandAgentsManageAvailability))
	require.True(t, merged.Enabled(FeatureBrandAgentsViewAllBookings))
	require.True(t, merged.Enabled(FeatureClientsCanCreateLocations))
	_, ok := merged["not_a_feature"]
	require.False(t, ok)
}

func TestFeaturesEnabledFallsBackToDefault(t *testing.T) {
	var empty Features
	require.True(t, empty.Enabled(FeatureRequireBookingApproval))
	require.False(t, empty.Enabled("unknown"))
}

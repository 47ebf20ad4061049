package shared

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldforce/fieldforce/internal/rbac"
)

func TestNormalizeSearch(t *testing.T) {
	require.Equal(t, "cafe verde", NormalizeSearch("  Café ", "VERDE  "))
	require.Equal(t, "strasse", NormalizeSearch("STRASSE"))
	require.Equal(t, "", NormalizeSearch("   "))
}

func TestNewULIDMonotonic(t *testing.T) {
	a := NewULID()
	b := NewULID()
	require.Len(t, a, 26)
	require.Less(t, a, b)
}

func TestPagination(t *testing.T) {
	require.Equal(t, 50, ClampLimit(0, 50, 100))
	require.Equal(t, 100, ClampLimit(500, 50, 100))
	require.Equal(t, 7, ClampLimit(7, 50, 100))

	p := NewPagination(10, 5, 5)
	require.False(t, p.HasMore)
	p = NewPagination(11, 5, 5)
	require.True(t, p.HasMore)
}

func TestSessionPrincipal(t *testing.T) {
	var nilSess *Session
	require.Empty(t, nilSess.GetID())
	require.Nil(t, nilSess.GetRoles())
	require.False(t, nilSess.Can("read:locations"))

	sess := &Session{UserID: "u1", Role: "internal_admin", OrganizationID: "ORG"}
	require.True(t, sess.Can("update:locations"))
	require.True(t, sess.SameOrganization("org"))
	require.True(t, sess.SeesAllOrganizations())

	stray := &Session{UserID: "u2", Role: "wizard"}
	require.Equal(t, []rbac.Role{rbac.RoleUnknown}, stray.GetRoles())
	require.True(t, stray.Can("read:locations"))
	require.False(t, stray.Can("create:bookings"))
	require.False(t, stray.SeesAllOrganizations())
}

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldforce/fieldforce/internal/audit"
	"github.com/fieldforce/fieldforce/internal/auth"
	"github.com/fieldforce/fieldforce/internal/organizations"
	"github.com/fieldforce/fieldforce/internal/rbac"
	"github.com/fieldforce/fieldforce/internal/shared"
	"github.com/fieldforce/fieldforce/internal/users"
)

func TestDefaultSeedAppliesOnce(t *testing.T) {
	f, err := parseSeed(strings.NewReader(defaultSeed))
	require.NoError(t, err)
	require.Len(t, f.Organizations, 1)
	require.Len(t, f.Users, 1)

	orgs := organizations.NewService(organizations.NewMemoryStore(), audit.NewLogger(audit.NewMemoryStore(), nil), nil, shared.SideEffects{}, nil)
	userStore := users.NewMemoryStore()
	accounts := users.NewService(userStore)

	res, err := applySeed(context.Background(), orgs, accounts, f)
	require.NoError(t, err)
	require.Equal(t, seedResult{Organizations: 1, Users: 1}, res)

	admin, err := userStore.FindByEmail(context.Background(), "admin@fieldforce.local")
	require.NoError(t, err)
	require.Equal(t, rbac.RoleSuperAdmin, admin.Role)
	require.NotEmpty(t, admin.PasswordHash)

	res, err = applySeed(context.Background(), orgs, accounts, f)
	require.NoError(t, err)
	require.Equal(t, seedResult{Skipped: 2}, res)
}

func TestSeedRejectsUnknownFields(t *testing.T) {
	_, err := parseSeed(strings.NewReader("organisations: []\n"))
	require.Error(t, err)
}

func TestSeedFailsOnInvalidRole(t *testing.T) {
	f, err := parseSeed(strings.NewReader("users:\n  - email: x@example.com\n    role: wizard\n"))
	require.NoError(t, err)
	orgs := organizations.NewService(organizations.NewMemoryStore(), nil, nil, shared.SideEffects{}, nil)
	_, err = applySeed(context.Background(), orgs, users.NewService(users.NewMemoryStore()), f)
	require.ErrorContains(t, err, "x@example.com")
}

func TestIssueTokenByEmailOrID(t *testing.T) {
	store := users.NewMemoryStore(
		users.User{ID: "u-1", Email: "ops@example.com", Role: rbac.RoleInternalAdmin, Active: true},
		users.User{ID: "u-2", Email: "off@example.com", Role: rbac.RoleClientUser},
	)
	tokens, err := auth.NewTokenManager("secret", "fieldforce", time.Hour)
	require.NoError(t, err)

	for _, ref := range []string{"ops@example.com", "u-1"} {
		var out bytes.Buffer
		require.NoError(t, issueToken(context.Background(), &out, store, tokens, ref))
		raw, _, _ := strings.Cut(out.String(), "\n")
		sess, err := tokens.Parse(raw)
		require.NoError(t, err)
		require.Equal(t, "u-1", sess.UserID)
	}

	require.ErrorContains(t, issueToken(context.Background(), &bytes.Buffer{}, store, tokens, "off@example.com"), "inactive")
	require.Error(t, issueToken(context.Background(), &bytes.Buffer{}, store, tokens, "nobody"))
}

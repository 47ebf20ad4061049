// Package testutil starts throwaway infrastructure for repository integration tests.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fieldforce/fieldforce/internal/platform/db"
)

// IntegrationEnv enables tests that need Docker.
const IntegrationEnv = "FIELDFORCE_INTEGRATION"

// NewPostgres starts a migrated PostgreSQL container and returns a pool to it. The test is skipped
// unless FIELDFORCE_INTEGRATION=1.
func NewPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv(IntegrationEnv) != "1" {
		t.Skipf("set %s=1 to run against PostgreSQL", IntegrationEnv)
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("fieldforce"),
		postgres.WithUsername("fieldforce"),
		postgres.WithPassword("fieldforce"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := db.New(ctx, dsn, 10)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool), "apply migrations")
	return pool
}

// Fixture holds ids of rows inserted by Seed.
type Fixture struct {
	OrganizationID string
	UserID         string
}

// Seed inserts a client organization with one manager account.
func Seed(t *testing.T, pool *pgxpool.Pool) Fixture {
	t.Helper()
	ctx := context.Background()
	f := Fixture{OrganizationID: uuid.NewString(), UserID: uuid.NewString()}
	slug := "org-" + f.OrganizationID[:8]
	_, err := pool.Exec(ctx, `INSERT INTO organizations (id, name, slug, kind) VALUES ($1, $2, $3, 'client')`,
		f.OrganizationID, "Org "+slug, slug)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO users (id, email, role, organization_id) VALUES ($1, $2, 'client_manager', $3)`,
		f.UserID, slug+"@example.com", f.OrganizationID)
	require.NoError(t, err)
	return f
}

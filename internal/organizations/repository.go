package organizations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldforce/fieldforce/internal/platform/db"
	"github.com/fieldforce/fieldforce/internal/platform/httpx"
	"github.com/fieldforce/fieldforce/internal/rbac"
)

// Store is the persistence contract for organizations and their settings.
type Store interface {
	List(ctx context.Context) ([]Organization, error)
	Get(ctx context.Context, id string) (Organization, error)
	Create(ctx context.Context, org Organization) (Organization, error)
	FeatureOverrides(ctx context.Context, orgID string) (map[string]bool, error)
	SaveFeatureOverrides(ctx context.Context, orgID string, values map[string]bool, updatedBy string) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

const orgColumns = `id::text, name, slug, kind, active, created_at`

func scanOrg(row pgx.Row) (Organization, error) {
	var (
		o    Organization
		kind string
	)
	if err := row.Scan(&o.ID, &o.Name, &o.Slug, &kind, &o.Active, &o.CreatedAt); err != nil {
		return Organization{}, err
	}
	o.Kind = Kind(kind)
	return o, nil
}

// List returns all organizations ordered by name.
func (r *Repository) List(ctx context.Context) ([]Organization, error) {
	rows, err := r.db.Query(ctx, `SELECT `+orgColumns+` FROM organizations ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("organizations: list: %w", err)
	}
	defer rows.Close()
	var out []Organization
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, fmt.Errorf("organizations: scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Get fetches an organization by id.
func (r *Repository) Get(ctx context.Context, id string) (Organization, error) {
	o, err := scanOrg(r.db.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsInvalidInput(err) {
			return Organization{}, httpx.ErrNotFound
		}
		return Organization{}, fmt.Errorf("organizations: get: %w", err)
	}
	return o, nil
}

// Create inserts an organization. The id is generated when empty.
func (r *Repository) Create(ctx context.Context, org Organization) (Organization, error) {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	o, err := scanOrg(r.db.QueryRow(ctx, `INSERT INTO organizations (id, name, slug, kind, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+orgColumns, org.ID, org.Name, org.Slug, string(org.Kind), org.Active))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Organization{}, httpx.Errorf(httpx.ErrDuplicate, "Organization %q already exists", org.Slug)
		}
		return Organization{}, fmt.Errorf("organizations: create: %w", err)
	}
	return o, nil
}

// FeatureOverrides loads the boolean overrides stored for orgID. Non-boolean values are skipped.
func (r *Repository) FeatureOverrides(ctx context.Context, orgID string) (map[string]bool, error) {
	rows, err := r.db.Query(ctx, `SELECT key, value FROM organization_settings
		WHERE organization_id = $1 AND category = $2`, orgID, rbac.FeatureCategory)
	if err != nil {
		if db.IsInvalidInput(err) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("organizations: load settings: %w", err)
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var (
			key string
			raw []byte
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("organizations: scan setting: %w", err)
		}
		var v bool
		if json.Unmarshal(raw, &v) == nil {
			out[key] = v
		}
	}
	return out, rows.Err()
}

// SaveFeatureOverrides upserts every value in one statement.
func (r *Repository) SaveFeatureOverrides(ctx context.Context, orgID string, values map[string]bool, updatedBy string) error {
	keys := make([]string, 0, len(values))
	flags := make([]bool, 0, len(values))
	for k, v := range values {
		keys = append(keys, k)
		flags = append(flags, v)
	}
	_, err := r.db.Exec(ctx, `INSERT INTO organization_settings (organization_id, category, key, value, updated_by_id, updated_at)
		SELECT $1, $2, t.key, to_jsonb(t.value), $5, NOW()
		FROM unnest($3::text[], $4::bool[]) AS t(key, value)
		ON CONFLICT (organization_id, category, key)
		DO UPDATE SET value = EXCLUDED.value, updated_by_id = EXCLUDED.updated_by_id, updated_at = EXCLUDED.updated_at`,
		orgID, rbac.FeatureCategory, keys, flags, updatedBy)
	if err != nil {
		if db.IsForeignKeyViolation(err) || db.IsInvalidInput(err) {
			return httpx.Errorf(httpx.ErrNotFound, "Organization not found")
		}
		return fmt.Errorf("organizations: save settings: %w", err)
	}
	return nil
}

var _ Store = (*Repository)(nil)

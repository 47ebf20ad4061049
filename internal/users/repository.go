package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldforce/fieldforce/internal/platform/db"
	"github.com/fieldforce/fieldforce/internal/platform/httpx"
	"github.com/fieldforce/fieldforce/internal/rbac"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

const userColumns = `id::text, email, name, role, COALESCE(organization_id::text, ''), organization_role,
	password_hash, active, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.OrganizationID, &u.OrganizationRole,
		&u.PasswordHash, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	u.Role = rbac.ParseRole(role)
	return u, nil
}

// List returns users ordered by email.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]User, error) {
	var (
		where []string
		args  []any
	)
	if filters.OrganizationID != "" {
		args = append(args, filters.OrganizationID)
		where = append(where, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if filters.Role != rbac.RoleUnknown {
		args = append(args, string(filters.Role))
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	query := `SELECT ` + userColumns + ` FROM users`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filters.Limit, filters.Offset)
	query += fmt.Sprintf(` ORDER BY email LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		if db.IsInvalidInput(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	return out, nil
}

// Get fetches a user by id.
func (r *Repository) Get(ctx context.Context, id string) (User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	return u, mapLookupErr(err, "get")
}

// FindByEmail fetches a user by case-insensitive email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	return u, mapLookupErr(err, "find by email")
}

// Create inserts a user. The id is generated when empty.
func (r *Repository) Create(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	row := r.db.QueryRow(ctx, `INSERT INTO users (id, email, name, role, organization_id, organization_role, password_hash, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+userColumns,
		u.ID, u.Email, u.Name, string(u.Role), db.NullIfEmpty(u.OrganizationID), u.OrganizationRole, u.PasswordHash, u.Active)
	created, err := scanUser(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, httpx.Errorf(httpx.ErrDuplicate, "A user with email %s already exists", u.Email)
		}
		if db.IsForeignKeyViolation(err) {
			return User{}, httpx.Errorf(httpx.ErrValidation, "organization %s does not exist", u.OrganizationID)
		}
		return User{}, fmt.Errorf("users: create: %w", err)
	}
	return created, nil
}

// SetPasswordHash replaces the stored bcrypt hash.
func (r *Repository) SetPasswordHash(ctx context.Context, id, hash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		if db.IsInvalidInput(err) {
			return httpx.ErrNotFound
		}
		return fmt.Errorf("users: set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func mapLookupErr(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows), db.IsInvalidInput(err):
		return httpx.ErrNotFound
	default:
		return fmt.Errorf("users: %s: %w", op, err)
	}
}

var _ Store = (*Repository)(nil)

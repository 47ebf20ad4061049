package kits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldforce/fieldforce/internal/platform/db"
	"github.com/fieldforce/fieldforce/internal/platform/httpx"
)

// Store is the persistence contract for kits.
type Store interface {
	CreateTemplate(ctx context.Context, t Template) (Template, error)
	GetTemplate(ctx context.Context, id string) (Template, error)
	ListTemplates(ctx context.Context, orgID string) ([]Template, error)
	CreateInstance(ctx context.Context, in Instance) (Instance, error)
	GetInstance(ctx context.Context, id string) (Instance, error)
	ListInstances(ctx context.Context, filters InstanceFilters) ([]Instance, error)
	// Assign links an available instance to bookingID, returning ErrStatusChanged otherwise.
	Assign(ctx context.Context, id, bookingID string, at time.Time) (Instance, error)
	// Release frees an assigned instance, returning ErrStatusChanged otherwise.
	Release(ctx context.Context, id string, at time.Time) (Instance, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

const (
	templateColumns = `id::text, COALESCE(organization_id::text, ''), name, description, items, active, created_at`
	instanceColumns = `i.id::text, i.template_id::text, i.serial_number, i.status, COALESCE(i.booking_id::text, ''),
		i.assigned_at, i.created_at, i.updated_at`
)

func scanTemplate(row pgx.Row) (Template, error) {
	var (
		t     Template
		items []byte
	)
	if err := row.Scan(&t.ID, &t.OrganizationID, &t.Name, &t.Description, &items, &t.Active, &t.CreatedAt); err != nil {
		return Template{}, err
	}
	if err := json.Unmarshal(items, &t.Items); err != nil {
		return Template{}, fmt.Errorf("decode items: %w", err)
	}
	return t, nil
}

func scanInstance(row pgx.Row) (Instance, error) {
	var (
		in     Instance
		status string
	)
	err := row.Scan(&in.ID, &in.TemplateID, &in.SerialNumber, &status, &in.BookingID, &in.AssignedAt, &in.CreatedAt, &in.UpdatedAt)
	in.Status = Status(status)
	return in, err
}

func (r *Repository) CreateTemplate(ctx context.Context, t Template) (Template, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	items, err := json.Marshal(t.Items)
	if err != nil {
		return Template{}, fmt.Errorf("kits: encode items: %w", err)
	}
	created, err := scanTemplate(r.db.QueryRow(ctx, `INSERT INTO kit_templates (id, organization_id, name, description, items, active)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+templateColumns,
		t.ID, db.NullIfEmpty(t.OrganizationID), t.Name, t.Description, items, t.Active))
	if err != nil {
		if db.IsForeignKeyViolation(err) || db.IsInvalidInput(err) {
			return Template{}, httpx.Errorf(httpx.ErrValidation, "organizationId does not exist")
		}
		return Template{}, fmt.Errorf("kits: create template: %w", err)
	}
	return created, nil
}

func (r *Repository) GetTemplate(ctx context.Context, id string) (Template, error) {
	t, err := scanTemplate(r.db.QueryRow(ctx, `SELECT `+templateColumns+` FROM kit_templates WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsInvalidInput(err) {
			return Template{}, httpx.ErrNotFound
		}
		return Template{}, fmt.Errorf("kits: get template: %w", err)
	}
	return t, nil
}

// ListTemplates returns shared templates plus orgID's. An empty orgID returns every template.
func (r *Repository) ListTemplates(ctx context.Context, orgID string) ([]Template, error) {
	rows, err := r.db.Query(ctx, `SELECT `+templateColumns+` FROM kit_templates
		WHERE $1 = '' OR organization_id IS NULL OR organization_id::text = $1
		ORDER BY name, id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("kits: list templates: %w", err)
	}
	defer rows.Close()
	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("kits: scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) CreateInstance(ctx context.Context, in Instance) (Instance, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	created, err := scanInstance(r.db.QueryRow(ctx, `INSERT INTO kit_instances AS i (id, template_id, serial_number, status)
		VALUES ($1, $2, $3, $4) RETURNING `+instanceColumns,
		in.ID, in.TemplateID, in.SerialNumber, string(in.Status)))
	if err != nil {
		switch {
		case db.IsUniqueViolation(err):
			return Instance{}, httpx.Errorf(httpx.ErrDuplicate, "Serial number %s already exists", in.SerialNumber)
		case db.IsForeignKeyViolation(err), db.IsInvalidInput(err):
			return Instance{}, httpx.Errorf(httpx.ErrValidation, "templateId does not exist")
		}
		return Instance{}, fmt.Errorf("kits: create instance: %w", err)
	}
	return created, nil
}

func (r *Repository) GetInstance(ctx context.Context, id string) (Instance, error) {
	in, err := scanInstance(r.db.QueryRow(ctx, `SELECT `+instanceColumns+` FROM kit_instances i WHERE i.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsInvalidInput(err) {
			return Instance{}, httpx.ErrNotFound
		}
		return Instance{}, fmt.Errorf("kits: get instance: %w", err)
	}
	return in, nil
}

func (r *Repository) ListInstances(ctx context.Context, filters InstanceFilters) ([]Instance, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filters.TemplateID != "" {
		add("i.template_id::text = $%d", filters.TemplateID)
	}
	if filters.BookingID != "" {
		add("i.booking_id::text = $%d", filters.BookingID)
	}
	if filters.Status != "" {
		add("i.status = $%d", string(filters.Status))
	}
	if filters.OrganizationID != "" {
		add("(t.organization_id IS NULL OR t.organization_id::text = $%d)", filters.OrganizationID)
	}
	query := `SELECT ` + instanceColumns + ` FROM kit_instances i JOIN kit_templates t ON t.id = i.template_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY i.serial_number`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("kits: list instances: %w", err)
	}
	defer rows.Close()
	var out []Instance
	for rows.Next() {
		in, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("kits: scan instance: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (r *Repository) Assign(ctx context.Context, id, bookingID string, at time.Time) (Instance, error) {
	return r.move(ctx, `UPDATE kit_instances AS i SET status = 'assigned', booking_id = $2, assigned_at = $3, updated_at = $3
		WHERE i.id = $1 AND i.status = 'available' RETURNING `+instanceColumns, id, bookingID, at)
}

func (r *Repository) Release(ctx context.Context, id string, at time.Time) (Instance, error) {
	return r.move(ctx, `UPDATE kit_instances AS i SET status = 'available', booking_id = NULL, assigned_at = NULL, updated_at = $2
		WHERE i.id = $1 AND i.status = 'assigned' RETURNING `+instanceColumns, id, at)
}

func (r *Repository) move(ctx context.Context, query string, args ...any) (Instance, error) {
	in, err := scanInstance(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return Instance{}, ErrStatusChanged
		case db.IsInvalidInput(err):
			return Instance{}, httpx.ErrNotFound
		}
		return Instance{}, fmt.Errorf("kits: update instance: %w", err)
	}
	return in, nil
}

var _ Store = (*Repository)(nil)

package locations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldforce/fieldforce/internal/platform/db"
	"github.com/fieldforce/fieldforce/internal/platform/httpx"
)

// Store is the persistence contract for locations.
type Store interface {
	Create(ctx context.Context, loc Location) (Location, error)
	Get(ctx context.Context, id string) (Location, error)
	List(ctx context.Context, filters ListFilters) ([]Location, error)
	ListApproved(ctx context.Context, filters ApprovedFilters) ([]Location, error)
	// Decide applies d only while the row is pending and returns ErrNotPending otherwise.
	Decide(ctx context.Context, id string, d Decision) (Location, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

const locationColumns = `id::text, name, address1, address2, city, state_id, postal_code, country,
	latitude, longitude, place_id, formatted_address, geocoded_at, COALESCE(brand_id::text, ''), status,
	COALESCE(requested_by_id::text, ''), COALESCE(approved_by_id::text, ''), approved_at,
	COALESCE(rejected_by_id::text, ''), rejected_at, rejection_reason, search_text, created_at, updated_at`

func scanLocation(row pgx.Row) (Location, error) {
	var (
		l      Location
		status string
	)
	err := row.Scan(&l.ID, &l.Name, &l.Address1, &l.Address2, &l.City, &l.StateID, &l.PostalCode, &l.Country,
		&l.Latitude, &l.Longitude, &l.PlaceID, &l.FormattedAddress, &l.GeocodedAt, &l.BrandID, &status,
		&l.RequestedByID, &l.ApprovedByID, &l.ApprovedAt,
		&l.RejectedByID, &l.RejectedAt, &l.RejectionReason, &l.SearchText, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return Location{}, err
	}
	l.Status, _ = ParseStatus(status)
	return l, nil
}

func collect(rows pgx.Rows) ([]Location, error) {
	defer rows.Close()
	var out []Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("locations: scan: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("locations: rows: %w", err)
	}
	return out, nil
}

// Create inserts a location. The id is generated when empty.
func (r *Repository) Create(ctx context.Context, l Location) (Location, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	row := r.db.QueryRow(ctx, `INSERT INTO locations (id, name, address1, address2, city, state_id, postal_code, country,
			latitude, longitude, place_id, formatted_address, geocoded_at, brand_id, status, requested_by_id, search_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING `+locationColumns,
		l.ID, l.Name, l.Address1, l.Address2, l.City, l.StateID, l.PostalCode, l.Country,
		l.Latitude, l.Longitude, l.PlaceID, l.FormattedAddress, l.GeocodedAt, db.NullIfEmpty(l.BrandID),
		string(l.Status), db.NullIfEmpty(l.RequestedByID), l.SearchText)
	created, err := scanLocation(row)
	if err != nil {
		if db.IsForeignKeyViolation(err) || db.IsInvalidInput(err) {
			return Location{}, httpx.Errorf(httpx.ErrValidation, "brandId does not reference an organization")
		}
		return Location{}, fmt.Errorf("locations: create: %w", err)
	}
	return created, nil
}

// Get fetches a location by id.
func (r *Repository) Get(ctx context.Context, id string) (Location, error) {
	l, err := scanLocation(r.db.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsInvalidInput(err) {
			return Location{}, httpx.ErrNotFound
		}
		return Location{}, fmt.Errorf("locations: get: %w", err)
	}
	return l, nil
}

// List returns locations newest first.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Location, error) {
	var (
		where []string
		args  []any
	)
	if filters.Status != "" {
		args = append(args, statusVariants(filters.Status))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filters.BrandID != "" {
		args = append(args, filters.BrandID)
		where = append(where, fmt.Sprintf("brand_id = $%d", len(args)))
	}
	query := `SELECT ` + locationColumns + ` FROM locations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filters.Limit, filters.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		if db.IsInvalidInput(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("locations: list: %w", err)
	}
	return collect(rows)
}

// ListApproved returns approved locations ordered by name.
func (r *Repository) ListApproved(ctx context.Context, filters ApprovedFilters) ([]Location, error) {
	args := []any{statusVariants(StatusApproved)}
	where := []string{"status = ANY($1)"}
	if filters.ExcludeBrandID != "" {
		args = append(args, filters.ExcludeBrandID)
		where = append(where, fmt.Sprintf("brand_id::text IS DISTINCT FROM $%d", len(args)))
	}
	if filters.StateID != "" {
		args = append(args, filters.StateID)
		where = append(where, fmt.Sprintf("state_id = $%d", len(args)))
	}
	if filters.Search != "" {
		args = append(args, "%"+escapeLike(filters.Search)+"%")
		where = append(where, fmt.Sprintf("search_text LIKE $%d", len(args)))
	}
	rows, err := r.db.Query(ctx, `SELECT `+locationColumns+` FROM locations WHERE `+
		strings.Join(where, " AND ")+` ORDER BY name, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("locations: list approved: %w", err)
	}
	return collect(rows)
}

// Decide performs the guarded status write. Only one concurrent caller can match the pending row.
func (r *Repository) Decide(ctx context.Context, id string, d Decision) (Location, error) {
	var row pgx.Row
	switch d.To {
	case StatusApproved:
		row = r.db.QueryRow(ctx, `UPDATE locations
			SET status = 'approved', approved_by_id = $2, approved_at = $3, updated_at = $3
			WHERE id = $1 AND status = 'pending'
			RETURNING `+locationColumns, id, db.NullIfEmpty(d.ReviewerID), d.At)
	case StatusRejected:
		row = r.db.QueryRow(ctx, `UPDATE locations
			SET status = 'rejected', rejected_by_id = $2, rejected_at = $3, rejection_reason = $4, updated_at = $3
			WHERE id = $1 AND status = 'pending'
			RETURNING `+locationColumns, id, db.NullIfEmpty(d.ReviewerID), d.At, d.Reason)
	default:
		return Location{}, fmt.Errorf("locations: unsupported decision %q", d.To)
	}
	l, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, ErrNotPending
		}
		if db.IsInvalidInput(err) {
			return Location{}, httpx.ErrNotFound
		}
		return Location{}, fmt.Errorf("locations: decide: %w", err)
	}
	return l, nil
}

func statusVariants(s Status) []string {
	if s == StatusApproved {
		return []string{string(StatusApproved), string(statusLegacyActive)}
	}
	return []string{string(s)}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var _ Store = (*Repository)(nil)

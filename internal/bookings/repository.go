package bookings

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

// Store is the persistence contract for bookings.
type Store interface {
	Create(ctx context.Context, b Booking) (Booking, error)
	Get(ctx context.Context, id string) (Booking, error)
	List(ctx context.Context, filters ListFilters) ([]Booking, error)
	// Transition writes c only while the row is in one of from, returning ErrStaleStatus otherwise.
	Transition(ctx context.Context, id string, from []Status, c Change) (Booking, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

const bookingColumns = `id::text, organization_id::text, location_id::text, title, notes, starts_at, ends_at, status,
	COALESCE(requested_by_id::text, ''), COALESCE(approved_by_id::text, ''), approved_at,
	COALESCE(rejected_by_id::text, ''), rejected_at, rejection_reason,
	COALESCE(canceled_by_id::text, ''), canceled_at, completed_at, created_at, updated_at`

func scanBooking(row pgx.Row) (Booking, error) {
	var (
		b      Booking
		status string
	)
	err := row.Scan(&b.ID, &b.OrganizationID, &b.LocationID, &b.Title, &b.Notes, &b.StartsAt, &b.EndsAt, &status,
		&b.RequestedByID, &b.ApprovedByID, &b.ApprovedAt,
		&b.RejectedByID, &b.RejectedAt, &b.RejectionReason,
		&b.CanceledByID, &b.CanceledAt, &b.CompletedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Booking{}, err
	}
	b.Status, _ = ParseStatus(status)
	return b, nil
}

// Create inserts a booking. The id is generated when empty.
func (r *Repository) Create(ctx context.Context, b Booking) (Booking, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	row := r.db.QueryRow(ctx, `INSERT INTO bookings (id, organization_id, location_id, title, notes, starts_at, ends_at,
			status, requested_by_id, approved_by_id, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+bookingColumns,
		b.ID, b.OrganizationID, b.LocationID, b.Title, b.Notes, b.StartsAt, b.EndsAt,
		string(b.Status), db.NullIfEmpty(b.RequestedByID), db.NullIfEmpty(b.ApprovedByID), b.ApprovedAt)
	created, err := scanBooking(row)
	if err != nil {
		if db.IsForeignKeyViolation(err) || db.IsInvalidInput(err) {
			return Booking{}, httpx.Errorf(httpx.ErrValidation, "organizationId or locationId does not exist")
		}
		return Booking{}, fmt.Errorf("bookings: create: %w", err)
	}
	return created, nil
}

// Get fetches a booking by id.
func (r *Repository) Get(ctx context.Context, id string) (Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsInvalidInput(err) {
			return Booking{}, httpx.ErrNotFound
		}
		return Booking{}, fmt.Errorf("bookings: get: %w", err)
	}
	return b, nil
}

// List returns bookings ordered by start time.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Booking, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filters.OrganizationID != "" {
		add("organization_id = $%d", filters.OrganizationID)
	}
	if filters.LocationID != "" {
		add("location_id = $%d", filters.LocationID)
	}
	if filters.Status != "" {
		add("status = $%d", string(filters.Status))
	}
	if !filters.From.IsZero() {
		add("ends_at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("starts_at <= $%d", filters.To)
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filters.Limit, filters.Offset)
	query += fmt.Sprintf(` ORDER BY starts_at, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		if db.IsInvalidInput(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("bookings: list: %w", err)
	}
	defer rows.Close()
	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: list: %w", err)
	}
	return out, nil
}

// Transition performs the guarded status write.
func (r *Repository) Transition(ctx context.Context, id string, from []Status, c Change) (Booking, error) {
	fromStrings := make([]string, len(from))
	for i, s := range from {
		fromStrings[i] = string(s)
	}
	args := []any{id, fromStrings, string(c.To), c.At}
	set := []string{"status = $3", "updated_at = $4"}
	bind := func(column string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	switch c.To {
	case StatusPending:
	case StatusApproved:
		bind("approved_by_id", db.NullIfEmpty(c.ActorID))
		set = append(set, "approved_at = $4")
	case StatusRejected:
		bind("rejected_by_id", db.NullIfEmpty(c.ActorID))
		bind("rejection_reason", c.Reason)
		set = append(set, "rejected_at = $4")
	case StatusCanceled:
		bind("canceled_by_id", db.NullIfEmpty(c.ActorID))
		set = append(set, "canceled_at = $4")
	case StatusCompleted:
		set = append(set, "completed_at = $4")
	default:
		return Booking{}, fmt.Errorf("bookings: unsupported transition to %q", c.To)
	}
	row := r.db.QueryRow(ctx, `UPDATE bookings SET `+strings.Join(set, ", ")+`
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+bookingColumns, args...)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Booking{}, ErrStaleStatus
		}
		if db.IsInvalidInput(err) {
			return Booking{}, httpx.ErrNotFound
		}
		return Booking{}, fmt.Errorf("bookings: transition: %w", err)
	}
	return b, nil
}

var _ Store = (*Repository)(nil)

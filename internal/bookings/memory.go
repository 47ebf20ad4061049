package bookings

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldforce/fieldforce/internal/platform/httpx"
)

// MemoryStore is an in-process Store with the same conditional-write semantics as Repository.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Booking
	now  func() time.Time
}

// NewMemoryStore seeds a store with bookings.
func NewMemoryStore(seed ...Booking) *MemoryStore {
	s := &MemoryStore{rows: make(map[string]Booking), now: time.Now}
	for _, b := range seed {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		s.rows[b.ID] = b
	}
	return s
}

func (s *MemoryStore) Create(ctx context.Context, b Booking) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := s.now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	s.rows[b.ID] = b
	return b, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rows[id]
	if !ok {
		return Booking{}, httpx.ErrNotFound
	}
	return b, nil
}

func (s *MemoryStore) List(ctx context.Context, filters ListFilters) ([]Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Booking
	for _, b := range s.rows {
		switch {
		case filters.OrganizationID != "" && b.OrganizationID != filters.OrganizationID,
			filters.LocationID != "" && b.LocationID != filters.LocationID,
			filters.Status != "" && b.Status != filters.Status,
			!filters.From.IsZero() && b.EndsAt.Before(filters.From),
			!filters.To.IsZero() && b.StartsAt.After(filters.To):
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
	if filters.Offset >= len(out) {
		return nil, nil
	}
	out = out[filters.Offset:]
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Transition(ctx context.Context, id string, from []Status, c Change) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rows[id]
	if !ok || !slices.Contains(from, b.Status) {
		return Booking{}, ErrStaleStatus
	}
	at := c.At
	switch c.To {
	case StatusPending:
	case StatusApproved:
		b.ApprovedByID, b.ApprovedAt = c.ActorID, &at
	case StatusRejected:
		b.RejectedByID, b.RejectedAt, b.RejectionReason = c.ActorID, &at, c.Reason
	case StatusCanceled:
		b.CanceledByID, b.CanceledAt = c.ActorID, &at
	case StatusCompleted:
		b.CompletedAt = &at
	default:
		return Booking{}, httpx.Errorf(httpx.ErrValidation, "unsupported transition %q", c.To)
	}
	b.Status = c.To
	b.UpdatedAt = at
	s.rows[id] = b
	return b, nil
}

var _ Store = (*MemoryStore)(nil)

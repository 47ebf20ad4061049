package locations

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldforce/fieldforce/internal/platform/httpx"
)

// MemoryStore is an in-process Store with the same conditional-write semantics as Repository.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Location
	now  func() time.Time
}

// NewMemoryStore seeds a store with locations.
func NewMemoryStore(seed ...Location) *MemoryStore {
	s := &MemoryStore{rows: make(map[string]Location), now: time.Now}
	for _, l := range seed {
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		s.rows[l.ID] = l
	}
	return s
}

func (s *MemoryStore) Create(ctx context.Context, l Location) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := s.now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	s.rows[l.ID] = l
	return l, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[id]
	if !ok {
		return Location{}, httpx.ErrNotFound
	}
	return normalised(l), nil
}

func (s *MemoryStore) List(ctx context.Context, filters ListFilters) ([]Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Location
	for _, l := range s.rows {
		l = normalised(l)
		if filters.Status != "" && l.Status != filters.Status {
			continue
		}
		if filters.BrandID != "" && l.BrandID != filters.BrandID {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
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

func (s *MemoryStore) ListApproved(ctx context.Context, filters ApprovedFilters) ([]Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Location
	for _, l := range s.rows {
		l = normalised(l)
		if l.Status != StatusApproved {
			continue
		}
		if filters.ExcludeBrandID != "" && l.BrandID == filters.ExcludeBrandID {
			continue
		}
		if filters.StateID != "" && l.StateID != filters.StateID {
			continue
		}
		if filters.Search != "" && !strings.Contains(l.SearchText, filters.Search) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Decide(ctx context.Context, id string, d Decision) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[id]
	if !ok {
		return Location{}, ErrNotPending
	}
	if l.Status != StatusPending {
		return Location{}, ErrNotPending
	}
	at := d.At
	switch d.To {
	case StatusApproved:
		l.ApprovedByID, l.ApprovedAt = d.ReviewerID, &at
	case StatusRejected:
		l.RejectedByID, l.RejectedAt, l.RejectionReason = d.ReviewerID, &at, d.Reason
	default:
		return Location{}, httpx.Errorf(httpx.ErrValidation, "unsupported decision %q", d.To)
	}
	l.Status = d.To
	l.UpdatedAt = at
	s.rows[id] = l
	return l, nil
}

func normalised(l Location) Location {
	if st, ok := ParseStatus(string(l.Status)); ok {
		l.Status = st
	}
	return l
}

var _ Store = (*MemoryStore)(nil)

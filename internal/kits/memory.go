package kits

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldforce/fieldforce/internal/platform/httpx"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu        sync.Mutex
	templates map[string]Template
	instances map[string]Instance
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{templates: make(map[string]Template), instances: make(map[string]Instance)}
}

func (s *MemoryStore) CreateTemplate(ctx context.Context, t Template) (Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()
	s.templates[t.ID] = t
	return t, nil
}

func (s *MemoryStore) GetTemplate(ctx context.Context, id string) (Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return Template{}, httpx.ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) ListTemplates(ctx context.Context, orgID string) ([]Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Template
	for _, t := range s.templates {
		if orgID == "" || t.OrganizationID == "" || t.OrganizationID == orgID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) CreateInstance(ctx context.Context, in Instance) (Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[in.TemplateID]; !ok {
		return Instance{}, httpx.Errorf(httpx.ErrValidation, "templateId does not exist")
	}
	for _, existing := range s.instances {
		if existing.SerialNumber == in.SerialNumber {
			return Instance{}, httpx.Errorf(httpx.ErrDuplicate, "Serial number %s already exists", in.SerialNumber)
		}
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	in.CreatedAt, in.UpdatedAt = now, now
	s.instances[in.ID] = in
	return in, nil
}

func (s *MemoryStore) GetInstance(ctx context.Context, id string) (Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.instances[id]
	if !ok {
		return Instance{}, httpx.ErrNotFound
	}
	return in, nil
}

func (s *MemoryStore) ListInstances(ctx context.Context, filters InstanceFilters) ([]Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Instance
	for _, in := range s.instances {
		owner := s.templates[in.TemplateID].OrganizationID
		switch {
		case filters.TemplateID != "" && in.TemplateID != filters.TemplateID,
			filters.BookingID != "" && in.BookingID != filters.BookingID,
			filters.Status != "" && in.Status != filters.Status,
			filters.OrganizationID != "" && owner != "" && owner != filters.OrganizationID:
			continue
		}
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return out, nil
}

func (s *MemoryStore) Assign(ctx context.Context, id, bookingID string, at time.Time) (Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.instances[id]
	if !ok || in.Status != StatusAvailable {
		return Instance{}, ErrStatusChanged
	}
	in.Status, in.BookingID, in.AssignedAt, in.UpdatedAt = StatusAssigned, bookingID, &at, at
	s.instances[id] = in
	return in, nil
}

func (s *MemoryStore) Release(ctx context.Context, id string, at time.Time) (Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.instances[id]
	if !ok || in.Status != StatusAssigned {
		return Instance{}, ErrStatusChanged
	}
	in.Status, in.BookingID, in.AssignedAt, in.UpdatedAt = StatusAvailable, "", nil, at
	s.instances[id] = in
	return in, nil
}

var _ Store = (*MemoryStore)(nil)

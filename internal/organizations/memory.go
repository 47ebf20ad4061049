package organizations

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldforce/fieldforce/internal/platform/httpx"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	orgs     map[string]Organization
	settings map[string]map[string]bool
	// Err, when set, fails FeatureOverrides.
	Err error
}

// NewMemoryStore seeds a store with organizations.
func NewMemoryStore(seed ...Organization) *MemoryStore {
	s := &MemoryStore{orgs: make(map[string]Organization), settings: make(map[string]map[string]bool)}
	for _, o := range seed {
		if o.ID == "" {
			o.ID = uuid.NewString()
		}
		s.orgs[o.ID] = o
	}
	return s
}

func (s *MemoryStore) List(ctx context.Context) ([]Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Organization, 0, len(s.orgs))
	for _, o := range s.orgs {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orgs[id]
	if !ok {
		return Organization{}, httpx.ErrNotFound
	}
	return o, nil
}

func (s *MemoryStore) Create(ctx context.Context, org Organization) (Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orgs {
		if existing.Slug == org.Slug {
			return Organization{}, httpx.Errorf(httpx.ErrDuplicate, "Organization %q already exists", org.Slug)
		}
	}
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	org.CreatedAt = time.Now().UTC()
	s.orgs[org.ID] = org
	return org, nil
}

func (s *MemoryStore) FeatureOverrides(ctx context.Context, orgID string) (map[string]bool, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.settings[orgID]), nil
}

func (s *MemoryStore) SaveFeatureOverrides(ctx context.Context, orgID string, values map[string]bool, updatedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[orgID]; !ok {
		return httpx.Errorf(httpx.ErrNotFound, "Organization not found")
	}
	current := s.settings[orgID]
	if current == nil {
		current = make(map[string]bool)
		s.settings[orgID] = current
	}
	maps.Copy(current, values)
	return nil
}

var _ Store = (*MemoryStore)(nil)

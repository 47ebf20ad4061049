package audit

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store for tests and local runs without a database.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	// Err, when set, is returned by Insert.
	Err error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert appends an entry.
func (m *MemoryStore) Insert(ctx context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, e := range m.entries {
		if e.ID == entry.ID {
			return errors.New("audit: duplicate id")
		}
	}
	m.entries = append(m.entries, entry)
	return nil
}

// List returns matching entries newest first.
func (m *MemoryStore) List(ctx context.Context, filters Filters) ([]Entry, error) {
	matched := m.matching(filters)
	if filters.Offset >= len(matched) {
		return []Entry{}, nil
	}
	end := len(matched)
	if filters.Limit > 0 && filters.Offset+filters.Limit < end {
		end = filters.Offset + filters.Limit
	}
	return matched[filters.Offset:end], nil
}

// Count returns the number of matching entries.
func (m *MemoryStore) Count(ctx context.Context, filters Filters) (int, error) {
	return len(m.matching(filters)), nil
}

// Entries returns a copy of everything stored, in insertion order.
func (m *MemoryStore) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

func (m *MemoryStore) matching(filters Filters) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if filters.Match(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

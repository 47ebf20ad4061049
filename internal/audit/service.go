package audit

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/fieldforce/fieldforce/internal/shared"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// Service answers audit queries.
type Service struct {
	store Store
}

// NewService creates an audit query service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Query returns one page of entries matching filters, newest first, with the total count.
func (s *Service) Query(ctx context.Context, filters Filters) (Page, error) {
	if s == nil || s.store == nil {
		return Page{}, ErrStoreNotConfigured
	}
	filters.Limit = shared.ClampLimit(filters.Limit, defaultLimit, maxLimit)
	if filters.Offset < 0 {
		filters.Offset = 0
	}

	var (
		entries []Entry
		total   int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = s.store.List(gctx, filters)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.store.Count(gctx, filters)
		return err
	})
	if err := g.Wait(); err != nil {
		return Page{}, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Page{Logs: entries, Pagination: shared.NewPagination(total, filters.Limit, filters.Offset)}, nil
}

// EmptyPage is the page returned when the caller may see no entries at all.
func EmptyPage(filters Filters) Page {
	limit := shared.ClampLimit(filters.Limit, defaultLimit, maxLimit)
	return Page{Logs: []Entry{}, Pagination: shared.NewPagination(0, limit, filters.Offset)}
}

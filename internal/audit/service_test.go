package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, store *MemoryStore, entries ...Entry) {
	t.Helper()
	for i, e := range entries {
		if e.ID == "" {
			e.ID = fmt.Sprintf("e-%02d", i)
		}
		require.NoError(t, store.Insert(context.Background(), e))
	}
}

func TestQuerySingleApprovalWithinWindow(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	seed(t, store,
		Entry{Action: "location.approve", Resource: "locations", ResourceID: "L0", CreatedAt: base.Add(-48 * time.Hour)},
		Entry{Action: "location.approve", Resource: "locations", ResourceID: "L1", CreatedAt: base},
		Entry{Action: "booking.approve", Resource: "bookings", ResourceID: "B1", CreatedAt: base.Add(time.Minute)},
		Entry{Action: "location.reject", Resource: "locations", ResourceID: "L2", CreatedAt: base.Add(48 * time.Hour)},
	)

	page, err := NewService(store).Query(context.Background(), Filters{
		Resource:  "locations",
		StartDate: base.Add(-time.Hour),
		EndDate:   base.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, page.Logs, 1)
	require.Equal(t, "L1", page.Logs[0].ResourceID)
	require.Equal(t, page.Logs[0], page.Logs[len(page.Logs)-1])
	require.Equal(t, 1, page.Pagination.Total)
	require.False(t, page.Pagination.HasMore)
}

func TestQueryNewestFirstAndPaginated(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var entries []Entry
	for i := 0; i < 5; i++ {
		entries = append(entries, Entry{Action: "booking.approve", Resource: "bookings", ResourceID: fmt.Sprintf("B%d", i), UserID: "u-1", CreatedAt: base.Add(time.Duration(i) * time.Hour)})
	}
	entries = append(entries, Entry{Action: "booking.approve", Resource: "bookings", UserID: "u-2", CreatedAt: base})
	seed(t, store, entries...)

	svc := NewService(store)
	page, err := svc.Query(context.Background(), Filters{UserID: "u-1", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"B4", "B3"}, resourceIDs(page.Logs))
	require.Equal(t, 5, page.Pagination.Total)
	require.True(t, page.Pagination.HasMore)

	page, err = svc.Query(context.Background(), Filters{UserID: "u-1", Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Equal(t, []string{"B0"}, resourceIDs(page.Logs))
	require.False(t, page.Pagination.HasMore)
}

func TestQueryClampsLimit(t *testing.T) {
	store := NewMemoryStore()
	page, err := NewService(store).Query(context.Background(), Filters{Limit: 10_000, Offset: -3})
	require.NoError(t, err)
	require.Equal(t, maxLimit, page.Pagination.Limit)
	require.Equal(t, 0, page.Pagination.Offset)
	require.NotNil(t, page.Logs)

	page, err = NewService(store).Query(context.Background(), Filters{})
	require.NoError(t, err)
	require.Equal(t, defaultLimit, page.Pagination.Limit)
}

func TestQueryFiltersEveryField(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now().UTC()
	seed(t, store,
		Entry{Action: "a", Resource: "r", ResourceID: "1", UserID: "u", OrganizationID: "o", CreatedAt: now},
		Entry{Action: "b", Resource: "r", ResourceID: "1", UserID: "u", OrganizationID: "o", CreatedAt: now},
		Entry{Action: "a", Resource: "r", ResourceID: "2", UserID: "u", OrganizationID: "o", CreatedAt: now},
		Entry{Action: "a", Resource: "r", ResourceID: "1", UserID: "x", OrganizationID: "o", CreatedAt: now},
		Entry{Action: "a", Resource: "r", ResourceID: "1", UserID: "u", OrganizationID: "p", CreatedAt: now},
	)
	page, err := NewService(store).Query(context.Background(), Filters{Action: "a", Resource: "r", ResourceID: "1", UserID: "u", OrganizationID: "o"})
	require.NoError(t, err)
	require.Len(t, page.Logs, 1)
}

func TestQueryWithoutStore(t *testing.T) {
	_, err := NewService(nil).Query(context.Background(), Filters{})
	require.ErrorIs(t, err, ErrStoreNotConfigured)
}

func resourceIDs(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ResourceID)
	}
	return out
}

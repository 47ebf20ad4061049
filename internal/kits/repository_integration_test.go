package kits

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldforce/fieldforce/internal/bookings"
	"github.com/fieldforce/fieldforce/internal/locations"
	"github.com/fieldforce/fieldforce/internal/platform/httpx"
	"github.com/fieldforce/fieldforce/internal/testutil"
)

func TestAssignmentIsConditionalInPostgres(t *testing.T) {
	pool := testutil.NewPostgres(t)
	fx := testutil.Seed(t, pool)
	ctx := context.Background()

	loc, err := locations.NewRepository(pool).Create(ctx, locations.Location{
		Name: "Shop", Address1: "1 Main", City: "Denver", StateID: "CO", Country: "US", Status: locations.StatusApproved,
	})
	require.NoError(t, err)
	starts := time.Now().Add(time.Hour).UTC()
	b, err := bookings.NewRepository(pool).Create(ctx, bookings.Booking{
		OrganizationID: fx.OrganizationID, LocationID: loc.ID, Title: "Demo",
		StartsAt: starts, EndsAt: starts.Add(time.Hour), Status: bookings.StatusApproved,
	})
	require.NoError(t, err)

	repo := NewRepository(pool)
	tpl, err := repo.CreateTemplate(ctx, Template{Name: "Sampling kit", Items: []Item{{Name: "Table", Quantity: 1}}, Active: true})
	require.NoError(t, err)
	require.Equal(t, []Item{{Name: "Table", Quantity: 1}}, tpl.Items)

	inst, err := repo.CreateInstance(ctx, Instance{TemplateID: tpl.ID, SerialNumber: "KIT-001", Status: StatusAvailable})
	require.NoError(t, err)
	_, err = repo.CreateInstance(ctx, Instance{TemplateID: tpl.ID, SerialNumber: "KIT-001", Status: StatusAvailable})
	require.ErrorIs(t, err, httpx.ErrDuplicate)

	assigned, err := repo.Assign(ctx, inst.ID, b.ID, time.Now())
	require.NoError(t, err)
	require.Equal(t, StatusAssigned, assigned.Status)
	require.Equal(t, b.ID, assigned.BookingID)

	_, err = repo.Assign(ctx, inst.ID, b.ID, time.Now())
	require.ErrorIs(t, err, ErrStatusChanged)

	listed, err := repo.ListInstances(ctx, InstanceFilters{BookingID: b.ID})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	released, err := repo.Release(ctx, inst.ID, time.Now())
	require.NoError(t, err)
	require.Equal(t, StatusAvailable, released.Status)
	require.Empty(t, released.BookingID)
}

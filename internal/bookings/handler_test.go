package bookings

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/fieldforce/fieldforce/internal/rbac"
	"github.com/fieldforce/fieldforce/internal/shared"
)

const testRoleHeader = "X-Test-Role"

func newTestRouter(t *testing.T, seed ...Booking) (http.Handler, fixture) {
	t.Helper()
	f := newFixture(t, seed...)
	h := NewHandler(quietLogger, f.svc, rbac.Middleware{Principal: shared.PrincipalFromContext, Logger: quietLogger})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if role := r.Header.Get(testRoleHeader); role != "" {
				r = r.WithContext(shared.ContextWithSession(r.Context(), actor(rbac.ParseRole(role))))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Route("/api/bookings", h.MountRoutes)
	return r, f
}

func call(router http.Handler, method, target, role, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if role != "" {
		req.Header.Set(testRoleHeader, role)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestApproveBookingEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, booking("B1", StatusPending))

	rr := call(router, http.MethodPost, "/api/bookings/B1/approve", string(rbac.RoleInternalAdmin), "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Success bool    `json:"success"`
		Message string  `json:"message"`
		Booking Booking `json:"booking"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, StatusApproved, body.Booking.Status)

	rr = call(router, http.MethodPost, "/api/bookings/B1/approve", string(rbac.RoleInternalAdmin), "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "INVALID_STATE_TRANSITION")
}

func TestRejectBookingEndpoint(t *testing.T) {
	router, f := newTestRouter(t, booking("B1", StatusApproved), booking("B2", StatusPending))

	rr := call(router, http.MethodPost, "/api/bookings/B1/reject", string(rbac.RoleSuperAdmin), `{"reason":"duplicate"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.JSONEq(t, `{"error":"Cannot reject an approved booking","code":"INVALID_STATE_TRANSITION"}`, rr.Body.String())

	rr = call(router, http.MethodPost, "/api/bookings/B2/reject", string(rbac.RoleClientManager), `{"reason":"mine"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = call(router, http.MethodPost, "/api/bookings/B2/reject", "", `{"reason":"x"}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = call(router, http.MethodPost, "/api/bookings/B2/reject", string(rbac.RoleInternalAdmin), `{}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "VALIDATION_ERROR")

	rr = call(router, http.MethodPost, "/api/bookings/B2/reject", string(rbac.RoleInternalAdmin), `{"reason":"no staff"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"success":true,"message":"Booking rejected successfully"}`, rr.Body.String())

	stored, err := f.store.Get(t.Context(), "B2")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, stored.Status)
}

func TestCreateAndListBookingEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := call(router, http.MethodPost, "/api/bookings", string(rbac.RoleClientUser),
		`{"locationId":"L-ok","title":"Pop-up","startsAt":"2026-05-02T16:00:00Z","endsAt":"2026-05-02T20:00:00Z","submit":true}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		Booking Booking `json:"booking"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, StatusPending, created.Booking.Status)

	rr = call(router, http.MethodGet, "/api/bookings?status=pending", string(rbac.RoleClientUser), "")
	require.Equal(t, http.StatusOK, rr.Code)
	var listed struct {
		Bookings []Booking `json:"bookings"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	require.Len(t, listed.Bookings, 1)

	rr = call(router, http.MethodGet, "/api/bookings/"+created.Booking.ID, string(rbac.RoleClientUser), "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = call(router, http.MethodGet, "/api/bookings?from=yesterday", string(rbac.RoleClientUser), "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(router, http.MethodPost, "/api/bookings/"+created.Booking.ID+"/cancel", string(rbac.RoleClientUser), "")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = call(router, http.MethodPost, "/api/bookings/"+created.Booking.ID+"/cancel", string(rbac.RoleClientManager), `{"reason":"rain"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"status":"canceled"`)
}

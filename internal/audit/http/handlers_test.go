package audithttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/fieldforce/fieldforce/internal/audit"
	"github.com/fieldforce/fieldforce/internal/rbac"
	"github.com/fieldforce/fieldforce/internal/shared"
)

type stubQueryService struct {
	page        audit.Page
	err         error
	lastFilters audit.Filters
	calls       int
}

func (s *stubQueryService) Query(ctx context.Context, filters audit.Filters) (audit.Page, error) {
	s.calls++
	s.lastFilters = filters
	return s.page, s.err
}

type stubRecorder struct {
	entries []audit.Entry
	drop    bool
}

func (s *stubRecorder) Log(ctx context.Context, entry audit.Entry) *audit.Entry {
	if s.drop {
		return nil
	}
	s.entries = append(s.entries, entry)
	return &entry
}

func newTestRouter(service QueryService, recorder Recorder) http.Handler {
	return newTestRouterWithEffects(service, recorder, nil)
}

func newTestRouterWithEffects(service QueryService, recorder Recorder, onFailure func(string)) http.Handler {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := NewHandler(logger, service, recorder, shared.SideEffects{Logger: logger, OnFailure: onFailure})
	r := chi.NewRouter()
	r.Route("/api", h.MountRoutes)
	return r
}

func doRequest(t *testing.T, router http.Handler, sess *shared.Session, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if sess != nil {
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestAuditRequiresSession(t *testing.T) {
	service := &stubQueryService{}
	rr := doRequest(t, newTestRouter(service, nil), nil, "/api/audit")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), `"error"`)
	require.Zero(t, service.calls)
}

func TestAuditRequiresPermission(t *testing.T) {
	service := &stubQueryService{}
	rr := doRequest(t, newTestRouter(service, nil), &shared.Session{UserID: "u", Role: rbac.RoleBrandAgent}, "/api/audit")
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Zero(t, service.calls)
}

func TestAuditParsesFilters(t *testing.T) {
	created := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	service := &stubQueryService{page: audit.Page{
		Logs:       []audit.Entry{{ID: "e1", Action: "location.approve", Resource: "locations", ResourceID: "L1", CreatedAt: created}},
		Pagination: shared.NewPagination(1, 10, 0),
	}}
	recorder := &stubRecorder{}
	sess := &shared.Session{UserID: "admin", Role: rbac.RoleInternalAdmin}
	rr := doRequest(t, newTestRouter(service, recorder), sess,
		"/api/audit?resource=locations&action=location.approve&userId=u1&organizationId=o1&resourceId=L1&startDate=2024-03-01&endDate=2024-03-10&limit=10&offset=0")
	require.Equal(t, http.StatusOK, rr.Code)

	f := service.lastFilters
	require.Equal(t, "locations", f.Resource)
	require.Equal(t, "location.approve", f.Action)
	require.Equal(t, "u1", f.UserID)
	require.Equal(t, "o1", f.OrganizationID)
	require.Equal(t, "L1", f.ResourceID)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), f.StartDate)
	require.True(t, f.EndDate.After(created))
	require.Equal(t, 10, f.Limit)

	var body struct {
		Logs       []audit.Entry     `json:"logs"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Logs, 1)
	require.Equal(t, 1, body.Pagination.Total)

	require.Len(t, recorder.entries, 1)
	require.Equal(t, "audit.read", recorder.entries[0].Action)
	require.Equal(t, "admin", recorder.entries[0].UserID)
}

func TestAuditPinsClientToOwnOrganization(t *testing.T) {
	service := &stubQueryService{}
	sess := &shared.Session{UserID: "c", Role: rbac.RoleClientManager, OrganizationID: "org-a"}
	router := newTestRouter(service, nil)

	rr := doRequest(t, router, sess, "/api/audit")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "org-a", service.lastFilters.OrganizationID)

	rr = doRequest(t, router, sess, "/api/audit?organizationId=org-b")
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestAuditClientWithoutOrganizationSeesNothing(t *testing.T) {
	service := &stubQueryService{page: audit.Page{Logs: []audit.Entry{{ID: "e1", Action: "booking.approve"}}}}
	sess := &shared.Session{UserID: "u", Role: rbac.RoleClientManager}

	rr := doRequest(t, newTestRouter(service, nil), sess, "/api/audit?limit=20")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Zero(t, service.calls)

	var body struct {
		Logs       []audit.Entry     `json:"logs"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotNil(t, body.Logs)
	require.Empty(t, body.Logs)
	require.Equal(t, 0, body.Pagination.Total)
	require.Equal(t, 20, body.Pagination.Limit)
	require.False(t, body.Pagination.HasMore)
}

func TestAuditReadReportsDroppedEntry(t *testing.T) {
	var failed []string
	recorder := &stubRecorder{drop: true}
	router := newTestRouterWithEffects(&stubQueryService{}, recorder, func(name string) { failed = append(failed, name) })

	rr := doRequest(t, router, &shared.Session{UserID: "a", Role: rbac.RoleSuperAdmin}, "/api/audit")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, []string{"audit.read"}, failed)
}

func TestAuditRejectsBadFilters(t *testing.T) {
	sess := &shared.Session{UserID: "admin", Role: rbac.RoleSuperAdmin}
	router := newTestRouter(&stubQueryService{}, nil)
	for _, target := range []string{
		"/api/audit?startDate=yesterday",
		"/api/audit?endDate=03/10/2024",
		"/api/audit?limit=-1",
		"/api/audit?offset=abc",
		"/api/audit?startDate=2024-03-10&endDate=2024-03-01",
	} {
		rr := doRequest(t, router, sess, target)
		require.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestAuditHidesStoreErrors(t *testing.T) {
	service := &stubQueryService{err: errors.New("pq: relation audit_logs does not exist")}
	rr := doRequest(t, newTestRouter(service, nil), &shared.Session{UserID: "a", Role: rbac.RoleSuperAdmin}, "/api/audit")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "relation")
}

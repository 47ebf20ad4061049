package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fieldforce/fieldforce/internal/audit"
	"github.com/fieldforce/fieldforce/internal/auth"
	"github.com/fieldforce/fieldforce/internal/bookings"
	"github.com/fieldforce/fieldforce/internal/events"
	"github.com/fieldforce/fieldforce/internal/kits"
	"github.com/fieldforce/fieldforce/internal/locations"
	"github.com/fieldforce/fieldforce/internal/observability"
	"github.com/fieldforce/fieldforce/internal/organizations"
	"github.com/fieldforce/fieldforce/internal/rbac"
	"github.com/fieldforce/fieldforce/internal/users"
)

const (
	internalOrg = "11111111-1111-1111-1111-111111111111"
	clientOrg   = "22222222-2222-2222-2222-222222222222"
)

type testAPI struct {
	handler http.Handler
	tokens  *auth.TokenManager
	users   *users.MemoryStore
	audit   *audit.MemoryStore
	bus     *events.MemoryBus
}

func newTestAPI(t *testing.T, mutate func(*Config, *Deps)) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &Config{
		AppEnv:             "test",
		AppRequestTimeout:  5 * time.Second,
		SessionCookie:      "fieldforce_session",
		CacheTTL:           time.Minute,
		RateLimitPerMinute: 1000,
	}
	tokens, err := auth.NewTokenManager("router-test-secret", "fieldforce", time.Hour)
	require.NoError(t, err)

	hash, err := users.HashPassword("correct horse")
	require.NoError(t, err)
	userStore := users.NewMemoryStore(
		users.User{ID: "u-admin", Email: "admin@example.com", Role: rbac.RoleInternalAdmin, OrganizationID: internalOrg, PasswordHash: hash, Active: true},
		users.User{ID: "u-client", Email: "client@example.com", Role: rbac.RoleClientManager, OrganizationID: clientOrg, PasswordHash: hash, Active: true},
	)
	auditStore := audit.NewMemoryStore()
	bus := events.NewMemoryBus(logger, nil)

	deps := Deps{
		Logger: logger,
		Config: cfg,
		Stores: Stores{
			Users: userStore,
			Organizations: organizations.NewMemoryStore(
				organizations.Organization{ID: internalOrg, Name: "Fieldforce", Slug: "fieldforce", Kind: organizations.KindInternal, Active: true},
				organizations.Organization{ID: clientOrg, Name: "Green Leaf", Slug: "green-leaf", Kind: organizations.KindClient, Active: true},
			),
			Locations: locations.NewMemoryStore(),
			Bookings:  bookings.NewMemoryStore(),
			Kits:      kits.NewMemoryStore(),
			Audit:     auditStore,
		},
		Bus:    bus,
		Tokens: tokens,
	}
	if mutate != nil {
		mutate(cfg, &deps)
	}
	api, err := NewAPI(deps)
	require.NoError(t, err)
	return &testAPI{handler: api.Handler, tokens: tokens, users: userStore, audit: auditStore, bus: bus}
}

func (a *testAPI) token(t *testing.T, userID string) string {
	t.Helper()
	u, err := a.users.Get(context.Background(), userID)
	require.NoError(t, err)
	raw, _, err := a.tokens.Issue(u)
	require.NoError(t, err)
	return raw
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.7:5000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthAndSecurityHeaders(t *testing.T) {
	api := newTestAPI(t, nil)
	rec := api.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))

	rec = api.do(t, http.MethodGet, "/jobs/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRouteUsesErrorShape(t *testing.T) {
	api := newTestAPI(t, nil)
	rec := api.do(t, http.MethodGet, "/api/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", decode(t, rec)["code"])
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	api := newTestAPI(t, nil)
	for _, path := range []string{"/api/bookings", "/api/locations", "/api/organizations", "/api/users", "/api/audit", "/api/kits/templates"} {
		rec := api.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := api.do(t, http.MethodGet, "/api/bookings", "not-a-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginIssuesUsableToken(t *testing.T) {
	api := newTestAPI(t, nil)
	rec := api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "admin@example.com", "password": "correct horse"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := decode(t, rec)["token"].(string)
	require.NotEmpty(t, token)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "fieldforce_session" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	require.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(cookie)
	sessRec := httptest.NewRecorder()
	api.handler.ServeHTTP(sessRec, req)
	require.Equal(t, http.StatusOK, sessRec.Code)
	require.Contains(t, sessRec.Body.String(), "u-admin")

	rec = api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "admin@example.com", "password": "wrong password"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApprovalWorkflowEndToEnd(t *testing.T) {
	api := newTestAPI(t, nil)
	var published []string
	api.bus.Subscribe(events.All, func(ctx context.Context, evt events.Event) error {
		published = append(published, evt.Type)
		return nil
	})
	client := api.token(t, "u-client")
	admin := api.token(t, "u-admin")

	rec := api.do(t, http.MethodPost, "/api/locations", client, map[string]any{
		"name": "Green Leaf Downtown", "address1": "1 Main St", "city": "Denver", "stateId": "co",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	locationID := decode(t, rec)["location"].(map[string]any)["id"].(string)

	rec = api.do(t, http.MethodPost, "/api/admin/locations/"+locationID+"/approve", client, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/admin/locations/"+locationID+"/approve", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "Location approved successfully", decode(t, rec)["message"])

	rec = api.do(t, http.MethodPost, "/api/admin/locations/"+locationID+"/approve", admin, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/locations/approved?search=green", client, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode(t, rec)["locations"], 1)

	starts := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	rec = api.do(t, http.MethodPost, "/api/bookings", client, map[string]any{
		"locationId": locationID, "title": "Saturday demo",
		"startsAt": starts, "endsAt": starts.Add(4 * time.Hour), "submit": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	booking := decode(t, rec)["booking"].(map[string]any)
	bookingID := booking["id"].(string)
	require.Equal(t, "pending", booking["status"])
	require.Equal(t, clientOrg, booking["organizationId"])

	rec = api.do(t, http.MethodPost, "/api/bookings/"+bookingID+"/approve", client, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/bookings/"+bookingID+"/approve", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, true, decode(t, rec)["success"])

	rec = api.do(t, http.MethodPost, "/api/bookings/"+bookingID+"/reject", admin, map[string]string{"reason": "double booked"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "Cannot reject an approved booking", body["error"])
	require.Equal(t, "INVALID_STATE_TRANSITION", body["code"])

	rec = api.do(t, http.MethodGet, "/api/bookings/"+bookingID, client, nil)
	require.Equal(t, "approved", decode(t, rec)["booking"].(map[string]any)["status"])

	require.Contains(t, published, events.LocationApproved)
	require.Contains(t, published, events.BookingApproved)
	require.NotContains(t, published, events.BookingRejected)

	rec = api.do(t, http.MethodGet, "/api/audit?action=booking.approve", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	logs := decode(t, rec)["logs"].([]any)
	require.Len(t, logs, 1)
}

func TestFeatureSettingsGateClientLocations(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	api := newTestAPI(t, func(cfg *Config, d *Deps) { d.Redis = client })

	admin := api.token(t, "u-admin")
	clientTok := api.token(t, "u-client")
	loc := map[string]any{"name": "Corner Shop", "address1": "2 Side St", "city": "Boulder", "stateId": "CO"}

	rec := api.do(t, http.MethodPost, "/api/locations", clientTok, loc)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPut, "/api/organizations/"+clientOrg+"/feature-settings", admin, map[string]any{
		"features": map[string]bool{rbac.FeatureClientsCanCreateLocations: false},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/locations", clientTok, loc)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	metrics := observability.NewMetrics()
	api := newTestAPI(t, func(cfg *Config, d *Deps) { d.Metrics = metrics })
	api.do(t, http.MethodGet, "/healthz", "", nil)

	rec := api.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `fieldforce_http_requests_total{code="200",route="/healthz"}`), rec.Body.String())
}

func TestGlobalRateLimit(t *testing.T) {
	api := newTestAPI(t, func(cfg *Config, d *Deps) { cfg.RateLimitPerMinute = 2 })
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/healthz", "", nil).Code)
	}
	rec := api.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "RATE_LIMITED", decode(t, rec)["code"])
}

func TestNewAPIRequiresTokens(t *testing.T) {
	_, err := NewAPI(Deps{Config: &Config{}})
	require.Error(t, err)
}

package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	audithttp "github.com/fieldforce/fieldforce/internal/audit/http"
	"github.com/fieldforce/fieldforce/internal/auth"
	"github.com/fieldforce/fieldforce/internal/bookings"
	"github.com/fieldforce/fieldforce/internal/kits"
	"github.com/fieldforce/fieldforce/internal/locations"
	"github.com/fieldforce/fieldforce/internal/observability"
	"github.com/fieldforce/fieldforce/internal/organizations"
	"github.com/fieldforce/fieldforce/internal/platform/httpx"
	"github.com/fieldforce/fieldforce/internal/rbac"
	"github.com/fieldforce/fieldforce/internal/users"
	"github.com/fieldforce/fieldforce/jobs"
)

// RouterParams groups dependencies for building the HTTP router. Nil handlers are not mounted.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Tokens  *auth.TokenManager
	Metrics *observability.Metrics

	AuthHandler          *auth.Handler
	LocationsHandler     *locations.Handler
	BookingsHandler      *bookings.Handler
	KitsHandler          *kits.Handler
	OrganizationsHandler *organizations.Handler
	UsersHandler         *users.Handler
	PermissionsHandler   *rbac.PermissionsHandler
	AuditHandler         *audithttp.Handler
	JobHandler           *jobs.Handler
}

// NewRouter constructs the chi.Router with fieldforce defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Tokens:  params.Tokens,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.LocationsHandler != nil {
			r.Route("/locations", params.LocationsHandler.MountRoutes)
			r.Route("/admin/locations", params.LocationsHandler.MountAdminRoutes)
		}
		if params.BookingsHandler != nil {
			r.Route("/bookings", params.BookingsHandler.MountRoutes)
		}
		if params.KitsHandler != nil {
			r.Route("/kits", params.KitsHandler.MountRoutes)
		}
		if params.OrganizationsHandler != nil {
			r.Route("/organizations", params.OrganizationsHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
	})
	return r
}

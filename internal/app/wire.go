package app

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/fieldforce/fieldforce/internal/audit"
	audithttp "github.com/fieldforce/fieldforce/internal/audit/http"
	"github.com/fieldforce/fieldforce/internal/auth"
	"github.com/fieldforce/fieldforce/internal/bookings"
	"github.com/fieldforce/fieldforce/internal/events"
	"github.com/fieldforce/fieldforce/internal/kits"
	"github.com/fieldforce/fieldforce/internal/locations"
	"github.com/fieldforce/fieldforce/internal/observability"
	"github.com/fieldforce/fieldforce/internal/organizations"
	"github.com/fieldforce/fieldforce/internal/platform/cache"
	"github.com/fieldforce/fieldforce/internal/rbac"
	"github.com/fieldforce/fieldforce/internal/shared"
	"github.com/fieldforce/fieldforce/internal/users"
	"github.com/fieldforce/fieldforce/jobs"
)

// Cache namespaces shared by every API process.
const (
	LocationsCacheNamespace = "fieldforce:locations"
	FeaturesCacheNamespace  = "fieldforce:features"
)

// Stores groups the persistence backends of each module.
type Stores struct {
	Users         users.Store
	Organizations organizations.Store
	Locations     locations.Store
	Bookings      bookings.Store
	Kits          kits.Store
	Audit         audit.Store
}

// Deps collects everything NewAPI needs. Redis, Geocoder, Metrics and Inspector are optional.
type Deps struct {
	Logger    *slog.Logger
	Config    *Config
	Stores    Stores
	Bus       events.Bus
	Redis     *redis.Client
	Tokens    *auth.TokenManager
	Geocoder  locations.Geocoder
	Metrics   *observability.Metrics
	Inspector jobs.QueueInspector
}

// API is the wired HTTP surface plus the caches callers keep warm.
type API struct {
	Handler        http.Handler
	LocationsCache *cache.Versioned
	FeaturesCache  *cache.Versioned
}

// NewAPI builds the services and handlers over deps.
func NewAPI(d Deps) (*API, error) {
	if d.Config == nil || d.Tokens == nil {
		return nil, errors.New("app: config and token manager are required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Bus == nil {
		d.Bus = events.Nop{}
	}
	logger := d.Logger
	effects := shared.SideEffects{Logger: logger}
	var transitions interface{ Transition(string, string, bool) }
	if d.Metrics != nil {
		effects.OnFailure = d.Metrics.SideEffectFailed
		transitions = d.Metrics
	}
	rbacMiddleware := rbac.Middleware{Principal: shared.PrincipalFromContext, Logger: logger}

	auditLogger := audit.NewLogger(d.Stores.Audit, logger)
	locationsCache := cache.NewVersioned(d.Redis, LocationsCacheNamespace, d.Config.CacheTTL)
	featuresCache := cache.NewVersioned(d.Redis, FeaturesCacheNamespace, d.Config.CacheTTL)

	orgService := organizations.NewService(d.Stores.Organizations, auditLogger, featuresCache, effects, logger)
	locationService := locations.NewService(locations.Params{
		Store:    d.Stores.Locations,
		Bus:      d.Bus,
		Audit:    auditLogger,
		Features: orgService,
		Geocoder: d.Geocoder,
		Cache:    locationsCache,
		Metrics:  transitions,
		Effects:  effects,
		Logger:   logger,
	})
	bookingService := bookings.NewService(bookings.Params{
		Store:     d.Stores.Bookings,
		Locations: d.Stores.Locations,
		Bus:       d.Bus,
		Audit:     auditLogger,
		Features:  orgService,
		Metrics:   transitions,
		Effects:   effects,
		Logger:    logger,
	})
	kitService := kits.NewService(kits.Params{
		Store:    d.Stores.Kits,
		Bookings: d.Stores.Bookings,
		Bus:      d.Bus,
		Audit:    auditLogger,
		Features: orgService,
		Effects:  effects,
		Logger:   logger,
	})
	userService := users.NewService(d.Stores.Users)

	authService := auth.NewService(d.Stores.Users, d.Tokens)
	cookie := auth.CookieConfig{Name: d.Config.SessionCookie, Secure: d.Config.IsProduction()}

	handler := NewRouter(RouterParams{
		Logger:               logger,
		Config:               d.Config,
		Tokens:               d.Tokens,
		Metrics:              d.Metrics,
		AuthHandler:          auth.NewHandler(logger, authService, cookie, auditLogger, effects),
		LocationsHandler:     locations.NewHandler(logger, locationService, rbacMiddleware),
		BookingsHandler:      bookings.NewHandler(logger, bookingService, rbacMiddleware),
		KitsHandler:          kits.NewHandler(logger, kitService, rbacMiddleware),
		OrganizationsHandler: organizations.NewHandler(logger, orgService, rbacMiddleware),
		UsersHandler:         users.NewHandler(logger, userService, rbacMiddleware),
		PermissionsHandler:   rbac.NewPermissionsHandler(rbacMiddleware),
		AuditHandler:         audithttp.NewHandler(logger, audit.NewService(d.Stores.Audit), auditLogger, effects),
		JobHandler:           jobs.NewHandler(d.Inspector, logger),
	})
	return &API{Handler: handler, LocationsCache: locationsCache, FeaturesCache: featuresCache}, nil
}

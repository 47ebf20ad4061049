package organizations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/fieldforce/fieldforce/internal/audit"
	"github.com/fieldforce/fieldforce/internal/platform/cache"
	"github.com/fieldforce/fieldforce/internal/platform/httpx"
	"github.com/fieldforce/fieldforce/internal/rbac"
	"github.com/fieldforce/fieldforce/internal/shared"
)

// AuditRecorder writes audit entries.
type AuditRecorder interface {
	Log(ctx context.Context, entry audit.Entry) *audit.Entry
}

// Service exposes organizations and resolves their feature flags.
type Service struct {
	store   Store
	audit   AuditRecorder
	cache   *cache.Versioned
	effects shared.SideEffects
	logger  *slog.Logger
}

// NewService wires a Service. recorder and features cache may be nil.
func NewService(store Store, recorder AuditRecorder, features *cache.Versioned, effects shared.SideEffects, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if effects.Logger == nil {
		effects.Logger = logger
	}
	return &Service{store: store, audit: recorder, cache: features, effects: effects, logger: logger}
}

// Features returns the merged flags for orgID. Lookups are cached until the next settings write.
func (s *Service) Features(ctx context.Context, orgID string) (rbac.Features, error) {
	key, err := s.cache.BuildKey(ctx, "features", orgID)
	if err != nil {
		s.logger.Warn("feature cache unavailable", slog.Any("error", err))
		return s.loadFeatures(ctx, orgID)
	}
	var (
		out     rbac.Features
		loadErr error
	)
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		f, err := s.loadFeatures(ctx, orgID)
		loadErr = err
		return f, err
	})
	if loadErr != nil {
		return nil, loadErr
	}
	if err != nil {
		s.logger.Warn("feature cache read failed", slog.Any("error", err))
		return s.loadFeatures(ctx, orgID)
	}
	return out, nil
}

func (s *Service) loadFeatures(ctx context.Context, orgID string) (rbac.Features, error) {
	overrides, err := s.store.FeatureOverrides(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("organizations: features: %w", err)
	}
	return rbac.MergeFeatures(overrides), nil
}

// List returns organizations visible to actor.
func (s *Service) List(ctx context.Context, actor *shared.Session) ([]Organization, error) {
	if err := authorize(actor, rbac.PermOrganizationsRead); err != nil {
		return nil, err
	}
	if !actor.SeesAllOrganizations() {
		if actor.OrganizationID == "" {
			return []Organization{}, nil
		}
		o, err := s.store.Get(ctx, actor.OrganizationID)
		if errors.Is(err, httpx.ErrNotFound) {
			return []Organization{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []Organization{o}, nil
	}
	out, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Organization{}
	}
	return out, nil
}

// Get returns one organization. Other tenants read as not found for non-internal actors.
func (s *Service) Get(ctx context.Context, actor *shared.Session, id string) (Organization, error) {
	if err := authorize(actor, rbac.PermOrganizationsRead); err != nil {
		return Organization{}, err
	}
	if !actor.SeesAllOrganizations() && !actor.SameOrganization(id) {
		return Organization{}, notFound()
	}
	o, err := s.store.Get(ctx, id)
	if errors.Is(err, httpx.ErrNotFound) {
		return Organization{}, notFound()
	}
	return o, err
}

// GetFeatureSettings returns the merged flags alongside the defaults.
func (s *Service) GetFeatureSettings(ctx context.Context, actor *shared.Session, id string) (FeatureSettings, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return FeatureSettings{}, err
	}
	features, err := s.loadFeatures(ctx, id)
	if err != nil {
		return FeatureSettings{}, err
	}
	return FeatureSettings{OrganizationID: id, Features: features, Defaults: rbac.DefaultFeatures()}, nil
}

// UpdateFeatureSettings stores overrides. Unknown keys are rejected.
func (s *Service) UpdateFeatureSettings(ctx context.Context, actor *shared.Session, id string, values map[string]bool) (FeatureSettings, error) {
	if err := authorize(actor, rbac.PermSettingsUpdate); err != nil {
		return FeatureSettings{}, err
	}
	if len(values) == 0 {
		return FeatureSettings{}, httpx.Errorf(httpx.ErrValidation, "features is required")
	}
	var unknown []string
	for k := range values {
		if !rbac.IsKnownFeature(k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return FeatureSettings{}, httpx.Errorf(httpx.ErrValidation, "Unknown feature settings: %s", strings.Join(unknown, ", "))
	}
	if _, err := s.Get(ctx, actor, id); err != nil {
		return FeatureSettings{}, err
	}
	if err := s.store.SaveFeatureOverrides(ctx, id, values, actor.UserID); err != nil {
		return FeatureSettings{}, err
	}
	s.effects.Run(ctx, "cache", s.cache.Bump)
	if s.audit != nil {
		details := make(map[string]any, len(values))
		for k, v := range values {
			details[k] = v
		}
		s.effects.Run(ctx, "audit", func(ctx context.Context) error {
			if s.audit.Log(shared.WithActor(ctx, actor), audit.Entry{
				Action:     "organization.feature_settings.update",
				Resource:   string(rbac.ResourceSettings),
				ResourceID: id,
				Details:    map[string]any{"features": details},
			}.By(actor)) == nil {
				return errors.New("audit entry not stored")
			}
			return nil
		})
	}
	return s.GetFeatureSettings(ctx, actor, id)
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Create registers an organization. Used by seeding and operator tooling.
func (s *Service) Create(ctx context.Context, in CreateInput) (Organization, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	if err := httpx.Validate(in); err != nil {
		return Organization{}, err
	}
	if !in.Kind.Valid() {
		return Organization{}, httpx.Errorf(httpx.ErrValidation, "kind must be internal, brand or client")
	}
	if !slugPattern.MatchString(in.Slug) {
		return Organization{}, httpx.Errorf(httpx.ErrValidation, "slug may only contain lowercase letters, digits and dashes")
	}
	return s.store.Create(ctx, Organization{ID: in.ID, Name: in.Name, Slug: in.Slug, Kind: in.Kind, Active: true})
}

func authorize(actor *shared.Session, perm string) error {
	if actor == nil {
		return httpx.Errorf(httpx.ErrUnauthorized, "Authentication required")
	}
	if !actor.Can(perm) {
		return httpx.Errorf(httpx.ErrForbidden, "Insufficient permissions")
	}
	return nil
}

func notFound() error { return httpx.Errorf(httpx.ErrNotFound, "Organization not found") }

package locations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fieldforce/fieldforce/internal/audit"
	"github.com/fieldforce/fieldforce/internal/events"
	"github.com/fieldforce/fieldforce/internal/platform/cache"
	"github.com/fieldforce/fieldforce/internal/platform/httpx"
	"github.com/fieldforce/fieldforce/internal/rbac"
	"github.com/fieldforce/fieldforce/internal/shared"
)

// AuditRecorder writes audit entries; audit.Logger satisfies it.
type AuditRecorder interface {
	Log(ctx context.Context, entry audit.Entry) *audit.Entry
}

// FeatureSource resolves organization feature flags.
type FeatureSource interface {
	Features(ctx context.Context, organizationID string) (rbac.Features, error)
}

// TransitionRecorder counts workflow transitions.
type TransitionRecorder interface {
	Transition(entity, action string, ok bool)
}

// Params groups Service dependencies. Only Store is required.
type Params struct {
	Store    Store
	Bus      events.Bus
	Audit    AuditRecorder
	Features FeatureSource
	Geocoder Geocoder
	Cache    *cache.Versioned
	Metrics  TransitionRecorder
	Effects  shared.SideEffects
	Logger   *slog.Logger
}

// Service implements the location workflow.
type Service struct {
	store    Store
	bus      events.Bus
	audit    AuditRecorder
	features FeatureSource
	geocoder Geocoder
	cache    *cache.Versioned
	metrics  TransitionRecorder
	effects  shared.SideEffects
	logger   *slog.Logger
	now      func() time.Time
	flights  singleflight.Group
}

// NewService wires a Service.
func NewService(p Params) *Service {
	if p.Bus == nil {
		p.Bus = events.Nop{}
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Effects.Logger == nil {
		p.Effects.Logger = p.Logger
	}
	return &Service{
		store:    p.Store,
		bus:      p.Bus,
		audit:    p.Audit,
		features: p.Features,
		geocoder: p.Geocoder,
		cache:    p.Cache,
		metrics:  p.Metrics,
		effects:  p.Effects,
		logger:   p.Logger,
		now:      time.Now,
	}
}

var errPublishFailed = errors.New("event publish failed")

// Approve moves a pending location to approved.
func (s *Service) Approve(ctx context.Context, id string, actor *shared.Session) (Location, error) {
	if err := s.authorizeReview(ctx, actor, "approve"); err != nil {
		return Location{}, err
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return Location{}, err
	}
	if current.Status != StatusPending {
		s.count("approve", false)
		return Location{}, invalidTransition("approve", current.Status)
	}
	updated, err := s.decide(ctx, id, "approve", Decision{To: StatusApproved, ReviewerID: actor.UserID, At: s.now().UTC()})
	if err != nil {
		return Location{}, err
	}
	s.afterDecision(ctx, updated, events.LocationApproved, "location.approve", actor, "")
	return updated, nil
}

// Reject moves a pending location to rejected. reason is required.
func (s *Service) Reject(ctx context.Context, id string, actor *shared.Session, reason string) (Location, error) {
	if err := s.authorizeReview(ctx, actor, "reject"); err != nil {
		return Location{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Location{}, httpx.Errorf(httpx.ErrValidation, "Rejection reason is required")
	}
	if len(reason) > maxReasonLen {
		return Location{}, httpx.Errorf(httpx.ErrValidation, "Rejection reason must be at most %d characters", maxReasonLen)
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return Location{}, err
	}
	if current.Status != StatusPending {
		s.count("reject", false)
		return Location{}, invalidTransition("reject", current.Status)
	}
	updated, err := s.decide(ctx, id, "reject", Decision{To: StatusRejected, ReviewerID: actor.UserID, At: s.now().UTC(), Reason: reason})
	if err != nil {
		return Location{}, err
	}
	s.afterDecision(ctx, updated, events.LocationRejected, "location.reject", actor, reason)
	return updated, nil
}

func (s *Service) authorizeReview(ctx context.Context, actor *shared.Session, action string) error {
	if actor == nil {
		return httpx.Errorf(httpx.ErrUnauthorized, "Authentication required")
	}
	if !actor.Can(rbac.PermLocationsUpdate) {
		return httpx.Errorf(httpx.ErrForbidden, "Insufficient permissions to %s locations", action)
	}
	if actor.Role == rbac.RoleInternalFieldManager {
		features, err := s.featuresFor(ctx, actor.OrganizationID)
		if err != nil {
			return err
		}
		if !features.Enabled(rbac.FeatureFieldManagersApproveLocations) {
			return httpx.Errorf(httpx.ErrForbidden, "Field managers may not review locations in this organization")
		}
	}
	return nil
}

func (s *Service) load(ctx context.Context, id string) (Location, error) {
	loc, err := s.store.Get(ctx, id)
	if errors.Is(err, httpx.ErrNotFound) {
		return Location{}, httpx.Errorf(httpx.ErrNotFound, "Location not found")
	}
	return loc, err
}

// decide runs the conditional write. Losing a race reports the status the winner left behind.
func (s *Service) decide(ctx context.Context, id, action string, d Decision) (Location, error) {
	updated, err := s.store.Decide(ctx, id, d)
	if err == nil {
		s.count(action, true)
		return updated, nil
	}
	s.count(action, false)
	if !errors.Is(err, ErrNotPending) {
		return Location{}, err
	}
	current, rerr := s.load(ctx, id)
	if rerr != nil {
		return Location{}, rerr
	}
	return Location{}, invalidTransition(action, current.Status)
}

func invalidTransition(action string, status Status) error {
	switch {
	case action == "reject" && status == StatusApproved:
		return httpx.Errorf(httpx.ErrInvalidState, "Cannot reject an approved location")
	case status == StatusApproved:
		return httpx.Errorf(httpx.ErrInvalidState, "Location is already approved")
	case status == StatusRejected:
		return httpx.Errorf(httpx.ErrInvalidState, "Location is already rejected")
	default:
		return httpx.Errorf(httpx.ErrInvalidState, "Cannot %s a location with status %s", action, status)
	}
}

func (s *Service) afterDecision(ctx context.Context, loc Location, eventType, auditAction string, actor *shared.Session, reason string) {
	ctx = shared.WithActor(ctx, actor)
	s.effects.Run(ctx, "events", func(ctx context.Context) error {
		if !s.bus.Publish(ctx, eventType, decisionPayload(loc, actor.UserID, reason)) {
			return errPublishFailed
		}
		return nil
	})
	s.recordAudit(ctx, actor, audit.Entry{
		Action:     auditAction,
		Resource:   string(rbac.ResourceLocations),
		ResourceID: loc.ID,
		Details: map[string]any{
			"previousStatus": string(StatusPending),
			"newStatus":      string(loc.Status),
			"reason":         reason,
			"name":           loc.Name,
		},
	})
	s.effects.Run(ctx, "cache", s.cache.Bump)
}

func (s *Service) recordAudit(ctx context.Context, actor *shared.Session, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	entry = entry.By(actor)
	s.effects.Run(ctx, "audit", func(ctx context.Context) error {
		if s.audit.Log(ctx, entry) == nil {
			return fmt.Errorf("audit entry %s not stored", entry.Action)
		}
		return nil
	})
}

func decisionPayload(loc Location, reviewerID, reason string) events.LocationDecision {
	return events.LocationDecision{
		LocationID:    loc.ID,
		Name:          loc.Name,
		Status:        string(loc.Status),
		BrandID:       loc.BrandID,
		RequestedByID: loc.RequestedByID,
		ReviewerID:    reviewerID,
		Reason:        reason,
	}
}

func (s *Service) count(action string, ok bool) {
	if s.metrics != nil {
		s.metrics.Transition("location", action, ok)
	}
}

func (s *Service) featuresFor(ctx context.Context, orgID string) (rbac.Features, error) {
	if s.features == nil || orgID == "" {
		return rbac.DefaultFeatures(), nil
	}
	f, err := s.features.Features(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("locations: load features: %w", err)
	}
	return f, nil
}

const geocodeTimeout = 5 * time.Second

// Submit records a new pending location on behalf of actor.
func (s *Service) Submit(ctx context.Context, actor *shared.Session, in SubmitInput) (Location, error) {
	if actor == nil {
		return Location{}, httpx.Errorf(httpx.ErrUnauthorized, "Authentication required")
	}
	if !actor.Can(rbac.PermLocationsCreate) {
		return Location{}, httpx.Errorf(httpx.ErrForbidden, "Insufficient permissions to create locations")
	}
	if actor.Role.Client() {
		features, err := s.featuresFor(ctx, actor.OrganizationID)
		if err != nil {
			return Location{}, err
		}
		if !features.Enabled(rbac.FeatureClientsCanCreateLocations) {
			return Location{}, httpx.Errorf(httpx.ErrForbidden, "Location requests are disabled for your organization")
		}
		if in.BrandID == "" {
			in.BrandID = actor.OrganizationID
		}
		if !actor.SameOrganization(in.BrandID) {
			return Location{}, httpx.Errorf(httpx.ErrForbidden, "Cannot request locations for another organization")
		}
	}
	in = trimInput(in)
	if err := httpx.Validate(in); err != nil {
		return Location{}, err
	}

	loc := Location{
		Name:          in.Name,
		Address1:      in.Address1,
		Address2:      in.Address2,
		City:          in.City,
		StateID:       strings.ToUpper(in.StateID),
		PostalCode:    in.PostalCode,
		Country:       strings.ToUpper(in.Country),
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		BrandID:       in.BrandID,
		Status:        StatusPending,
		RequestedByID: actor.UserID,
	}
	if loc.Country == "" {
		loc.Country = "US"
	}
	loc.SearchText = shared.NormalizeSearch(loc.Name, loc.Address1, loc.City, loc.StateID, loc.PostalCode)
	s.geocode(ctx, &loc, in.address())

	created, err := s.store.Create(ctx, loc)
	if err != nil {
		return Location{}, err
	}
	ctx = shared.WithActor(ctx, actor)
	s.effects.Run(ctx, "events", func(ctx context.Context) error {
		if !s.bus.Publish(ctx, events.LocationApprovalRequested, decisionPayload(created, "", "")) {
			return errPublishFailed
		}
		return nil
	})
	s.recordAudit(ctx, actor, audit.Entry{
		Action:     "location.submit",
		Resource:   string(rbac.ResourceLocations),
		ResourceID: created.ID,
		Details:    map[string]any{"name": created.Name, "brandId": created.BrandID},
	})
	return created, nil
}

// geocode fills coordinates when the client did not send them. Failures leave them empty.
func (s *Service) geocode(ctx context.Context, loc *Location, address string) {
	if s.geocoder == nil || (loc.Latitude != nil && loc.Longitude != nil) {
		return
	}
	gctx, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()
	res, err := s.geocoder.Geocode(gctx, address)
	if err != nil {
		s.logger.Warn("geocode failed", slog.String("address", address), slog.Any("error", err))
		return
	}
	at := s.now().UTC()
	loc.Latitude, loc.Longitude = &res.Latitude, &res.Longitude
	loc.PlaceID, loc.FormattedAddress, loc.GeocodedAt = res.PlaceID, res.FormattedAddress, &at
}

func trimInput(in SubmitInput) SubmitInput {
	for _, f := range []*string{&in.Name, &in.Address1, &in.Address2, &in.City, &in.StateID, &in.PostalCode, &in.Country, &in.BrandID} {
		*f = strings.TrimSpace(*f)
	}
	return in
}

// Get returns one location. Non-internal actors only see approved locations and their own brand's.
func (s *Service) Get(ctx context.Context, actor *shared.Session, id string) (Location, error) {
	if err := authorizeRead(actor); err != nil {
		return Location{}, err
	}
	loc, err := s.load(ctx, id)
	if err != nil {
		return Location{}, err
	}
	if !actor.SeesAllOrganizations() && loc.Status != StatusApproved && !actor.SameOrganization(loc.BrandID) {
		return Location{}, httpx.Errorf(httpx.ErrNotFound, "Location not found")
	}
	return loc, nil
}

// List returns locations for review queues. Non-internal actors are limited to their brand unless
// they ask for approved locations.
func (s *Service) List(ctx context.Context, actor *shared.Session, filters ListFilters) ([]Location, error) {
	if err := authorizeRead(actor); err != nil {
		return nil, err
	}
	if !actor.SeesAllOrganizations() && filters.Status != StatusApproved {
		filters.BrandID = actor.OrganizationID
		if filters.BrandID == "" {
			return []Location{}, nil
		}
	}
	filters.Limit = shared.ClampLimit(filters.Limit, defaultListLimit, maxListLimit)
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	out, err := s.store.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Location{}
	}
	return out, nil
}

// ListApproved returns the approved catalogue. Results are cached per filter set and identical
// concurrent queries share one load.
func (s *Service) ListApproved(ctx context.Context, actor *shared.Session, filters ApprovedFilters) ([]Location, error) {
	if err := authorizeRead(actor); err != nil {
		return nil, err
	}
	filters.ExcludeBrandID = strings.TrimSpace(filters.ExcludeBrandID)
	filters.StateID = strings.ToUpper(strings.TrimSpace(filters.StateID))
	filters.Search = shared.NormalizeSearch(filters.Search)

	key, err := s.cache.BuildKey(ctx, "approved", filters.ExcludeBrandID, filters.StateID, filters.Search)
	if err != nil {
		s.logger.Warn("approved locations cache unavailable", slog.Any("error", err))
		return s.loadApproved(ctx, filters)
	}

	ch := s.flights.DoChan(key, func() (any, error) {
		var out []Location
		err := s.cache.FetchJSON(context.WithoutCancel(ctx), key, &out, func(ctx context.Context) (any, error) {
			return s.loadApproved(ctx, filters)
		})
		if err != nil {
			s.logger.Warn("approved locations cache read failed", slog.Any("error", err))
			return s.loadApproved(context.WithoutCancel(ctx), filters)
		}
		return out, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		rows := res.Val.([]Location)
		out := make([]Location, len(rows))
		copy(out, rows)
		return out, nil
	}
}

func (s *Service) loadApproved(ctx context.Context, filters ApprovedFilters) ([]Location, error) {
	out, err := s.store.ListApproved(ctx, filters)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Location{}
	}
	return out, nil
}

func authorizeRead(actor *shared.Session) error {
	if actor == nil {
		return httpx.Errorf(httpx.ErrUnauthorized, "Authentication required")
	}
	if !actor.Can(rbac.PermLocationsRead) {
		return httpx.Errorf(httpx.ErrForbidden, "Insufficient permissions to view locations")
	}
	return nil
}

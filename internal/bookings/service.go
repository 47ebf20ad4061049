package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fieldforce/fieldforce/internal/audit"
	"github.com/fieldforce/fieldforce/internal/events"
	"github.com/fieldforce/fieldforce/internal/locations"
	"github.com/fieldforce/fieldforce/internal/platform/httpx"
	"github.com/fieldforce/fieldforce/internal/rbac"
	"github.com/fieldforce/fieldforce/internal/shared"
)

// AuditRecorder writes audit entries.
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

// LocationLookup reads locations; locations.Store satisfies it.
type LocationLookup interface {
	Get(ctx context.Context, id string) (locations.Location, error)
}

// Params groups Service dependencies. Store and Locations are required.
type Params struct {
	Store     Store
	Locations LocationLookup
	Bus       events.Bus
	Audit     AuditRecorder
	Features  FeatureSource
	Metrics   TransitionRecorder
	Effects   shared.SideEffects
	Logger    *slog.Logger
}

// Service implements the booking lifecycle.
type Service struct {
	store     Store
	locations LocationLookup
	bus       events.Bus
	audit     AuditRecorder
	features  FeatureSource
	metrics   TransitionRecorder
	effects   shared.SideEffects
	logger    *slog.Logger
	now       func() time.Time
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
		store:     p.Store,
		locations: p.Locations,
		bus:       p.Bus,
		audit:     p.Audit,
		features:  p.Features,
		metrics:   p.Metrics,
		effects:   p.Effects,
		logger:    p.Logger,
		now:       time.Now,
	}
}

var errPublishFailed = errors.New("event publish failed")

// Create records a draft booking, or submits it straight away when in.Submit is set.
func (s *Service) Create(ctx context.Context, actor *shared.Session, in CreateInput) (Booking, error) {
	if actor == nil {
		return Booking{}, unauthenticated()
	}
	if !actor.Can(rbac.PermBookingsCreate) {
		return Booking{}, httpx.Errorf(httpx.ErrForbidden, "Insufficient permissions to create bookings")
	}
	in.OrganizationID = strings.TrimSpace(in.OrganizationID)
	in.LocationID = strings.TrimSpace(in.LocationID)
	in.Title = strings.TrimSpace(in.Title)
	in.Notes = strings.TrimSpace(in.Notes)
	if !actor.SeesAllOrganizations() {
		if in.OrganizationID == "" {
			in.OrganizationID = actor.OrganizationID
		}
		if !actor.SameOrganization(in.OrganizationID) {
			return Booking{}, httpx.Errorf(httpx.ErrForbidden, "Cannot create bookings for another organization")
		}
	}
	if in.OrganizationID == "" {
		return Booking{}, httpx.Errorf(httpx.ErrValidation, "organizationId is required")
	}
	if err := httpx.Validate(in); err != nil {
		return Booking{}, err
	}
	if !in.EndsAt.After(in.StartsAt) {
		return Booking{}, httpx.Errorf(httpx.ErrValidation, "endsAt must be after startsAt")
	}
	loc, err := s.locations.Get(ctx, in.LocationID)
	if errors.Is(err, httpx.ErrNotFound) {
		return Booking{}, httpx.Errorf(httpx.ErrValidation, "Location not found")
	}
	if err != nil {
		return Booking{}, fmt.Errorf("bookings: load location: %w", err)
	}
	if loc.Status != locations.StatusApproved {
		return Booking{}, httpx.Errorf(httpx.ErrValidation, "Bookings require an approved location")
	}

	b := Booking{
		OrganizationID: in.OrganizationID,
		LocationID:     in.LocationID,
		Title:          in.Title,
		Notes:          in.Notes,
		StartsAt:       in.StartsAt.UTC(),
		EndsAt:         in.EndsAt.UTC(),
		Status:         StatusDraft,
		RequestedByID:  actor.UserID,
	}
	eventType := ""
	if in.Submit {
		required, err := s.approvalRequired(ctx, b.OrganizationID)
		if err != nil {
			return Booking{}, err
		}
		b.Status, eventType = StatusPending, events.BookingSubmitted
		if !required {
			at := s.now().UTC()
			b.Status, b.ApprovedByID, b.ApprovedAt = StatusApproved, actor.UserID, &at
			eventType = events.BookingApproved
		}
	}
	created, err := s.store.Create(ctx, b)
	if err != nil {
		return Booking{}, err
	}
	if eventType != "" {
		s.publish(ctx, actor, eventType, payload(created, StatusDraft, actor.UserID, ""))
	}
	s.recordAudit(ctx, actor, audit.Entry{
		Action:     "booking.create",
		Resource:   string(rbac.ResourceBookings),
		ResourceID: created.ID,
		Details: map[string]any{
			"title":      created.Title,
			"locationId": created.LocationID,
			"status":     string(created.Status),
		},
	})
	return created, nil
}

// Submit moves a draft into the approval queue. Organizations that do not require booking
// approval have the booking approved immediately.
func (s *Service) Submit(ctx context.Context, id string, actor *shared.Session) (Booking, error) {
	current, err := s.loadForUpdate(ctx, id, actor, "submit")
	if err != nil {
		return Booking{}, err
	}
	required, err := s.approvalRequired(ctx, current.OrganizationID)
	if err != nil {
		return Booking{}, err
	}
	change := Change{To: StatusPending, ActorID: actor.UserID, At: s.now().UTC()}
	eventType := events.BookingSubmitted
	if !required {
		change.To, eventType = StatusApproved, events.BookingApproved
	}
	return s.transition(ctx, actor, current, "submit", change, eventType)
}

// Approve moves a pending booking to approved.
func (s *Service) Approve(ctx context.Context, id string, actor *shared.Session) (Booking, error) {
	if err := authorizeReview(actor, rbac.PermBookingsApprove, "approve"); err != nil {
		return Booking{}, err
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	change := Change{To: StatusApproved, ActorID: actor.UserID, At: s.now().UTC()}
	return s.transition(ctx, actor, current, "approve", change, events.BookingApproved)
}

// Reject moves a draft or pending booking to rejected. reason is required.
func (s *Service) Reject(ctx context.Context, id string, actor *shared.Session, reason string) (Booking, error) {
	if err := authorizeReview(actor, rbac.PermBookingsReject, "reject"); err != nil {
		return Booking{}, err
	}
	reason, err := cleanReason(reason, true)
	if err != nil {
		return Booking{}, err
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	change := Change{To: StatusRejected, ActorID: actor.UserID, At: s.now().UTC(), Reason: reason}
	return s.transition(ctx, actor, current, "reject", change, events.BookingRejected)
}

// Cancel withdraws a booking that has not finished. reason is optional.
func (s *Service) Cancel(ctx context.Context, id string, actor *shared.Session, reason string) (Booking, error) {
	current, err := s.loadForUpdate(ctx, id, actor, "cancel")
	if err != nil {
		return Booking{}, err
	}
	reason, err = cleanReason(reason, false)
	if err != nil {
		return Booking{}, err
	}
	change := Change{To: StatusCanceled, ActorID: actor.UserID, At: s.now().UTC(), Reason: reason}
	return s.transition(ctx, actor, current, "cancel", change, events.BookingCanceled)
}

// Complete marks an approved booking as delivered.
func (s *Service) Complete(ctx context.Context, id string, actor *shared.Session) (Booking, error) {
	current, err := s.loadForUpdate(ctx, id, actor, "complete")
	if err != nil {
		return Booking{}, err
	}
	change := Change{To: StatusCompleted, ActorID: actor.UserID, At: s.now().UTC()}
	return s.transition(ctx, actor, current, "complete", change, events.BookingCompleted)
}

// transition runs the conditional write for current and the follow-up effects. The legal sources
// are those of the status the action settles in, so an auto-approved submit is still guarded as a
// draft. A lost race reports the status the winner left behind.
func (s *Service) transition(ctx context.Context, actor *shared.Session, current Booking, action string, c Change, eventType string) (Booking, error) {
	settled := settledStatus[action]
	if !CanTransition(current.Status, settled) {
		s.count(action, false)
		return Booking{}, invalidTransition(action, current.Status)
	}
	updated, err := s.store.Transition(ctx, current.ID, sources[settled], c)
	if err != nil {
		s.count(action, false)
		if !errors.Is(err, ErrStaleStatus) {
			return Booking{}, err
		}
		latest, rerr := s.load(ctx, current.ID)
		if rerr != nil {
			return Booking{}, rerr
		}
		return Booking{}, invalidTransition(action, latest.Status)
	}
	s.count(action, true)

	s.publish(ctx, actor, eventType, payload(updated, current.Status, c.ActorID, c.Reason))
	s.recordAudit(ctx, actor, audit.Entry{
		Action:     "booking." + action,
		Resource:   string(rbac.ResourceBookings),
		ResourceID: updated.ID,
		Details: map[string]any{
			"previousStatus": string(current.Status),
			"newStatus":      string(updated.Status),
			"reason":         c.Reason,
			"title":          updated.Title,
		},
	})
	return updated, nil
}

var settledStatus = map[string]Status{
	"submit":   StatusPending,
	"approve":  StatusApproved,
	"reject":   StatusRejected,
	"cancel":   StatusCanceled,
	"complete": StatusCompleted,
}

func invalidTransition(action string, status Status) error {
	switch {
	case action == "reject" && status == StatusApproved:
		return httpx.Errorf(httpx.ErrInvalidState, "Cannot reject an approved booking")
	case settledStatus[action] == status:
		return httpx.Errorf(httpx.ErrInvalidState, "Booking is already %s", status)
	default:
		return httpx.Errorf(httpx.ErrInvalidState, "Cannot %s a booking with status %s", action, status)
	}
}

func (s *Service) publish(ctx context.Context, actor *shared.Session, eventType string, p events.BookingDecision) {
	s.effects.Run(shared.WithActor(ctx, actor), "events", func(ctx context.Context) error {
		if !s.bus.Publish(ctx, eventType, p) {
			return errPublishFailed
		}
		return nil
	})
}

func (s *Service) recordAudit(ctx context.Context, actor *shared.Session, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	entry = entry.By(actor)
	s.effects.Run(shared.WithActor(ctx, actor), "audit", func(ctx context.Context) error {
		if s.audit.Log(ctx, entry) == nil {
			return fmt.Errorf("audit entry %s not stored", entry.Action)
		}
		return nil
	})
}

func payload(b Booking, previous Status, actorID, reason string) events.BookingDecision {
	return events.BookingDecision{
		BookingID:      b.ID,
		OrganizationID: b.OrganizationID,
		LocationID:     b.LocationID,
		Title:          b.Title,
		Status:         string(b.Status),
		PreviousStatus: string(previous),
		RequestedByID:  b.RequestedByID,
		ActorID:        actorID,
		Reason:         reason,
	}
}

func (s *Service) count(action string, ok bool) {
	if s.metrics != nil {
		s.metrics.Transition("booking", action, ok)
	}
}

func authorizeReview(actor *shared.Session, perm, action string) error {
	if actor == nil {
		return unauthenticated()
	}
	if !actor.Can(perm) {
		return httpx.Errorf(httpx.ErrForbidden, "Insufficient permissions to %s bookings", action)
	}
	return nil
}

func (s *Service) loadForUpdate(ctx context.Context, id string, actor *shared.Session, action string) (Booking, error) {
	if actor == nil {
		return Booking{}, unauthenticated()
	}
	if !actor.Can(rbac.PermBookingsUpdate) {
		return Booking{}, httpx.Errorf(httpx.ErrForbidden, "Insufficient permissions to %s bookings", action)
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	if !actor.SeesAllOrganizations() && !actor.SameOrganization(b.OrganizationID) {
		return Booking{}, notFound()
	}
	return b, nil
}

func (s *Service) load(ctx context.Context, id string) (Booking, error) {
	b, err := s.store.Get(ctx, id)
	if errors.Is(err, httpx.ErrNotFound) {
		return Booking{}, notFound()
	}
	return b, err
}

func cleanReason(reason string, required bool) (string, error) {
	reason = strings.TrimSpace(reason)
	if required && reason == "" {
		return "", httpx.Errorf(httpx.ErrValidation, "Rejection reason is required")
	}
	if len(reason) > maxReasonLen {
		return "", httpx.Errorf(httpx.ErrValidation, "Reason must be at most %d characters", maxReasonLen)
	}
	return reason, nil
}

func (s *Service) featuresFor(ctx context.Context, orgID string) (rbac.Features, error) {
	if s.features == nil || orgID == "" {
		return rbac.DefaultFeatures(), nil
	}
	f, err := s.features.Features(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("bookings: load features: %w", err)
	}
	return f, nil
}

func (s *Service) approvalRequired(ctx context.Context, orgID string) (bool, error) {
	f, err := s.featuresFor(ctx, orgID)
	if err != nil {
		return false, err
	}
	return f.Enabled(rbac.FeatureRequireBookingApproval), nil
}

// Get returns one booking visible to actor.
func (s *Service) Get(ctx context.Context, actor *shared.Session, id string) (Booking, error) {
	if err := authorizeRead(actor); err != nil {
		return Booking{}, err
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	all, err := s.seesAll(ctx, actor)
	if err != nil {
		return Booking{}, err
	}
	if !all && !actor.SameOrganization(b.OrganizationID) {
		return Booking{}, notFound()
	}
	return b, nil
}

// List returns bookings visible to actor. Client roles and brand agents are pinned to their own
// organization unless brand agents may view all bookings.
func (s *Service) List(ctx context.Context, actor *shared.Session, filters ListFilters) ([]Booking, error) {
	if err := authorizeRead(actor); err != nil {
		return nil, err
	}
	all, err := s.seesAll(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !all {
		if actor.OrganizationID == "" {
			return []Booking{}, nil
		}
		if filters.OrganizationID != "" && !actor.SameOrganization(filters.OrganizationID) {
			return nil, httpx.Errorf(httpx.ErrForbidden, "Cannot view bookings of another organization")
		}
		filters.OrganizationID = actor.OrganizationID
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
		out = []Booking{}
	}
	return out, nil
}

func (s *Service) seesAll(ctx context.Context, actor *shared.Session) (bool, error) {
	if actor.SeesAllOrganizations() {
		return true, nil
	}
	if actor.Role != rbac.RoleBrandAgent {
		return false, nil
	}
	f, err := s.featuresFor(ctx, actor.OrganizationID)
	if err != nil {
		return false, err
	}
	return f.Enabled(rbac.FeatureBrandAgentsViewAllBookings), nil
}

func authorizeRead(actor *shared.Session) error {
	if actor == nil {
		return unauthenticated()
	}
	if !actor.Can(rbac.PermBookingsRead) {
		return httpx.Errorf(httpx.ErrForbidden, "Insufficient permissions to view bookings")
	}
	return nil
}

func unauthenticated() error { return httpx.Errorf(httpx.ErrUnauthorized, "Authentication required") }

func notFound() error { return httpx.Errorf(httpx.ErrNotFound, "Booking not found") }

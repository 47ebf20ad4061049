package kits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fieldforce/fieldforce/internal/audit"
	"github.com/fieldforce/fieldforce/internal/bookings"
	"github.com/fieldforce/fieldforce/internal/events"
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

// BookingLookup reads bookings; bookings.Store satisfies it.
type BookingLookup interface {
	Get(ctx context.Context, id string) (bookings.Booking, error)
}

// Params groups Service dependencies.
type Params struct {
	Store    Store
	Bookings BookingLookup
	Bus      events.Bus
	Audit    AuditRecorder
	Features FeatureSource
	Effects  shared.SideEffects
	Logger   *slog.Logger
}

// Service manages kit templates and assignments.
type Service struct {
	store    Store
	bookings BookingLookup
	bus      events.Bus
	audit    AuditRecorder
	features FeatureSource
	effects  shared.SideEffects
	now      func() time.Time
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
		bookings: p.Bookings,
		bus:      p.Bus,
		audit:    p.Audit,
		features: p.Features,
		effects:  p.Effects,
		now:      time.Now,
	}
}

func (s *Service) ListTemplates(ctx context.Context, actor *shared.Session) ([]Template, error) {
	if err := authorize(actor, rbac.PermKitsRead); err != nil {
		return nil, err
	}
	orgID := ""
	if !actor.SeesAllOrganizations() {
		orgID = actor.OrganizationID
	}
	out, err := s.store.ListTemplates(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Template{}
	}
	return out, nil
}

func (s *Service) CreateTemplate(ctx context.Context, actor *shared.Session, in TemplateInput) (Template, error) {
	if err := authorize(actor, rbac.PermKitsCreate); err != nil {
		return Template{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.OrganizationID = strings.TrimSpace(in.OrganizationID)
	if err := httpx.Validate(in); err != nil {
		return Template{}, err
	}
	t, err := s.store.CreateTemplate(ctx, Template{
		OrganizationID: in.OrganizationID,
		Name:           in.Name,
		Description:    in.Description,
		Items:          in.Items,
		Active:         true,
	})
	if err != nil {
		return Template{}, err
	}
	s.recordAudit(ctx, actor, audit.Entry{Action: "kit.template.create", Resource: string(rbac.ResourceKits), ResourceID: t.ID,
		Details: map[string]any{"name": t.Name}})
	return t, nil
}

func (s *Service) ListInstances(ctx context.Context, actor *shared.Session, filters InstanceFilters) ([]Instance, error) {
	if err := authorize(actor, rbac.PermKitsRead); err != nil {
		return nil, err
	}
	filters.OrganizationID = ""
	if !actor.SeesAllOrganizations() {
		filters.OrganizationID = actor.OrganizationID
	}
	out, err := s.store.ListInstances(ctx, filters)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Instance{}
	}
	return out, nil
}

func (s *Service) CreateInstance(ctx context.Context, actor *shared.Session, in InstanceInput) (Instance, error) {
	if err := authorize(actor, rbac.PermKitsCreate); err != nil {
		return Instance{}, err
	}
	in.TemplateID = strings.TrimSpace(in.TemplateID)
	in.SerialNumber = strings.ToUpper(strings.TrimSpace(in.SerialNumber))
	if err := httpx.Validate(in); err != nil {
		return Instance{}, err
	}
	if _, err := s.store.GetTemplate(ctx, in.TemplateID); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return Instance{}, httpx.Errorf(httpx.ErrValidation, "Kit template not found")
		}
		return Instance{}, err
	}
	created, err := s.store.CreateInstance(ctx, Instance{TemplateID: in.TemplateID, SerialNumber: in.SerialNumber, Status: StatusAvailable})
	if err != nil {
		return Instance{}, err
	}
	s.recordAudit(ctx, actor, audit.Entry{Action: "kit.instance.create", Resource: string(rbac.ResourceKits), ResourceID: created.ID,
		Details: map[string]any{"serialNumber": created.SerialNumber, "templateId": created.TemplateID}})
	return created, nil
}

// Assign reserves an available instance for an approved booking. Client roles may request kits for
// their own bookings when their organization allows it.
func (s *Service) Assign(ctx context.Context, actor *shared.Session, id, bookingID string) (Instance, error) {
	if actor == nil {
		return Instance{}, unauthenticated()
	}
	if !actor.Can(rbac.PermKitsUpdate) && !actor.Can(rbac.PermBookingsCreate) {
		return Instance{}, httpx.Errorf(httpx.ErrForbidden, "Insufficient permissions to assign kits")
	}
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return Instance{}, httpx.Errorf(httpx.ErrValidation, "bookingId is required")
	}
	b, err := s.bookings.Get(ctx, bookingID)
	if errors.Is(err, httpx.ErrNotFound) {
		return Instance{}, httpx.Errorf(httpx.ErrValidation, "Booking not found")
	}
	if err != nil {
		return Instance{}, fmt.Errorf("kits: load booking: %w", err)
	}
	if err := s.authorizeAssign(ctx, actor, b); err != nil {
		return Instance{}, err
	}
	if b.Status != bookings.StatusApproved {
		return Instance{}, httpx.Errorf(httpx.ErrInvalidState, "Kits can only be assigned to approved bookings")
	}
	current, err := s.loadInstance(ctx, id)
	if err != nil {
		return Instance{}, err
	}
	if current.Status != StatusAvailable {
		return Instance{}, httpx.Errorf(httpx.ErrInvalidState, "Kit %s is %s", current.SerialNumber, current.Status)
	}
	updated, err := s.store.Assign(ctx, id, bookingID, s.now().UTC())
	if err != nil {
		return Instance{}, s.lostRace(ctx, id, err)
	}
	s.afterMove(ctx, updated, events.KitAssigned, "kit.assign", actor, bookingID)
	return updated, nil
}

// Release returns an assigned instance to the pool.
func (s *Service) Release(ctx context.Context, actor *shared.Session, id string) (Instance, error) {
	if err := authorize(actor, rbac.PermKitsUpdate); err != nil {
		return Instance{}, err
	}
	current, err := s.loadInstance(ctx, id)
	if err != nil {
		return Instance{}, err
	}
	if current.Status != StatusAssigned {
		return Instance{}, httpx.Errorf(httpx.ErrInvalidState, "Kit %s is %s", current.SerialNumber, current.Status)
	}
	updated, err := s.store.Release(ctx, id, s.now().UTC())
	if err != nil {
		return Instance{}, s.lostRace(ctx, id, err)
	}
	s.afterMove(ctx, updated, events.KitReleased, "kit.release", actor, current.BookingID)
	return updated, nil
}

func (s *Service) authorizeAssign(ctx context.Context, actor *shared.Session, b bookings.Booking) error {
	if actor.Can(rbac.PermKitsUpdate) {
		return nil
	}
	if !actor.Role.Client() || !actor.Can(rbac.PermBookingsCreate) {
		return httpx.Errorf(httpx.ErrForbidden, "Insufficient permissions to assign kits")
	}
	if !actor.SameOrganization(b.OrganizationID) {
		return httpx.Errorf(httpx.ErrForbidden, "Cannot request kits for another organization's booking")
	}
	features := rbac.DefaultFeatures()
	if s.features != nil {
		f, err := s.features.Features(ctx, actor.OrganizationID)
		if err != nil {
			return fmt.Errorf("kits: load features: %w", err)
		}
		features = f
	}
	if !features.Enabled(rbac.FeatureClientsCanRequestKits) {
		return httpx.Errorf(httpx.ErrForbidden, "Kit requests are disabled for your organization")
	}
	return nil
}

func (s *Service) lostRace(ctx context.Context, id string, err error) error {
	if !errors.Is(err, ErrStatusChanged) {
		return err
	}
	latest, rerr := s.loadInstance(ctx, id)
	if rerr != nil {
		return rerr
	}
	return httpx.Errorf(httpx.ErrInvalidState, "Kit %s is %s", latest.SerialNumber, latest.Status)
}

func (s *Service) afterMove(ctx context.Context, in Instance, eventType, action string, actor *shared.Session, bookingID string) {
	ctx = shared.WithActor(ctx, actor)
	s.effects.Run(ctx, "events", func(ctx context.Context) error {
		if !s.bus.Publish(ctx, eventType, events.KitMovement{
			InstanceID:   in.ID,
			TemplateID:   in.TemplateID,
			SerialNumber: in.SerialNumber,
			BookingID:    bookingID,
			ActorID:      actor.UserID,
		}) {
			return errors.New("event publish failed")
		}
		return nil
	})
	s.recordAudit(ctx, actor, audit.Entry{Action: action, Resource: string(rbac.ResourceKits), ResourceID: in.ID,
		Details: map[string]any{"bookingId": bookingID, "serialNumber": in.SerialNumber}})
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

func (s *Service) loadInstance(ctx context.Context, id string) (Instance, error) {
	in, err := s.store.GetInstance(ctx, id)
	if errors.Is(err, httpx.ErrNotFound) {
		return Instance{}, httpx.Errorf(httpx.ErrNotFound, "Kit not found")
	}
	return in, err
}

func authorize(actor *shared.Session, perm string) error {
	if actor == nil {
		return unauthenticated()
	}
	if !actor.Can(perm) {
		return httpx.Errorf(httpx.ErrForbidden, "Insufficient permissions")
	}
	return nil
}

func unauthenticated() error { return httpx.Errorf(httpx.ErrUnauthorized, "Authentication required") }

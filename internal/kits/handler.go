package kits

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldforce/fieldforce/internal/platform/httpx"
	"github.com/fieldforce/fieldforce/internal/rbac"
	"github.com/fieldforce/fieldforce/internal/shared"
)

// Handler exposes kit endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers /api/kits routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermKitsRead))
		r.Get("/templates", h.listTemplates)
		r.Get("/instances", h.listInstances)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermKitsCreate))
		r.Post("/templates", h.createTemplate)
		r.Post("/instances", h.createInstance)
	})
	// Clients may request kits for their own bookings; the service checks the feature flag.
	r.With(h.rbac.RequireAny(rbac.PermKitsUpdate, rbac.PermBookingsCreate)).Post("/instances/{id}/assign", h.assign)
	r.With(h.rbac.RequireAny(rbac.PermKitsUpdate)).Post("/instances/{id}/release", h.release)
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListTemplates(r.Context(), shared.SessionFromContext(r.Context()))
	if err != nil {
		h.fail(w, "list kit templates", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"templates": out})
}

func (h *Handler) createTemplate(w http.ResponseWriter, r *http.Request) {
	var in TemplateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.service.CreateTemplate(r.Context(), shared.SessionFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, "create kit template", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"template": t})
}

func (h *Handler) listInstances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := InstanceFilters{TemplateID: q.Get("templateId"), BookingID: q.Get("bookingId")}
	if raw := q.Get("status"); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			httpx.RespondError(w, httpx.Errorf(httpx.ErrValidation, "status must be available, assigned or retired"))
			return
		}
		filters.Status = status
	}
	out, err := h.service.ListInstances(r.Context(), shared.SessionFromContext(r.Context()), filters)
	if err != nil {
		h.fail(w, "list kit instances", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"instances": out})
}

func (h *Handler) createInstance(w http.ResponseWriter, r *http.Request) {
	var in InstanceInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.CreateInstance(r.Context(), shared.SessionFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, "create kit instance", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"instance": created})
}

type assignRequest struct {
	BookingID string `json:"bookingId"`
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := h.service.Assign(r.Context(), shared.SessionFromContext(r.Context()), chi.URLParam(r, "id"), req.BookingID)
	if err != nil {
		h.fail(w, "assign kit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"instance": in})
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	in, err := h.service.Release(r.Context(), shared.SessionFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "release kit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"instance": in})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.Status(err); status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

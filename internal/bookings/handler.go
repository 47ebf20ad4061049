package bookings

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fieldforce/fieldforce/internal/platform/httpx"
	"github.com/fieldforce/fieldforce/internal/rbac"
	"github.com/fieldforce/fieldforce/internal/shared"
)

// Handler exposes booking endpoints.
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

// MountRoutes registers /api/bookings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermBookingsRead))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.With(h.rbac.RequireAny(rbac.PermBookingsCreate)).Post("/", h.create)
	r.With(h.rbac.RequireAny(rbac.PermBookingsApprove)).Post("/{id}/approve", h.approve)
	r.With(h.rbac.RequireAny(rbac.PermBookingsReject)).Post("/{id}/reject", h.reject)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermBookingsUpdate))
		r.Post("/{id}/submit", h.submit)
		r.Post("/{id}/cancel", h.cancel)
		r.Post("/{id}/complete", h.complete)
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.Create(r.Context(), shared.SessionFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, "create booking", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"booking": b})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters, err := parseListFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.List(r.Context(), shared.SessionFromContext(r.Context()), filters)
	if err != nil {
		h.fail(w, "list bookings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"bookings": out})
}

func parseListFilters(r *http.Request) (ListFilters, error) {
	q := r.URL.Query()
	filters := ListFilters{
		OrganizationID: q.Get("organizationId"),
		LocationID:     q.Get("locationId"),
	}
	if raw := q.Get("status"); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			return ListFilters{}, httpx.Errorf(httpx.ErrValidation, "status is invalid")
		}
		filters.Status = status
	}
	for name, dest := range map[string]*time.Time{"from": &filters.From, "to": &filters.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ListFilters{}, httpx.Errorf(httpx.ErrValidation, "%s must be an RFC3339 timestamp", name)
		}
		*dest = t
	}
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	filters.Offset, _ = strconv.Atoi(q.Get("offset"))
	return filters, nil
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Get(r.Context(), shared.SessionFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get booking", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"booking": b})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"), shared.SessionFromContext(r.Context()))
	if err != nil {
		h.fail(w, "approve booking", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Booking approved successfully", "booking": b})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if _, err := h.service.Reject(r.Context(), chi.URLParam(r, "id"), shared.SessionFromContext(r.Context()), req.Reason); err != nil {
		h.fail(w, "reject booking", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Booking rejected successfully"})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Submit(r.Context(), chi.URLParam(r, "id"), shared.SessionFromContext(r.Context()))
	if err != nil {
		h.fail(w, "submit booking", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Booking submitted successfully", "booking": b})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), shared.SessionFromContext(r.Context()), req.Reason)
	if err != nil {
		h.fail(w, "cancel booking", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Booking canceled successfully", "booking": b})
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Complete(r.Context(), chi.URLParam(r, "id"), shared.SessionFromContext(r.Context()))
	if err != nil {
		h.fail(w, "complete booking", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Booking completed successfully", "booking": b})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.Status(err); status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

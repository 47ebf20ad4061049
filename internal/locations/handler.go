package locations

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fieldforce/fieldforce/internal/platform/httpx"
	"github.com/fieldforce/fieldforce/internal/rbac"
	"github.com/fieldforce/fieldforce/internal/shared"
)

// Handler exposes location endpoints.
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

// MountRoutes registers /api/locations routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermLocationsRead))
		r.Get("/", h.list)
		r.Get("/approved", h.listApproved)
		r.Get("/{id}", h.get)
	})
	r.With(h.rbac.RequireAny(rbac.PermLocationsCreate)).Post("/", h.submit)
	r.With(h.rbac.RequireAny(rbac.PermLocationsUpdate)).Post("/{id}/reject", h.reject)
}

// MountAdminRoutes registers /api/admin/locations routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermLocationsUpdate)).Post("/{id}/approve", h.approve)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var in SubmitInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	loc, err := h.service.Submit(r.Context(), shared.SessionFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, "submit location", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"location": loc})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filters ListFilters
	if raw := q.Get("status"); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			httpx.RespondError(w, httpx.Errorf(httpx.ErrValidation, "status must be pending, approved or rejected"))
			return
		}
		filters.Status = status
	}
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	filters.Offset, _ = strconv.Atoi(q.Get("offset"))

	locs, err := h.service.List(r.Context(), shared.SessionFromContext(r.Context()), filters)
	if err != nil {
		h.fail(w, "list locations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"locations": locs})
}

func (h *Handler) listApproved(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	locs, err := h.service.ListApproved(r.Context(), shared.SessionFromContext(r.Context()), ApprovedFilters{
		ExcludeBrandID: q.Get("excludeBrandId"),
		StateID:        q.Get("stateId"),
		Search:         q.Get("search"),
	})
	if err != nil {
		h.fail(w, "list approved locations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"locations": locs})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	loc, err := h.service.Get(r.Context(), shared.SessionFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get location", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"location": loc})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	loc, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"), shared.SessionFromContext(r.Context()))
	if err != nil {
		h.fail(w, "approve location", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "Location approved successfully", "location": loc})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	loc, err := h.service.Reject(r.Context(), chi.URLParam(r, "id"), shared.SessionFromContext(r.Context()), req.Reason)
	if err != nil {
		h.fail(w, "reject location", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "Location rejected successfully", "location": loc})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.Status(err); status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

package organizations

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldforce/fieldforce/internal/platform/httpx"
	"github.com/fieldforce/fieldforce/internal/rbac"
	"github.com/fieldforce/fieldforce/internal/shared"
)

// Handler exposes organization endpoints.
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

// MountRoutes registers /api/organizations routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermOrganizationsRead))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/feature-settings", h.getFeatures)
	})
	r.With(h.rbac.RequireAny(rbac.PermSettingsUpdate)).Put("/{id}/feature-settings", h.putFeatures)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.service.List(r.Context(), shared.SessionFromContext(r.Context()))
	if err != nil {
		h.fail(w, "list organizations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	org, err := h.service.Get(r.Context(), shared.SessionFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get organization", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"organization": org})
}

func (h *Handler) getFeatures(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.GetFeatureSettings(r.Context(), shared.SessionFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get feature settings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

type featuresRequest struct {
	Features map[string]bool `json:"features"`
}

func (h *Handler) putFeatures(w http.ResponseWriter, r *http.Request) {
	var req featuresRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	settings, err := h.service.UpdateFeatureSettings(r.Context(), shared.SessionFromContext(r.Context()), chi.URLParam(r, "id"), req.Features)
	if err != nil {
		h.fail(w, "update feature settings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.Status(err); status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/fieldforce/fieldforce/internal/audit"
	"github.com/fieldforce/fieldforce/internal/platform/httpx"
	"github.com/fieldforce/fieldforce/internal/shared"
)

// Recorder writes audit entries for sign-in activity.
type Recorder interface {
	Log(ctx context.Context, entry audit.Entry) *audit.Entry
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	cookie   CookieConfig
	recorder Recorder
	effects  shared.SideEffects
}

// NewHandler constructs a Handler instance. recorder may be nil.
func NewHandler(logger *slog.Logger, service *Service, cookie CookieConfig, recorder Recorder, effects shared.SideEffects) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, cookie: cookie, recorder: recorder, effects: effects}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.LimitByIP(10, time.Minute)).Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/session", h.handleSession)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			h.record(r.Context(), audit.Entry{
				Action:   "auth.login_failed",
				Resource: "users",
				Details:  map[string]any{"email": req.Email},
			})
			httpx.RespondError(w, httpx.Errorf(httpx.ErrUnauthorized, "Invalid email or password"))
			return
		}
		h.logger.Error("login failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    result.Token,
		Path:     "/",
		Expires:  result.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	h.record(r.Context(), audit.Entry{
		Action:         "auth.login",
		Resource:       "users",
		ResourceID:     result.User.ID,
		UserID:         result.User.ID,
		OrganizationID: result.User.OrganizationID,
	})
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user":      result.User,
		"token":     result.Token,
		"expiresAt": result.ExpiresAt,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.record(r.Context(), audit.Entry{Action: "auth.logout", Resource: "users", ResourceID: sess.UserID}.By(sess))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.RespondError(w, httpx.Errorf(httpx.ErrUnauthorized, "Authentication required"))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"session": sess})
}

func (h *Handler) record(ctx context.Context, entry audit.Entry) {
	if h.recorder == nil {
		return
	}
	h.effects.Run(ctx, "audit", func(ctx context.Context) error {
		h.recorder.Log(ctx, entry)
		return nil
	})
}

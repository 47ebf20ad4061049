package rbac

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldforce/fieldforce/internal/platform/httpx"
)

// PermissionsHandler exposes the static permission table.
type PermissionsHandler struct {
	principal func(ctx context.Context) (Principal, bool)
	rbac      Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{principal: rbac.Principal, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/me", h.mine)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(PermUsersRead))
		r.Get("/roles", h.roles)
	})
}

type roleView struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

func (h *PermissionsHandler) mine(w http.ResponseWriter, r *http.Request) {
	var p Principal
	var ok bool
	if h.principal != nil {
		p, ok = h.principal(r.Context())
	}
	if !ok || p == nil {
		httpx.RespondError(w, httpx.Errorf(httpx.ErrUnauthorized, "Authentication required"))
		return
	}
	roles := p.GetRoles()
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.String())
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"roles":       names,
		"permissions": PermissionsFor(roles...),
	})
}

func (h *PermissionsHandler) roles(w http.ResponseWriter, r *http.Request) {
	out := make([]roleView, 0, len(Roles()))
	for _, role := range Roles() {
		out = append(out, roleView{Role: role.String(), Permissions: PermissionsFor(role)})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fieldforce/fieldforce/internal/platform/httpx"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Principal func(ctx context.Context) (Principal, bool)
	Logger    *slog.Logger
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require("any", normalizePermissions(perms), func(roles []Role, required []string) bool {
		for _, p := range required {
			if HasPermission(p, roles...) {
				return true
			}
		}
		return false
	})
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require("all", normalizePermissions(perms), func(roles []Role, required []string) bool {
		for _, p := range required {
			if !HasPermission(p, roles...) {
				return false
			}
		}
		return true
	})
}

func (m Middleware) require(mode string, required []string, check func([]Role, []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := m.principal(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			if check(principal.GetRoles(), required) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Info("rbac denied",
					slog.String("mode", mode),
					slog.String("user_id", principal.GetID()),
					slog.Any("required", required),
					slog.String("path", r.URL.Path))
			}
			httpx.Problem(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
		})
	}
}

func (m Middleware) principal(ctx context.Context) (Principal, bool) {
	if m.Principal == nil {
		return nil, false
	}
	p, ok := m.Principal(ctx)
	if !ok || p == nil || strings.TrimSpace(p.GetID()) == "" {
		return nil, false
	}
	return p, true
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, seen := unique[p]; seen {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}

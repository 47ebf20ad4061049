package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/fieldforce/fieldforce/internal/shared"
)

// Authenticate attaches the session from the cookie or Authorization header when the token verifies.
// Requests without a valid token continue anonymously; route guards answer 401.
func Authenticate(tokens *TokenManager, cookieName string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := tokenFromRequest(r, cookieName)
			if raw == "" || tokens == nil {
				next.ServeHTTP(w, r)
				return
			}
			sess, err := tokens.Parse(raw)
			if err != nil {
				logger.Debug("session token rejected", slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	}
}

func tokenFromRequest(r *http.Request, cookieName string) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookieName == "" {
		return ""
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

package shared

import (
	"context"

	"github.com/fieldforce/fieldforce/internal/rbac"
)

type sessionContextKey struct{}

type requestMetaContextKey struct{}

// RequestMeta carries caller details recorded on audit entries and events.
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// WithActor returns ctx carrying actor as its session, so follow-ups run outside the request
// (or from the CLI) are still attributed. A nil actor leaves ctx unchanged.
func WithActor(ctx context.Context, actor *Session) context.Context {
	if actor == nil {
		return ctx
	}
	return ContextWithSession(ctx, actor)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// PrincipalFromContext adapts the session for rbac.Middleware.
func PrincipalFromContext(ctx context.Context) (rbac.Principal, bool) {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return nil, false
	}
	return sess, true
}

// ContextWithRequestMeta stores request metadata in context.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaContextKey{}, meta)
}

// RequestMetaFromContext returns request metadata, zero when absent.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaContextKey{}).(RequestMeta)
	return meta
}

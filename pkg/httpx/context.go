package httpx

import "context"

type ctxKey string

const (
	CtxKeyUserID     ctxKey = "user_id"
	CtxKeyAuthMethod ctxKey = "auth_method"
)

// WithIdentity attaches the resolved identity to the request context.
func WithIdentity(ctx context.Context, userID, authMethod string) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, userID)
	return context.WithValue(ctx, CtxKeyAuthMethod, authMethod)
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(CtxKeyUserID).(string)
	return v, ok && v != ""
}

// AuthMethodFromContext returns the auth method tag recorded during
// session verification (e.g. "session", "internal").
func AuthMethodFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(CtxKeyAuthMethod).(string)
	return v, ok && v != ""
}

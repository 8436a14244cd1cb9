package http

import (
	"errors"
	"net/http"

	"github.com/driftlock/gateway/internal/gateway/service"
	"github.com/driftlock/gateway/pkg/httpx"
	"github.com/driftlock/gateway/pkg/slogx"
)

// SessionAuthMiddleware resolves a presented session token into an
// identity on the request context. Expired and unknown sessions are
// rejected with 401.
func SessionAuthMiddleware(sessions *service.SessionService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := service.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_request"`)
				httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized", "Missing or malformed bearer token.")
				return
			}

			sess, err := sessions.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, service.ErrSessionExpired) {
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="session expired"`)
					httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized", "Session expired.")
					return
				}
				if errors.Is(err, service.ErrSessionNotFound) {
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
					httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized", "Unknown session.")
					return
				}
				slogx.FromContext(r.Context()).Error("session lookup failed", "error", err)
				httpx.WriteError(w, http.StatusInternalServerError, "InternalError", "Unexpected error.")
				return
			}

			ctx := httpx.WithIdentity(r.Context(), sess.UserID, sess.AuthMode)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/driftlock/gateway/internal/gateway/auth"
	"github.com/driftlock/gateway/internal/gateway/service"
	"github.com/driftlock/gateway/pkg/httpx"
	"github.com/driftlock/gateway/pkg/slogx"
)

// ExchangeHandler serves POST /v1/auth/exchange: provider token in,
// opaque session token out.
type ExchangeHandler struct {
	ExchangeService *service.ExchangeService

	// KeyFunc produces the sliding-window limiter key. Nil means
	// DefaultExchangeKey.
	KeyFunc httpx.KeyExtractor
}

// ExchangeResponse is the success body.
type ExchangeResponse struct {
	SessionToken string `json:"sessionToken"`
	ExpiresAt    string `json:"expiresAt"`
	Provider     string `json:"provider"`
}

// DefaultExchangeKey keys the limiter by client IP plus the user id
// decoded WITHOUT verification from the presented token. The unverified
// id only spreads limiter buckets; it grants nothing.
func DefaultExchangeKey(r *http.Request) string {
	userID := auth.AnonymousUserID
	if token, err := service.BearerToken(r.Header.Get("Authorization")); err == nil {
		if claims, err := auth.PeekClaims(token); err == nil {
			userID = auth.ExtractUserID(claims)
		}
	}
	return httpx.IPKeyExtractor(r) + ":" + userID
}

func (h *ExchangeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	keyFunc := h.KeyFunc
	if keyFunc == nil {
		keyFunc = DefaultExchangeKey
	}

	result, err := h.ExchangeService.Exchange(r.Context(), r.Header.Get("Authorization"), keyFunc(r))
	if err != nil {
		writeExchangeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, ExchangeResponse{
		SessionToken: result.SessionToken,
		ExpiresAt:    result.Session.ExpiresAt.Format(time.RFC3339),
		Provider:     result.Session.Provider,
	})
}

func writeExchangeError(w http.ResponseWriter, r *http.Request, err error) {
	var limited *service.ExchangeRateLimitedError
	switch {
	case errors.As(err, &limited):
		retryAfter := limited.RetryAfter(time.Now())
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limited.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limited.Decision.Remaining))
		w.Header().Set("X-RateLimit-Reset", limited.Decision.ResetAt.UTC().Format(time.RFC3339))
		httpx.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":      "TooManyRequests",
			"message":    "Too many token exchanges. Please try again later.",
			"retryAfter": retryAfter,
		})

	case errors.Is(err, service.ErrInvalidAuthorization):
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_request"`)
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized", "Missing or malformed bearer token.")

	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrNoValidator):
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized", "Token verification failed.")

	default:
		slogx.FromContext(r.Context()).Error("exchange failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "InternalError", "Unexpected error.")
	}
}

// RevokeHandler serves DELETE /v1/auth/session (logout). The session to
// revoke is the bearer token itself.
type RevokeHandler struct {
	SessionService *service.SessionService
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, err := service.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_request"`)
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized", "Missing or malformed bearer token.")
		return
	}

	if err := h.SessionService.Revoke(r.Context(), token); err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized", "Unknown session.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

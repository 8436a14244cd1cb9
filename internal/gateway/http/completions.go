package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/driftlock/gateway/internal/gateway/obs"
	"github.com/driftlock/gateway/pkg/httpx"
	"github.com/driftlock/gateway/pkg/idx"
	"github.com/driftlock/gateway/pkg/ratelimitx"
)

// DefaultMaxTokens is charged when a completion request carries no
// max_tokens hint.
const DefaultMaxTokens = 1024

// MaxTokensHint bounds the client-supplied reservation. No real model
// budget comes anywhere near it; it exists so a hostile hint cannot feed
// the limiter arithmetic-breaking values.
const MaxTokensHint = 1 << 20

// ChatCompletionsHandler serves POST /v1/chat/completions. It enforces
// the per-user request and token quotas; the upstream model call itself
// is out of the gateway's hands, so the handler acknowledges the
// reservation rather than streaming a completion.
type ChatCompletionsHandler struct {
	Limiter *ratelimitx.UserLimiter
}

type completionRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
}

type completionAccepted struct {
	ID             string `json:"id"`
	UserID         string `json:"userId"`
	Model          string `json:"model,omitempty"`
	ReservedTokens int    `json:"reservedTokens"`
}

func (h *ChatCompletionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized", "No authenticated identity.")
		return
	}

	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BadRequest", "Invalid JSON body.")
		return
	}
	hint := req.MaxTokens
	if hint <= 0 {
		hint = DefaultMaxTokens
	}
	if hint > MaxTokensHint {
		hint = MaxTokensHint
	}

	if err := h.Limiter.CheckRequest(userID); err != nil {
		writeLimitError(w, err, obs.ScopeRequests)
		return
	}
	if err := h.Limiter.ConsumeTokens(userID, hint); err != nil {
		writeLimitError(w, err, obs.ScopeTokens)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, completionAccepted{
		ID:             idx.New().String(),
		UserID:         userID,
		Model:          req.Model,
		ReservedTokens: hint,
	})
}

// writeLimitError translates a *ratelimitx.LimitError into a 429 with
// retry headers. Expected condition; not logged as an anomaly.
func writeLimitError(w http.ResponseWriter, err error, scope string) {
	var limitErr *ratelimitx.LimitError
	if !errors.As(err, &limitErr) {
		httpx.WriteError(w, http.StatusInternalServerError, "InternalError", "Unexpected error.")
		return
	}

	obs.ObserveRateLimited(scope)

	retryAfter := limitErr.RetryAfter(time.Now())
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limitErr.Limit))
	w.Header().Set("X-RateLimit-Reset", limitErr.ResetAt.UTC().Format(time.RFC3339))
	httpx.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":      "TooManyRequests",
		"message":    "Rate limit exceeded for " + string(limitErr.Dimension) + ".",
		"dimension":  string(limitErr.Dimension),
		"retryAfter": retryAfter,
	})
}

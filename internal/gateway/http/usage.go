package http

import (
	"net/http"
	"time"

	"github.com/driftlock/gateway/pkg/httpx"
	"github.com/driftlock/gateway/pkg/ratelimitx"
)

// UsageHandler serves GET /v1/auth/usage: the caller's dual-limiter
// standing across both dimensions.
type UsageHandler struct {
	Limiter *ratelimitx.UserLimiter
}

// DimensionBody is one metered dimension in the usage response.
type DimensionBody struct {
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"resetAt"`
}

// UsageResponse is the usage endpoint body.
type UsageResponse struct {
	UserID   string        `json:"userId"`
	AuthMode string        `json:"authMode,omitempty"`
	Tokens   DimensionBody `json:"tokens"`
	Requests DimensionBody `json:"requests"`
}

func (h *UsageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized", "No authenticated identity.")
		return
	}
	authMode, _ := httpx.AuthMethodFromContext(r.Context())

	usage := h.Limiter.Usage(userID)
	httpx.WriteJSON(w, http.StatusOK, UsageResponse{
		UserID:   userID,
		AuthMode: authMode,
		Tokens:   dimensionBody(usage.Tokens),
		Requests: dimensionBody(usage.Requests),
	})
}

func dimensionBody(d ratelimitx.DimensionUsage) DimensionBody {
	return DimensionBody{
		Used:      d.Used,
		Limit:     d.Limit,
		Remaining: d.Remaining,
		ResetAt:   d.ResetAt.UTC().Format(time.RFC3339),
	}
}

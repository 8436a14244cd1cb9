// Package http wires the gateway's handlers onto a ServeMux behind the
// shared middleware chain.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/driftlock/gateway/internal/gateway/obs"
	"github.com/driftlock/gateway/internal/gateway/service"
	"github.com/driftlock/gateway/internal/gateway/store"
	"github.com/driftlock/gateway/pkg/httpx"
	"github.com/driftlock/gateway/pkg/ratelimitx"
	"github.com/driftlock/gateway/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store

	ExchangeService *service.ExchangeService
	SessionService  *service.SessionService
	UserLimiter     *ratelimitx.UserLimiter

	// ExchangeKey overrides how exchange requests are keyed for the
	// sliding-window limiter. Nil means DefaultExchangeKey.
	ExchangeKey httpx.KeyExtractor
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		obs.Instrument,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerCompletions()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	// POST /v1/auth/exchange does its own sliding-window limiting keyed
	// by client IP plus best-effort user id; no coarse IP middleware here
	// or the two limiters would fight over the same traffic.
	exchangeHandler := &ExchangeHandler{
		ExchangeService: r.ExchangeService,
		KeyFunc:         r.ExchangeKey,
	}
	r.Mux.Handle("POST /v1/auth/exchange", exchangeHandler)

	// GET /v1/auth/usage - session-authenticated, lenient limit keyed by
	// IP plus user so one user behind a NAT cannot exhaust the shared IP
	// budget. Session auth runs first, so identity is on the context.
	usageHandler := &UsageHandler{Limiter: r.UserLimiter}
	r.Mux.Handle("GET /v1/auth/usage",
		httpx.Chain(usageHandler,
			SessionAuthMiddleware(r.SessionService),
			httpx.RateLimitMiddleware(httpx.LenientLimit,
				httpx.CompositeKeyExtractor(":", httpx.IPKeyExtractor, httpx.UserIDKeyExtractor)),
		),
	)

	// DELETE /v1/auth/session - logout
	revokeHandler := &RevokeHandler{SessionService: r.SessionService}
	r.Mux.Handle("DELETE /v1/auth/session",
		httpx.Chain(revokeHandler,
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerCompletions() {
	h := &ChatCompletionsHandler{Limiter: r.UserLimiter}
	r.Mux.Handle("POST /v1/chat/completions",
		httpx.Chain(h,
			SessionAuthMiddleware(r.SessionService),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - monitoring systems may poll frequently
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /metrics", obs.Handler())
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/driftlock/gateway/internal/gateway/auth"
	"github.com/driftlock/gateway/internal/gateway/domain"
	"github.com/driftlock/gateway/internal/gateway/obs"
	"github.com/driftlock/gateway/internal/gateway/store"
	"github.com/driftlock/gateway/pkg/cryptox"
	"github.com/driftlock/gateway/pkg/idx"
	"github.com/driftlock/gateway/pkg/ratelimitx"
	"github.com/driftlock/gateway/pkg/slogx"
)

// ErrInvalidAuthorization covers a missing or malformed Authorization
// header. Rejected before any verification or limiter work.
var ErrInvalidAuthorization = errors.New("service: missing or malformed bearer token")

// ExchangeRateLimitedError reports an exchange refused by the sliding
// window limiter, carrying the decision for Retry-After headers.
type ExchangeRateLimitedError struct {
	Decision ratelimitx.Decision
	Limit    int
	Window   time.Duration
}

func (e *ExchangeRateLimitedError) Error() string {
	return fmt.Sprintf("service: exchange rate limited, %d/%d in window", e.Decision.TotalHits, e.Limit)
}

// RetryAfter returns whole seconds until the window resets, at least 1.
func (e *ExchangeRateLimitedError) RetryAfter(now time.Time) int {
	secs := int(e.Decision.ResetAt.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// ExchangeResult is a successful exchange: the raw session token plus the
// stored session record.
type ExchangeResult struct {
	SessionToken string
	Session      domain.Session
}

// ExchangeService turns provider tokens into gateway sessions.
type ExchangeService struct {
	Chain     *auth.Chain
	Mode      auth.Mode
	Limiter   *ratelimitx.WindowLimiter
	LimitMax  int
	Window    time.Duration
	Sessions  *SessionService
	Exchanges store.Exchanges
	Logger    *slog.Logger
}

// BearerToken extracts the token from an Authorization header value.
// Scheme matching is case-insensitive per RFC 7235.
func BearerToken(header string) (string, error) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrInvalidAuthorization
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrInvalidAuthorization
	}
	return token, nil
}

// Exchange validates a provider token and mints a session. clientKey is
// the sliding-window limiter key (clientIP plus best-effort user id).
//
// Order matters: malformed input is rejected before the limiter is
// consulted, and the limiter is consulted before any cryptographic work
// so an abusive client cannot force signature checks or JWKS fetches.
func (s *ExchangeService) Exchange(ctx context.Context, authorizationHeader, clientKey string) (*ExchangeResult, error) {
	l := slogx.FromContext(ctx)

	token, err := BearerToken(authorizationHeader)
	if err != nil {
		return nil, err
	}

	if d := s.Limiter.Check(clientKey); !d.Allowed {
		obs.ObserveRateLimited(obs.ScopeExchange)
		obs.ObserveExchange(domain.ExchangeRateLimited)
		s.audit(ctx, "", "", clientKey, domain.ExchangeRateLimited)
		l.Info("exchange rate limited", "key_hash", hashClientKey(clientKey), "total_hits", d.TotalHits)
		return nil, &ExchangeRateLimitedError{Decision: d, Limit: s.LimitMax, Window: s.Window}
	}

	claims, validator, err := s.Chain.Verify(ctx, token)
	if err != nil {
		if validator != nil {
			obs.ObserveVerifyFailure(validator.Name())
		}
		obs.ObserveExchange(domain.ExchangeDenied)
		s.Limiter.Record(clientKey, false)
		s.audit(ctx, "", validatorName(validator), clientKey, domain.ExchangeDenied)
		return nil, err
	}

	userID := validator.ExtractUserID(claims)

	sess, raw, err := s.Sessions.Mint(ctx, userID, validator.Name(), string(s.Mode))
	if err != nil {
		return nil, err
	}

	obs.ObserveExchange(domain.ExchangeOK)
	s.Limiter.Record(clientKey, true)
	s.audit(ctx, userID, validator.Name(), clientKey, domain.ExchangeOK)
	l.Info("token exchanged",
		"user_id", userID,
		"provider", validator.Name(),
		"session_id", sess.ID.String(),
	)

	return &ExchangeResult{SessionToken: raw, Session: sess}, nil
}

// audit appends an exchange record. Audit failures are logged, never
// surfaced: the exchange outcome stands on its own.
func (s *ExchangeService) audit(ctx context.Context, userID, provider, clientKey, outcome string) {
	rec := domain.ExchangeRecord{
		ID:        idx.New(),
		UserID:    userID,
		Provider:  provider,
		ClientKey: hashClientKey(clientKey),
		Outcome:   outcome,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Exchanges.RecordExchange(ctx, rec); err != nil {
		s.Logger.Error("failed to record exchange audit row", "error", err)
	}
}

// hashClientKey keeps raw client IPs out of the audit log.
func hashClientKey(clientKey string) string {
	return cryptox.HashKey(clientKey, "exchange-audit")
}

func validatorName(v auth.Validator) string {
	if v == nil {
		return ""
	}
	return v.Name()
}

package ratelimitx

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Dimension names the two independently metered quantities.
type Dimension string

const (
	DimensionTokens   Dimension = "tokens"
	DimensionRequests Dimension = "requests"
)

// LimitError reports an exceeded quota. It is an expected, recoverable
// condition: handlers translate it to HTTP 429 with a retry hint, they do
// not log it as an anomaly.
type LimitError struct {
	Dimension Dimension
	Limit     int
	Used      int
	ResetAt   time.Time
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("ratelimitx: %s limit exceeded (%d/%d)", e.Dimension, e.Used, e.Limit)
}

// RetryAfter returns the seconds until the exhausted window resets,
// rounded up and never below one.
func (e *LimitError) RetryAfter(now time.Time) int {
	secs := int(e.ResetAt.Sub(now).Seconds()) + 1
	if secs < 1 {
		secs = 1
	}
	return secs
}

// UserLimits configures the dual per-user limiter.
type UserLimits struct {
	MaxTokens     int           // LLM tokens per token window
	TokenWindow   time.Duration // commonly an hour
	MaxRequests   int           // requests per request window
	RequestWindow time.Duration // commonly a minute
}

// DimensionUsage is the client-visible view of one metered dimension.
type DimensionUsage struct {
	Used      int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Usage combines both dimensions for quota headers.
type Usage struct {
	Tokens   DimensionUsage
	Requests DimensionUsage
}

type meter struct {
	used    int
	resetAt time.Time
}

type userUsage struct {
	tokens   meter
	requests meter
}

// UserLimiter tracks consumed LLM tokens and request counts per user over
// independent rolling windows.
//
// Both dimensions apply charge-then-reject accounting: consumption is
// recorded first and the post-update total is checked after. A request
// that lands over the limit still increments usage, because by the time
// the limiter can decide, the provider cost has already been incurred.
// A single over-limit call may overshoot arbitrarily; see DESIGN.md.
type UserLimiter struct {
	mu    sync.Mutex
	users map[string]*userUsage
	cfg   UserLimits
	now   func() time.Time
}

// NewUserLimiter returns a dual limiter with the given limits.
func NewUserLimiter(cfg UserLimits, opts ...Option) *UserLimiter {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &UserLimiter{
		users: make(map[string]*userUsage),
		cfg:   cfg,
		now:   o.now,
	}
}

// ConsumeTokens adds n to the user's token counter for the current window
// and only then checks the total. On an exceeded limit the incremented
// counter stays in place and a *LimitError is returned.
func (l *UserLimiter) ConsumeTokens(userID string, n int) error {
	if n < 0 {
		n = 0
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.user(userID)
	rollWindow(&u.tokens, now, l.cfg.TokenWindow)
	u.tokens.used = saturatingAdd(u.tokens.used, n)

	if u.tokens.used > l.cfg.MaxTokens {
		return &LimitError{
			Dimension: DimensionTokens,
			Limit:     l.cfg.MaxTokens,
			Used:      u.tokens.used,
			ResetAt:   u.tokens.resetAt,
		}
	}
	return nil
}

// CheckRequest records one request for the user and then checks the
// request count against the limit, mirroring ConsumeTokens.
func (l *UserLimiter) CheckRequest(userID string) error {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.user(userID)
	rollWindow(&u.requests, now, l.cfg.RequestWindow)
	u.requests.used++

	if u.requests.used > l.cfg.MaxRequests {
		return &LimitError{
			Dimension: DimensionRequests,
			Limit:     l.cfg.MaxRequests,
			Used:      u.requests.used,
			ResetAt:   u.requests.resetAt,
		}
	}
	return nil
}

// Usage returns used/remaining/reset for both dimensions. A user with no
// recorded activity reports full quotas. Pure read: it never allocates an
// entry or starts a window, so the first consumption after a read still
// opens its own window.
func (l *UserLimiter) Usage(userID string) Usage {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	var u userUsage
	if cur, ok := l.users[userID]; ok {
		u = *cur
	}

	return Usage{
		Tokens:   dimensionUsage(meterView(u.tokens, now, l.cfg.TokenWindow), l.cfg.MaxTokens),
		Requests: dimensionUsage(meterView(u.requests, now, l.cfg.RequestWindow), l.cfg.MaxRequests),
	}
}

// Sweep removes users whose windows have both elapsed, bounding memory.
func (l *UserLimiter) Sweep() {
	now := l.now()
	l.mu.Lock()
	for id, u := range l.users {
		if !now.Before(u.tokens.resetAt) && !now.Before(u.requests.resetAt) {
			delete(l.users, id)
		}
	}
	l.mu.Unlock()
}

// Size reports the number of tracked users.
func (l *UserLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}

func (l *UserLimiter) user(userID string) *userUsage {
	u, ok := l.users[userID]
	if !ok {
		u = &userUsage{}
		l.users[userID] = u
	}
	return u
}

// rollWindow resets a meter whose window has elapsed. The two dimensions
// roll independently; exhaustion in one never blocks the other.
func rollWindow(m *meter, now time.Time, window time.Duration) {
	if m.resetAt.IsZero() || !now.Before(m.resetAt) {
		m.used = 0
		m.resetAt = now.Add(window)
	}
}

// meterView is what a meter would show if it rolled right now, computed
// without touching stored state. Absent and elapsed windows read as empty
// with the reset a full window away.
func meterView(m meter, now time.Time, window time.Duration) meter {
	if m.resetAt.IsZero() || !now.Before(m.resetAt) {
		return meter{resetAt: now.Add(window)}
	}
	return m
}

// saturatingAdd caps the sum at math.MaxInt. A charge large enough to
// wrap the counter negative would otherwise reopen an exhausted quota.
func saturatingAdd(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

func dimensionUsage(m meter, limit int) DimensionUsage {
	remaining := limit - m.used
	if remaining < 0 {
		remaining = 0
	}
	return DimensionUsage{
		Used:      m.used,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   m.resetAt,
	}
}

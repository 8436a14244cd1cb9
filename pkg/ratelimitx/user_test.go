package ratelimitx_test

import (
	"math"
	"testing"
	"time"

	"github.com/driftlock/gateway/pkg/ratelimitx"
	"github.com/stretchr/testify/require"
)

func userLimiter(now *time.Time, cfg ratelimitx.UserLimits) *ratelimitx.UserLimiter {
	return ratelimitx.NewUserLimiter(cfg, ratelimitx.WithClock(func() time.Time { return *now }))
}

func TestUserLimiter_ConsumeExactQuota(t *testing.T) {
	now := time.Now()
	l := userLimiter(&now, ratelimitx.UserLimits{
		MaxTokens: 1000, TokenWindow: time.Hour,
		MaxRequests: 60, RequestWindow: time.Minute,
	})

	// Consuming exactly the remaining quota succeeds and zeroes remaining.
	require.NoError(t, l.ConsumeTokens("u1", 1000))
	usage := l.Usage("u1")
	require.Equal(t, 1000, usage.Tokens.Used)
	require.Equal(t, 0, usage.Tokens.Remaining)

	// One more token now fails, while usage still reflects the charge.
	err := l.ConsumeTokens("u1", 1)
	var limitErr *ratelimitx.LimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, ratelimitx.DimensionTokens, limitErr.Dimension)
	require.Equal(t, 1001, limitErr.Used)
	require.Equal(t, 1001, l.Usage("u1").Tokens.Used)
}

func TestUserLimiter_ChargeThenReject(t *testing.T) {
	// 999 then 2 against a 1000 limit: the second call is charged to 1001
	// first and only then rejected.
	now := time.Now()
	l := userLimiter(&now, ratelimitx.UserLimits{
		MaxTokens: 1000, TokenWindow: time.Hour,
		MaxRequests: 60, RequestWindow: time.Minute,
	})

	require.NoError(t, l.ConsumeTokens("u1", 999))

	err := l.ConsumeTokens("u1", 2)
	var limitErr *ratelimitx.LimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, 1001, limitErr.Used)
	require.Equal(t, 1000, limitErr.Limit)

	usage := l.Usage("u1")
	require.Equal(t, 1001, usage.Tokens.Used)
	require.Equal(t, 0, usage.Tokens.Remaining)
}

func TestUserLimiter_RequestDimension(t *testing.T) {
	now := time.Now()
	l := userLimiter(&now, ratelimitx.UserLimits{
		MaxTokens: 1000, TokenWindow: time.Hour,
		MaxRequests: 2, RequestWindow: time.Minute,
	})

	require.NoError(t, l.CheckRequest("u1"))
	require.NoError(t, l.CheckRequest("u1"))

	err := l.CheckRequest("u1")
	var limitErr *ratelimitx.LimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, ratelimitx.DimensionRequests, limitErr.Dimension)
	require.Equal(t, 3, limitErr.Used)
}

func TestUserLimiter_DimensionsAreIndependent(t *testing.T) {
	now := time.Now()
	l := userLimiter(&now, ratelimitx.UserLimits{
		MaxTokens: 10, TokenWindow: time.Hour,
		MaxRequests: 100, RequestWindow: time.Minute,
	})

	// Exhaust tokens; requests must remain unaffected.
	require.Error(t, l.ConsumeTokens("u1", 11))
	require.NoError(t, l.CheckRequest("u1"))

	usage := l.Usage("u1")
	require.Equal(t, 0, usage.Tokens.Remaining)
	require.Equal(t, 99, usage.Requests.Remaining)
}

func TestUserLimiter_WindowsResetIndependently(t *testing.T) {
	now := time.Now()
	l := userLimiter(&now, ratelimitx.UserLimits{
		MaxTokens: 100, TokenWindow: time.Hour,
		MaxRequests: 1, RequestWindow: time.Minute,
	})

	require.NoError(t, l.ConsumeTokens("u1", 50))
	require.NoError(t, l.CheckRequest("u1"))
	require.Error(t, l.CheckRequest("u1"))

	// The request window elapses; the token window has not.
	now = now.Add(2 * time.Minute)

	require.NoError(t, l.CheckRequest("u1"))
	usage := l.Usage("u1")
	require.Equal(t, 50, usage.Tokens.Used, "token counter must survive the request reset")
	require.Equal(t, 1, usage.Requests.Used)
}

func TestUserLimiter_UsersAreIndependent(t *testing.T) {
	now := time.Now()
	l := userLimiter(&now, ratelimitx.UserLimits{
		MaxTokens: 10, TokenWindow: time.Hour,
		MaxRequests: 10, RequestWindow: time.Minute,
	})

	require.Error(t, l.ConsumeTokens("u1", 11))
	require.NoError(t, l.ConsumeTokens("u2", 5))
}

func TestUserLimiter_HugeChargesSaturate(t *testing.T) {
	// Repeated maximal charges must pin the counter at the ceiling, never
	// wrap it negative and reopen an exhausted quota.
	now := time.Now()
	l := userLimiter(&now, ratelimitx.UserLimits{
		MaxTokens: 1000, TokenWindow: time.Hour,
		MaxRequests: 60, RequestWindow: time.Minute,
	})

	require.Error(t, l.ConsumeTokens("u1", math.MaxInt))
	require.Error(t, l.ConsumeTokens("u1", math.MaxInt))

	usage := l.Usage("u1")
	require.Equal(t, math.MaxInt, usage.Tokens.Used)
	require.Equal(t, 0, usage.Tokens.Remaining)

	var limitErr *ratelimitx.LimitError
	require.ErrorAs(t, l.ConsumeTokens("u1", 500), &limitErr,
		"quota must stay exhausted after overflow-sized charges")
	require.Equal(t, math.MaxInt, limitErr.Used)
}

func TestUserLimiter_NegativeChargeIsIgnored(t *testing.T) {
	now := time.Now()
	l := userLimiter(&now, ratelimitx.UserLimits{
		MaxTokens: 100, TokenWindow: time.Hour,
		MaxRequests: 10, RequestWindow: time.Minute,
	})

	require.NoError(t, l.ConsumeTokens("u1", 60))
	require.NoError(t, l.ConsumeTokens("u1", -1000))
	require.Equal(t, 60, l.Usage("u1").Tokens.Used)
}

func TestUserLimiter_UsageIsReadOnly(t *testing.T) {
	now := time.Now()
	l := userLimiter(&now, ratelimitx.UserLimits{
		MaxTokens: 100, TokenWindow: time.Hour,
		MaxRequests: 10, RequestWindow: time.Minute,
	})

	// A read must not allocate the user or start its windows.
	_ = l.Usage("u1")
	require.Equal(t, 0, l.Size())

	// The first consumption opens its own window at consumption time, not
	// at the time of the earlier read.
	readAt := now
	now = now.Add(30 * time.Minute)
	require.NoError(t, l.ConsumeTokens("u1", 1))

	usage := l.Usage("u1")
	require.Equal(t, now.Add(time.Hour), usage.Tokens.ResetAt)
	require.True(t, usage.Tokens.ResetAt.After(readAt.Add(time.Hour)))
}

func TestUserLimiter_UsageForUnknownUser(t *testing.T) {
	now := time.Now()
	l := userLimiter(&now, ratelimitx.UserLimits{
		MaxTokens: 100, TokenWindow: time.Hour,
		MaxRequests: 10, RequestWindow: time.Minute,
	})

	usage := l.Usage("nobody")
	require.Equal(t, 100, usage.Tokens.Remaining)
	require.Equal(t, 10, usage.Requests.Remaining)
	require.True(t, usage.Tokens.ResetAt.After(now))
}

func TestLimitError_RetryAfter(t *testing.T) {
	now := time.Now()
	e := &ratelimitx.LimitError{ResetAt: now.Add(30 * time.Second)}
	require.GreaterOrEqual(t, e.RetryAfter(now), 30)

	// Never below one second, even for an already-elapsed window.
	e = &ratelimitx.LimitError{ResetAt: now.Add(-time.Second)}
	require.Equal(t, 1, e.RetryAfter(now))
}

func TestUserLimiter_Sweep(t *testing.T) {
	now := time.Now()
	l := userLimiter(&now, ratelimitx.UserLimits{
		MaxTokens: 100, TokenWindow: time.Minute,
		MaxRequests: 10, RequestWindow: time.Minute,
	})

	require.NoError(t, l.ConsumeTokens("u1", 1))
	require.Equal(t, 1, l.Size())

	now = now.Add(2 * time.Minute)
	l.Sweep()
	require.Equal(t, 0, l.Size())
}

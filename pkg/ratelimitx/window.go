// Package ratelimitx implements the gateway's two rate-limiting layers:
// a sliding-window limiter guarding the token-exchange endpoint and a
// dual token/request limiter metering authenticated users.
//
// All state is per-process. A horizontally scaled deployment either pins
// clients to an instance or accepts per-instance limiting.
package ratelimitx

import (
	"sync"
	"time"
)

// WindowConfig configures the sliding-window exchange limiter.
type WindowConfig struct {
	// Max is the number of hits allowed per window.
	Max int
	// Window is the accounting window length.
	Window time.Duration
	// SkipSuccessful stops successful requests from counting toward the
	// limit. Useful when only failures (e.g. bad tokens) should be throttled.
	SkipSuccessful bool
	// SkipFailed stops failed requests from counting toward the limit.
	SkipFailed bool
	// SweepInterval controls how often expired windows are removed.
	// Defaults to the window length.
	SweepInterval time.Duration
}

// Decision is the outcome of a non-mutating limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	TotalHits int
}

type windowEntry struct {
	hits    int
	resetAt time.Time
}

// WindowLimiter counts hits per key over a rolling window. Check and
// Record are split so callers decide whether to account before or after
// attempting the guarded operation.
type WindowLimiter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	cfg     WindowConfig
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// Option configures a limiter.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewWindowLimiter returns a limiter with the given configuration.
func NewWindowLimiter(cfg WindowConfig, opts ...Option) *WindowLimiter {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = cfg.Window
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &WindowLimiter{
		entries: make(map[string]*windowEntry),
		cfg:     cfg,
		now:     o.now,
		stop:    make(chan struct{}),
	}
}

// Check reports whether key is currently within its limit. It never
// mutates state; pair it with Record once the real outcome is known.
func (l *WindowLimiter) Check(key string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetAt) {
		// Fresh window: nothing counted yet.
		return Decision{
			Allowed:   l.cfg.Max > 0,
			Remaining: l.cfg.Max,
			ResetAt:   now.Add(l.cfg.Window),
		}
	}

	remaining := l.cfg.Max - e.hits
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   e.hits < l.cfg.Max,
		Remaining: remaining,
		ResetAt:   e.resetAt,
		TotalHits: e.hits,
	}
}

// Record accounts one request for key. The success flag interacts with
// the skip configuration: a skipped outcome leaves the counter untouched.
func (l *WindowLimiter) Record(key string, success bool) {
	if success && l.cfg.SkipSuccessful {
		return
	}
	if !success && l.cfg.SkipFailed {
		return
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetAt) {
		// A hit outside the current window resets the counter.
		l.entries[key] = &windowEntry{hits: 1, resetAt: now.Add(l.cfg.Window)}
		return
	}
	e.hits++
}

// StartSweeper launches the background removal of expired windows to
// bound memory. Call Stop on shutdown.
func (l *WindowLimiter) StartSweeper() {
	go func() {
		ticker := time.NewTicker(l.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-l.stop:
				return
			}
		}
	}()
}

// Stop terminates the background sweeper.
func (l *WindowLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Sweep removes expired window entries to bound memory.
func (l *WindowLimiter) Sweep() {
	now := l.now()
	l.mu.Lock()
	for key, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, key)
		}
	}
	l.mu.Unlock()
}

// Size reports the number of tracked keys. Test and introspection hook.
func (l *WindowLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

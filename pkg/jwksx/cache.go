package jwksx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/driftlock/gateway/pkg/singleflight"
)

var (
	// ErrCooldown is returned when an issuer's last fetch failed recently
	// and no stale key set is available to fall back on.
	ErrCooldown = errors.New("jwksx: issuer fetch in cooldown")

	// ErrUnknownKID is returned when a kid is absent from the issuer's key
	// set. Repeats of the same kid are refused without a network fetch for
	// the kid cooldown window, since an attacker can vary kid freely to
	// force refreshes.
	ErrUnknownKID = errors.New("jwksx: unknown kid")
)

const (
	// DefaultMaxAge is how long a fetched key set is reused before a
	// background-style refresh on next use.
	DefaultMaxAge = 24 * time.Hour

	// DefaultFetchTimeout bounds a single JWKS fetch. Kept sub-second so a
	// dead endpoint fails verification fast instead of hanging it.
	DefaultFetchTimeout = 800 * time.Millisecond

	// DefaultCooldown is how long lookups short-circuit after a failed
	// fetch, serving stale keys if any exist.
	DefaultCooldown = 10 * time.Minute

	// DefaultKidCooldown suppresses repeat fetches for one unknown kid.
	DefaultKidCooldown = 10 * time.Minute
)

// URLResolver maps an issuer to its JWKS endpoint.
type URLResolver func(issuer string) string

// WellKnownURL is the default URLResolver: issuer + /.well-known/jwks.json.
func WellKnownURL(issuer string) string {
	return strings.TrimRight(issuer, "/") + "/.well-known/jwks.json"
}

type entry struct {
	set      *KeySet
	cachedAt time.Time
	failedAt time.Time
}

// Cache is a per-issuer JWKS cache. All maps are per-process state; in a
// horizontally scaled deployment each instance caches independently.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	badKids map[string]time.Time // kid -> first seen

	flight *singleflight.Group[string, *KeySet]

	client      *http.Client
	resolveURL  URLResolver
	maxAge      time.Duration
	timeout     time.Duration
	cooldown    time.Duration
	kidCooldown time.Duration
	logger      *slog.Logger
	observe     func(issuer string, err error)
	now         func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithHTTPClient overrides the HTTP client used for fetches.
func WithHTTPClient(c *http.Client) Option { return func(cc *Cache) { cc.client = c } }

// WithURLResolver overrides how issuer strings map to JWKS URLs.
func WithURLResolver(r URLResolver) Option { return func(cc *Cache) { cc.resolveURL = r } }

// WithMaxAge overrides how long a key set is reused.
func WithMaxAge(d time.Duration) Option { return func(cc *Cache) { cc.maxAge = d } }

// WithFetchTimeout overrides the per-fetch timeout.
func WithFetchTimeout(d time.Duration) Option { return func(cc *Cache) { cc.timeout = d } }

// WithCooldown overrides the failed-fetch cooldown window.
func WithCooldown(d time.Duration) Option { return func(cc *Cache) { cc.cooldown = d } }

// WithKidCooldown overrides the unknown-kid cooldown window.
func WithKidCooldown(d time.Duration) Option { return func(cc *Cache) { cc.kidCooldown = d } }

// WithLogger attaches a logger for fetch failures.
func WithLogger(l *slog.Logger) Option { return func(cc *Cache) { cc.logger = l } }

// WithFetchObserver registers a callback invoked once per real fetch,
// after it settles. Coalesced waiters do not trigger it.
func WithFetchObserver(f func(issuer string, err error)) Option {
	return func(cc *Cache) { cc.observe = f }
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option { return func(cc *Cache) { cc.now = now } }

// NewCache returns a Cache with the given options applied over defaults.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries:     make(map[string]*entry),
		badKids:     make(map[string]time.Time),
		flight:      singleflight.New[string, *KeySet](),
		client:      &http.Client{},
		resolveURL:  WellKnownURL,
		maxAge:      DefaultMaxAge,
		timeout:     DefaultFetchTimeout,
		cooldown:    DefaultCooldown,
		kidCooldown: DefaultKidCooldown,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KeySet returns the cached key set for issuer, fetching it if absent or
// older than the max age. Concurrent callers for one issuer share a single
// fetch and receive the identical result or error.
func (c *Cache) KeySet(issuer string) (*KeySet, error) {
	now := c.now()

	c.mu.Lock()
	e := c.entries[issuer]
	if e != nil && e.set != nil && now.Sub(e.cachedAt) < c.maxAge {
		set := e.set
		c.mu.Unlock()
		return set, nil
	}
	// Failed recently: serve stale if we have it, fail fast otherwise.
	if e != nil && !e.failedAt.IsZero() && now.Sub(e.failedAt) < c.cooldown {
		if e.set != nil {
			set := e.set
			c.mu.Unlock()
			return set, nil
		}
		c.mu.Unlock()
		return nil, ErrCooldown
	}
	c.mu.Unlock()

	return c.refresh(issuer)
}

// Key resolves a kid against the issuer's key set. A kid missing from a
// fresh set forces exactly one refresh; if it is still missing, the kid
// enters its own cooldown and later lookups fail without network traffic.
func (c *Cache) Key(issuer, kid string) (any, error) {
	now := c.now()

	c.mu.Lock()
	if seen, ok := c.badKids[kid]; ok {
		if now.Sub(seen) < c.kidCooldown {
			c.mu.Unlock()
			return nil, fmt.Errorf("%w: %q (cooldown)", ErrUnknownKID, kid)
		}
		delete(c.badKids, kid)
	}
	c.mu.Unlock()

	set, err := c.KeySet(issuer)
	if err != nil {
		return nil, err
	}
	if key, err := set.Key(kid); err == nil {
		return key, nil
	}

	// Unknown kid against a cached set: maybe the issuer rotated keys
	// since we fetched. Refresh once, then give up and track the kid.
	set, err = c.refresh(issuer)
	if err == nil {
		if key, kerr := set.Key(kid); kerr == nil {
			return key, nil
		}
	}

	c.mu.Lock()
	c.badKids[kid] = c.now()
	c.mu.Unlock()
	return nil, fmt.Errorf("%w: %q", ErrUnknownKID, kid)
}

// refresh fetches the issuer's key set, coalescing concurrent refreshes.
// The fetch runs under its own timeout, detached from caller contexts:
// a caller that gives up must not cancel a fetch other waiters share.
func (c *Cache) refresh(issuer string) (*KeySet, error) {
	set, err := c.flight.Do(issuer, func() (*KeySet, error) {
		// Re-check the cooldown under the flight: a forced refresh (unknown
		// kid) must not bypass the bound on fetches to a failing endpoint.
		c.mu.Lock()
		if e := c.entries[issuer]; e != nil && !e.failedAt.IsZero() && c.now().Sub(e.failedAt) < c.cooldown {
			stale := e.set
			c.mu.Unlock()
			if stale != nil {
				return stale, nil
			}
			return nil, ErrCooldown
		}
		c.mu.Unlock()

		fetched, ferr := c.fetch(issuer)
		if c.observe != nil {
			c.observe(issuer, ferr)
		}

		c.mu.Lock()
		e := c.entries[issuer]
		if e == nil {
			e = &entry{}
			c.entries[issuer] = e
		}
		if ferr != nil {
			e.failedAt = c.now()
		} else {
			// Replace wholesale; never partially mutate a live set.
			e.set = fetched
			e.cachedAt = c.now()
			e.failedAt = time.Time{}
		}
		c.mu.Unlock()

		return fetched, ferr
	})
	if err != nil {
		if !errors.Is(err, ErrCooldown) {
			c.logger.Warn("jwks fetch failed", "issuer", issuer, "error", err)
		}
		return nil, err
	}
	return set, nil
}

func (c *Cache) fetch(issuer string) (*KeySet, error) {
	url := c.resolveURL(issuer)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("jwksx: build request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwksx: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwksx: fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("jwksx: read %s: %w", url, err)
	}

	set, err := ParseKeySet(body)
	if err != nil {
		return nil, fmt.Errorf("jwksx: parse %s: %w", url, err)
	}
	return set, nil
}

// Has reports whether a key set is cached for issuer.
func (c *Cache) Has(issuer string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[issuer]
	return ok && e.set != nil
}

// Size reports the number of cached issuers.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops all cached key sets and kid cooldowns.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.badKids = make(map[string]time.Time)
	c.mu.Unlock()
	c.flight.Clear()
}

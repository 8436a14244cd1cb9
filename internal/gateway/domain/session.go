package domain

import (
	"time"

	"github.com/driftlock/gateway/pkg/idx"
)

// Session is one minted internal session. The raw token never appears
// here: stores only ever see the fingerprint.
type Session struct {
	ID          idx.ID
	Fingerprint string // SHA-256 fingerprint of the opaque token
	UserID      string
	Provider    string // provider tag recorded at exchange time
	AuthMode    string // mode the gateway ran in when the session was minted
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the session has passed its expiry.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ExchangeRecord is one audit row for a token-exchange attempt.
type ExchangeRecord struct {
	ID        idx.ID
	UserID    string
	Provider  string
	ClientKey string // hashed rate-limit key, never a raw IP
	Outcome   string // "ok", "unauthorized", "rate_limited"
	CreatedAt time.Time
}

// Exchange outcome tags.
const (
	ExchangeOK          = "ok"
	ExchangeDenied      = "unauthorized"
	ExchangeRateLimited = "rate_limited"
)

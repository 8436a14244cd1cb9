package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded token body the gateway cares about. Immutable
// once parsed; produced by a validator's Verify and consumed by identity
// extraction. Never persisted.
type Claims struct {
	Subject  string
	Issuer   string
	Audience []string
	ExpiresAt time.Time
	IssuedAt  time.Time

	// Provider-specific fields
	OrgID           string // "org_id"
	SessionID       string // "sid"
	AuthorizedParty string // "azp"
	ActorSubject    string // "act.sub" (impersonation)
	Email           string

	// Extra carries the raw claim map for identity extraction fallbacks
	// (user_id, userId, arrays). Read-only by convention.
	Extra map[string]any
}

var ErrMalformedToken = errors.New("auth: malformed token")

// claimsFromMap lifts a verified jwt.MapClaims into Claims.
func claimsFromMap(m jwt.MapClaims) *Claims {
	c := &Claims{Extra: map[string]any(m)}

	c.Subject, _ = m.GetSubject()
	c.Issuer, _ = m.GetIssuer()
	if aud, err := m.GetAudience(); err == nil {
		c.Audience = []string(aud)
	}
	if exp, err := m.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if iat, err := m.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}

	c.OrgID, _ = m["org_id"].(string)
	c.SessionID, _ = m["sid"].(string)
	c.AuthorizedParty, _ = m["azp"].(string)
	c.Email, _ = m["email"].(string)

	// Actor claim per RFC 8693: {"act": {"sub": "..."}}
	if act, ok := m["act"].(map[string]any); ok {
		c.ActorSubject, _ = act["sub"].(string)
	}

	return c
}

// PeekIssuer decodes the token's issuer claim WITHOUT verifying the
// signature. Used for validator selection and best-effort rate-limit
// keying only; never trust it for authorization.
func PeekIssuer(token string) (string, error) {
	claims, err := PeekClaims(token)
	if err != nil {
		return "", err
	}
	return claims.Issuer, nil
}

// PeekClaims decodes a token body without signature verification.
func PeekClaims(token string) (*Claims, error) {
	parser := jwt.NewParser()
	m := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, m); err != nil {
		return nil, ErrMalformedToken
	}
	return claimsFromMap(m), nil
}

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// InternalValidator handles tokens the gateway minted itself: HS256 over
// the internal signing secret, issuer fixed to the gateway's own issuer
// string. Used for anonymous/internal mode and service-to-service calls.
type InternalValidator struct {
	baseIdentity

	issuer string
	secret []byte
}

// NewInternalValidator builds the validator for the gateway's own tokens.
func NewInternalValidator(issuer string, secret []byte) *InternalValidator {
	return &InternalValidator{issuer: issuer, secret: secret}
}

func (v *InternalValidator) Name() string { return "internal" }

// CanHandle claims only tokens whose (unverified) issuer equals the
// gateway's internal issuer string.
func (v *InternalValidator) CanHandle(token string) bool {
	iss, err := PeekIssuer(token)
	return err == nil && iss == v.issuer
}

func (v *InternalValidator) Verify(_ context.Context, token string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithLeeway(clockLeeway),
		jwt.WithExpirationRequired(),
	)

	m := jwt.MapClaims{}
	tok, err := parser.ParseWithClaims(token, m, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("internal token: %w", err)
	}
	if !tok.Valid {
		return nil, fmt.Errorf("internal token: invalid claims")
	}
	return claimsFromMap(m), nil
}

// Mint issues a short-lived internal token. Mostly useful in anonymous
// mode and tests; external callers go through the exchange endpoint.
func (v *InternalValidator) Mint(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": v.issuer,
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	signed, err := tok.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("mint internal token: %w", err)
	}
	return signed, nil
}

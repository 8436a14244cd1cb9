package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/driftlock/gateway/pkg/jwksx"
	"github.com/golang-jwt/jwt/v5"
)

// defaultAlgorithms are the signature algorithms accepted from external
// providers unless the operator narrows them. Symmetric algorithms are
// deliberately absent: a remote JWKS never justifies HS256.
var defaultAlgorithms = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "EdDSA"}

// ExternalJWKSValidator verifies tokens from a provider configured by
// issuer URL, resolving signing keys through the shared JWKS cache.
type ExternalJWKSValidator struct {
	baseIdentity

	issuer     string
	audience   string
	algorithms []string
	keys       *jwksx.Cache
}

// NewExternalJWKSValidator builds a validator bound to one issuer.
// An empty algorithms slice means the default asymmetric set.
func NewExternalJWKSValidator(issuer, audience string, algorithms []string, keys *jwksx.Cache) *ExternalJWKSValidator {
	if len(algorithms) == 0 {
		algorithms = defaultAlgorithms
	}
	return &ExternalJWKSValidator{
		issuer:     issuer,
		audience:   audience,
		algorithms: algorithms,
		keys:       keys,
	}
}

func (v *ExternalJWKSValidator) Name() string { return "external-jwks" }

// CanHandle claims tokens whose unverified issuer matches the configured
// issuer URL.
func (v *ExternalJWKSValidator) CanHandle(token string) bool {
	iss, err := PeekIssuer(token)
	return err == nil && iss == v.issuer
}

func (v *ExternalJWKSValidator) Verify(ctx context.Context, token string) (*Claims, error) {
	return verifyViaJWKS(ctx, token, v.issuer, v.audience, v.algorithms, v.keys)
}

// verifyViaJWKS is the shared verification path for every validator that
// resolves keys from a remote key set.
func verifyViaJWKS(_ context.Context, token, issuer, audience string, algorithms []string, keys *jwksx.Cache) (*Claims, error) {
	if len(algorithms) == 0 {
		algorithms = defaultAlgorithms
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(algorithms),
		jwt.WithIssuer(issuer),
		jwt.WithLeeway(clockLeeway),
		jwt.WithExpirationRequired(),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	parser := jwt.NewParser(opts...)

	m := jwt.MapClaims{}
	tok, err := parser.ParseWithClaims(token, m, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid header")
		}
		// Key resolution may hit the network; the cache applies its own
		// short timeout and failure cooldown.
		return keys.Key(issuer, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("jwks verification: %w", err)
	}
	if !tok.Valid {
		return nil, errors.New("jwks verification: invalid claims")
	}
	return claimsFromMap(m), nil
}

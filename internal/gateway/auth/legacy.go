package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// LegacyKeyValidator verifies tokens against a single operator-supplied
// public key or shared secret. Used when a provider is configured by
// static key material rather than by issuer URL, so there is no JWKS to
// consult.
type LegacyKeyValidator struct {
	baseIdentity

	audience  string
	algorithm string
	key       any // *rsa.PublicKey | *ecdsa.PublicKey | ed25519.PublicKey | []byte (HMAC)
}

// NewLegacyKeyValidator builds a validator from a PEM-encoded public key
// or, for HS* algorithms, a shared secret. Exactly one of publicKeyPEM
// and sharedSecret must be set.
func NewLegacyKeyValidator(publicKeyPEM, sharedSecret, algorithm, audience string) (*LegacyKeyValidator, error) {
	if algorithm == "" {
		if sharedSecret != "" {
			algorithm = "HS256"
		} else {
			algorithm = "RS256"
		}
	}

	v := &LegacyKeyValidator{audience: audience, algorithm: algorithm}

	switch {
	case sharedSecret != "":
		if !strings.HasPrefix(algorithm, "HS") {
			return nil, fmt.Errorf("auth: shared secret requires an HS* algorithm, got %s", algorithm)
		}
		v.key = []byte(sharedSecret)

	case publicKeyPEM != "":
		key, err := parsePublicKeyPEM(publicKeyPEM, algorithm)
		if err != nil {
			return nil, err
		}
		v.key = key

	default:
		return nil, errors.New("auth: legacy validator needs a public key or shared secret")
	}

	return v, nil
}

func (v *LegacyKeyValidator) Name() string { return "legacy-key" }

// CanHandle accepts any structurally well-formed JWT. In legacy mode this
// validator is the only external one in the chain, so there is nothing to
// disambiguate by issuer.
func (v *LegacyKeyValidator) CanHandle(token string) bool {
	_, err := PeekClaims(token)
	return err == nil
}

func (v *LegacyKeyValidator) Verify(_ context.Context, token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.algorithm}),
		jwt.WithLeeway(clockLeeway),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	parser := jwt.NewParser(opts...)

	m := jwt.MapClaims{}
	tok, err := parser.ParseWithClaims(token, m, func(t *jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("legacy key verification: %w", err)
	}
	if !tok.Valid {
		return nil, errors.New("legacy key verification: invalid claims")
	}
	return claimsFromMap(m), nil
}

// parsePublicKeyPEM decodes PEM key material appropriate to the algorithm.
func parsePublicKeyPEM(pemStr, algorithm string) (any, error) {
	pemBytes := []byte(pemStr)
	switch {
	case strings.HasPrefix(algorithm, "RS"), strings.HasPrefix(algorithm, "PS"):
		key, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("auth: parse RSA public key: %w", err)
		}
		return key, nil
	case strings.HasPrefix(algorithm, "ES"):
		key, err := jwt.ParseECPublicKeyFromPEM(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("auth: parse EC public key: %w", err)
		}
		return key, nil
	case algorithm == "EdDSA":
		key, err := jwt.ParseEdPublicKeyFromPEM(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("auth: parse Ed25519 public key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("auth: unsupported legacy algorithm %s", algorithm)
	}
}

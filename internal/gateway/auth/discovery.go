package auth

import (
	"context"
	"log/slog"

	"github.com/driftlock/gateway/internal/gateway/domain"
	"github.com/driftlock/gateway/pkg/jwksx"
)

// DiscoveryValidator is a development convenience: it classifies a
// token's (unverified) issuer against the known provider patterns and,
// on a match, verifies through that issuer's JWKS. It lets a developer
// point the gateway at a provider nobody configured yet and keep
// iterating. Never enabled outside the development environment.
type DiscoveryValidator struct {
	baseIdentity

	keys   *jwksx.Cache
	logger *slog.Logger
}

// NewDiscoveryValidator builds the auto-discovery validator.
func NewDiscoveryValidator(keys *jwksx.Cache, logger *slog.Logger) *DiscoveryValidator {
	return &DiscoveryValidator{keys: keys, logger: logger}
}

func (v *DiscoveryValidator) Name() string { return "auto-discovery" }

// CanHandle accepts any token whose issuer classifies as a known
// JWKS-publishing provider. Supabase is excluded: its tokens are HS256
// over a project secret, which discovery has no way to obtain.
func (v *DiscoveryValidator) CanHandle(token string) bool {
	iss, err := PeekIssuer(token)
	if err != nil {
		return false
	}
	switch Classify(iss) {
	case domain.ProviderClerk, domain.ProviderAuth0, domain.ProviderFirebase, domain.ProviderOIDC:
		return true
	default:
		return false
	}
}

func (v *DiscoveryValidator) Verify(ctx context.Context, token string) (*Claims, error) {
	iss, err := PeekIssuer(token)
	if err != nil {
		return nil, ErrMalformedToken
	}

	kind := Classify(iss)
	v.logger.Debug("auto-discovery classified issuer",
		"issuer", iss, "provider", string(kind))

	return verifyViaJWKS(ctx, token, iss, "", nil, v.keys)
}

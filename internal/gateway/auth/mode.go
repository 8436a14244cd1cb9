package auth

import (
	"fmt"
	"log/slog"

	"github.com/driftlock/gateway/internal/gateway/domain"
	"github.com/driftlock/gateway/pkg/jwksx"
)

// Mode is the gateway's authentication posture, decided once at startup
// from what the operator configured.
type Mode string

const (
	// ModeConfiguredIssuer verifies against a single configured provider
	// (issuer URL plus JWKS, or a provider-specific variant like Clerk).
	ModeConfiguredIssuer Mode = "configured-issuer"
	// ModeLegacyKey verifies against static key material with no issuer URL.
	ModeLegacyKey Mode = "legacy-key"
	// ModeAutoDiscovery accepts tokens from any recognizable provider.
	// Development only.
	ModeAutoDiscovery Mode = "auto-discovery"
	// ModeAnonymous skips external verification entirely; every caller
	// becomes the anonymous user unless they present an internal token.
	ModeAnonymous Mode = "anonymous"
)

// EnvDevelopment is the environment name that unlocks auto-discovery.
const EnvDevelopment = "development"

// Config is everything BuildChain needs to decide the mode and construct
// the validators. Provider carries the operator's BYOA material; the
// internal issuer and secret always exist.
type Config struct {
	Environment    string
	InternalIssuer string
	InternalSecret []byte

	Provider domain.ProviderConfig
}

// DetectMode picks the authentication mode from the configuration.
// Priority is strict: a configured issuer beats legacy key material,
// which beats auto-discovery, which is only available in development.
// Everything else falls through to anonymous.
func DetectMode(cfg Config) Mode {
	p := cfg.Provider
	switch {
	case p.IssuerURL != "" || p.ProjectID != "":
		return ModeConfiguredIssuer
	case p.PublicKeyPEM != "" || p.SharedSecret != "" || p.JWTSecret != "":
		return ModeLegacyKey
	case cfg.Environment == EnvDevelopment:
		return ModeAutoDiscovery
	default:
		return ModeAnonymous
	}
}

// BuildChain constructs the validator chain for the detected mode and
// logs the decision with secrets redacted to booleans.
func BuildChain(cfg Config, keys *jwksx.Cache, logger *slog.Logger) (*Chain, Mode, error) {
	mode := DetectMode(cfg)
	internal := NewInternalValidator(cfg.InternalIssuer, cfg.InternalSecret)

	var validators []Validator
	switch mode {
	case ModeConfiguredIssuer:
		// A configured provider owns verification outright; the internal
		// validator stays out so the operator's issuer is the only path in.
		v, err := configuredValidator(cfg.Provider, keys)
		if err != nil {
			return nil, mode, err
		}
		validators = []Validator{v}

	case ModeLegacyKey:
		p := cfg.Provider
		secret := p.SharedSecret
		if secret == "" {
			// Supabase configures a project JWT secret; it is just HS256.
			secret = p.JWTSecret
		}
		v, err := NewLegacyKeyValidator(p.PublicKeyPEM, secret, p.Algorithm, p.Audience)
		if err != nil {
			return nil, mode, err
		}
		validators = []Validator{v}

	case ModeAutoDiscovery:
		validators = []Validator{
			NewClerkValidator(cfg.Provider.AuthorizedParties, keys),
			NewDiscoveryValidator(keys, logger),
			internal,
		}

	case ModeAnonymous:
		validators = []Validator{internal}
	}

	logger.Info("authentication mode selected",
		"mode", string(mode),
		"env", cfg.Environment,
		"issuer", cfg.Provider.IssuerURL,
		"firebase_project", cfg.Provider.ProjectID,
		"has_public_key", cfg.Provider.PublicKeyPEM != "",
		"has_shared_secret", cfg.Provider.SharedSecret != "" || cfg.Provider.JWTSecret != "",
		"authorized_parties", len(cfg.Provider.AuthorizedParties),
	)

	return NewChain(logger, validators...), mode, nil
}

// configuredValidator builds the right validator for an explicitly
// configured provider, classifying its issuer to pick Clerk-specific
// handling when the issuer lives on a Clerk domain.
func configuredValidator(p domain.ProviderConfig, keys *jwksx.Cache) (Validator, error) {
	if p.ProjectID != "" && p.IssuerURL == "" {
		// Firebase derives both issuer and audience from the project id.
		issuer := "https://securetoken.google.com/" + p.ProjectID
		return NewExternalJWKSValidator(issuer, p.ProjectID, nil, keys), nil
	}

	switch Classify(p.IssuerURL) {
	case domain.ProviderUnknown:
		return nil, fmt.Errorf("auth: issuer %q is not a valid https URL", p.IssuerURL)
	case domain.ProviderClerk:
		return NewClerkValidator(p.AuthorizedParties, keys), nil
	default:
		return NewExternalJWKSValidator(p.IssuerURL, p.Audience, nil, keys), nil
	}
}

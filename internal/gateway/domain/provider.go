package domain

// ProviderKind classifies an external issuer URL. It is a closed set:
// validator construction switches over these tags explicitly rather than
// sniffing shapes at runtime.
type ProviderKind string

const (
	// ProviderClerk is Clerk, which needs session-token-aware checks on
	// top of generic JWT validation.
	ProviderClerk ProviderKind = "clerk"
	// ProviderAuth0 is Auth0.
	ProviderAuth0 ProviderKind = "auth0"
	// ProviderFirebase is Firebase Authentication.
	ProviderFirebase ProviderKind = "firebase"
	// ProviderSupabase is Supabase Auth.
	ProviderSupabase ProviderKind = "supabase"
	// ProviderOIDC is any other OIDC-compliant issuer, matched during
	// auto-discovery in development.
	ProviderOIDC ProviderKind = "custom-oidc"
	// ProviderUnknown means the issuer matched no known pattern.
	ProviderUnknown ProviderKind = "unknown"
)

// ProviderConfig carries the verification material for one configured
// provider. Only the fields for the operator's chosen setup are set; the
// rest stay zero. Loaded once at startup and immutable for the process
// lifetime.
type ProviderConfig struct {
	// external-issuer
	IssuerURL string
	Audience  string
	JWKSURL   string // optional override; defaults to issuer well-known path

	// legacy-key
	PublicKeyPEM string
	SharedSecret string
	Algorithm    string // e.g. "RS256", "HS256"

	// clerk
	AuthorizedParties []string

	// firebase
	ProjectID string

	// supabase
	JWTSecret string
}

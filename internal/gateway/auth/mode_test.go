package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseConfig() Config {
	return Config{
		Environment:    "production",
		InternalIssuer: "driftlock-gateway",
		InternalSecret: []byte("0123456789abcdef0123456789abcdef"),
	}
}

func TestDetectMode(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   Mode
	}{
		{
			name:   "nothing configured in production",
			mutate: nil,
			want:   ModeAnonymous,
		},
		{
			name:   "nothing configured in development",
			mutate: func(c *Config) { c.Environment = EnvDevelopment },
			want:   ModeAutoDiscovery,
		},
		{
			name:   "issuer URL",
			mutate: func(c *Config) { c.Provider.IssuerURL = "https://login.example.org" },
			want:   ModeConfiguredIssuer,
		},
		{
			name:   "firebase project id",
			mutate: func(c *Config) { c.Provider.ProjectID = "my-project" },
			want:   ModeConfiguredIssuer,
		},
		{
			name:   "legacy public key",
			mutate: func(c *Config) { c.Provider.PublicKeyPEM = "-----BEGIN PUBLIC KEY-----" },
			want:   ModeLegacyKey,
		},
		{
			name:   "supabase jwt secret",
			mutate: func(c *Config) { c.Provider.JWTSecret = "super-secret" },
			want:   ModeLegacyKey,
		},
		{
			name: "issuer beats legacy key",
			mutate: func(c *Config) {
				c.Provider.IssuerURL = "https://login.example.org"
				c.Provider.SharedSecret = "shhh"
			},
			want: ModeConfiguredIssuer,
		},
		{
			name: "legacy key beats auto-discovery",
			mutate: func(c *Config) {
				c.Environment = EnvDevelopment
				c.Provider.SharedSecret = "shhh"
			},
			want: ModeLegacyKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			require.Equal(t, tt.want, DetectMode(cfg))
		})
	}
}

func TestBuildChain_ValidatorSets(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "anonymous",
			mutate: nil,
			want:   []string{"internal"},
		},
		{
			name:   "auto-discovery",
			mutate: func(c *Config) { c.Environment = EnvDevelopment },
			want:   []string{"clerk", "auto-discovery", "internal"},
		},
		{
			name:   "configured generic issuer",
			mutate: func(c *Config) { c.Provider.IssuerURL = "https://login.example.org" },
			want:   []string{"external-jwks"},
		},
		{
			name:   "configured clerk issuer",
			mutate: func(c *Config) { c.Provider.IssuerURL = "https://app.clerk.accounts.dev" },
			want:   []string{"clerk"},
		},
		{
			name:   "firebase project",
			mutate: func(c *Config) { c.Provider.ProjectID = "my-project" },
			want:   []string{"external-jwks"},
		},
		{
			name:   "legacy shared secret",
			mutate: func(c *Config) { c.Provider.SharedSecret = "shhh" },
			want:   []string{"legacy-key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			chain, mode, err := BuildChain(cfg, nil, discardLogger())
			require.NoError(t, err)
			require.Equal(t, DetectMode(cfg), mode)
			require.Equal(t, tt.want, chain.Validators())
		})
	}
}

func TestBuildChain_Errors(t *testing.T) {
	t.Run("invalid issuer URL", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Provider.IssuerURL = "http://insecure.example.com"
		_, _, err := BuildChain(cfg, nil, discardLogger())
		require.Error(t, err)
	})

	t.Run("shared secret with RS algorithm", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Provider.SharedSecret = "shhh"
		cfg.Provider.Algorithm = "RS256"
		_, _, err := BuildChain(cfg, nil, discardLogger())
		require.Error(t, err)
	})
}

func TestDiscoveryValidator_CanHandle(t *testing.T) {
	s := newSigner(t, "key-1")
	v := NewDiscoveryValidator(nil, discardLogger())

	require.True(t, v.CanHandle(s.sign(t, standardClaims("https://anything.example.org", "u"))))
	require.True(t, v.CanHandle(s.sign(t, standardClaims("https://tenant.auth0.com", "u"))))
	require.False(t, v.CanHandle(s.sign(t, standardClaims("http://plain.example.org", "u"))),
		"non-https issuers are never discovered")
	require.False(t, v.CanHandle(s.sign(t, standardClaims("https://proj.supabase.co", "u"))),
		"supabase is HS256 and cannot be discovered")
	require.False(t, v.CanHandle("garbage"))
}

func TestDiscoveryValidator_Verify(t *testing.T) {
	s := newSigner(t, "key-1")
	issuer := "https://discovered.example.org"
	keys := jwksCacheFor(t, issuer, s.jwksJSON(t))
	v := NewDiscoveryValidator(keys, discardLogger())

	claims, err := v.Verify(context.Background(), s.sign(t, standardClaims(issuer, "dev-user")))
	require.NoError(t, err)
	require.Equal(t, "dev-user", claims.Subject)
}

func TestLegacyKeyValidator_SharedSecretRoundTrip(t *testing.T) {
	v, err := NewLegacyKeyValidator("", "legacy-shared-secret", "", "")
	require.NoError(t, err)
	require.Equal(t, "legacy-key", v.Name())

	// Mint an HS256 token through the internal validator machinery; the
	// legacy validator only cares about the key and algorithm.
	minter := NewInternalValidator("legacy-app", []byte("legacy-shared-secret"))
	token, err := minter.Mint("legacy-user", time.Hour)
	require.NoError(t, err)

	require.True(t, v.CanHandle(token))
	claims, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "legacy-user", claims.Subject)
}

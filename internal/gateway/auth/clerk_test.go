package auth

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const clerkIssuer = "https://sunny-mole-42.clerk.accounts.dev"

func clerkClaims(s *signer, t *testing.T, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := standardClaims(clerkIssuer, "user_2abcDEF")
	claims["sid"] = "sess_123"
	if mutate != nil {
		mutate(claims)
	}
	return s.sign(t, claims)
}

func TestClerkValidator_CanHandle(t *testing.T) {
	s := newSigner(t, "key-1")
	v := NewClerkValidator(nil, nil)

	require.True(t, v.CanHandle(clerkClaims(s, t, nil)))
	require.True(t, v.CanHandle(s.sign(t, standardClaims("https://clerk.myapp.com", "u"))))
	require.False(t, v.CanHandle(s.sign(t, standardClaims("https://login.example.org", "u"))))
	require.False(t, v.CanHandle(s.sign(t, standardClaims("http://x.clerk.accounts.dev", "u"))))
	require.False(t, v.CanHandle("garbage"))
}

func TestClerkValidator_Verify(t *testing.T) {
	s := newSigner(t, "key-1")
	keys := jwksCacheFor(t, clerkIssuer, s.jwksJSON(t))

	t.Run("valid session token", func(t *testing.T) {
		v := NewClerkValidator(nil, keys)
		claims, err := v.Verify(context.Background(), clerkClaims(s, t, nil))
		require.NoError(t, err)
		require.Equal(t, "sess_123", claims.SessionID)
		require.Equal(t, "2abcDEF", v.ExtractUserID(claims))
	})

	t.Run("missing sid rejected", func(t *testing.T) {
		v := NewClerkValidator(nil, keys)
		token := clerkClaims(s, t, func(m jwt.MapClaims) { delete(m, "sid") })
		_, err := v.Verify(context.Background(), token)
		require.ErrorContains(t, err, "sid")
	})

	t.Run("azp enforced when configured", func(t *testing.T) {
		v := NewClerkValidator([]string{"https://app.example.com"}, keys)

		token := clerkClaims(s, t, func(m jwt.MapClaims) { m["azp"] = "https://evil.example.com" })
		_, err := v.Verify(context.Background(), token)
		require.ErrorContains(t, err, "azp")

		token = clerkClaims(s, t, func(m jwt.MapClaims) { m["azp"] = "https://app.example.com" })
		_, err = v.Verify(context.Background(), token)
		require.NoError(t, err)
	})

	t.Run("absent azp passes even with allow-list", func(t *testing.T) {
		v := NewClerkValidator([]string{"https://app.example.com"}, keys)
		_, err := v.Verify(context.Background(), clerkClaims(s, t, nil))
		require.NoError(t, err)
	})
}

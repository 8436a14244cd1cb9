package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testIssuer = "https://login.example.org"

func TestExternalJWKSValidator_Verify(t *testing.T) {
	s := newSigner(t, "key-1")
	keys := jwksCacheFor(t, testIssuer, s.jwksJSON(t))
	v := NewExternalJWKSValidator(testIssuer, "", nil, keys)

	token := s.sign(t, standardClaims(testIssuer, "ext-user"))

	require.True(t, v.CanHandle(token))

	claims, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "ext-user", claims.Subject)
	require.Equal(t, testIssuer, claims.Issuer)
}

func TestExternalJWKSValidator_CanHandleOtherIssuer(t *testing.T) {
	s := newSigner(t, "key-1")
	v := NewExternalJWKSValidator(testIssuer, "", nil, nil)

	token := s.sign(t, standardClaims("https://somewhere-else.example.com", "u"))
	require.False(t, v.CanHandle(token))
}

func TestExternalJWKSValidator_RejectsExpired(t *testing.T) {
	s := newSigner(t, "key-1")
	keys := jwksCacheFor(t, testIssuer, s.jwksJSON(t))
	v := NewExternalJWKSValidator(testIssuer, "", nil, keys)

	claims := standardClaims(testIssuer, "ext-user")
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	token := s.sign(t, claims)

	_, err := v.Verify(context.Background(), token)
	require.Error(t, err)
}

func TestExternalJWKSValidator_EnforcesAudience(t *testing.T) {
	s := newSigner(t, "key-1")
	keys := jwksCacheFor(t, testIssuer, s.jwksJSON(t))
	v := NewExternalJWKSValidator(testIssuer, "my-api", nil, keys)

	t.Run("matching audience", func(t *testing.T) {
		claims := standardClaims(testIssuer, "ext-user")
		claims["aud"] = "my-api"
		_, err := v.Verify(context.Background(), s.sign(t, claims))
		require.NoError(t, err)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := standardClaims(testIssuer, "ext-user")
		claims["aud"] = "other-api"
		_, err := v.Verify(context.Background(), s.sign(t, claims))
		require.Error(t, err)
	})

	t.Run("missing audience", func(t *testing.T) {
		_, err := v.Verify(context.Background(), s.sign(t, standardClaims(testIssuer, "ext-user")))
		require.Error(t, err)
	})
}

func TestExternalJWKSValidator_UnknownKid(t *testing.T) {
	published := newSigner(t, "key-1")
	rogue := newSigner(t, "key-rogue")
	keys := jwksCacheFor(t, testIssuer, published.jwksJSON(t))
	v := NewExternalJWKSValidator(testIssuer, "", nil, keys)

	token := rogue.sign(t, standardClaims(testIssuer, "ext-user"))
	_, err := v.Verify(context.Background(), token)
	require.Error(t, err)
}

func TestExternalJWKSValidator_RejectsWrongKey(t *testing.T) {
	published := newSigner(t, "key-1")
	forger := newSigner(t, "key-1") // same kid, different key
	keys := jwksCacheFor(t, testIssuer, published.jwksJSON(t))
	v := NewExternalJWKSValidator(testIssuer, "", nil, keys)

	token := forger.sign(t, standardClaims(testIssuer, "ext-user"))
	_, err := v.Verify(context.Background(), token)
	require.Error(t, err)
}

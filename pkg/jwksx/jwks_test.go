package jwksx_test

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/driftlock/gateway/pkg/jwksx"
	"github.com/stretchr/testify/require"
)

func rsaJWK(t *testing.T, kid string) (jwksx.JWK, *rsa.PrivateKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return jwksx.JWK{
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(priv.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(priv.PublicKey.E)).Bytes()),
	}, priv
}

func marshalJWKS(t *testing.T, keys ...jwksx.JWK) []byte {
	t.Helper()
	raw, err := json.Marshal(jwksx.JWKS{Keys: keys})
	require.NoError(t, err)
	return raw
}

func TestParseKeySet_RSA(t *testing.T) {
	jwk, priv := rsaJWK(t, "key-1")

	set, err := jwksx.ParseKeySet(marshalJWKS(t, jwk))
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())

	key, err := set.Key("key-1")
	require.NoError(t, err)
	pub, ok := key.(*rsa.PublicKey)
	require.True(t, ok)
	require.Equal(t, priv.PublicKey.N, pub.N)
}

func TestParseKeySet_Ed25519(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	set, err := jwksx.ParseKeySet(marshalJWKS(t, jwksx.JWK{
		Kty: "OKP",
		Use: "sig",
		Alg: "EdDSA",
		Kid: "ed-1",
		Crv: "Ed25519",
		X:   base64.RawURLEncoding.EncodeToString(pub),
	}))
	require.NoError(t, err)

	key, err := set.Key("ed-1")
	require.NoError(t, err)
	got, ok := key.(ed25519.PublicKey)
	require.True(t, ok)
	require.Equal(t, pub, got)
}

func TestParseKeySet_EC(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	// Pad coordinates to the field size like real providers do.
	x := make([]byte, 32)
	y := make([]byte, 32)
	priv.PublicKey.X.FillBytes(x)
	priv.PublicKey.Y.FillBytes(y)

	set, err := jwksx.ParseKeySet(marshalJWKS(t, jwksx.JWK{
		Kty: "EC",
		Use: "sig",
		Alg: "ES256",
		Kid: "ec-1",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(x),
		Y:   base64.RawURLEncoding.EncodeToString(y),
	}))
	require.NoError(t, err)

	key, err := set.Key("ec-1")
	require.NoError(t, err)
	pub, ok := key.(*ecdsa.PublicKey)
	require.True(t, ok)
	require.Zero(t, pub.X.Cmp(priv.PublicKey.X))
}

func TestParseKeySet_SkipsUnusableKeys(t *testing.T) {
	jwk, _ := rsaJWK(t, "good")

	set, err := jwksx.ParseKeySet(marshalJWKS(t,
		jwk,
		jwksx.JWK{Kty: "RSA", Use: "enc", Kid: "enc-key", N: jwk.N, E: jwk.E}, // not a signing key
		jwksx.JWK{Kty: "RSA", Use: "sig", N: jwk.N, E: jwk.E},                 // missing kid
		jwksx.JWK{Kty: "oct", Use: "sig", Kid: "sym"},                         // unsupported type
	))
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	require.Equal(t, []string{"good"}, set.Kids())
}

func TestParseKeySet_Malformed(t *testing.T) {
	_, err := jwksx.ParseKeySet([]byte("{not json"))
	require.Error(t, err)
}

package cryptox_test

import (
	"encoding/base64"
	"testing"

	"github.com/driftlock/gateway/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Run("produces url-safe base64 of the right size", func(t *testing.T) {
		tok, err := cryptox.GenerateToken(cryptox.TokenSize256)
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(tok)
		require.NoError(t, err)
		require.Len(t, raw, cryptox.TokenSize256)
	})

	t.Run("rejects non-positive sizes", func(t *testing.T) {
		_, err := cryptox.GenerateToken(0)
		require.Error(t, err)
		_, err = cryptox.GenerateToken(-1)
		require.Error(t, err)
	})

	t.Run("tokens are unique", func(t *testing.T) {
		seen := make(map[string]struct{})
		for range 100 {
			tok, err := cryptox.GenerateToken(cryptox.TokenSize128)
			require.NoError(t, err)
			_, dup := seen[tok]
			require.False(t, dup, "duplicate token generated")
			seen[tok] = struct{}{}
		}
	})
}

func TestFingerprintToken(t *testing.T) {
	fp := cryptox.FingerprintToken("session-abc")
	require.Equal(t, fp, cryptox.FingerprintToken("session-abc"), "must be deterministic")
	require.NotEqual(t, fp, cryptox.FingerprintToken("session-abd"))
	require.Len(t, fp, 43) // 32 bytes base64url, no padding
}

func TestHashKey(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		require.Equal(t,
			cryptox.HashKey("user-1", "rate-limit"),
			cryptox.HashKey("user-1", "rate-limit"),
		)
	})

	t.Run("purpose separates domains", func(t *testing.T) {
		require.NotEqual(t,
			cryptox.HashKey("user-1", "rate-limit"),
			cryptox.HashKey("user-1", "session"),
		)
	})

	t.Run("distinct inputs essentially never collide", func(t *testing.T) {
		seen := make(map[string]struct{})
		for _, in := range []string{"a", "b", "ab", "ba", "", "user-1", "user-10"} {
			k := cryptox.HashKey(in, "test")
			_, dup := seen[k]
			require.False(t, dup)
			seen[k] = struct{}{}
		}
	})

	t.Run("long purpose strings are accepted", func(t *testing.T) {
		long := make([]byte, 200)
		for i := range long {
			long[i] = 'p'
		}
		require.NotPanics(t, func() { cryptox.HashKey("x", string(long)) })
	})
}

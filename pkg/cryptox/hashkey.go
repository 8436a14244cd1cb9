package cryptox

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// HashKey derives a deterministic, purpose-scoped key from an input value.
// The purpose string is mixed in as a BLAKE2b key, so the same input hashed
// for "rate-limit" and for "session" never collides. Used anywhere a raw
// user identifier or IP must not appear as a map key in logs or metrics.
//
// The result is stable under repeated application with the same inputs and
// is returned as a 32-byte base64url digest.
func HashKey(input, purpose string) string {
	// Key length must be <= 64 bytes for BLAKE2b; hash longer purposes down.
	key := []byte(purpose)
	if len(key) > 64 {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}

	h, err := blake2b.New256(key)
	if err != nil {
		// Only reachable with an invalid key length, which we normalized.
		panic(fmt.Sprintf("cryptox: blake2b init: %v", err))
	}
	_, _ = h.Write([]byte(input))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

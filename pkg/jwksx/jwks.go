// Package jwksx fetches and caches remote JSON Web Key Sets for token
// verification. Fetches are coalesced through pkg/singleflight so a burst
// of verifications against one issuer costs a single network round trip.
package jwksx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
)

// JWK represents a public key in JSON Web Key format (RFC 7517).
type JWK struct {
	Kty string `json:"kty"`           // key type: "RSA", "OKP", "EC"
	Use string `json:"use,omitempty"` // what the key is for: "sig", "enc"
	Alg string `json:"alg,omitempty"` // algorithm: "RS256", "EdDSA", "ES256"
	Kid string `json:"kid,omitempty"` // key ID

	// RSA fields
	N string `json:"n,omitempty"` // modulus (base64url)
	E string `json:"e,omitempty"` // exponent (base64url)

	// Ed25519 / OKP fields and ECDSA / EC fields
	Crv string `json:"crv,omitempty"` // curve: "Ed25519", "P-256"
	X   string `json:"x,omitempty"`   // public key or x-coordinate (base64url)
	Y   string `json:"y,omitempty"`   // y-coordinate, ECDSA only (base64url)
}

// JWKS is a JSON Web Key Set (RFC 7517).
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// KeySet is a parsed, immutable set of public keys indexed by kid.
// It is replaced wholesale on refresh, never mutated in place.
type KeySet struct {
	jwks JWKS
	pub  map[string]any // kid: *rsa.PublicKey | ed25519.PublicKey | *ecdsa.PublicKey
}

var ErrNoKey = errors.New("jwksx: key not found")

// ParseKeySet decodes a raw JWKS document into a KeySet. Keys that are
// not signing keys or use an unsupported type are skipped rather than
// failing the whole set, since providers routinely publish extras.
func ParseKeySet(raw []byte) (*KeySet, error) {
	var doc JWKS
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.New("jwksx: malformed key set document")
	}

	set := &KeySet{pub: make(map[string]any, len(doc.Keys))}
	for _, j := range doc.Keys {
		if j.Use != "" && j.Use != "sig" {
			continue
		}
		if j.Kid == "" {
			continue
		}
		key, err := parseJWKToKey(j)
		if err != nil {
			continue // skip unsupported keys
		}
		set.pub[j.Kid] = key
		set.jwks.Keys = append(set.jwks.Keys, j)
	}
	return set, nil
}

// Key returns the public key for the given kid.
func (s *KeySet) Key(kid string) (any, error) {
	if pk, ok := s.pub[kid]; ok {
		return pk, nil
	}
	return nil, ErrNoKey
}

// Len reports the number of usable keys in the set.
func (s *KeySet) Len() int { return len(s.pub) }

// Kids lists the key ids present in the set.
func (s *KeySet) Kids() []string {
	out := make([]string, 0, len(s.pub))
	for kid := range s.pub {
		out = append(out, kid)
	}
	return out
}

// parseJWKToKey converts a JWK into a crypto public key.
// Supports RSA, Ed25519 (OKP), and ECDSA (EC) key types.
func parseJWKToKey(j JWK) (any, error) {
	switch j.Kty {
	case "RSA":
		nb, err := base64.RawURLEncoding.DecodeString(j.N)
		if err != nil {
			return nil, err
		}
		eb, err := base64.RawURLEncoding.DecodeString(j.E)
		if err != nil {
			return nil, err
		}
		n := new(big.Int).SetBytes(nb)
		e := new(big.Int).SetBytes(eb).Int64()
		if e <= 0 {
			return nil, errors.New("jwksx: invalid RSA exponent")
		}
		return &rsa.PublicKey{N: n, E: int(e)}, nil

	case "OKP":
		if j.Crv != "Ed25519" {
			return nil, errors.New("jwksx: unsupported OKP curve " + j.Crv)
		}
		xb, err := base64.RawURLEncoding.DecodeString(j.X)
		if err != nil {
			return nil, err
		}
		if len(xb) != ed25519.PublicKeySize {
			return nil, errors.New("jwksx: invalid Ed25519 public key size")
		}
		return ed25519.PublicKey(xb), nil

	case "EC":
		var curve elliptic.Curve
		switch j.Crv {
		case "P-256":
			curve = elliptic.P256()
		case "P-384":
			curve = elliptic.P384()
		case "P-521":
			curve = elliptic.P521()
		default:
			return nil, errors.New("jwksx: unsupported EC curve " + j.Crv)
		}
		xb, err := base64.RawURLEncoding.DecodeString(j.X)
		if err != nil {
			return nil, err
		}
		yb, err := base64.RawURLEncoding.DecodeString(j.Y)
		if err != nil {
			return nil, err
		}
		return &ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(xb),
			Y:     new(big.Int).SetBytes(yb),
		}, nil

	default:
		return nil, errors.New("jwksx: unsupported kty " + j.Kty)
	}
}

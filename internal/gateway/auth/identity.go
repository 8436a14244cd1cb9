package auth

import "strings"

// AnonymousUserID is the identity a verified-but-unidentifiable token
// degrades to. Anonymous-tolerant endpoints accept it; callers that need
// a real identity must reject it explicitly.
const AnonymousUserID = "anonymous"

// connectorPrefixes are OAuth connector prefixes that providers prepend
// to subjects. They are stripped so the same human gets the same id no
// matter which connector they signed in through.
var connectorPrefixes = []string{
	"oauth_google|",
	"oauth_github|",
	"oauth_microsoft|",
	"google-oauth2|",
	"github|",
	"auth0|",
	"oauth2|",
}

// ExtractUserID derives a durable user identifier from verified claims.
// Priority: sub -> user_id -> userId -> first array element -> email ->
// "anonymous". The result is normalized with SanitizeUserID.
func ExtractUserID(c *Claims) string {
	if c == nil {
		return AnonymousUserID
	}

	candidates := []any{
		c.Subject,
		c.Extra["user_id"],
		c.Extra["userId"],
	}
	for _, cand := range candidates {
		if id := stringish(cand); id != "" {
			return SanitizeUserID(id)
		}
	}
	if id := stringish(c.Email); id != "" {
		return SanitizeUserID(id)
	}
	return AnonymousUserID
}

// stringish accepts a string or the first element of an array of strings.
func stringish(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		if len(t) > 0 {
			return stringish(t[0])
		}
	case []string:
		if len(t) > 0 {
			return strings.TrimSpace(t[0])
		}
	}
	return ""
}

// SanitizeUserID normalizes an extracted identifier: trims whitespace and
// strips known connector prefixes. Idempotent: applying it twice yields
// the same result.
func SanitizeUserID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return AnonymousUserID
	}
	// Strip until no prefix matches, so stacked connector prefixes cannot
	// make the result depend on how many times sanitization ran.
	for {
		stripped := false
		for _, prefix := range connectorPrefixes {
			if rest, ok := strings.CutPrefix(id, prefix); ok && rest != "" {
				id = rest
				stripped = true
				break
			}
		}
		if !stripped {
			return id
		}
	}
}

package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"strings"
	"time"
)

// Claims is a token payload. Values decoded from a verified token follow
// encoding/json rules: numbers are float64, arrays are []any.
type Claims map[string]any

// String returns the claim as a string, or "" when absent or not a string.
func (c Claims) String(name string) string {
	s, _ := c[name].(string)
	return s
}

// Strings reads a claim that may be a single string or an array of strings,
// the way "aud" is allowed to be either.
func (c Claims) Strings(name string) []string {
	switch v := c[name].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Time reads a NumericDate claim such as exp or iat.
func (c Claims) Time(name string) (time.Time, bool) {
	switch v := c[name].(type) {
	case float64:
		return time.Unix(int64(v), 0).UTC(), true
	case int64:
		return time.Unix(v, 0).UTC(), true
	case int:
		return time.Unix(int64(v), 0).UTC(), true
	default:
		return time.Time{}, false
	}
}

// Scopes splits the space-delimited "scope" claim.
func (c Claims) Scopes() []string {
	return strings.Fields(c.String(ClaimScope))
}

// HasAudience reports whether aud contains want.
func (c Claims) HasAudience(want string) bool {
	return slices.Contains(c.Strings(ClaimAudience), want)
}

// Clone returns a shallow copy safe to add claims to.
func (c Claims) Clone() Claims {
	out := make(Claims, len(c)+3)
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Registered and commonly used claim names.
const (
	ClaimIssuer    = "iss"
	ClaimSubject   = "sub"
	ClaimAudience  = "aud"
	ClaimExpiresAt = "exp"
	ClaimIssuedAt  = "iat"
	ClaimJTI       = "jti"
	ClaimScope     = "scope"
)

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

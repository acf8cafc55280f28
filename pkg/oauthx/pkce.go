package oauthx

import (
	"crypto/sha256"
	"encoding/base64"

	"github.com/aussiebroadwan/idp/pkg/cryptox"
)

// PKCE challenge methods (RFC 7636).
const (
	PKCEMethodPlain = "plain"
	PKCEMethodS256  = "S256"
)

// S256Challenge is base64url(SHA-256(verifier)) without padding.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPKCE checks verifier against the stored challenge. plain compares
// literally, S256 hashes first; any other method fails.
func VerifyPKCE(challenge, method, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	switch method {
	case PKCEMethodPlain:
		return cryptox.ConstantTimeEqualString(verifier, challenge)
	case PKCEMethodS256:
		return cryptox.ConstantTimeEqualString(S256Challenge(verifier), challenge)
	default:
		return false
	}
}

// ValidCodeVerifier checks RFC 7636 section 4.1: 43 to 128 characters from
// [A-Za-z0-9-._~].
func ValidCodeVerifier(v string) bool {
	if len(v) < 43 || len(v) > 128 {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_' || c == '~':
		default:
			return false
		}
	}
	return true
}

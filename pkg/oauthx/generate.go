package oauthx

import (
	"github.com/google/uuid"

	"github.com/aussiebroadwan/idp/pkg/cryptox"
)

// GenerateAuthorizationCode returns 256 bits of randomness, base64url encoded.
func GenerateAuthorizationCode() (string, error) {
	return cryptox.GenerateToken(cryptox.TokenSize256)
}

// GenerateClientID returns a random UUIDv4 string.
func GenerateClientID() string {
	return uuid.NewString()
}

// GenerateClientSecret returns 256 bits of randomness, base64url encoded.
func GenerateClientSecret() (string, error) {
	return cryptox.GenerateToken(cryptox.TokenSize256)
}

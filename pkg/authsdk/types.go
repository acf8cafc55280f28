package authsdk

import (
	"time"

	"github.com/aussiebroadwan/idp/pkg/jwtx"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
)

// TokenResponse is the token endpoint success body.
type TokenResponse = oauthx.TokenResponse

// IntrospectionResponse is the introspection endpoint body.
type IntrospectionResponse = oauthx.IntrospectionResponse

// RegistrationRequest is dynamic client registration metadata.
type RegistrationRequest = oauthx.RegistrationRequest

// RegistrationResponse carries the issued client credentials.
type RegistrationResponse = oauthx.RegistrationResponse

// ClientCredentials authenticate a client at the token and introspection
// endpoints. Secret is empty for public clients.
type ClientCredentials struct {
	ClientID string
	Secret   string

	// UseBasicAuth sends the credentials as HTTP Basic instead of form
	// fields.
	UseBasicAuth bool
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// SigningKeyInfo is the public metadata of a signing key.
type SigningKeyInfo struct {
	KID       string    `json:"kid"`
	Purpose   string    `json:"purpose"`
	Algorithm string    `json:"alg"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// JWKSResponse is the key set published at /.well-known/jwks.json.
type JWKSResponse = jwtx.JWKS

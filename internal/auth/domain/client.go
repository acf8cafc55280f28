package domain

import (
	"slices"
	"time"
)

// Client is a registered OAuth2 client. Secrets holds the current secret
// followed by any legacy secrets still accepted during rotation; each entry
// is either an argon2id/bcrypt hash or a clear value.
type Client struct {
	ClientID                string
	Secrets                 []string
	Name                    string
	RedirectURIs            []string
	AllowedScopes           []string
	GrantTypes              []string
	ResponseTypes           []string
	Audiences               []string
	TenantID                string
	TokenEndpointAuthMethod string
	Active                  bool
	CreatedAt               time.Time
}

// IsPublic reports whether the client has no secret to authenticate with.
func (c *Client) IsPublic() bool {
	return len(c.Secrets) == 0
}

// AllowsGrant reports whether grantType is registered for the client.
func (c *Client) AllowsGrant(grantType string) bool {
	return slices.Contains(c.GrantTypes, grantType)
}

// HasRedirectURI is an exact string match against the registered URIs.
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

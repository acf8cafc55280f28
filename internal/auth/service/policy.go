package service

import (
	"slices"
	"time"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
	"github.com/aussiebroadwan/idp/pkg/jwtx"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
)

// Policy is the server-wide protocol configuration shared by the services.
type Policy struct {
	Issuer string

	// Token lifetimes in "<int><s|m|h|d>" form.
	AccessTokenTTL  string
	RefreshTokenTTL string
	IDTokenTTL      string

	// SupportedGrants is the closed set of grant types the token endpoint
	// accepts.
	SupportedGrants []string

	// SupportedScopes bounds every grant. Empty means no global restriction
	// beyond each client's allowed scopes.
	SupportedScopes []string

	RequirePKCEPublic bool
}

func (p Policy) SupportsGrant(grantType string) bool {
	return slices.Contains(p.SupportedGrants, grantType)
}

// accessTTL is validated at startup, so a parse failure here is a
// configuration bug and reported as a server error.
func (p Policy) accessTTL() (time.Duration, error) {
	return jwtx.ParseExpiry(p.AccessTokenTTL)
}

// grantScopes resolves the scope of a grant: requested must be a subset of
// the supported scopes and of the client's allowed scopes. An empty request
// gets everything the client may have.
func (p Policy) grantScopes(requested []string, client *domain.Client) ([]string, error) {
	allowed := client.AllowedScopes
	if len(p.SupportedScopes) > 0 {
		allowed = oauthx.Intersect(allowed, p.SupportedScopes)
	}

	if len(requested) == 0 {
		return slices.Clone(allowed), nil
	}

	for _, s := range requested {
		if !oauthx.ValidScopeToken(s) {
			return nil, oauthx.ErrInvalidScope.WithDescriptionf("malformed scope %q", s)
		}
	}
	if len(p.SupportedScopes) > 0 && !oauthx.Subset(requested, p.SupportedScopes) {
		return nil, oauthx.ErrInvalidScope.WithDescription("requested scope is not supported")
	}
	if !oauthx.Subset(requested, client.AllowedScopes) {
		return nil, oauthx.ErrInvalidScope.WithDescription("requested scope exceeds the client's allowed scopes")
	}
	return requested, nil
}

// resolveAudience picks the token audience. A requested audience must be
// one the client is configured for; none requested means all of them, and
// a client with no audiences gets its own id.
func resolveAudience(client *domain.Client, requested string) ([]string, error) {
	if requested != "" {
		if !slices.Contains(client.Audiences, requested) {
			return nil, oauthx.ErrInvalidTarget.WithDescriptionf("audience %q is not allowed for this client", requested)
		}
		return []string{requested}, nil
	}
	if len(client.Audiences) == 0 {
		return []string{client.ClientID}, nil
	}
	return slices.Clone(client.Audiences), nil
}

package service

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.clients.DefaultTenant = "acme"
	ctx := context.Background()

	t.Run("confidential client", func(t *testing.T) {
		resp, err := env.clients.Register(ctx, "", oauthx.RegistrationRequest{
			ClientName:   "Dashboard",
			RedirectURIs: []string{testRedirect},
			Scope:        "openid read",
			GrantTypes:   []string{oauthx.GrantTypeAuthorizationCode, oauthx.GrantTypeRefreshToken},
		})
		require.NoError(t, err)
		require.NotEmpty(t, resp.ClientID)
		require.NotEmpty(t, resp.ClientSecret)
		require.Equal(t, oauthx.AuthMethodClientSecretBasic, resp.TokenEndpointAuthMethod)
		require.Equal(t, []string{"code"}, resp.ResponseTypes)
		require.Equal(t, "openid read", resp.Scope)

		stored, err := env.store.Clients().GetClientByID(ctx, resp.ClientID)
		require.NoError(t, err)
		require.Len(t, stored.Secrets, 1)
		require.True(t, cryptox.IsHashed(stored.Secrets[0]))
		require.NotEqual(t, resp.ClientSecret, stored.Secrets[0])
		require.Equal(t, "acme", stored.TenantID)
		require.True(t, stored.Active)

		client, err := env.clients.AuthenticateClient(ctx, ClientCredentials{ID: resp.ClientID, Secret: resp.ClientSecret})
		require.NoError(t, err)
		require.Equal(t, "Dashboard", client.Name)
	})

	t.Run("public client", func(t *testing.T) {
		resp, err := env.clients.Register(ctx, "", oauthx.RegistrationRequest{
			RedirectURIs:            []string{"com.example.app:/callback"},
			TokenEndpointAuthMethod: oauthx.AuthMethodNone,
		})
		require.NoError(t, err)
		require.Empty(t, resp.ClientSecret)
		require.Equal(t, []string{oauthx.GrantTypeAuthorizationCode}, resp.GrantTypes)
		require.Equal(t, "openid profile email roles offline_access read write admin:keys", resp.Scope)

		client, err := env.clients.AuthenticateClient(ctx, ClientCredentials{ID: resp.ClientID})
		require.NoError(t, err)
		require.True(t, client.IsPublic())
	})

	tests := []struct {
		name string
		req  oauthx.RegistrationRequest
		want *oauthx.Error
	}{
		{"no redirect uris", oauthx.RegistrationRequest{}, oauthx.ErrInvalidRedirectURI},
		{"relative redirect", oauthx.RegistrationRequest{RedirectURIs: []string{"/callback"}}, oauthx.ErrInvalidRedirectURI},
		{"fragment", oauthx.RegistrationRequest{RedirectURIs: []string{"https://app.example.com/cb#frag"}}, oauthx.ErrInvalidRedirectURI},
		{"no host", oauthx.RegistrationRequest{RedirectURIs: []string{"https:///cb"}}, oauthx.ErrInvalidRedirectURI},
		{"javascript scheme", oauthx.RegistrationRequest{RedirectURIs: []string{"javascript:alert(document.cookie)"}}, oauthx.ErrInvalidRedirectURI},
		{"data scheme", oauthx.RegistrationRequest{RedirectURIs: []string{"data:text/html,<script>alert(1)</script>"}}, oauthx.ErrInvalidRedirectURI},
		{"uppercase scheme", oauthx.RegistrationRequest{RedirectURIs: []string{testRedirect, "JavaScript:void(0)"}}, oauthx.ErrInvalidRedirectURI},
		{"unsupported grant", oauthx.RegistrationRequest{RedirectURIs: []string{testRedirect}, GrantTypes: []string{"implicit"}}, oauthx.ErrInvalidClientMetadata},
		{"unsupported response type", oauthx.RegistrationRequest{RedirectURIs: []string{testRedirect}, ResponseTypes: []string{"token"}}, oauthx.ErrInvalidClientMetadata},
		{"unsupported scope", oauthx.RegistrationRequest{RedirectURIs: []string{testRedirect}, Scope: "read superuser"}, oauthx.ErrInvalidClientMetadata},
		{"unknown auth method", oauthx.RegistrationRequest{RedirectURIs: []string{testRedirect}, TokenEndpointAuthMethod: "private_key_jwt"}, oauthx.ErrInvalidClientMetadata},
		{"public client credentials", oauthx.RegistrationRequest{
			RedirectURIs:            []string{testRedirect},
			GrantTypes:              []string{oauthx.GrantTypeClientCredentials},
			TokenEndpointAuthMethod: oauthx.AuthMethodNone,
		}, oauthx.ErrInvalidClientMetadata},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.clients.Register(ctx, "", tt.req)
			requireOAuthError(t, err, tt.want)
		})
	}
}

func TestRegisterRequiresToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.clients.RegistrationToken = "let-me-in"
	req := oauthx.RegistrationRequest{RedirectURIs: []string{testRedirect}}

	_, err := env.clients.Register(context.Background(), "", req)
	requireOAuthError(t, err, oauthx.ErrInvalidToken)

	_, err = env.clients.Register(context.Background(), "wrong", req)
	requireOAuthError(t, err, oauthx.ErrInvalidToken)

	_, err = env.clients.Register(context.Background(), "let-me-in", req)
	require.NoError(t, err)
}

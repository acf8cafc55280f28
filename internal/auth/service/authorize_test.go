package service

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeRequestValues(t *testing.T) {
	t.Parallel()

	req := AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            "web",
		RedirectURI:         testRedirect,
		Scope:               "openid read",
		State:               " opaque state ",
		CodeChallenge:       "abc",
		CodeChallengeMethod: oauthx.PKCEMethodS256,
	}
	v := req.Values()
	require.False(t, v.Has("nonce"))
	require.False(t, v.Has("audience"))
	require.Equal(t, req, ParseAuthorizeRequest(v))
}

func TestAuthorizeValidate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.webClient(t)
	env.addClient(t, domain.Client{
		ClientID:      "multi",
		Secrets:       []string{"s"},
		RedirectURIs:  []string{"https://a.example.com/cb", "https://b.example.com/cb"},
		AllowedScopes: []string{"read"},
		GrantTypes:    []string{oauthx.GrantTypeAuthorizationCode},
	})
	env.addClient(t, domain.Client{
		ClientID:      "spa",
		RedirectURIs:  []string{"http://localhost:3000/cb"},
		AllowedScopes: []string{"read"},
		GrantTypes:    []string{oauthx.GrantTypeAuthorizationCode},
	})
	env.addClient(t, domain.Client{
		ClientID:     "machine",
		Secrets:      []string{"s"},
		RedirectURIs: []string{testRedirect},
		GrantTypes:   []string{oauthx.GrantTypeClientCredentials},
	})
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		v, err := env.authz.Validate(ctx, AuthorizeRequest{ResponseType: "code", ClientID: "web", CodeChallenge: "a-very-long-code-verifier-that-is-at-least-43-chars"})
		require.NoError(t, err)
		require.Equal(t, testRedirect, v.RedirectURI)
		require.Equal(t, oauthx.PKCEMethodPlain, v.CodeChallengeMethod)
		require.Equal(t, []string{"openid", "profile", "email", "roles", "offline_access", "read", "write"}, v.Scopes)
		require.Equal(t, []string{"https://api.example.com"}, v.Audience)
	})

	// Failures before the redirect_uri is trusted must not redirect.
	direct := []struct {
		name string
		req  AuthorizeRequest
	}{
		{"missing client", AuthorizeRequest{ResponseType: "code"}},
		{"unknown client", AuthorizeRequest{ResponseType: "code", ClientID: "nobody", RedirectURI: testRedirect}},
		{"unregistered redirect", AuthorizeRequest{ResponseType: "code", ClientID: "web", RedirectURI: "https://evil.example.com/cb"}},
		{"ambiguous redirect", AuthorizeRequest{ResponseType: "code", ClientID: "multi"}},
	}
	for _, tt := range direct {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.authz.Validate(ctx, tt.req)
			requireOAuthError(t, err, oauthx.ErrInvalidRequest)

			var ae *AuthorizeError
			require.False(t, errors.As(err, &ae))
		})
	}

	redirected := []struct {
		name string
		req  AuthorizeRequest
		want *oauthx.Error
	}{
		{"token response type", AuthorizeRequest{ResponseType: "token", ClientID: "web", State: "s1"}, oauthx.ErrUnsupportedResponseType},
		{"scope not allowed", AuthorizeRequest{ResponseType: "code", ClientID: "web", Scope: "admin:keys", State: "s1"}, oauthx.ErrInvalidScope},
		{"unknown audience", AuthorizeRequest{ResponseType: "code", ClientID: "web", Audience: "https://x.example.com", State: "s1"}, oauthx.ErrInvalidTarget},
		{"grant not allowed", AuthorizeRequest{ResponseType: "code", ClientID: "machine", State: "s1"}, oauthx.ErrUnauthorizedClient},
		{"public client without PKCE", AuthorizeRequest{ResponseType: "code", ClientID: "spa", State: "s1"}, oauthx.ErrInvalidRequest},
		{"unknown challenge method", AuthorizeRequest{ResponseType: "code", ClientID: "web", CodeChallenge: "a-very-long-code-verifier-that-is-at-least-43-chars", CodeChallengeMethod: "S512", State: "s1"}, oauthx.ErrInvalidRequest},
		{"short challenge", AuthorizeRequest{ResponseType: "code", ClientID: "web", CodeChallenge: "short", State: "s1"}, oauthx.ErrInvalidRequest},
		{"method without challenge", AuthorizeRequest{ResponseType: "code", ClientID: "web", CodeChallengeMethod: oauthx.PKCEMethodS256, State: "s1"}, oauthx.ErrInvalidRequest},
	}
	for _, tt := range redirected {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.authz.Validate(ctx, tt.req)
			requireOAuthError(t, err, tt.want)

			var ae *AuthorizeError
			require.ErrorAs(t, err, &ae)

			loc, err := url.Parse(ae.Location())
			require.NoError(t, err)
			require.Equal(t, tt.want.Code, loc.Query().Get("error"))
			require.Equal(t, "s1", loc.Query().Get("state"))
		})
	}
}

func TestAuthorizeLogin(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.webClient(t)
	env.addUser(t, "alice@example.com", "pw")
	env.addUser(t, "mallory@example.com", "pw", func(u *domain.User) { u.TenantID = "globex" })
	env.addUser(t, "bob@example.com", "pw", func(u *domain.User) { u.Active = false })

	req := AuthorizeRequest{ResponseType: "code", ClientID: "web", RedirectURI: testRedirect, Scope: "read", State: "st"}

	t.Run("issues a code", func(t *testing.T) {
		code := env.authorizeCode(t, req, "alice@example.com", "pw")
		require.Len(t, code, 43)
	})

	denied := []struct{ name, user, pass string }{
		{"wrong password", "alice@example.com", "nope"},
		{"unknown user", "nobody@example.com", "pw"},
		{"inactive user", "bob@example.com", "pw"},
		{"tenant mismatch", "mallory@example.com", "pw"},
		{"empty credentials", "", ""},
	}
	for _, tt := range denied {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.authz.Authorize(context.Background(), req, tt.user, tt.pass)
			requireOAuthError(t, err, oauthx.ErrAccessDenied)

			var ae *AuthorizeError
			require.ErrorAs(t, err, &ae)
			loc, err := url.Parse(ae.Location())
			require.NoError(t, err)
			require.Equal(t, "access_denied", loc.Query().Get("error"))
			require.Equal(t, "st", loc.Query().Get("state"))
			require.Equal(t, "app.example.com", loc.Host)
		})
	}
}

func TestAppendQueryKeepsExisting(t *testing.T) {
	t.Parallel()

	got := appendQuery("https://app.example.com/cb?tenant=acme", url.Values{"code": {"abc"}})
	u, err := url.Parse(got)
	require.NoError(t, err)
	require.Equal(t, "acme", u.Query().Get("tenant"))
	require.Equal(t, "abc", u.Query().Get("code"))
}

package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/jwtx"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCredentialsEndToEnd(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addClient(t, domain.Client{
		ClientID:      "X",
		Secrets:       []string{"x-secret"},
		AllowedScopes: []string{"read", "write"},
		GrantTypes:    []string{oauthx.GrantTypeClientCredentials},
	})

	resp, err := env.tokens.Exchange(context.Background(), TokenRequest{
		GrantType: oauthx.GrantTypeClientCredentials,
		Client:    ClientCredentials{ID: "X", Secret: "x-secret"},
		Form:      form("scope", "read"),
	})
	require.NoError(t, err)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, int64(900), resp.ExpiresIn)
	require.Equal(t, "read", resp.Scope)
	require.Empty(t, resp.RefreshToken)
	require.Empty(t, resp.IDToken)

	claims := env.verify(t, resp.AccessToken)
	require.Equal(t, "read", claims.String(jwtx.ClaimScope))
	require.Equal(t, oauthx.TokenUseService, claims.String(ClaimTokenUse))
	require.Equal(t, "sa:X", claims.String(jwtx.ClaimSubject))
	require.Equal(t, oauthx.TokenTypeAccess, claims.String(ClaimTokenType))
	require.Equal(t, "X", claims.String(ClaimClientID))
	require.Equal(t, []string{"X"}, claims.Strings(jwtx.ClaimAudience))
	require.Equal(t, "https://idp.example.com", claims.String(jwtx.ClaimIssuer))
}

func TestClientCredentialsScopeAndAudience(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addClient(t, domain.Client{
		ClientID:      "svc",
		Secrets:       []string{"svc-secret"},
		AllowedScopes: []string{"read", "write", "not-supported"},
		GrantTypes:    []string{oauthx.GrantTypeClientCredentials},
		Audiences:     []string{"https://api.example.com", "https://billing.example.com"},
		TenantID:      "acme",
	})
	exchange := func(f map[string]string) (*oauthx.TokenResponse, error) {
		v := form()
		for k, val := range f {
			v.Set(k, val)
		}
		return env.tokens.Exchange(context.Background(), TokenRequest{
			GrantType: oauthx.GrantTypeClientCredentials,
			Client:    ClientCredentials{ID: "svc", Secret: "svc-secret"},
			Form:      v,
		})
	}

	t.Run("empty scope gets allowed and supported", func(t *testing.T) {
		resp, err := exchange(nil)
		require.NoError(t, err)
		require.Equal(t, "read write", resp.Scope)

		claims := env.verify(t, resp.AccessToken)
		require.ElementsMatch(t, []string{"https://api.example.com", "https://billing.example.com"}, claims.Strings(jwtx.ClaimAudience))
		require.Equal(t, "acme", claims.String(ClaimTenantID))
	})

	t.Run("requested audience narrows", func(t *testing.T) {
		resp, err := exchange(map[string]string{"audience": "https://billing.example.com"})
		require.NoError(t, err)
		require.Equal(t, []string{"https://billing.example.com"}, env.verify(t, resp.AccessToken).Strings(jwtx.ClaimAudience))
	})

	t.Run("unknown audience", func(t *testing.T) {
		_, err := exchange(map[string]string{"audience": "https://evil.example.com"})
		requireOAuthError(t, err, oauthx.ErrInvalidTarget)
	})

	t.Run("scope outside client", func(t *testing.T) {
		_, err := exchange(map[string]string{"scope": "read admin:keys"})
		requireOAuthError(t, err, oauthx.ErrInvalidScope)
	})

	t.Run("scope outside supported", func(t *testing.T) {
		_, err := exchange(map[string]string{"scope": "not-supported"})
		requireOAuthError(t, err, oauthx.ErrInvalidScope)
	})
}

func TestTokenPreconditions(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addClient(t, domain.Client{
		ClientID:      "cc",
		Secrets:       []string{"cc-secret"},
		AllowedScopes: []string{"read"},
		GrantTypes:    []string{oauthx.GrantTypeClientCredentials},
	})
	env.addClient(t, domain.Client{
		ClientID:      "codeonly",
		Secrets:       []string{"code-secret"},
		AllowedScopes: []string{"read"},
		GrantTypes:    []string{oauthx.GrantTypeAuthorizationCode},
	})
	env.addClient(t, domain.Client{
		ClientID:      "public",
		AllowedScopes: []string{"read"},
		GrantTypes:    []string{oauthx.GrantTypeClientCredentials},
	})
	disabled := domain.Client{ClientID: "disabled", Secrets: []string{"d"}, GrantTypes: []string{oauthx.GrantTypeClientCredentials}}
	require.NoError(t, env.store.Clients().CreateClient(context.Background(), disabled))

	tests := []struct {
		name  string
		grant string
		creds ClientCredentials
		want  *oauthx.Error
	}{
		{"missing grant type", "", ClientCredentials{ID: "cc", Secret: "cc-secret"}, oauthx.ErrInvalidRequest},
		{"unknown grant type", "urn:ietf:params:oauth:grant-type:device_code", ClientCredentials{ID: "cc", Secret: "cc-secret"}, oauthx.ErrUnsupportedGrantType},
		{"missing client id", oauthx.GrantTypeClientCredentials, ClientCredentials{}, oauthx.ErrInvalidRequest},
		{"unknown client", oauthx.GrantTypeClientCredentials, ClientCredentials{ID: "nobody", Secret: "x"}, oauthx.ErrInvalidClient},
		{"wrong secret", oauthx.GrantTypeClientCredentials, ClientCredentials{ID: "cc", Secret: "nope"}, oauthx.ErrInvalidClient},
		{"missing secret", oauthx.GrantTypeClientCredentials, ClientCredentials{ID: "cc"}, oauthx.ErrInvalidClient},
		{"disabled client", oauthx.GrantTypeClientCredentials, ClientCredentials{ID: "disabled", Secret: "d"}, oauthx.ErrInvalidClient},
		{"grant not allowed", oauthx.GrantTypeClientCredentials, ClientCredentials{ID: "codeonly", Secret: "code-secret"}, oauthx.ErrUnauthorizedClient},
		{"public client", oauthx.GrantTypeClientCredentials, ClientCredentials{ID: "public"}, oauthx.ErrUnauthorizedClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.tokens.Exchange(context.Background(), TokenRequest{GrantType: tt.grant, Client: tt.creds, Form: form()})
			requireOAuthError(t, err, tt.want)
		})
	}

	t.Run("grant disabled by policy", func(t *testing.T) {
		tokens := *env.tokens
		tokens.Policy.SupportedGrants = []string{oauthx.GrantTypeAuthorizationCode}
		_, err := tokens.Exchange(context.Background(), TokenRequest{
			GrantType: oauthx.GrantTypeClientCredentials,
			Client:    ClientCredentials{ID: "cc", Secret: "cc-secret"},
			Form:      form(),
		})
		requireOAuthError(t, err, oauthx.ErrUnsupportedGrantType)
	})
}

func TestAuthorizationCodeSingleUse(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.webClient(t)
	user := env.addUser(t, "alice@example.com", "correct horse")

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	code := env.authorizeCode(t, AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            "web",
		RedirectURI:         testRedirect,
		Scope:               "openid profile email offline_access read",
		State:               "xyz",
		Nonce:               "n-0S6_WzA2Mj",
		CodeChallenge:       oauthx.S256Challenge(verifier),
		CodeChallengeMethod: oauthx.PKCEMethodS256,
	}, "alice@example.com", "correct horse")

	req := TokenRequest{
		GrantType: oauthx.GrantTypeAuthorizationCode,
		Client:    ClientCredentials{ID: "web", Secret: "web-secret", Basic: true},
		Form:      form("code", code, "redirect_uri", testRedirect, "code_verifier", verifier),
	}

	resp, err := env.tokens.Exchange(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "openid profile email offline_access read", resp.Scope)
	require.NotEmpty(t, resp.RefreshToken)
	require.NotEmpty(t, resp.IDToken)

	access := env.verify(t, resp.AccessToken)
	require.Equal(t, user.ID, access.String(jwtx.ClaimSubject))
	require.Equal(t, oauthx.TokenUseUser, access.String(ClaimTokenUse))
	require.Equal(t, "acme", access.String(ClaimTenantID))
	require.Equal(t, []string{"member"}, access.Strings(ClaimRoles))
	require.Equal(t, []string{"https://api.example.com"}, access.Strings(jwtx.ClaimAudience))

	id := env.verify(t, resp.IDToken)
	require.Equal(t, oauthx.TokenTypeID, id.String(ClaimTokenType))
	require.Equal(t, "n-0S6_WzA2Mj", id.String(ClaimNonce))
	require.Equal(t, []string{"web"}, id.Strings(jwtx.ClaimAudience))
	require.Equal(t, "alice@example.com", id.String("email"))
	require.Equal(t, "Alice Example", id.String("name"))

	refresh := env.verify(t, resp.RefreshToken)
	require.Equal(t, oauthx.TokenTypeRefresh, refresh.String(ClaimTokenType))

	_, err = env.tokens.Exchange(context.Background(), req)
	requireOAuthError(t, err, oauthx.ErrInvalidGrant)
}

func TestAuthorizationCodeConcurrentExchange(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.webClient(t)
	env.addUser(t, "alice@example.com", "pw")

	code := env.authorizeCode(t, AuthorizeRequest{
		ResponseType: "code", ClientID: "web", RedirectURI: testRedirect, Scope: "read",
	}, "alice@example.com", "pw")

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.tokens.Exchange(context.Background(), TokenRequest{
				GrantType: oauthx.GrantTypeAuthorizationCode,
				Client:    ClientCredentials{ID: "web", Secret: "web-secret"},
				Form:      form("code", code, "redirect_uri", testRedirect),
			})
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, oauthx.ErrInvalidGrant)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

func TestAuthorizationCodeValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.webClient(t)
	env.addClient(t, domain.Client{
		ClientID:      "other",
		Secrets:       []string{"other-secret"},
		RedirectURIs:  []string{testRedirect},
		AllowedScopes: []string{"read"},
		GrantTypes:    []string{oauthx.GrantTypeAuthorizationCode},
	})
	env.addClient(t, domain.Client{
		ClientID:      "spa",
		RedirectURIs:  []string{"http://localhost:3000/cb"},
		AllowedScopes: []string{"openid", "read"},
		GrantTypes:    []string{oauthx.GrantTypeAuthorizationCode},
	})
	env.addUser(t, "alice@example.com", "pw")

	verifier := "a-very-long-code-verifier-that-is-at-least-43-chars"
	newCode := func(t *testing.T, clientID, challenge, method string) string {
		redirect := testRedirect
		if clientID == "spa" {
			redirect = "http://localhost:3000/cb"
		}
		return env.authorizeCode(t, AuthorizeRequest{
			ResponseType:        "code",
			ClientID:            clientID,
			RedirectURI:         redirect,
			Scope:               "read",
			CodeChallenge:       challenge,
			CodeChallengeMethod: method,
		}, "alice@example.com", "pw")
	}
	exchange := func(creds ClientCredentials, f ...string) error {
		_, err := env.tokens.Exchange(context.Background(), TokenRequest{
			GrantType: oauthx.GrantTypeAuthorizationCode,
			Client:    creds,
			Form:      form(f...),
		})
		return err
	}
	web := ClientCredentials{ID: "web", Secret: "web-secret"}

	t.Run("missing code", func(t *testing.T) {
		requireOAuthError(t, exchange(web), oauthx.ErrInvalidRequest)
	})

	t.Run("unknown code", func(t *testing.T) {
		requireOAuthError(t, exchange(web, "code", "bogus", "redirect_uri", testRedirect), oauthx.ErrInvalidGrant)
	})

	t.Run("redirect mismatch burns the code", func(t *testing.T) {
		code := newCode(t, "web", "", "")
		requireOAuthError(t, exchange(web, "code", code, "redirect_uri", "https://app.example.com/other"), oauthx.ErrInvalidGrant)
		requireOAuthError(t, exchange(web, "code", code, "redirect_uri", testRedirect), oauthx.ErrInvalidGrant)
	})

	t.Run("redirect sent at authorize must be repeated", func(t *testing.T) {
		code := newCode(t, "web", "", "")
		requireOAuthError(t, exchange(web, "code", code), oauthx.ErrInvalidGrant)
	})

	t.Run("redirect omitted at both steps with a single registered uri", func(t *testing.T) {
		code := env.authorizeCode(t, AuthorizeRequest{
			ResponseType: "code",
			ClientID:     "web",
			Scope:        "read",
		}, "alice@example.com", "pw")
		require.NoError(t, exchange(web, "code", code))

		code = env.authorizeCode(t, AuthorizeRequest{
			ResponseType: "code",
			ClientID:     "web",
			Scope:        "read",
		}, "alice@example.com", "pw")
		requireOAuthError(t, exchange(web, "code", code, "redirect_uri", "https://app.example.com/other"), oauthx.ErrInvalidGrant)
	})

	t.Run("code issued to another client", func(t *testing.T) {
		code := newCode(t, "web", "", "")
		err := exchange(ClientCredentials{ID: "other", Secret: "other-secret"}, "code", code, "redirect_uri", testRedirect)
		requireOAuthError(t, err, oauthx.ErrInvalidGrant)
	})

	t.Run("expired code", func(t *testing.T) {
		code := newCode(t, "web", "", "")
		tokens := *env.tokens
		tokens.Now = func() time.Time { return time.Now().Add(DefaultCodeTTL + time.Second) }
		_, err := tokens.Exchange(context.Background(), TokenRequest{
			GrantType: oauthx.GrantTypeAuthorizationCode,
			Client:    web,
			Form:      form("code", code, "redirect_uri", testRedirect),
		})
		requireOAuthError(t, err, oauthx.ErrInvalidGrant)
	})

	t.Run("S256 verifier must match", func(t *testing.T) {
		code := newCode(t, "web", oauthx.S256Challenge(verifier), oauthx.PKCEMethodS256)
		requireOAuthError(t, exchange(web, "code", code, "redirect_uri", testRedirect, "code_verifier", verifier+"x"), oauthx.ErrInvalidGrant)

		code = newCode(t, "web", oauthx.S256Challenge(verifier), oauthx.PKCEMethodS256)
		requireOAuthError(t, exchange(web, "code", code, "redirect_uri", testRedirect), oauthx.ErrInvalidGrant)

		code = newCode(t, "web", oauthx.S256Challenge(verifier), oauthx.PKCEMethodS256)
		require.NoError(t, exchange(web, "code", code, "redirect_uri", testRedirect, "code_verifier", verifier))
	})

	t.Run("plain verifier is literal", func(t *testing.T) {
		code := newCode(t, "web", verifier, "")
		requireOAuthError(t, exchange(web, "code", code, "redirect_uri", testRedirect, "code_verifier", oauthx.S256Challenge(verifier)), oauthx.ErrInvalidGrant)

		code = newCode(t, "web", verifier, oauthx.PKCEMethodPlain)
		require.NoError(t, exchange(web, "code", code, "redirect_uri", testRedirect, "code_verifier", verifier))
	})

	t.Run("public client with PKCE", func(t *testing.T) {
		code := newCode(t, "spa", oauthx.S256Challenge(verifier), oauthx.PKCEMethodS256)
		err := exchange(ClientCredentials{ID: "spa"}, "code", code, "redirect_uri", "http://localhost:3000/cb", "code_verifier", verifier)
		require.NoError(t, err)
	})
}

func TestRefreshScopeNarrowing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.webClient(t)
	env.addClient(t, domain.Client{
		ClientID:      "other",
		Secrets:       []string{"other-secret"},
		AllowedScopes: []string{"read", "offline_access"},
		GrantTypes:    []string{oauthx.GrantTypeRefreshToken, oauthx.GrantTypePassword},
	})
	env.addUser(t, "alice@example.com", "pw")

	web := ClientCredentials{ID: "web", Secret: "web-secret"}
	resp, err := env.tokens.Exchange(context.Background(), TokenRequest{
		GrantType: oauthx.GrantTypePassword,
		Client:    web,
		Form:      form("username", "alice@example.com", "password", "pw", "scope", "openid read write offline_access"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.RefreshToken)

	refresh := func(creds ClientCredentials, token, scope string) (*oauthx.TokenResponse, error) {
		return env.tokens.Exchange(context.Background(), TokenRequest{
			GrantType: oauthx.GrantTypeRefreshToken,
			Client:    creds,
			Form:      form("refresh_token", token, "scope", scope),
		})
	}

	t.Run("strict subset", func(t *testing.T) {
		out, err := refresh(web, resp.RefreshToken, "read")
		require.NoError(t, err)
		require.Equal(t, "read", out.Scope)
		require.Equal(t, "read", env.verify(t, out.AccessToken).String(jwtx.ClaimScope))
		require.Empty(t, out.RefreshToken)
		require.Empty(t, out.IDToken)
	})

	t.Run("empty scope keeps the original", func(t *testing.T) {
		out, err := refresh(web, resp.RefreshToken, "")
		require.NoError(t, err)
		require.Equal(t, "openid read write offline_access", out.Scope)
		require.NotEmpty(t, out.IDToken)
		require.Empty(t, out.RefreshToken)
	})

	t.Run("widening is rejected", func(t *testing.T) {
		_, err := refresh(web, resp.RefreshToken, "read profile")
		requireOAuthError(t, err, oauthx.ErrInvalidScope)
	})

	t.Run("refresh token is reusable", func(t *testing.T) {
		_, err := refresh(web, resp.RefreshToken, "write")
		require.NoError(t, err)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		_, err := refresh(web, resp.AccessToken, "")
		requireOAuthError(t, err, oauthx.ErrInvalidGrant)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := refresh(web, "not.a.jwt", "")
		requireOAuthError(t, err, oauthx.ErrInvalidGrant)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := refresh(web, "", "")
		requireOAuthError(t, err, oauthx.ErrInvalidRequest)
	})

	t.Run("another client", func(t *testing.T) {
		_, err := refresh(ClientCredentials{ID: "other", Secret: "other-secret"}, resp.RefreshToken, "")
		requireOAuthError(t, err, oauthx.ErrInvalidGrant)
	})
}

func TestPasswordGrant(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.webClient(t)
	env.addUser(t, "alice@example.com", "pw", func(u *domain.User) { u.Roles = []string{"admin", "member"} })
	env.addUser(t, "bob@example.com", "pw", func(u *domain.User) { u.Active = false })
	env.addUser(t, "carol@example.com", "pw", func(u *domain.User) { u.TenantID = "globex" })

	grant := func(tokens *TokenService, username, password, scope string) (*oauthx.TokenResponse, error) {
		return tokens.Exchange(context.Background(), TokenRequest{
			GrantType: oauthx.GrantTypePassword,
			Client:    ClientCredentials{ID: "web", Secret: "web-secret"},
			Form:      form("username", username, "password", password, "scope", scope),
		})
	}

	t.Run("success", func(t *testing.T) {
		resp, err := grant(env.tokens, "ALICE@example.com", "pw", "read roles")
		require.NoError(t, err)
		require.Empty(t, resp.RefreshToken)
		require.Empty(t, resp.IDToken)

		claims := env.verify(t, resp.AccessToken)
		require.Equal(t, []string{"admin", "member"}, claims.Strings(ClaimRoles))
		require.Equal(t, "read roles", claims.String(jwtx.ClaimScope))
	})

	tests := []struct {
		name, username, password, scope string
		want                            *oauthx.Error
	}{
		{"wrong password", "alice@example.com", "nope", "read", oauthx.ErrInvalidGrant},
		{"unknown user", "nobody@example.com", "pw", "read", oauthx.ErrInvalidGrant},
		{"inactive user", "bob@example.com", "pw", "read", oauthx.ErrInvalidGrant},
		{"tenant mismatch", "carol@example.com", "pw", "read", oauthx.ErrInvalidGrant},
		{"scope not allowed", "alice@example.com", "pw", "admin:keys", oauthx.ErrInvalidScope},
		{"missing password", "alice@example.com", "", "read", oauthx.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := grant(env.tokens, tt.username, tt.password, tt.scope)
			requireOAuthError(t, err, tt.want)
		})
	}

	t.Run("authenticator without grant support", func(t *testing.T) {
		tokens := *env.tokens
		tokens.Passwords = &StoreAuthenticator{Users: env.store.Users(), PasswordGrant: false}
		_, err := grant(&tokens, "alice@example.com", "pw", "read")
		requireOAuthError(t, err, oauthx.ErrUnsupportedGrantType)
	})
}

func TestClientSecretRotation(t *testing.T) {
	t.Parallel()

	hashed, err := cryptox.HashSecret("new")
	require.NoError(t, err)

	for _, secrets := range [][]string{{"old", "new"}, {"old", hashed}} {
		client := &domain.Client{ClientID: "rot", Secrets: secrets}
		require.True(t, VerifyClientSecret(client, "old"))
		require.True(t, VerifyClientSecret(client, "new"))
		require.False(t, VerifyClientSecret(client, "third"))
		require.False(t, VerifyClientSecret(client, ""))
	}

	env := newTestEnv(t)
	env.addClient(t, domain.Client{ClientID: "rot", Secrets: []string{"old", hashed}})
	for _, secret := range []string{"old", "new"} {
		_, err := env.clients.AuthenticateClient(context.Background(), ClientCredentials{ID: "rot", Secret: secret})
		require.NoError(t, err, secret)
	}
	_, err = env.clients.AuthenticateClient(context.Background(), ClientCredentials{ID: "rot", Secret: "third"})
	requireOAuthError(t, err, oauthx.ErrInvalidClient)
}

package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
	"github.com/aussiebroadwan/idp/internal/auth/store"
	"github.com/aussiebroadwan/idp/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/idx"
	"github.com/aussiebroadwan/idp/pkg/jwtx"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
	"github.com/aussiebroadwan/idp/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const testRedirect = "https://app.example.com/callback"

type testEnv struct {
	store   *memory.Store
	km      *jwtx.KeyManager
	policy  Policy
	clients *ClientService
	tokens  *TokenService
	authz   *AuthorizeService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mem := memory.NewStore()
	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Store:  store.NewKeyStoreAdapter(mem.SigningKeys()),
		Logger: slogx.Discard(),
	})
	require.NoError(t, err)
	require.NoError(t, km.Initialize(context.Background()))

	policy := Policy{
		Issuer:          "https://idp.example.com",
		AccessTokenTTL:  "15m",
		RefreshTokenTTL: "30d",
		IDTokenTTL:      "1h",
		SupportedGrants: []string{
			oauthx.GrantTypeAuthorizationCode,
			oauthx.GrantTypeClientCredentials,
			oauthx.GrantTypeRefreshToken,
			oauthx.GrantTypePassword,
		},
		SupportedScopes: []string{
			"openid", "profile", "email", "roles", "offline_access", "read", "write", "admin:keys",
		},
		RequirePKCEPublic: true,
	}
	passwords := &StoreAuthenticator{Users: mem.Users(), PasswordGrant: true}
	clients := &ClientService{Clients: mem.Clients(), Policy: policy}

	return &testEnv{
		store:   mem,
		km:      km,
		policy:  policy,
		clients: clients,
		tokens: &TokenService{
			KeyManager: km,
			Clients:    clients,
			Users:      mem.Users(),
			Codes:      mem.AuthorizationCodes(),
			Passwords:  passwords,
			Policy:     policy,
		},
		authz: &AuthorizeService{
			Clients:   mem.Clients(),
			Codes:     mem.AuthorizationCodes(),
			Passwords: passwords,
			Policy:    policy,
		},
	}
}

func (e *testEnv) addClient(t *testing.T, c domain.Client) domain.Client {
	t.Helper()
	c.Active = true
	require.NoError(t, e.store.Clients().CreateClient(context.Background(), c))
	return c
}

// webClient is a confidential client set up for the code and password flows.
func (e *testEnv) webClient(t *testing.T) domain.Client {
	return e.addClient(t, domain.Client{
		ClientID:      "web",
		Secrets:       []string{"web-secret"},
		RedirectURIs:  []string{testRedirect},
		AllowedScopes: []string{"openid", "profile", "email", "roles", "offline_access", "read", "write"},
		GrantTypes: []string{
			oauthx.GrantTypeAuthorizationCode,
			oauthx.GrantTypeRefreshToken,
			oauthx.GrantTypePassword,
		},
		Audiences: []string{"https://api.example.com"},
		TenantID:  "acme",
	})
}

func (e *testEnv) addUser(t *testing.T, email, password string, mods ...func(*domain.User)) domain.User {
	t.Helper()

	hash, err := cryptox.HashSecret(password)
	require.NoError(t, err)

	u := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
		TenantID:     "acme",
		Roles:        []string{"member"},
		Active:       true,
		Profile:      map[string]any{"name": "Alice Example", "email_verified": true},
		CreatedAt:    time.Now(),
	}
	for _, m := range mods {
		m(&u)
	}
	require.NoError(t, e.store.Users().CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) verify(t *testing.T, token string) jwtx.Claims {
	t.Helper()
	claims := e.km.VerifyToken(context.Background(), token)
	require.NotNil(t, claims, "token should verify")
	return claims
}

// authorizeCode runs the authorize step and returns the issued code.
func (e *testEnv) authorizeCode(t *testing.T, req AuthorizeRequest, username, password string) string {
	t.Helper()

	location, err := e.authz.Authorize(context.Background(), req, username, password)
	require.NoError(t, err)

	u, err := url.Parse(location)
	require.NoError(t, err)
	code := u.Query().Get("code")
	require.NotEmpty(t, code)
	require.Equal(t, req.State, u.Query().Get("state"))
	return code
}

func form(kv ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v
}

func requireOAuthError(t *testing.T, err error, want *oauthx.Error) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, want, "got %v", err)
}

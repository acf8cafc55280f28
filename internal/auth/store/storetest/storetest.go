// Package storetest holds behaviour tests shared by every store driver.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
	"github.com/aussiebroadwan/idp/internal/auth/store"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/idx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises every collection of a full store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("users", func(t *testing.T) { RunUsers(t, newStore(t).Users()) })
	t.Run("clients", func(t *testing.T) { RunClients(t, newStore(t).Clients()) })
	t.Run("authorization codes", func(t *testing.T) { RunAuthorizationCodes(t, newStore(t).AuthorizationCodes()) })
	t.Run("signing keys", func(t *testing.T) { RunSigningKeys(t, newStore(t).SigningKeys()) })
}

func RunUsers(t *testing.T, users store.Users) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	u := domain.User{
		ID:           idx.New().String(),
		Email:        "alice@example.com",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		TenantID:     "acme",
		Roles:        []string{"admin", "billing"},
		Active:       true,
		Profile:      map[string]any{"name": "Alice", "email_verified": true},
		CreatedAt:    now,
	}
	require.NoError(t, users.CreateUser(ctx, u))
	require.ErrorIs(t, users.CreateUser(ctx, u), store.ErrAlreadyExists)

	got, err := users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, got.Email)
	require.Equal(t, u.Roles, got.Roles)
	require.Equal(t, "Alice", got.Profile["name"])
	require.Equal(t, true, got.Profile["email_verified"])
	require.True(t, got.Active)
	require.True(t, now.Equal(got.CreatedAt))

	got, err = users.GetUserByEmail(ctx, u.Email)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = users.GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = users.GetUserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func RunClients(t *testing.T, clients store.Clients) {
	ctx := context.Background()

	c := domain.Client{
		ClientID:                "web-app",
		Secrets:                 []string{"current secret", "$argon2id$legacy"},
		Name:                    "Web App",
		RedirectURIs:            []string{"https://app.example.com/cb", "http://localhost:3000/cb"},
		AllowedScopes:           []string{"openid", "profile"},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		Audiences:               []string{"https://api.example.com"},
		TenantID:                "acme",
		TokenEndpointAuthMethod: "client_secret_basic",
		Active:                  true,
		CreatedAt:               time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, clients.CreateClient(ctx, c))
	require.ErrorIs(t, clients.CreateClient(ctx, c), store.ErrAlreadyExists)

	got, err := clients.GetClientByID(ctx, c.ClientID)
	require.NoError(t, err)
	require.Equal(t, c, got)

	public := domain.Client{ClientID: "spa", GrantTypes: []string{"authorization_code"}, Active: true, CreatedAt: c.CreatedAt}
	require.NoError(t, clients.CreateClient(ctx, public))
	got, err = clients.GetClientByID(ctx, "spa")
	require.NoError(t, err)
	require.True(t, got.IsPublic())

	_, err = clients.GetClientByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func RunAuthorizationCodes(t *testing.T, codes store.AuthorizationCodes) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	newCode := func(expiresAt time.Time) domain.AuthorizationCode {
		plain, err := cryptox.GenerateToken(cryptox.TokenSize256)
		require.NoError(t, err)
		return domain.AuthorizationCode{
			ID:                  idx.New().String(),
			CodeHash:            cryptox.FingerprintToken(plain),
			ClientID:            "web-app",
			UserID:              "user-1",
			TenantID:            "acme",
			RedirectURI:         "https://app.example.com/cb",
			RedirectURIProvided: true,
			Scopes:              []string{"openid", "profile"},
			Audience:            []string{"https://api.example.com"},
			Nonce:               "n-0S6_WzA2Mj",
			CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
			CodeChallengeMethod: "S256",
			ExpiresAt:           expiresAt,
			CreatedAt:           now,
		}
	}

	t.Run("consume is single use", func(t *testing.T) {
		code := newCode(now.Add(10 * time.Minute))
		require.NoError(t, codes.CreateAuthorizationCode(ctx, code))

		peek, err := codes.GetAuthorizationCodeByHash(ctx, code.CodeHash)
		require.NoError(t, err)
		require.Equal(t, code.ID, peek.ID)

		got, err := codes.ConsumeAuthorizationCode(ctx, code.CodeHash)
		require.NoError(t, err)
		require.Equal(t, code.ClientID, got.ClientID)
		require.Equal(t, code.RedirectURI, got.RedirectURI)
		require.True(t, got.RedirectURIProvided)
		require.Equal(t, code.Scopes, got.Scopes)
		require.Equal(t, code.Audience, got.Audience)
		require.Equal(t, code.Nonce, got.Nonce)
		require.Equal(t, code.CodeChallenge, got.CodeChallenge)
		require.True(t, code.ExpiresAt.Equal(got.ExpiresAt))

		_, err = codes.ConsumeAuthorizationCode(ctx, code.CodeHash)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = codes.GetAuthorizationCodeByHash(ctx, code.CodeHash)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("concurrent consume has one winner", func(t *testing.T) {
		code := newCode(now.Add(10 * time.Minute))
		require.NoError(t, codes.CreateAuthorizationCode(ctx, code))

		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := codes.ConsumeAuthorizationCode(ctx, code.CodeHash); err == nil {
					wins.Add(1)
				} else {
					assert.ErrorIs(t, err, store.ErrNotFound)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), wins.Load())
	})

	t.Run("delete expired", func(t *testing.T) {
		expired := newCode(now.Add(-time.Minute))
		live := newCode(now.Add(time.Hour))
		if err := codes.CreateAuthorizationCode(ctx, expired); err != nil {
			require.ErrorIs(t, err, store.ErrExpired)
		}
		require.NoError(t, codes.CreateAuthorizationCode(ctx, live))

		_, err := codes.DeleteExpiredAuthorizationCodes(ctx, now)
		require.NoError(t, err)

		_, err = codes.GetAuthorizationCodeByHash(ctx, expired.CodeHash)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = codes.GetAuthorizationCodeByHash(ctx, live.CodeHash)
		require.NoError(t, err)
	})
}

func RunSigningKeys(t *testing.T, keys store.SigningKeys) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	newKey := func(kid, purpose string, offset time.Duration) domain.SigningKey {
		return domain.SigningKey{
			ID:         idx.New().String(),
			KID:        kid,
			Purpose:    purpose,
			Algorithm:  "RS256",
			PublicKey:  []byte("-----BEGIN PUBLIC KEY-----\n" + kid + "\n-----END PUBLIC KEY-----\n"),
			PrivateKey: []byte("private-" + kid),
			CreatedAt:  base.Add(offset),
		}
	}

	first := newKey("kid-one", "oauth", 0)
	second := newKey("kid-two", "oauth", time.Second)
	other := newKey("kid-other", "internal", 2*time.Second)

	require.NoError(t, keys.ActivateSigningKey(ctx, first))
	require.NoError(t, keys.ActivateSigningKey(ctx, other))
	require.NoError(t, keys.ActivateSigningKey(ctx, second))

	active, err := keys.ListActiveSigningKeys(ctx, "oauth")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "kid-two", active[0].KID)
	require.True(t, active[0].Active)

	active, err = keys.ListActiveSigningKeys(ctx, "internal")
	require.NoError(t, err)
	require.Len(t, active, 1)

	all, err := keys.ListSigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "kid-other", all[0].KID)

	old, err := keys.GetSigningKeyByKID(ctx, "kid-one")
	require.NoError(t, err)
	require.False(t, old.Active)
	require.Equal(t, first.PublicKey, old.PublicKey)
	require.Equal(t, first.PrivateKey, old.PrivateKey)

	_, err = keys.GetSigningKeyByKID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.ErrorIs(t, keys.ActivateSigningKey(ctx, first), store.ErrAlreadyExists)
}

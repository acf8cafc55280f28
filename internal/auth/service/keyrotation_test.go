package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
	"github.com/aussiebroadwan/idp/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestRotateKeyKeepsOldTokensValid(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addClient(t, domain.Client{
		ClientID:   "svc",
		Secrets:    []string{"svc-secret"},
		GrantTypes: []string{oauthx.GrantTypeClientCredentials},
	})
	keys := &KeyRotationService{KeyManager: env.km}
	ctx := context.Background()

	issue := func() string {
		resp, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType: oauthx.GrantTypeClientCredentials,
			Client:    ClientCredentials{ID: "svc", Secret: "svc-secret"},
			Form:      form(),
		})
		require.NoError(t, err)
		return resp.AccessToken
	}

	before := issue()
	old := keys.ListKeys()
	require.Len(t, old, 1)

	info, err := keys.RotateKey(ctx, "")
	require.NoError(t, err)
	require.Equal(t, env.km.DefaultPurpose(), info.Purpose)
	require.True(t, info.Active)
	require.NotEqual(t, old[0].KID, info.KID)

	listed := keys.ListKeys()
	require.Len(t, listed, 2)
	require.Equal(t, info.KID, listed[0].KID)
	require.False(t, listed[1].Active)
	require.Equal(t, "RS256", listed[1].Algorithm)

	after := issue()
	env.verify(t, before)
	env.verify(t, after)

	jwks := env.km.JWKS()
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, info.KID, jwks.Keys[0].Kid)
}

func TestRotateIfDue(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	now := time.Now()
	keys := &KeyRotationService{
		KeyManager: env.km,
		Interval:   24 * time.Hour,
		Now:        func() time.Time { return now },
	}
	ctx := context.Background()

	rotated, err := keys.RotateIfDue(ctx)
	require.NoError(t, err)
	require.False(t, rotated)

	now = now.Add(25 * time.Hour)
	rotated, err = keys.RotateIfDue(ctx)
	require.NoError(t, err)
	require.True(t, rotated)
	require.Len(t, keys.ListKeys(), 2)

	disabled := &KeyRotationService{KeyManager: env.km}
	rotated, err = disabled.RotateIfDue(ctx)
	require.NoError(t, err)
	require.False(t, rotated)
}

func TestHousekeepingRunOnce(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	codes := env.store.AuthorizationCodes()

	expired := time.Now().Add(-time.Minute)
	require.NoError(t, codes.CreateAuthorizationCode(ctx, domain.AuthorizationCode{
		ID: "01", CodeHash: "expired", ClientID: "web", UserID: "u", ExpiresAt: expired, CreatedAt: expired.Add(-time.Minute),
	}))
	require.NoError(t, codes.CreateAuthorizationCode(ctx, domain.AuthorizationCode{
		ID: "02", CodeHash: "live", ClientID: "web", UserID: "u", ExpiresAt: time.Now().Add(time.Minute), CreatedAt: time.Now(),
	}))

	keys := &KeyRotationService{
		KeyManager: env.km,
		Interval:   time.Hour,
		Now:        func() time.Time { return time.Now().Add(2 * time.Hour) },
	}
	hk := NewHousekeepingService(codes, keys, slogx.Discard(), 0)
	require.Equal(t, time.Hour, hk.Interval)

	hk.RunOnce(ctx)

	_, err := codes.GetAuthorizationCodeByHash(ctx, "expired")
	require.Error(t, err)
	_, err = codes.GetAuthorizationCodeByHash(ctx, "live")
	require.NoError(t, err)
	require.Len(t, keys.ListKeys(), 2)
}

func TestHousekeepingStartStop(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	hk := NewHousekeepingService(env.store.AuthorizationCodes(), nil, slogx.Discard(), 10*time.Millisecond)
	hk.Start()
	time.Sleep(30 * time.Millisecond)
	hk.Stop()
}

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/idp/internal/auth/domain"
	"github.com/aussiebroadwan/idp/internal/auth/store"
	redisstore "github.com/aussiebroadwan/idp/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/idp/internal/auth/store/storetest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newCodeStore(t *testing.T) (*redisstore.CodeStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return redisstore.NewCodeStoreWithClient(client, "test:"), mr
}

func TestCodeStore(t *testing.T) {
	t.Parallel()

	codes, _ := newCodeStore(t)
	storetest.RunAuthorizationCodes(t, codes)
}

func TestCodeStoreExpiresWithTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	codes, mr := newCodeStore(t)

	code := domain.AuthorizationCode{
		ID:          "01HZY6S3Q4J5ZK3N8QJ4W0V6XB",
		CodeHash:    "hash-ttl",
		ClientID:    "web-app",
		UserID:      "user-1",
		RedirectURI: "https://app.example.com/cb",
		ExpiresAt:   time.Now().Add(time.Minute),
		CreatedAt:   time.Now(),
	}
	require.NoError(t, codes.CreateAuthorizationCode(ctx, code))
	require.True(t, mr.Exists("test:code:hash-ttl"))
	require.ErrorIs(t, codes.CreateAuthorizationCode(ctx, code), store.ErrAlreadyExists)

	mr.FastForward(2 * time.Minute)

	_, err := codes.ConsumeAuthorizationCode(ctx, code.CodeHash)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCodeStoreRefusesExpiredCode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	codes, mr := newCodeStore(t)

	code := domain.AuthorizationCode{
		ID:          "01HZY6S3Q4J5ZK3N8QJ4W0V6XC",
		CodeHash:    "hash-stale",
		ClientID:    "web-app",
		UserID:      "user-1",
		RedirectURI: "https://app.example.com/cb",
		ExpiresAt:   time.Now().Add(-time.Second),
		CreatedAt:   time.Now().Add(-time.Minute),
	}
	require.ErrorIs(t, codes.CreateAuthorizationCode(ctx, code), store.ErrExpired)
	require.False(t, mr.Exists("test:code:hash-stale"))
}

func TestNewCodeStoreRequiresAddr(t *testing.T) {
	t.Parallel()

	_, err := redisstore.NewCodeStore(context.Background(), redisstore.Config{})
	require.Error(t, err)
}

func TestNewCodeStoreConnects(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	codes, err := redisstore.NewCodeStore(context.Background(), redisstore.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = codes.Close() })
	require.NoError(t, codes.Ping(context.Background()))
}

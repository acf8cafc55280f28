package app

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/idp/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("AUTH_ISSUER", "https://idp.example.com/")

	cfg := LoadConfig()
	require.Equal(t, "https://idp.example.com", cfg.Issuer)
	require.Equal(t, StorageSQLite, cfg.Storage)
	require.Equal(t, StorageSQLite, cfg.CodeStore)
	require.Equal(t, "15m", cfg.AccessTokenTTL)
	require.Equal(t, 10*time.Minute, cfg.CodeTTL)
	require.ElementsMatch(t, knownGrants, cfg.SupportedGrants)
	require.Empty(t, cfg.SupportedScopes)
	require.True(t, cfg.RequirePKCEPublic)
	require.Equal(t, httpx.StrictLimit, cfg.RateLimits.Strict)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("AUTH_STORAGE", "memory")
	t.Setenv("AUTH_CODE_STORE", "redis")
	t.Setenv("AUTH_REDIS_ADDR", "localhost:6379")
	t.Setenv("AUTH_SUPPORTED_GRANTS", "authorization_code, refresh_token")
	t.Setenv("AUTH_SUPPORTED_SCOPES", "openid profile read")
	t.Setenv("AUTH_REFRESH_TOKEN_TTL", "7d")
	t.Setenv("AUTH_CODE_TTL", "90s")
	t.Setenv("AUTH_KEY_ROTATION_INTERVAL", "30d")
	t.Setenv("HOUSEKEEPING_INTERVAL", "5")
	t.Setenv("AUTH_REQUIRE_PKCE_PUBLIC", "false")
	t.Setenv("RATE_LIMIT_STRICT_REQUESTS", "3")
	t.Setenv("RATE_LIMIT_STRICT_WINDOW", "10s")

	cfg := LoadConfig()
	require.Equal(t, StorageMemory, cfg.Storage)
	require.Equal(t, StorageRedis, cfg.CodeStore)
	require.Equal(t, []string{"authorization_code", "refresh_token"}, cfg.SupportedGrants)
	require.Equal(t, []string{"openid", "profile", "read"}, cfg.SupportedScopes)
	require.Equal(t, 90*time.Second, cfg.CodeTTL)
	require.Equal(t, 30*24*time.Hour, cfg.KeyRotationInterval)
	require.Equal(t, 5*time.Minute, cfg.HousekeepingInterval)
	require.False(t, cfg.RequirePKCEPublic)
	require.Equal(t, httpx.RateLimitConfig{Requests: 3, Window: 10 * time.Second, Burst: httpx.StrictLimit.Burst}, cfg.RateLimits.Strict)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Issuer:          "https://idp.example.com",
			RSABits:         2048,
			Storage:         StorageMemory,
			CodeStore:       StorageMemory,
			AccessTokenTTL:  "15m",
			RefreshTokenTTL: "30d",
			IDTokenTTL:      "1h",
			CodeTTL:         time.Minute,
			SupportedGrants: []string{"client_credentials"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no issuer", func(c *Config) { c.Issuer = "" }, "AUTH_ISSUER"},
		{"weak key", func(c *Config) { c.RSABits = 1024 }, "AUTH_RSA_BITS"},
		{"unknown storage", func(c *Config) { c.Storage = "postgres" }, "AUTH_STORAGE"},
		{"sqlite codes on memory", func(c *Config) { c.CodeStore = StorageSQLite }, "AUTH_CODE_STORE"},
		{"redis without addr", func(c *Config) { c.CodeStore = StorageRedis }, "AUTH_REDIS_ADDR"},
		{"bad ttl", func(c *Config) { c.AccessTokenTTL = "15" }, "AUTH_ACCESS_TOKEN_TTL"},
		{"zero code ttl", func(c *Config) { c.CodeTTL = 0 }, "AUTH_CODE_TTL"},
		{"no grants", func(c *Config) { c.SupportedGrants = nil }, "AUTH_SUPPORTED_GRANTS"},
		{"implicit grant", func(c *Config) { c.SupportedGrants = []string{"implicit"} }, "unknown grant"},
		{"bad scope", func(c *Config) { c.SupportedScopes = []string{`a"b`} }, "AUTH_SUPPORTED_SCOPES"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

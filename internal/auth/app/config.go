package app

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/httpx"
	"github.com/aussiebroadwan/idp/pkg/jwtx"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
)

// Storage and code store drivers.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

var knownGrants = []string{
	oauthx.GrantTypeAuthorizationCode,
	oauthx.GrantTypeClientCredentials,
	oauthx.GrantTypeRefreshToken,
	oauthx.GrantTypePassword,
}

type Config struct {
	Issuer  string // Required: issuer URL, also the base of the discovery document
	RSABits int    // Optional: RSA modulus size of generated signing keys (default: 2048)

	Storage      string // Optional: sqlite or memory (default: sqlite)
	DatabaseFile string // Optional: path to SQLite database file (default: ./idp.db)

	CodeStore     string // Optional: sqlite, memory or redis (default: same as Storage)
	RedisAddr     string // Required when CodeStore is redis
	RedisPassword string
	RedisDB       int
	RedisPrefix   string // Optional: key prefix for authorization codes (default: idp:code:)

	KeyEncryptionKey string // Optional: seals private keys at rest when set

	AccessTokenTTL  string        // Optional: "<int><s|m|h|d>" (default: 15m)
	RefreshTokenTTL string        // Optional: (default: 30d)
	IDTokenTTL      string        // Optional: (default: 1h)
	CodeTTL         time.Duration // Optional: authorization code lifetime (default: 10m)

	SupportedGrants   []string // Optional: comma separated (default: all four grants)
	SupportedScopes   []string // Optional: comma separated, empty means no global restriction
	RequirePKCEPublic bool     // Optional: public clients must use PKCE (default: true)
	PasswordGrant     bool     // Optional: enable the password authenticator (default: true)

	RegistrationToken string // Optional: bearer token required by dynamic registration
	DefaultTenant     string // Optional: tenant assigned to registered clients
	SeedFile          string // Optional: JSON file of clients and users provisioned at startup

	KeyRotationInterval  time.Duration // Optional: max age of the active key, 0 disables (default: 0)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)

	RateLimitDisabled bool
	RateLimits        RateLimitsConfig

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

// RateLimitsConfig holds the three limiter profiles.
type RateLimitsConfig struct {
	Strict   httpx.RateLimitConfig
	Moderate httpx.RateLimitConfig
	Public   httpx.RateLimitConfig
}

func LoadConfig() Config {
	storage := getEnvOrDefault("AUTH_STORAGE", StorageSQLite)

	cfg := Config{
		Issuer:  getEnvOrDefault("AUTH_ISSUER", "http://localhost:8080"),
		RSABits: getEnvIntOrDefault("AUTH_RSA_BITS", cryptox.MinRSABits),

		Storage:      storage,
		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "idp.db"),

		CodeStore:     getEnvOrDefault("AUTH_CODE_STORE", storage),
		RedisAddr:     os.Getenv("AUTH_REDIS_ADDR"),
		RedisPassword: os.Getenv("AUTH_REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("AUTH_REDIS_DB", 0),
		RedisPrefix:   getEnvOrDefault("AUTH_REDIS_PREFIX", "idp:code:"),

		KeyEncryptionKey: os.Getenv("AUTH_KEY_ENCRYPTION_KEY"),

		AccessTokenTTL:  getEnvOrDefault("AUTH_ACCESS_TOKEN_TTL", "15m"),
		RefreshTokenTTL: getEnvOrDefault("AUTH_REFRESH_TOKEN_TTL", "30d"),
		IDTokenTTL:      getEnvOrDefault("AUTH_ID_TOKEN_TTL", "1h"),
		CodeTTL:         getEnvDurationOrDefault("AUTH_CODE_TTL", 10*time.Minute),

		SupportedGrants:   getEnvListOrDefault("AUTH_SUPPORTED_GRANTS", slices.Clone(knownGrants)),
		SupportedScopes:   getEnvListOrDefault("AUTH_SUPPORTED_SCOPES", nil),
		RequirePKCEPublic: getEnvBoolOrDefault("AUTH_REQUIRE_PKCE_PUBLIC", true),
		PasswordGrant:     getEnvBoolOrDefault("AUTH_PASSWORD_GRANT", true),

		RegistrationToken: os.Getenv("AUTH_REGISTRATION_TOKEN"),
		DefaultTenant:     os.Getenv("AUTH_DEFAULT_TENANT"),
		SeedFile:          os.Getenv("AUTH_SEED_FILE"),

		KeyRotationInterval:  getEnvDurationOrDefault("AUTH_KEY_ROTATION_INTERVAL", 0),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),

		RateLimitDisabled: getEnvBoolOrDefault("RATE_LIMIT_DISABLED", false),
		RateLimits: RateLimitsConfig{
			Strict:   getEnvRateLimitOrDefault("RATE_LIMIT_STRICT", httpx.StrictLimit),
			Moderate: getEnvRateLimitOrDefault("RATE_LIMIT_MODERATE", httpx.ModerateLimit),
			Public:   getEnvRateLimitOrDefault("RATE_LIMIT_PUBLIC", httpx.PublicLimit),
		},

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}

	cfg.Issuer = strings.TrimRight(cfg.Issuer, "/")
	return cfg
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	var errs []error

	if c.Issuer == "" {
		errs = append(errs, errors.New("AUTH_ISSUER is required"))
	}
	if c.RSABits < cryptox.MinRSABits {
		errs = append(errs, fmt.Errorf("AUTH_RSA_BITS must be at least %d", cryptox.MinRSABits))
	}

	switch c.Storage {
	case StorageSQLite:
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("AUTH_DATABASE_FILE is required for sqlite storage"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("AUTH_STORAGE %q is not one of sqlite, memory", c.Storage))
	}

	switch c.CodeStore {
	case StorageSQLite:
		if c.Storage != StorageSQLite {
			errs = append(errs, errors.New("AUTH_CODE_STORE sqlite requires AUTH_STORAGE sqlite"))
		}
	case StorageMemory:
		if c.Storage != StorageMemory {
			errs = append(errs, errors.New("AUTH_CODE_STORE memory requires AUTH_STORAGE memory"))
		}
	case StorageRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("AUTH_REDIS_ADDR is required for the redis code store"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_CODE_STORE %q is not one of sqlite, memory, redis", c.CodeStore))
	}

	for name, ttl := range map[string]string{
		"AUTH_ACCESS_TOKEN_TTL":  c.AccessTokenTTL,
		"AUTH_REFRESH_TOKEN_TTL": c.RefreshTokenTTL,
		"AUTH_ID_TOKEN_TTL":      c.IDTokenTTL,
	} {
		if _, err := jwtx.ParseExpiry(ttl); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.CodeTTL <= 0 {
		errs = append(errs, errors.New("AUTH_CODE_TTL must be positive"))
	}

	if len(c.SupportedGrants) == 0 {
		errs = append(errs, errors.New("AUTH_SUPPORTED_GRANTS must name at least one grant"))
	}
	for _, g := range c.SupportedGrants {
		if !slices.Contains(knownGrants, g) {
			errs = append(errs, fmt.Errorf("AUTH_SUPPORTED_GRANTS: unknown grant %q", g))
		}
	}
	for _, s := range c.SupportedScopes {
		if !oauthx.ValidScopeToken(s) {
			errs = append(errs, fmt.Errorf("AUTH_SUPPORTED_SCOPES: malformed scope %q", s))
		}
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Token TTL form, so "30d" works here too
	if duration, err := jwtx.ParseExpiry(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

// getEnvListOrDefault splits a comma or space separated list.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' '
	})
	if len(fields) == 0 {
		return defaultValue
	}
	return fields
}

// getEnvRateLimitOrDefault reads <prefix>_REQUESTS, <prefix>_WINDOW and
// <prefix>_BURST on top of a default profile.
func getEnvRateLimitOrDefault(prefix string, defaultValue httpx.RateLimitConfig) httpx.RateLimitConfig {
	return httpx.RateLimitConfig{
		Requests: getEnvIntOrDefault(prefix+"_REQUESTS", defaultValue.Requests),
		Window:   getEnvDurationOrDefault(prefix+"_WINDOW", defaultValue.Window),
		Burst:    getEnvIntOrDefault(prefix+"_BURST", defaultValue.Burst),
	}
}

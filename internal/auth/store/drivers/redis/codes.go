// Package redis stores authorization codes in redis so that several server
// replicas share one single-use view of them. Expiry is left to redis TTLs.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
	"github.com/aussiebroadwan/idp/internal/auth/store"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix    = "idp:"
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// CodeStore implements store.AuthorizationCodes.
type CodeStore struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

var _ store.AuthorizationCodes = (*CodeStore)(nil)

// Config selects the redis server holding the codes.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewCodeStore connects to redis and verifies the connection.
func NewCodeStore(ctx context.Context, cfg Config) (*CodeStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewCodeStoreWithClient(client, cfg.KeyPrefix), nil
}

// NewCodeStoreWithClient wraps an existing client, e.g. one pointed at
// miniredis in tests.
func NewCodeStoreWithClient(client redis.UniversalClient, keyPrefix string) *CodeStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &CodeStore{client: client, keyPrefix: keyPrefix, now: time.Now}
}

func (s *CodeStore) Close() error { return s.client.Close() }

func (s *CodeStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

type storedCode struct {
	ID                  string   `json:"id"`
	CodeHash            string   `json:"code_hash"`
	ClientID            string   `json:"client_id"`
	UserID              string   `json:"user_id"`
	TenantID            string   `json:"tenant_id,omitempty"`
	RedirectURI         string   `json:"redirect_uri"`
	RedirectURIProvided bool     `json:"redirect_uri_provided,omitempty"`
	Scopes              []string `json:"scopes,omitempty"`
	Audience            []string `json:"audience,omitempty"`
	Nonce               string   `json:"nonce,omitempty"`
	CodeChallenge       string   `json:"code_challenge,omitempty"`
	CodeChallengeMethod string   `json:"code_challenge_method,omitempty"`
	ExpiresAt           int64    `json:"expires_at"`
	CreatedAt           int64    `json:"created_at"`
}

func (s *CodeStore) key(hash string) string {
	return s.keyPrefix + "code:" + hash
}

func (s *CodeStore) CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error {
	// redis cannot hold a key with no time left, and the caller would hand
	// out a code that can never be redeemed.
	ttl := code.ExpiresAt.Sub(s.now())
	if ttl < time.Millisecond {
		return fmt.Errorf("authorization code %s: %w", code.ID, store.ErrExpired)
	}

	data, err := json.Marshal(storedCode{
		ID:                  code.ID,
		CodeHash:            code.CodeHash,
		ClientID:            code.ClientID,
		UserID:              code.UserID,
		TenantID:            code.TenantID,
		RedirectURI:         code.RedirectURI,
		RedirectURIProvided: code.RedirectURIProvided,
		Scopes:              code.Scopes,
		Audience:            code.Audience,
		Nonce:               code.Nonce,
		CodeChallenge:       code.CodeChallenge,
		CodeChallengeMethod: code.CodeChallengeMethod,
		ExpiresAt:           code.ExpiresAt.UnixMilli(),
		CreatedAt:           code.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(code.CodeHash), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store authorization code: %w", err)
	}
	if !ok {
		return store.ErrAlreadyExists
	}
	return nil
}

func (s *CodeStore) GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error) {
	data, err := s.client.Get(ctx, s.key(hash)).Bytes()
	return decode(data, err)
}

// ConsumeAuthorizationCode uses GETDEL, which redis executes atomically.
func (s *CodeStore) ConsumeAuthorizationCode(ctx context.Context, hash string) (domain.AuthorizationCode, error) {
	data, err := s.client.GetDel(ctx, s.key(hash)).Bytes()
	return decode(data, err)
}

// DeleteExpiredAuthorizationCodes is a no-op; keys carry their own TTL.
func (s *CodeStore) DeleteExpiredAuthorizationCodes(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func decode(data []byte, err error) (domain.AuthorizationCode, error) {
	if errors.Is(err, redis.Nil) {
		return domain.AuthorizationCode{}, store.ErrNotFound
	}
	if err != nil {
		return domain.AuthorizationCode{}, fmt.Errorf("failed to read authorization code: %w", err)
	}

	var sc storedCode
	if err := json.Unmarshal(data, &sc); err != nil {
		return domain.AuthorizationCode{}, fmt.Errorf("failed to unmarshal authorization code: %w", err)
	}
	return domain.AuthorizationCode{
		ID:                  sc.ID,
		CodeHash:            sc.CodeHash,
		ClientID:            sc.ClientID,
		UserID:              sc.UserID,
		TenantID:            sc.TenantID,
		RedirectURI:         sc.RedirectURI,
		RedirectURIProvided: sc.RedirectURIProvided,
		Scopes:              sc.Scopes,
		Audience:            sc.Audience,
		Nonce:               sc.Nonce,
		CodeChallenge:       sc.CodeChallenge,
		CodeChallengeMethod: sc.CodeChallengeMethod,
		ExpiresAt:           time.UnixMilli(sc.ExpiresAt).UTC(),
		CreatedAt:           time.UnixMilli(sc.CreatedAt).UTC(),
	}, nil
}

// Package memory is a process-local store used for development and tests.
// Nothing survives a restart.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
	"github.com/aussiebroadwan/idp/internal/auth/store"
)

type Store struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	clients map[string]domain.Client
	codes   map[string]domain.AuthorizationCode // by code hash
	keys    []domain.SigningKey
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		users:   make(map[string]domain.User),
		clients: make(map[string]domain.Client),
		codes:   make(map[string]domain.AuthorizationCode),
	}
}

func (s *Store) Users() store.Users                           { return (*usersRepo)(s) }
func (s *Store) Clients() store.Clients                       { return (*clientsRepo)(s) }
func (s *Store) AuthorizationCodes() store.AuthorizationCodes { return (*codesRepo)(s) }
func (s *Store) SigningKeys() store.SigningKeys               { return (*keysRepo)(s) }

func (s *Store) ApplyMigrations() error         { return nil }
func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

type usersRepo Store

func (r *usersRepo) GetUserByID(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *usersRepo) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	email = strings.TrimSpace(email)
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return domain.User{}, store.ErrNotFound
}

func (r *usersRepo) CreateUser(_ context.Context, u domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.ID]; ok {
		return store.ErrAlreadyExists
	}
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return store.ErrAlreadyExists
		}
	}
	r.users[u.ID] = cloneUser(u)
	return nil
}

type clientsRepo Store

func (r *clientsRepo) GetClientByID(_ context.Context, clientID string) (domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[clientID]
	if !ok {
		return domain.Client{}, store.ErrNotFound
	}
	return cloneClient(c), nil
}

func (r *clientsRepo) CreateClient(_ context.Context, c domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c.ClientID]; ok {
		return store.ErrAlreadyExists
	}
	r.clients[c.ClientID] = cloneClient(c)
	return nil
}

type codesRepo Store

func (r *codesRepo) CreateAuthorizationCode(_ context.Context, code domain.AuthorizationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.codes[code.CodeHash]; ok {
		return store.ErrAlreadyExists
	}
	r.codes[code.CodeHash] = code
	return nil
}

func (r *codesRepo) GetAuthorizationCodeByHash(_ context.Context, hash string) (domain.AuthorizationCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	code, ok := r.codes[hash]
	if !ok {
		return domain.AuthorizationCode{}, store.ErrNotFound
	}
	return code, nil
}

func (r *codesRepo) ConsumeAuthorizationCode(_ context.Context, hash string) (domain.AuthorizationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.codes[hash]
	if !ok {
		return domain.AuthorizationCode{}, store.ErrNotFound
	}
	delete(r.codes, hash)
	return code, nil
}

func (r *codesRepo) DeleteExpiredAuthorizationCodes(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for hash, code := range r.codes {
		if code.IsExpired(now) {
			delete(r.codes, hash)
			n++
		}
	}
	return n, nil
}

type keysRepo Store

func (r *keysRepo) ListSigningKeys(_ context.Context) ([]domain.SigningKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return newestFirst(r.keys, func(domain.SigningKey) bool { return true }), nil
}

func (r *keysRepo) ListActiveSigningKeys(_ context.Context, purpose string) ([]domain.SigningKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return newestFirst(r.keys, func(k domain.SigningKey) bool { return k.Active && k.Purpose == purpose }), nil
}

func (r *keysRepo) GetSigningKeyByKID(_ context.Context, kid string) (domain.SigningKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, k := range r.keys {
		if k.KID == kid {
			return k, nil
		}
	}
	return domain.SigningKey{}, store.ErrNotFound
}

func (r *keysRepo) ActivateSigningKey(_ context.Context, key domain.SigningKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range r.keys {
		if k.KID == key.KID || k.ID == key.ID {
			return store.ErrAlreadyExists
		}
	}
	for i := range r.keys {
		if r.keys[i].Purpose == key.Purpose {
			r.keys[i].Active = false
		}
	}
	key.Active = true
	r.keys = append(r.keys, key)
	return nil
}

func newestFirst(keys []domain.SigningKey, keep func(domain.SigningKey) bool) []domain.SigningKey {
	var out []domain.SigningKey
	for _, k := range keys {
		if keep(k) {
			out = append(out, k)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func cloneUser(u domain.User) domain.User {
	u.Roles = slices.Clone(u.Roles)
	u.Profile = maps.Clone(u.Profile)
	return u
}

func cloneClient(c domain.Client) domain.Client {
	c.Secrets = slices.Clone(c.Secrets)
	c.RedirectURIs = slices.Clone(c.RedirectURIs)
	c.AllowedScopes = slices.Clone(c.AllowedScopes)
	c.GrantTypes = slices.Clone(c.GrantTypes)
	c.ResponseTypes = slices.Clone(c.ResponseTypes)
	c.Audiences = slices.Clone(c.Audiences)
	return c
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrExpired       = errors.New("store: already expired")
)

// Store is the root data access interface implemented by the drivers. The
// authorization server only ever sees the sub-collections, so a deployment
// can mix drivers (sqlite for keys and clients, redis for codes).
type Store interface {
	Users() Users
	Clients() Clients
	AuthorizationCodes() AuthorizationCodes
	SigningKeys() SigningKeys

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backing connection is still alive.
	Ping(ctx context.Context) error
}

type Users interface {
	// GetUserByID is used for userinfo and token subjects.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail is used by the password authenticator.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser is for out-of-band provisioning only; the protocol engine
	// never creates users.
	CreateUser(ctx context.Context, u domain.User) error
}

type Clients interface {
	GetClientByID(ctx context.Context, clientID string) (domain.Client, error)

	// CreateClient returns ErrAlreadyExists on a duplicate client id.
	CreateClient(ctx context.Context, c domain.Client) error
}

type AuthorizationCodes interface {
	// CreateAuthorizationCode may refuse a code that is already past its
	// expiry with ErrExpired. Drivers with their own TTLs do.
	CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error

	GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error)

	// ConsumeAuthorizationCode deletes the code and returns it in one atomic
	// step. Of two concurrent callers exactly one gets the code; the other
	// gets ErrNotFound.
	ConsumeAuthorizationCode(ctx context.Context, hash string) (domain.AuthorizationCode, error)

	// DeleteExpiredAuthorizationCodes is housekeeping.
	DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time) (int64, error)
}

type SigningKeys interface {
	// ListSigningKeys returns every key ordered newest first.
	ListSigningKeys(ctx context.Context) ([]domain.SigningKey, error)

	// ListActiveSigningKeys returns the active keys of purpose, newest first.
	ListActiveSigningKeys(ctx context.Context, purpose string) ([]domain.SigningKey, error)

	GetSigningKeyByKID(ctx context.Context, kid string) (domain.SigningKey, error)

	// ActivateSigningKey inserts key as active and deactivates every other
	// active key of the same purpose atomically.
	ActivateSigningKey(ctx context.Context, key domain.SigningKey) error
}

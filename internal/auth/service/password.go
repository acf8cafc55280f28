package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
	"github.com/aussiebroadwan/idp/internal/auth/store"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// ErrInvalidCredentials covers every user credential failure: unknown user,
// wrong password and disabled account look the same to the caller.
var ErrInvalidCredentials = errors.New("invalid credentials")

// PasswordAuthenticator checks a username and password.
type PasswordAuthenticator interface {
	// SupportsGrant reports whether the password grant may use this
	// authenticator. The authorize form uses it regardless.
	SupportsGrant() bool

	Authenticate(ctx context.Context, username, password string) (domain.User, error)
}

// StoreAuthenticator verifies users from the user collection, with the
// username being the email address.
type StoreAuthenticator struct {
	Users         store.Users
	PasswordGrant bool
}

var _ PasswordAuthenticator = (*StoreAuthenticator)(nil)

func (a *StoreAuthenticator) SupportsGrant() bool { return a.PasswordGrant }

func (a *StoreAuthenticator) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	l := slogx.FromContext(ctx)

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	user, err := a.Users.GetUserByEmail(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		_, _ = cryptox.VerifyHash(password, dummyHash())
		l.Debug("login failed", slog.String("reason", "unknown user"))
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}

	ok, err := cryptox.VerifyHash(password, user.PasswordHash)
	if err != nil {
		l.Warn("stored password hash unreadable", slog.String("user_id", user.ID), slog.Any("error", err))
		return domain.User{}, ErrInvalidCredentials
	}
	if !ok {
		l.Debug("login failed", slog.String("user_id", user.ID), slog.String("reason", "bad password"))
		return domain.User{}, ErrInvalidCredentials
	}
	if !user.Active {
		l.Debug("login failed", slog.String("user_id", user.ID), slog.String("reason", "inactive"))
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

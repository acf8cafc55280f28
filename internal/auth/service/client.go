package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
	"github.com/aussiebroadwan/idp/internal/auth/store"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// ClientCredentials are the client identification sent with a request,
// from HTTP Basic or the form body.
type ClientCredentials struct {
	ID     string
	Secret string
	Basic  bool
}

// ClientService authenticates and registers OAuth2 clients.
type ClientService struct {
	Clients store.Clients
	Policy  Policy

	// DefaultTenant is assigned to dynamically registered clients.
	DefaultTenant string

	// RegistrationToken, when set, must be presented as a bearer token to
	// register clients.
	RegistrationToken string
}

// AuthenticateClient resolves creds to an active client. Confidential
// clients must present a secret matching one of theirs; public clients are
// identified by client_id alone.
func (s *ClientService) AuthenticateClient(ctx context.Context, creds ClientCredentials) (*domain.Client, error) {
	l := slogx.FromContext(ctx)

	id := strings.TrimSpace(creds.ID)
	if id == "" {
		return nil, oauthx.ErrInvalidRequest.WithDescription("client_id is required")
	}

	client, err := s.Clients.GetClientByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		// Burn comparable time so unknown ids are not distinguishable.
		_, _ = cryptox.VerifyHash(creds.Secret, dummyHash())
		l.Info("client authentication failed", slog.String("client_id", id), slog.String("reason", "unknown client"))
		return nil, oauthx.ErrInvalidClient
	}
	if err != nil {
		return nil, err
	}

	if !client.Active {
		l.Info("client authentication failed", slog.String("client_id", id), slog.String("reason", "inactive"))
		return nil, oauthx.ErrInvalidClient
	}

	if client.IsPublic() {
		return &client, nil
	}

	if !VerifyClientSecret(&client, creds.Secret) {
		l.Info("client authentication failed", slog.String("client_id", id), slog.String("reason", "bad secret"))
		return nil, oauthx.ErrInvalidClient
	}
	return &client, nil
}

// VerifyClientSecret checks secret against every secret of the client,
// current and legacy. Each one is checked even after a match so the time
// taken does not reveal which secret matched.
func VerifyClientSecret(client *domain.Client, secret string) bool {
	if secret == "" {
		return false
	}

	matched := false
	for _, stored := range client.Secrets {
		var ok bool
		if cryptox.IsHashed(stored) {
			ok, _ = cryptox.VerifyHash(secret, stored)
		} else {
			ok = cryptox.ConstantTimeEqualString(secret, stored)
		}
		if ok {
			matched = true
		}
	}
	return matched
}

var dummyHash = sync.OnceValue(func() string {
	h, err := cryptox.HashSecret("timing-equaliser")
	if err != nil {
		return ""
	}
	return h
})

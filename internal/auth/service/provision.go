package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
	"github.com/aussiebroadwan/idp/internal/auth/store"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/idx"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// Seed is the out-of-band provisioning document for clients and users.
// Secrets and passwords may be given in clear; they are hashed before
// storage unless they already are hashes.
type Seed struct {
	Clients []SeedClient `json:"clients"`
	Users   []SeedUser   `json:"users"`
}

type SeedClient struct {
	ClientID                string   `json:"client_id"`
	Secrets                 []string `json:"secrets,omitempty"`
	Name                    string   `json:"name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris,omitempty"`
	AllowedScopes           []string `json:"allowed_scopes,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	Audiences               []string `json:"audiences,omitempty"`
	TenantID                string   `json:"tenant_id,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	Disabled                bool     `json:"disabled,omitempty"`
}

type SeedUser struct {
	ID       string         `json:"id,omitempty"`
	Email    string         `json:"email"`
	Password string         `json:"password"`
	TenantID string         `json:"tenant_id,omitempty"`
	Roles    []string       `json:"roles,omitempty"`
	Profile  map[string]any `json:"profile,omitempty"`
	Disabled bool           `json:"disabled,omitempty"`
}

// LoadSeedFile reads a JSON seed document.
func LoadSeedFile(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, err
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return seed, nil
}

// ProvisionService writes seed records into the store at startup.
type ProvisionService struct {
	Users   store.Users
	Clients store.Clients
}

// ProvisionResult counts what a Provision call created.
type ProvisionResult struct {
	ClientsCreated int
	UsersCreated   int
}

// Provision creates every seed record that does not exist yet. Existing
// records are left untouched, so the same seed can be applied on every
// start.
func (s *ProvisionService) Provision(ctx context.Context, seed Seed) (ProvisionResult, error) {
	l := slogx.FromContext(ctx)
	var res ProvisionResult
	now := time.Now().UTC()

	for _, sc := range seed.Clients {
		client, err := seedClient(sc, now)
		if err != nil {
			return res, err
		}
		err = s.Clients.CreateClient(ctx, client)
		if errors.Is(err, store.ErrAlreadyExists) {
			l.Debug("seed client exists", slog.String("client_id", client.ClientID))
			continue
		}
		if err != nil {
			return res, fmt.Errorf("create client %s: %w", client.ClientID, err)
		}
		res.ClientsCreated++
	}

	for _, su := range seed.Users {
		user, err := seedUser(su, now)
		if err != nil {
			return res, err
		}
		err = s.Users.CreateUser(ctx, user)
		if errors.Is(err, store.ErrAlreadyExists) {
			l.Debug("seed user exists", slog.String("email", user.Email))
			continue
		}
		if err != nil {
			return res, fmt.Errorf("create user %s: %w", user.Email, err)
		}
		res.UsersCreated++
	}

	l.Info("provisioning completed",
		slog.Int("clients_created", res.ClientsCreated),
		slog.Int("users_created", res.UsersCreated),
	)
	return res, nil
}

func seedClient(sc SeedClient, now time.Time) (domain.Client, error) {
	id := strings.TrimSpace(sc.ClientID)
	if id == "" {
		return domain.Client{}, errors.New("seed client without client_id")
	}

	secrets := make([]string, 0, len(sc.Secrets))
	for _, secret := range sc.Secrets {
		if secret == "" {
			continue
		}
		if cryptox.IsHashed(secret) {
			if err := cryptox.ValidateHash(secret); err != nil {
				return domain.Client{}, fmt.Errorf("seed client %q: %w", id, err)
			}
		} else {
			h, err := cryptox.HashSecret(secret)
			if err != nil {
				return domain.Client{}, err
			}
			secret = h
		}
		secrets = append(secrets, secret)
	}
	if len(secrets) == 0 {
		secrets = nil
	}

	return domain.Client{
		ClientID:                id,
		Secrets:                 secrets,
		Name:                    sc.Name,
		RedirectURIs:            sc.RedirectURIs,
		AllowedScopes:           sc.AllowedScopes,
		GrantTypes:              sc.GrantTypes,
		ResponseTypes:           sc.ResponseTypes,
		Audiences:               sc.Audiences,
		TenantID:                sc.TenantID,
		TokenEndpointAuthMethod: sc.TokenEndpointAuthMethod,
		Active:                  !sc.Disabled,
		CreatedAt:               now,
	}, nil
}

func seedUser(su SeedUser, now time.Time) (domain.User, error) {
	email := strings.TrimSpace(su.Email)
	if email == "" || su.Password == "" {
		return domain.User{}, errors.New("seed user needs an email and a password")
	}

	hash := su.Password
	if cryptox.IsHashed(hash) {
		if err := cryptox.ValidateHash(hash); err != nil {
			return domain.User{}, fmt.Errorf("seed user %q: %w", email, err)
		}
	} else {
		var err error
		if hash, err = cryptox.HashSecret(su.Password); err != nil {
			return domain.User{}, err
		}
	}

	id := su.ID
	if id == "" {
		id = idx.NewAt(now).String()
	}

	return domain.User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		TenantID:     su.TenantID,
		Roles:        su.Roles,
		Active:       !su.Disabled,
		Profile:      su.Profile,
		CreatedAt:    now,
	}, nil
}

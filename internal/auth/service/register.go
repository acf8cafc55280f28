package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
	"github.com/aussiebroadwan/idp/internal/auth/store"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// Register creates a client from RFC 7591 metadata. The plaintext secret is
// returned once and only its argon2id hash is stored.
func (s *ClientService) Register(ctx context.Context, bearer string, req oauthx.RegistrationRequest) (*oauthx.RegistrationResponse, error) {
	l := slogx.FromContext(ctx)

	if s.RegistrationToken != "" && !cryptox.ConstantTimeEqualString(bearer, s.RegistrationToken) {
		l.Warn("registration rejected", slog.String("reason", "bad registration token"))
		return nil, oauthx.ErrInvalidToken.WithDescription("a valid registration token is required")
	}

	if err := validateRedirectURIs(req.RedirectURIs); err != nil {
		return nil, err
	}

	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{oauthx.GrantTypeAuthorizationCode}
	}
	for _, gt := range grantTypes {
		if !s.Policy.SupportsGrant(gt) {
			return nil, oauthx.ErrInvalidClientMetadata.WithDescriptionf("grant type %q is not supported", gt)
		}
	}

	responseTypes := req.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{"code"}
	}
	for _, rt := range responseTypes {
		if rt != "code" {
			return nil, oauthx.ErrInvalidClientMetadata.WithDescriptionf("response type %q is not supported", rt)
		}
	}

	scopes := oauthx.ParseScope(req.Scope)
	if len(scopes) == 0 {
		scopes = slices.Clone(s.Policy.SupportedScopes)
	}
	for _, sc := range scopes {
		if !oauthx.ValidScopeToken(sc) {
			return nil, oauthx.ErrInvalidClientMetadata.WithDescriptionf("malformed scope %q", sc)
		}
	}
	if len(s.Policy.SupportedScopes) > 0 && !oauthx.Subset(scopes, s.Policy.SupportedScopes) {
		return nil, oauthx.ErrInvalidClientMetadata.WithDescription("requested scope is not supported")
	}

	method := req.TokenEndpointAuthMethod
	if method == "" {
		method = oauthx.AuthMethodClientSecretBasic
	}
	switch method {
	case oauthx.AuthMethodClientSecretBasic, oauthx.AuthMethodClientSecretPost, oauthx.AuthMethodNone:
	default:
		return nil, oauthx.ErrInvalidClientMetadata.WithDescriptionf("token_endpoint_auth_method %q is not supported", method)
	}
	if method == oauthx.AuthMethodNone && slices.Contains(grantTypes, oauthx.GrantTypeClientCredentials) {
		return nil, oauthx.ErrInvalidClientMetadata.WithDescription("public clients cannot use client_credentials")
	}

	now := time.Now().UTC()
	client := domain.Client{
		ClientID:                oauthx.GenerateClientID(),
		Name:                    strings.TrimSpace(req.ClientName),
		RedirectURIs:            slices.Clone(req.RedirectURIs),
		AllowedScopes:           scopes,
		GrantTypes:              slices.Clone(grantTypes),
		ResponseTypes:           slices.Clone(responseTypes),
		TenantID:                s.DefaultTenant,
		TokenEndpointAuthMethod: method,
		Active:                  true,
		CreatedAt:               now,
	}

	var secret string
	if method != oauthx.AuthMethodNone {
		var err error
		if secret, err = oauthx.GenerateClientSecret(); err != nil {
			return nil, err
		}
		hash, err := cryptox.HashSecret(secret)
		if err != nil {
			return nil, err
		}
		client.Secrets = []string{hash}
	}

	if err := s.Clients.CreateClient(ctx, client); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// A uuid collision; let the caller retry.
			return nil, oauthx.ErrServerError
		}
		return nil, err
	}

	l.Info("client registered", slog.String("client_id", client.ClientID), slog.String("auth_method", method))

	return &oauthx.RegistrationResponse{
		ClientID:                client.ClientID,
		ClientSecret:            secret,
		ClientIDIssuedAt:        now.Unix(),
		ClientSecretExpiresAt:   0,
		ClientName:              client.Name,
		RedirectURIs:            client.RedirectURIs,
		GrantTypes:              client.GrantTypes,
		ResponseTypes:           client.ResponseTypes,
		Scope:                   oauthx.FormatScope(client.AllowedScopes),
		TokenEndpointAuthMethod: method,
	}, nil
}

// blockedRedirectSchemes can run script or read local content in the
// user agent. Other custom schemes stay allowed for native apps.
var blockedRedirectSchemes = []string{"javascript", "data", "file", "vbscript", "about", "blob"}

// validateRedirectURIs requires at least one URI; each must be absolute,
// carry no fragment, and name a host when it is http(s).
func validateRedirectURIs(uris []string) error {
	if len(uris) == 0 {
		return oauthx.ErrInvalidRedirectURI.WithDescription("at least one redirect_uri is required")
	}
	for _, raw := range uris {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" {
			return oauthx.ErrInvalidRedirectURI.WithDescriptionf("redirect_uri %q is not an absolute URL", raw)
		}
		if slices.Contains(blockedRedirectSchemes, strings.ToLower(u.Scheme)) {
			return oauthx.ErrInvalidRedirectURI.WithDescriptionf("redirect_uri scheme %q is not allowed", u.Scheme)
		}
		if u.Fragment != "" || strings.Contains(raw, "#") {
			return oauthx.ErrInvalidRedirectURI.WithDescriptionf("redirect_uri %q must not contain a fragment", raw)
		}
		if (u.Scheme == "http" || u.Scheme == "https") && u.Host == "" {
			return oauthx.ErrInvalidRedirectURI.WithDescriptionf("redirect_uri %q has no host", raw)
		}
	}
	return nil
}

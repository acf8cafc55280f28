package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
	"github.com/aussiebroadwan/idp/internal/auth/store"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/jwtx"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// GrantType is one of the grants the token endpoint can dispatch to.
type GrantType string

const (
	GrantAuthorizationCode GrantType = oauthx.GrantTypeAuthorizationCode
	GrantClientCredentials GrantType = oauthx.GrantTypeClientCredentials
	GrantRefreshToken      GrantType = oauthx.GrantTypeRefreshToken
	GrantPassword          GrantType = oauthx.GrantTypePassword
)

// grantRequest is a parsed, grant-specific token request.
type grantRequest interface {
	run(ctx context.Context, s *TokenService, client *domain.Client) (*oauthx.TokenResponse, error)
}

// grants is the dispatch table. A grant type missing here can never be
// served, whatever the configuration says.
var grants = map[GrantType]func(form url.Values) (grantRequest, error){
	GrantClientCredentials: parseClientCredentials,
	GrantAuthorizationCode: parseAuthorizationCode,
	GrantRefreshToken:      parseRefreshToken,
	GrantPassword:          parsePassword,
}

// TokenRequest is a token endpoint call after transport decoding.
type TokenRequest struct {
	GrantType string
	Client    ClientCredentials
	Form      url.Values
}

// TokenService implements the token endpoint grants.
type TokenService struct {
	KeyManager *jwtx.KeyManager
	Clients    *ClientService
	Users      store.Users
	Codes      store.AuthorizationCodes
	Passwords  PasswordAuthenticator
	Policy     Policy

	Now func() time.Time
}

// Exchange checks the universal preconditions, authenticates the client
// and runs the grant. Errors are *oauthx.Error unless something internal
// failed.
func (s *TokenService) Exchange(ctx context.Context, req TokenRequest) (*oauthx.TokenResponse, error) {
	gt := GrantType(strings.TrimSpace(req.GrantType))
	if gt == "" {
		return nil, oauthx.ErrInvalidRequest.WithDescription("grant_type is required")
	}

	parse, ok := grants[gt]
	if !ok || !s.Policy.SupportsGrant(string(gt)) {
		return nil, oauthx.ErrUnsupportedGrantType.WithDescriptionf("grant type %q is not supported", gt)
	}

	client, err := s.Clients.AuthenticateClient(ctx, req.Client)
	if err != nil {
		return nil, err
	}
	ctx = slogx.With(ctx, slog.String("client_id", client.ClientID), slog.String("grant_type", string(gt)))

	gr, err := parse(req.Form)
	if err != nil {
		return nil, err
	}

	resp, err := gr.run(ctx, s, client)
	if err != nil {
		return nil, err
	}
	slogx.FromContext(ctx).Info("token issued", slog.String("scope", resp.Scope))
	return resp, nil
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *TokenService) minter() minter {
	return minter{keys: s.KeyManager, policy: s.Policy}
}

// refreshAllowed reports whether a refresh token may be issued to client.
func (s *TokenService) refreshAllowed(client *domain.Client, scopes []string) bool {
	return oauthx.Contains(scopes, oauthx.ScopeOfflineAccess) &&
		s.Policy.SupportsGrant(oauthx.GrantTypeRefreshToken) &&
		client.AllowsGrant(oauthx.GrantTypeRefreshToken)
}

// userIssuance builds the issuance for a token acting for user.
func (s *TokenService) userIssuance(client *domain.Client, user *domain.User, scopes, audience []string) issuance {
	tenant := user.TenantID
	if tenant == "" {
		tenant = client.TenantID
	}
	return issuance{
		Client:      client,
		Subject:     user.ID,
		TokenUse:    oauthx.TokenUseUser,
		TenantID:    tenant,
		Audience:    audience,
		Scopes:      scopes,
		User:        user,
		WithRefresh: s.refreshAllowed(client, scopes),
		WithID:      oauthx.Contains(scopes, oauthx.ScopeOpenID),
	}
}

// activeUser loads the subject of a grant; a missing or disabled user
// invalidates the grant.
func (s *TokenService) activeUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.Users.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, oauthx.ErrInvalidGrant.WithDescription("the user no longer exists")
	}
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, oauthx.ErrInvalidGrant.WithDescription("the user is disabled")
	}
	return &user, nil
}

// client_credentials

type clientCredentialsRequest struct {
	Scopes   []string
	Audience string
}

func parseClientCredentials(form url.Values) (grantRequest, error) {
	return &clientCredentialsRequest{
		Scopes:   oauthx.ParseScope(form.Get("scope")),
		Audience: strings.TrimSpace(form.Get("audience")),
	}, nil
}

func (r *clientCredentialsRequest) run(ctx context.Context, s *TokenService, client *domain.Client) (*oauthx.TokenResponse, error) {
	if !client.AllowsGrant(oauthx.GrantTypeClientCredentials) {
		return nil, oauthx.ErrUnauthorizedClient
	}
	if client.IsPublic() {
		return nil, oauthx.ErrUnauthorizedClient.WithDescription("public clients cannot use client_credentials")
	}

	scopes, err := s.Policy.grantScopes(r.Scopes, client)
	if err != nil {
		return nil, err
	}
	audience, err := resolveAudience(client, r.Audience)
	if err != nil {
		return nil, err
	}

	return s.minter().issue(ctx, issuance{
		Client:   client,
		Subject:  "sa:" + client.ClientID,
		TokenUse: oauthx.TokenUseService,
		TenantID: client.TenantID,
		Audience: audience,
		Scopes:   scopes,
	})
}

// authorization_code

type authorizationCodeRequest struct {
	Code         string
	RedirectURI  string
	CodeVerifier string
}

func parseAuthorizationCode(form url.Values) (grantRequest, error) {
	r := &authorizationCodeRequest{
		Code:         strings.TrimSpace(form.Get("code")),
		RedirectURI:  strings.TrimSpace(form.Get("redirect_uri")),
		CodeVerifier: strings.TrimSpace(form.Get("code_verifier")),
	}
	if r.Code == "" {
		return nil, oauthx.ErrInvalidRequest.WithDescription("code is required")
	}
	return r, nil
}

// run claims the code before validating it: a code presented with the
// wrong client, redirect or verifier is burned rather than left for retry.
func (r *authorizationCodeRequest) run(ctx context.Context, s *TokenService, client *domain.Client) (*oauthx.TokenResponse, error) {
	l := slogx.FromContext(ctx)

	if !client.AllowsGrant(oauthx.GrantTypeAuthorizationCode) {
		return nil, oauthx.ErrUnauthorizedClient
	}

	code, err := s.Codes.ConsumeAuthorizationCode(ctx, cryptox.FingerprintToken(r.Code))
	if errors.Is(err, store.ErrNotFound) {
		l.Info("authorization code rejected", slog.String("reason", "unknown or already used"))
		return nil, oauthx.ErrInvalidGrant
	}
	if err != nil {
		return nil, err
	}

	switch {
	case code.IsExpired(s.now()):
		return nil, oauthx.ErrInvalidGrant.WithDescription("authorization code expired")
	case code.ClientID != client.ClientID:
		l.Warn("authorization code presented by another client", slog.String("code_client_id", code.ClientID))
		return nil, oauthx.ErrInvalidGrant
	case !r.redirectMatches(code, client):
		return nil, oauthx.ErrInvalidGrant.WithDescription("redirect_uri does not match the authorization request")
	}

	if code.CodeChallenge != "" {
		if !oauthx.VerifyPKCE(code.CodeChallenge, code.CodeChallengeMethod, r.CodeVerifier) {
			return nil, oauthx.ErrInvalidGrant.WithDescription("code_verifier does not match the challenge")
		}
	} else if client.IsPublic() && s.Policy.RequirePKCEPublic {
		return nil, oauthx.ErrInvalidGrant.WithDescription("public clients must use PKCE")
	}

	user, err := s.activeUser(ctx, code.UserID)
	if err != nil {
		return nil, err
	}

	in := s.userIssuance(client, user, code.Scopes, code.Audience)
	if code.TenantID != "" {
		in.TenantID = code.TenantID
	}
	if len(in.Audience) == 0 {
		in.Audience = []string{client.ClientID}
	}
	in.Nonce = code.Nonce
	return s.minter().issue(ctx, in)
}

// redirectMatches requires the exact redirect_uri of the authorize request.
// It may be omitted only when the authorize request omitted it too and the
// client has a single registered URI.
func (r *authorizationCodeRequest) redirectMatches(code domain.AuthorizationCode, client *domain.Client) bool {
	if r.RedirectURI != "" {
		return r.RedirectURI == code.RedirectURI
	}
	if code.RedirectURIProvided {
		return false
	}
	return len(client.RedirectURIs) == 1 && client.RedirectURIs[0] == code.RedirectURI
}

// refresh_token

type refreshTokenRequest struct {
	RefreshToken string
	Scopes       []string
	Audience     string
}

func parseRefreshToken(form url.Values) (grantRequest, error) {
	r := &refreshTokenRequest{
		RefreshToken: strings.TrimSpace(form.Get("refresh_token")),
		Scopes:       oauthx.ParseScope(form.Get("scope")),
		Audience:     strings.TrimSpace(form.Get("audience")),
	}
	if r.RefreshToken == "" {
		return nil, oauthx.ErrInvalidRequest.WithDescription("refresh_token is required")
	}
	return r, nil
}

// run never re-issues the refresh token; the original stays valid until it
// expires.
func (r *refreshTokenRequest) run(ctx context.Context, s *TokenService, client *domain.Client) (*oauthx.TokenResponse, error) {
	claims := s.KeyManager.VerifyToken(ctx, r.RefreshToken)
	if claims == nil {
		return nil, oauthx.ErrInvalidGrant.WithDescription("refresh token is invalid or expired")
	}
	if claims.String(ClaimTokenType) != oauthx.TokenTypeRefresh {
		return nil, oauthx.ErrInvalidGrant.WithDescription("not a refresh token")
	}
	if claims.String(ClaimClientID) != client.ClientID {
		return nil, oauthx.ErrInvalidGrant.WithDescription("refresh token was issued to another client")
	}
	if aud := claims.Strings(jwtx.ClaimAudience); len(aud) > 0 && !claims.HasAudience(client.ClientID) {
		return nil, oauthx.ErrInvalidGrant.WithDescription("refresh token audience mismatch")
	}
	if !client.AllowsGrant(oauthx.GrantTypeRefreshToken) {
		return nil, oauthx.ErrUnauthorizedClient
	}

	original := claims.Scopes()
	scopes := r.Scopes
	if len(scopes) == 0 {
		scopes = original
	} else if !oauthx.Subset(scopes, original) {
		return nil, oauthx.ErrInvalidScope.WithDescription("requested scope exceeds the original grant")
	}

	audience, err := resolveAudience(client, r.Audience)
	if err != nil {
		return nil, err
	}

	user, err := s.activeUser(ctx, claims.String(jwtx.ClaimSubject))
	if err != nil {
		return nil, err
	}

	in := s.userIssuance(client, user, scopes, audience)
	in.WithRefresh = false
	if tenant := claims.String(ClaimTenantID); tenant != "" {
		in.TenantID = tenant
	}
	return s.minter().issue(ctx, in)
}

// password

type passwordRequest struct {
	Username string
	Password string
	Scopes   []string
	Audience string
}

func parsePassword(form url.Values) (grantRequest, error) {
	r := &passwordRequest{
		Username: strings.TrimSpace(form.Get("username")),
		Password: form.Get("password"),
		Scopes:   oauthx.ParseScope(form.Get("scope")),
		Audience: strings.TrimSpace(form.Get("audience")),
	}
	if r.Username == "" || r.Password == "" {
		return nil, oauthx.ErrInvalidRequest.WithDescription("username and password are required")
	}
	return r, nil
}

func (r *passwordRequest) run(ctx context.Context, s *TokenService, client *domain.Client) (*oauthx.TokenResponse, error) {
	if s.Passwords == nil || !s.Passwords.SupportsGrant() {
		return nil, oauthx.ErrUnsupportedGrantType.WithDescription("password grant is not available")
	}
	if !client.AllowsGrant(oauthx.GrantTypePassword) {
		return nil, oauthx.ErrUnauthorizedClient
	}

	scopes, err := s.Policy.grantScopes(r.Scopes, client)
	if err != nil {
		return nil, err
	}
	audience, err := resolveAudience(client, r.Audience)
	if err != nil {
		return nil, err
	}

	user, err := s.Passwords.Authenticate(ctx, r.Username, r.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		return nil, oauthx.ErrInvalidGrant.WithDescription("invalid username or password")
	}
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, oauthx.ErrInvalidGrant.WithDescription("invalid username or password")
	}
	if user.TenantID != "" && client.TenantID != "" && user.TenantID != client.TenantID {
		slogx.FromContext(ctx).Info("password grant tenant mismatch", slog.String("user_id", user.ID))
		return nil, oauthx.ErrInvalidGrant.WithDescription("invalid username or password")
	}

	return s.minter().issue(ctx, s.userIssuance(client, &user, scopes, audience))
}

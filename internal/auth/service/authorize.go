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
	"github.com/aussiebroadwan/idp/pkg/idx"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// DefaultCodeTTL applies when AuthorizeService.CodeTTL is unset.
const DefaultCodeTTL = 10 * time.Minute

// AuthorizeService runs the authorization-code front channel: validate the
// request, authenticate the user, issue a single-use code.
type AuthorizeService struct {
	Clients   store.Clients
	Codes     store.AuthorizationCodes
	Passwords PasswordAuthenticator
	Policy    Policy
	CodeTTL   time.Duration

	Now func() time.Time
}

// AuthorizeRequest carries the authorization parameters. The login form
// round-trips them as hidden fields, so no server-side state is kept
// between GET and POST.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	Audience            string
}

// ParseAuthorizeRequest reads the parameters from a query or form.
func ParseAuthorizeRequest(v url.Values) AuthorizeRequest {
	get := func(k string) string { return strings.TrimSpace(v.Get(k)) }
	return AuthorizeRequest{
		ResponseType:        get("response_type"),
		ClientID:            get("client_id"),
		RedirectURI:         get("redirect_uri"),
		Scope:               get("scope"),
		State:               v.Get("state"),
		Nonce:               get("nonce"),
		CodeChallenge:       get("code_challenge"),
		CodeChallengeMethod: get("code_challenge_method"),
		Audience:            get("audience"),
	}
}

// Values is the inverse of ParseAuthorizeRequest, omitting empty values.
func (r AuthorizeRequest) Values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("response_type", r.ResponseType)
	set("client_id", r.ClientID)
	set("redirect_uri", r.RedirectURI)
	set("scope", r.Scope)
	set("state", r.State)
	set("nonce", r.Nonce)
	set("code_challenge", r.CodeChallenge)
	set("code_challenge_method", r.CodeChallengeMethod)
	set("audience", r.Audience)
	return v
}

// ValidatedAuthorize is an authorization request that passed validation,
// with defaults resolved.
type ValidatedAuthorize struct {
	Request             AuthorizeRequest
	Client              *domain.Client
	RedirectURI         string
	Scopes              []string
	Audience            []string
	CodeChallengeMethod string
}

// AuthorizeError is an error to be delivered to the client's redirect_uri.
// Errors that occur before the redirect_uri is trusted are plain
// *oauthx.Error values instead.
type AuthorizeError struct {
	Err         *oauthx.Error
	RedirectURI string
	State       string
}

func (e *AuthorizeError) Error() string { return e.Err.Error() }
func (e *AuthorizeError) Unwrap() error { return e.Err }

// Location is the redirect carrying the error.
func (e *AuthorizeError) Location() string {
	v := url.Values{"error": {e.Err.Code}}
	if e.Err.Description != "" {
		v.Set("error_description", e.Err.Description)
	}
	if e.State != "" {
		v.Set("state", e.State)
	}
	return appendQuery(e.RedirectURI, v)
}

// Validate checks an authorization request. The client and redirect_uri are
// checked first; once the redirect_uri is known to be registered, every
// later failure is an *AuthorizeError.
func (s *AuthorizeService) Validate(ctx context.Context, req AuthorizeRequest) (*ValidatedAuthorize, error) {
	if req.ClientID == "" {
		return nil, oauthx.ErrInvalidRequest.WithDescription("client_id is required")
	}

	client, err := s.Clients.GetClientByID(ctx, req.ClientID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, oauthx.ErrInvalidRequest.WithDescription("unknown client")
	}
	if err != nil {
		return nil, err
	}
	if !client.Active {
		return nil, oauthx.ErrInvalidRequest.WithDescription("client is disabled")
	}

	redirectURI := req.RedirectURI
	switch {
	case redirectURI == "" && len(client.RedirectURIs) == 1:
		redirectURI = client.RedirectURIs[0]
	case redirectURI == "":
		return nil, oauthx.ErrInvalidRequest.WithDescription("redirect_uri is required")
	case !client.HasRedirectURI(redirectURI):
		return nil, oauthx.ErrInvalidRequest.WithDescription("redirect_uri is not registered for this client")
	}

	fail := func(e *oauthx.Error) error {
		return &AuthorizeError{Err: e, RedirectURI: redirectURI, State: req.State}
	}

	if req.ResponseType != "code" {
		return nil, fail(oauthx.ErrUnsupportedResponseType)
	}
	if len(client.ResponseTypes) > 0 && !oauthx.Contains(client.ResponseTypes, "code") {
		return nil, fail(oauthx.ErrUnauthorizedClient.WithDescription("client may not use response_type=code"))
	}
	if !client.AllowsGrant(oauthx.GrantTypeAuthorizationCode) || !s.Policy.SupportsGrant(oauthx.GrantTypeAuthorizationCode) {
		return nil, fail(oauthx.ErrUnauthorizedClient)
	}

	scopes, err := s.Policy.grantScopes(oauthx.ParseScope(req.Scope), &client)
	if err != nil {
		return nil, fail(oauthx.AsError(err))
	}
	audience, err := resolveAudience(&client, req.Audience)
	if err != nil {
		return nil, fail(oauthx.AsError(err))
	}

	method := req.CodeChallengeMethod
	if req.CodeChallenge != "" {
		if method == "" {
			method = oauthx.PKCEMethodPlain
		}
		if method != oauthx.PKCEMethodPlain && method != oauthx.PKCEMethodS256 {
			return nil, fail(oauthx.ErrInvalidRequest.WithDescription("code_challenge_method must be plain or S256"))
		}
		if !oauthx.ValidCodeVerifier(req.CodeChallenge) {
			return nil, fail(oauthx.ErrInvalidRequest.WithDescription("code_challenge is malformed"))
		}
	} else {
		if method != "" {
			return nil, fail(oauthx.ErrInvalidRequest.WithDescription("code_challenge_method without code_challenge"))
		}
		if client.IsPublic() && s.Policy.RequirePKCEPublic {
			return nil, fail(oauthx.ErrInvalidRequest.WithDescription("public clients must send a code_challenge"))
		}
	}

	return &ValidatedAuthorize{
		Request:             req,
		Client:              &client,
		RedirectURI:         redirectURI,
		Scopes:              scopes,
		Audience:            audience,
		CodeChallengeMethod: method,
	}, nil
}

// Authorize re-validates the request, checks the user's credentials and
// issues a code. It returns the redirect location on success. Credential
// failures of any kind become one generic access_denied redirect.
func (s *AuthorizeService) Authorize(ctx context.Context, req AuthorizeRequest, username, password string) (string, error) {
	l := slogx.FromContext(ctx)

	v, err := s.Validate(ctx, req)
	if err != nil {
		return "", err
	}
	denied := &AuthorizeError{
		Err:         oauthx.ErrAccessDenied.WithDescription("invalid username or password"),
		RedirectURI: v.RedirectURI,
		State:       req.State,
	}

	if s.Passwords == nil {
		return "", denied
	}
	user, err := s.Passwords.Authenticate(ctx, username, password)
	if errors.Is(err, ErrInvalidCredentials) {
		l.Info("authorize login failed", slog.String("client_id", v.Client.ClientID))
		return "", denied
	}
	if err != nil {
		return "", err
	}
	if !user.Active {
		return "", denied
	}
	if user.TenantID != "" && v.Client.TenantID != "" && user.TenantID != v.Client.TenantID {
		l.Info("authorize tenant mismatch", slog.String("client_id", v.Client.ClientID), slog.String("user_id", user.ID))
		return "", denied
	}

	plain, err := oauthx.GenerateAuthorizationCode()
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	ttl := s.CodeTTL
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	tenant := v.Client.TenantID
	if tenant == "" {
		tenant = user.TenantID
	}

	code := domain.AuthorizationCode{
		ID:                  idx.NewAt(now).String(),
		CodeHash:            cryptox.FingerprintToken(plain),
		ClientID:            v.Client.ClientID,
		UserID:              user.ID,
		TenantID:            tenant,
		RedirectURI:         v.RedirectURI,
		RedirectURIProvided: req.RedirectURI != "",
		Scopes:              v.Scopes,
		Audience:            v.Audience,
		Nonce:               req.Nonce,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: v.CodeChallengeMethod,
		ExpiresAt:           now.Add(ttl),
		CreatedAt:           now,
	}
	if err := s.Codes.CreateAuthorizationCode(ctx, code); err != nil {
		return "", err
	}

	l.Info("authorization code issued",
		slog.String("client_id", code.ClientID),
		slog.String("user_id", code.UserID),
		slog.String("scope", oauthx.FormatScope(code.Scopes)),
	)

	params := url.Values{"code": {plain}}
	if req.State != "" {
		params.Set("state", req.State)
	}
	return appendQuery(v.RedirectURI, params), nil
}

func (s *AuthorizeService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// appendQuery adds params to uri, keeping any query it already has.
func appendQuery(uri string, params url.Values) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

package authsdk

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/idp/pkg/oauthx"
)

// UserInfo returns the claims the session's scopes release about its user.
// Sessions from client_credentials have no user and get invalid_token.
func (s *Session) UserInfo(ctx context.Context) (map[string]any, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, oauthx.PathUserinfo, nil, nil)
	if err != nil {
		return nil, err
	}

	var claims map[string]any
	if err := decodeJSON(resp, &claims, http.StatusOK); err != nil {
		return nil, err
	}
	return claims, nil
}

// Introspect reports on the session's own access token, authenticating
// with the session's client credentials.
func (s *Session) Introspect(ctx context.Context) (*IntrospectionResponse, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.Introspect(ctx, s.creds, token)
}

package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/idp/pkg/oauthx"
)

// ClientCredentialsGrant requests an access token for the client itself.
// audience is optional and must be one the client is configured for.
func (c *SDKClient) ClientCredentialsGrant(
	ctx context.Context,
	creds ClientCredentials,
	scopes []string,
	audience string,
) (*TokenResponse, error) {
	data := url.Values{"grant_type": {oauthx.GrantTypeClientCredentials}}
	if len(scopes) > 0 {
		data.Set("scope", strings.Join(scopes, " "))
	}
	if audience != "" {
		data.Set("audience", audience)
	}

	return c.requestToken(ctx, data, creds)
}

// PasswordGrant exchanges a user's credentials for tokens.
func (c *SDKClient) PasswordGrant(
	ctx context.Context,
	creds ClientCredentials,
	username, password string,
	scopes []string,
) (*TokenResponse, error) {
	data := url.Values{
		"grant_type": {oauthx.GrantTypePassword},
		"username":   {username},
		"password":   {password},
	}
	if len(scopes) > 0 {
		data.Set("scope", strings.Join(scopes, " "))
	}

	return c.requestToken(ctx, data, creds)
}

// RefreshGrant requests new tokens using a refresh token. scopes may narrow
// the original grant; nil keeps it.
func (c *SDKClient) RefreshGrant(
	ctx context.Context,
	creds ClientCredentials,
	refreshToken string,
	scopes []string,
) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {oauthx.GrantTypeRefreshToken},
		"refresh_token": {refreshToken},
	}
	if len(scopes) > 0 {
		data.Set("scope", strings.Join(scopes, " "))
	}

	return c.requestToken(ctx, data, creds)
}

// ExchangeAuthorizationCode redeems a code from the authorize endpoint.
// verifier is the PKCE code verifier, empty when none was used.
func (c *SDKClient) ExchangeAuthorizationCode(
	ctx context.Context,
	creds ClientCredentials,
	code, redirectURI, verifier string,
) (*TokenResponse, error) {
	data := url.Values{
		"grant_type": {oauthx.GrantTypeAuthorizationCode},
		"code":       {code},
	}
	if redirectURI != "" {
		data.Set("redirect_uri", redirectURI)
	}
	if verifier != "" {
		data.Set("code_verifier", verifier)
	}

	return c.requestToken(ctx, data, creds)
}

// RevokeToken asks the server to revoke token. The server answers 200 for
// unknown tokens too, so a nil error says nothing about the token.
func (c *SDKClient) RevokeToken(ctx context.Context, token string) error {
	resp, err := c.postForm(ctx, oauthx.PathRevoke, url.Values{"token": {token}}, nil)
	if err != nil {
		return err
	}

	var ignored map[string]any
	return decodeJSON(resp, &ignored, http.StatusOK)
}

func (c *SDKClient) requestToken(ctx context.Context, data url.Values, creds ClientCredentials) (*TokenResponse, error) {
	resp, err := c.postForm(ctx, oauthx.PathToken, data, &creds)
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := decodeJSON(resp, &tokenResp, http.StatusOK); err != nil {
		return nil, err
	}

	return &tokenResp, nil
}

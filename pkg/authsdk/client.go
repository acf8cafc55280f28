package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient is a client for the authorization server.
// It provides access to public and client-authenticated operations and can
// create authenticated Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// CheckScopes makes a Session refuse calls it lacks the scope for
	// before sending them. Set to false to exercise server-side checks.
	// Default: true
	CheckScopes bool
}

// NewSDKClient creates a new client with scope checking enabled.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		CheckScopes: true,
	}
}

// AuthenticateWithClientCredentials creates a session using the
// client_credentials grant. These sessions have no refresh token; call
// again once the access token expires.
func (c *SDKClient) AuthenticateWithClientCredentials(
	ctx context.Context,
	clientID, clientSecret string,
	scopes []string,
) (*Session, error) {
	creds := ClientCredentials{ClientID: clientID, Secret: clientSecret}
	tokenResp, err := c.ClientCredentialsGrant(ctx, creds, scopes, "")
	if err != nil {
		return nil, err
	}

	return newSession(c, creds, tokenResp), nil
}

// AuthenticateWithPassword creates a session using the resource owner
// password grant.
func (c *SDKClient) AuthenticateWithPassword(
	ctx context.Context,
	creds ClientCredentials,
	username, password string,
	scopes []string,
) (*Session, error) {
	tokenResp, err := c.PasswordGrant(ctx, creds, username, password, scopes)
	if err != nil {
		return nil, err
	}

	return newSession(c, creds, tokenResp), nil
}

// AuthenticateWithRefreshToken creates a session from an existing refresh token.
func (c *SDKClient) AuthenticateWithRefreshToken(
	ctx context.Context,
	creds ClientCredentials,
	refreshToken string,
) (*Session, error) {
	tokenResp, err := c.RefreshGrant(ctx, creds, refreshToken, nil)
	if err != nil {
		return nil, err
	}

	return newSession(c, creds, tokenResp), nil
}

// NewSessionFromTokens creates a session from tokens obtained elsewhere,
// such as an authorization code exchange. The session still refreshes
// itself when it holds a refresh token.
func (c *SDKClient) NewSessionFromTokens(creds ClientCredentials, tokenResp *TokenResponse) *Session {
	return newSession(c, creds, tokenResp)
}

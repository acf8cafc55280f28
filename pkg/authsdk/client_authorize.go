package authsdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
)

// PKCEChallenge holds the PKCE verifier and challenge pair.
// The verifier is kept secret by the client, and the challenge is sent to the authorization endpoint.
type PKCEChallenge struct {
	Verifier  string
	Challenge string
	Method    string // always S256
}

// GeneratePKCEChallenge creates a new S256 verifier and challenge pair
// with 256 bits of entropy (RFC 7636).
func GeneratePKCEChallenge() (*PKCEChallenge, error) {
	verifier, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}

	return &PKCEChallenge{
		Verifier:  verifier,
		Challenge: oauthx.S256Challenge(verifier),
		Method:    oauthx.PKCEMethodS256,
	}, nil
}

// AuthorizeParams are the authorization request parameters.
type AuthorizeParams struct {
	ClientID    string
	RedirectURI string
	Scopes      []string
	State       string
	Nonce       string
	Audience    string
	PKCE        *PKCEChallenge
}

func (p AuthorizeParams) values() url.Values {
	v := url.Values{}
	v.Set("response_type", "code")
	v.Set("client_id", p.ClientID)

	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("redirect_uri", p.RedirectURI)
	set("scope", strings.Join(p.Scopes, " "))
	set("state", p.State)
	set("nonce", p.Nonce)
	set("audience", p.Audience)
	if p.PKCE != nil {
		v.Set("code_challenge", p.PKCE.Challenge)
		v.Set("code_challenge_method", p.PKCE.Method)
	}
	return v
}

// BuildAuthorizeURL constructs the URL to send the user's browser to.
//
// Example:
//
//	pkce, _ := authsdk.GeneratePKCEChallenge()
//	u := client.BuildAuthorizeURL(authsdk.AuthorizeParams{
//		ClientID:    "web",
//		RedirectURI: "https://app.example.com/callback",
//		State:       state,
//		PKCE:        pkce,
//	})
//	// keep pkce.Verifier for ExchangeAuthorizationCode
func (c *SDKClient) BuildAuthorizeURL(p AuthorizeParams) string {
	return c.url(oauthx.PathAuthorize) + "?" + p.values().Encode()
}

// AuthorizeWithPassword submits the login form of the authorize endpoint
// with the user's credentials and returns the authorization code from the
// redirect. Errors delivered on the redirect URI come back as
// *oauthx.Error; so do errors the server refuses to redirect.
func (c *SDKClient) AuthorizeWithPassword(
	ctx context.Context,
	p AuthorizeParams,
	username, password string,
) (string, error) {
	data := p.values()
	data.Set("username", username)
	data.Set("password", password)

	// The code arrives in the Location header; don't follow it.
	noRedirectClient := &http.Client{
		Transport: c.HTTPClient.Transport,
		Timeout:   c.HTTPClient.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.url(oauthx.PathAuthorize),
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := noRedirectClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", parseErrorResponse(resp, bodyBytes)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", errors.New("redirect response missing Location header")
	}

	code, state, err := ParseAuthorizationCallback(location)
	if err != nil {
		return "", err
	}
	if state != p.State {
		return "", fmt.Errorf("state mismatch: sent %q, got %q", p.State, state)
	}
	return code, nil
}

// AuthorizeAndExchange runs the whole authorization code flow with PKCE
// and returns a session for the user.
func (c *SDKClient) AuthorizeAndExchange(
	ctx context.Context,
	creds ClientCredentials,
	p AuthorizeParams,
	username, password string,
) (*Session, error) {
	if p.PKCE == nil {
		pkce, err := GeneratePKCEChallenge()
		if err != nil {
			return nil, err
		}
		p.PKCE = pkce
	}
	if p.State == "" {
		state, err := cryptox.GenerateToken(cryptox.TokenSize128)
		if err != nil {
			return nil, err
		}
		p.State = state
	}

	code, err := c.AuthorizeWithPassword(ctx, p, username, password)
	if err != nil {
		return nil, err
	}

	tokenResp, err := c.ExchangeAuthorizationCode(ctx, creds, code, p.RedirectURI, p.PKCE.Verifier)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	return newSession(c, creds, tokenResp), nil
}

// ParseAuthorizationCallback extracts the code and state from the redirect
// the authorization server sent the browser to. An error response on the
// callback is returned as *oauthx.Error.
//
// Example:
//
//	code, state, err := authsdk.ParseAuthorizationCallback(r.URL.String())
//	if err != nil {
//	    // e.g. access_denied
//	}
//	// compare state with the one you sent, then ExchangeAuthorizationCode
func ParseAuthorizationCallback(callbackURL string) (code, state string, err error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse callback URL: %w", err)
	}

	query := u.Query()
	if err := redirectError(query); err != nil {
		return "", "", err
	}

	code = query.Get("code")
	if code == "" {
		return "", "", errors.New("callback missing authorization code")
	}

	return code, query.Get("state"), nil
}

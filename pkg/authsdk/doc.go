/*
Package authsdk is a Go client for the authorization server.

# SDKClient vs Session

  - SDKClient: public endpoints, client-authenticated calls and the grants
    that start a session
  - Session: bearer-authenticated calls with automatic refresh

Create an SDKClient with the issuer URL:

	client := authsdk.NewSDKClient("https://idp.example.com")

	// Discovery and keys
	disco, err := client.GetDiscovery(ctx)
	jwks, err := client.GetJWKS(ctx)

	// Machine to machine
	session, err := client.AuthenticateWithClientCredentials(ctx, "svc", "secret", []string{"read"})

# Authorization code flow

Browser-based clients send the user to BuildAuthorizeURL and exchange the
code they get back on their redirect URI. Server-side callers that already
hold the user's credentials can drive the login form directly:

	pkce, _ := authsdk.GeneratePKCEChallenge()
	code, err := client.AuthorizeWithPassword(ctx, authsdk.AuthorizeParams{
		ClientID:    "web",
		RedirectURI: "https://app.example.com/callback",
		Scopes:      []string{"openid", "profile", "offline_access"},
		State:       state,
		PKCE:        pkce,
	}, "alice@example.com", "password")

	tokens, err := client.ExchangeAuthorizationCode(ctx, creds, code, redirectURI, pkce.Verifier)

# Sessions

A Session refreshes its access token shortly before expiry when it holds a
refresh token:

	info, err := session.UserInfo(ctx)
	keys, err := session.ListKeys(ctx) // requires admin:keys

# Errors

Server errors are returned as *oauthx.Error, so callers can match on the
OAuth2 error code:

	if errors.Is(err, oauthx.ErrInvalidGrant) {
		// start over
	}
*/
package authsdk

package authsdk

import (
	"context"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/idp/pkg/oauthx"
)

// Introspect asks the server about token, authenticating as creds.
// Unknown, expired and revoked tokens come back with Active false.
func (c *SDKClient) Introspect(ctx context.Context, creds ClientCredentials, token string) (*IntrospectionResponse, error) {
	resp, err := c.postForm(ctx, oauthx.PathIntrospect, url.Values{"token": {token}}, &creds)
	if err != nil {
		return nil, err
	}

	var out IntrospectionResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

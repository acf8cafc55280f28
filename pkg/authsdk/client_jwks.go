package authsdk

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/idp/pkg/oauthx"
)

// GetJWKS retrieves the JSON Web Key Set for token verification.
func (c *SDKClient) GetJWKS(ctx context.Context) (*JWKSResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, oauthx.PathJWKS, nil, nil)
	if err != nil {
		return nil, err
	}

	var jwks JWKSResponse
	if err := decodeJSON(resp, &jwks, http.StatusOK); err != nil {
		return nil, err
	}

	return &jwks, nil
}

// GetDiscovery retrieves the OpenID Provider metadata.
func (c *SDKClient) GetDiscovery(ctx context.Context) (*oauthx.Discovery, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, oauthx.PathDiscovery, nil, nil)
	if err != nil {
		return nil, err
	}

	var disco oauthx.Discovery
	if err := decodeJSON(resp, &disco, http.StatusOK); err != nil {
		return nil, err
	}

	return &disco, nil
}

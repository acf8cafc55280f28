package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/idp/pkg/oauthx"
)

// RegisterClient performs dynamic client registration. initialToken is
// the registration bearer token when the server requires one.
func (c *SDKClient) RegisterClient(ctx context.Context, initialToken string, req RegistrationRequest) (*RegistrationResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if initialToken != "" {
		headers["Authorization"] = "Bearer " + initialToken
	}

	resp, err := c.doRequest(ctx, http.MethodPost, oauthx.PathRegister, bytes.NewReader(body), headers)
	if err != nil {
		return nil, err
	}

	var out RegistrationResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// ScopeAdminKeys grants signing key administration.
const ScopeAdminKeys = "admin:keys"

// RotateKey activates a new signing key for purpose, the server's default
// purpose when empty. Tokens signed by the previous key stay verifiable.
// Requires: admin:keys scope
func (s *Session) RotateKey(ctx context.Context, purpose string) (*SigningKeyInfo, error) {
	path := "/v1/keys/rotate"
	if purpose != "" {
		path += "?" + url.Values{"purpose": {purpose}}.Encode()
	}

	resp, err := s.doAuthRequest(ctx, http.MethodPost, path, nil, nil, ScopeAdminKeys)
	if err != nil {
		return nil, err
	}

	var info SigningKeyInfo
	if err := decodeJSON(resp, &info, http.StatusOK); err != nil {
		return nil, err
	}

	return &info, nil
}

// ListKeys returns all signing keys with their status, newest first.
// Requires: admin:keys scope
func (s *Session) ListKeys(ctx context.Context) ([]SigningKeyInfo, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/keys", nil, nil, ScopeAdminKeys)
	if err != nil {
		return nil, err
	}

	var keys []SigningKeyInfo
	if err := decodeJSON(resp, &keys, http.StatusOK); err != nil {
		return nil, err
	}

	return keys, nil
}

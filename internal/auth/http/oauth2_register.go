package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/idp/internal/auth/service"
	"github.com/aussiebroadwan/idp/pkg/httpx"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
)

// RegisterHandler serves POST /oauth/register, RFC 7591 dynamic client
// registration.
type RegisterHandler struct {
	ClientService *service.ClientService
}

func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req oauthx.RegistrationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes))
	if err := dec.Decode(&req); err != nil {
		oauthx.ErrInvalidClientMetadata.WithDescription("request body must be a JSON object").WriteError(w)
		return
	}

	bearer, _ := httpx.BearerToken(r)
	resp, err := h.ClientService.Register(r.Context(), bearer, req)
	if err != nil {
		var oe *oauthx.Error
		if errors.As(err, &oe) && oe.Code == oauthx.ErrorCodeInvalidToken {
			httpx.WriteBearerError(w, http.StatusUnauthorized, oe.Code, oe.Description)
			return
		}
		writeOAuthError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, resp)
}

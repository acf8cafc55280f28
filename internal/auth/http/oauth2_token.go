package http

import (
	"net/http"

	"github.com/aussiebroadwan/idp/internal/auth/service"
	"github.com/aussiebroadwan/idp/pkg/httpx"
)

// TokenHandler serves POST /oauth/token. Grant dispatch and validation live
// in the token service; this handler only decodes the transport.
type TokenHandler struct {
	TokenService *service.TokenService
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. Form body only
	if !readForm(w, r) {
		return
	}

	// 2. Client authentication, Basic or body
	creds, err := clientCredentials(r)
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}

	// 3. Run the grant
	resp, err := h.TokenService.Exchange(r.Context(), service.TokenRequest{
		GrantType: r.PostForm.Get("grant_type"),
		Client:    creds,
		Form:      r.PostForm,
	})
	if err != nil {
		writeClientError(w, r, creds, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

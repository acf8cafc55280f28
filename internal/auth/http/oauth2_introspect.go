package http

import (
	"net/http"

	"github.com/aussiebroadwan/idp/internal/auth/service"
	"github.com/aussiebroadwan/idp/pkg/httpx"
)

// IntrospectHandler serves POST /oauth/introspect following RFC 7662. The
// caller must authenticate as a client; the token result is always 200.
type IntrospectHandler struct {
	IntrospectionService *service.IntrospectionService
}

func (h *IntrospectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. Form body only
	if !readForm(w, r) {
		return
	}

	// 2. Caller authentication
	creds, err := clientCredentials(r)
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}

	// 3. Inspect the token. Unverifiable tokens come back {"active":false}.
	resp, err := h.IntrospectionService.Introspect(r.Context(), creds, r.PostForm.Get("token"))
	if err != nil {
		writeClientError(w, r, creds, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

package http

import (
	"net/http"

	"github.com/aussiebroadwan/idp/internal/auth/service"
	"github.com/aussiebroadwan/idp/pkg/httpx"
)

// RevokeHandler serves POST /oauth/revoke (RFC 7009). Tokens are stateless,
// so every request, even for an unknown token, gets 200 {}.
type RevokeHandler struct {
	IntrospectionService *service.IntrospectionService
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	_ = r.ParseForm()

	h.IntrospectionService.Revoke(r.Context(), r.PostForm.Get("token"), r.PostForm.Get("token_type_hint"))

	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}

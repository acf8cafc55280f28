package http

import (
	"net/http"

	"github.com/aussiebroadwan/idp/internal/auth/service"
	"github.com/aussiebroadwan/idp/pkg/httpx"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

type UserInfoHandler struct {
	UserInfoService *service.UserInfoService
}

// ServeHTTP handles GET and POST /oauth/userinfo with a bearer access token.
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, ok := httpx.BearerToken(r)
	if !ok {
		httpx.WriteBearerError(w, http.StatusUnauthorized, oauthx.ErrorCodeInvalidToken, "missing bearer token")
		return
	}

	claims, err := h.UserInfoService.UserInfo(r.Context(), token)
	if err != nil {
		oe := oauthx.AsError(err)
		if oe.Code == oauthx.ErrorCodeServerError {
			slogx.FromContext(r.Context()).Error("userinfo failed", "error", err)
			oe.WriteError(w)
			return
		}
		httpx.WriteBearerError(w, http.StatusUnauthorized, oauthx.ErrorCodeInvalidToken, oe.Description)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, claims)
}

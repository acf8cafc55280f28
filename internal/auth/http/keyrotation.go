package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/idp/internal/auth/service"
	"github.com/aussiebroadwan/idp/pkg/httpx"
)

// KeyRotationHandler handles signing key administration. Routes require a
// bearer token with the admin:keys scope.
type KeyRotationHandler struct {
	KeyRotationService *service.KeyRotationService
}

// HandleRotate handles POST /v1/keys/rotate?purpose=...
func (h *KeyRotationHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	purpose := strings.TrimSpace(r.URL.Query().Get("purpose"))

	info, err := h.KeyRotationService.RotateKey(r.Context(), purpose)
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, info)
}

// HandleListKeys handles GET /v1/keys
func (h *KeyRotationHandler) HandleListKeys(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.KeyRotationService.ListKeys())
}

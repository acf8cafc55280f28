package http

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/idp/internal/auth/service"
	"github.com/aussiebroadwan/idp/pkg/httpx"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

//go:embed templates/*.html
var templateFS embed.FS

var authorizeTemplate = template.Must(template.ParseFS(templateFS, "templates/authorize.html"))

// authorizePage is the data of the login form. Params carries every
// authorization parameter so the POST can re-validate without server state.
type authorizePage struct {
	ClientName string
	Scopes     []string
	Action     string
	Params     url.Values
}

// AuthorizeHandler serves the authorization-code front channel.
type AuthorizeHandler struct {
	AuthorizeService *service.AuthorizeService
}

// HandleGet validates the request and renders the login form.
func (h *AuthorizeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	req := service.ParseAuthorizeRequest(r.URL.Query())

	v, err := h.AuthorizeService.Validate(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	name := v.Client.Name
	if name == "" {
		name = v.Client.ClientID
	}

	var buf bytes.Buffer
	if err := authorizeTemplate.Execute(&buf, authorizePage{
		ClientName: name,
		Scopes:     v.Scopes,
		Action:     r.URL.Path,
		Params:     req.Values(),
	}); err != nil {
		writeOAuthError(w, r, err)
		return
	}

	httpx.NoCache(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; form-action 'self'; frame-ancestors 'none'")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// HandlePost authenticates the submitted credentials and redirects back to
// the client with a code, or with access_denied.
func (h *AuthorizeHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	if !readForm(w, r) {
		return
	}

	req := service.ParseAuthorizeRequest(r.PostForm)
	location, err := h.AuthorizeService.Authorize(r.Context(), req, r.PostForm.Get("username"), r.PostForm.Get("password"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httpx.NoCache(w)
	http.Redirect(w, r, location, http.StatusFound)
}

// writeError redirects errors the client's redirect_uri may receive and
// answers everything else directly, per RFC 6749 section 4.1.2.1.
func (h *AuthorizeHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *service.AuthorizeError
	if errors.As(err, &ae) {
		slogx.FromContext(r.Context()).Debug("authorize request redirected with error", "error", ae.Err.Code)
		http.Redirect(w, r, ae.Location(), http.StatusFound)
		return
	}
	writeOAuthError(w, r, err)
}

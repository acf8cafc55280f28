package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/idp/internal/auth/service"
	"github.com/aussiebroadwan/idp/pkg/httpx"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// maxFormBytes bounds form and JSON request bodies.
const maxFormBytes = 64 << 10

// writeOAuthError writes err as an OAuth2 error body. Anything that is not
// already an *oauthx.Error is logged and reported as server_error.
func writeOAuthError(w http.ResponseWriter, r *http.Request, err error) {
	oe := oauthx.AsError(err)
	if oe.Code == oauthx.ErrorCodeServerError {
		slogx.FromContext(r.Context()).Error("request failed", "error", err)
		oe = oauthx.ErrServerError
	}
	oe.WriteError(w)
}

// writeClientError is writeOAuthError plus the Basic challenge RFC 6749
// section 5.2 requires when Basic credentials were rejected.
func writeClientError(w http.ResponseWriter, r *http.Request, creds service.ClientCredentials, err error) {
	if creds.Basic && errors.Is(err, oauthx.ErrInvalidClient) {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
	}
	writeOAuthError(w, r, err)
}

// limitFormBody parses form bodies under maxFormBytes before anything else
// reads them. Rate limit key extractors call ParseForm too, and the first
// parse is the one that counts.
func limitFormBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if httpx.IsFormEncoded(r) && !readForm(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// readForm requires an application/x-www-form-urlencoded body and parses it.
func readForm(w http.ResponseWriter, r *http.Request) bool {
	if !httpx.IsFormEncoded(r) {
		oauthx.ErrInvalidRequest.
			WithDescription("content type must be application/x-www-form-urlencoded").
			WriteError(w)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		oauthx.ErrInvalidRequest.WithDescription("malformed form body").WriteError(w)
		return false
	}
	return true
}

// clientCredentials reads client authentication from HTTP Basic, falling
// back to client_id/client_secret in the body. Basic credentials are
// form-encoded before base64 (RFC 6749 section 2.3.1).
func clientCredentials(r *http.Request) (service.ClientCredentials, error) {
	id, secret, ok := r.BasicAuth()
	if !ok {
		return service.ClientCredentials{
			ID:     strings.TrimSpace(r.PostForm.Get("client_id")),
			Secret: r.PostForm.Get("client_secret"),
		}, nil
	}

	uid, err := url.QueryUnescape(id)
	if err != nil {
		return service.ClientCredentials{}, oauthx.ErrInvalidRequest.WithDescription("malformed basic credentials")
	}
	usecret, err := url.QueryUnescape(secret)
	if err != nil {
		return service.ClientCredentials{}, oauthx.ErrInvalidRequest.WithDescription("malformed basic credentials")
	}

	if formID := strings.TrimSpace(r.PostForm.Get("client_id")); formID != "" && formID != uid {
		return service.ClientCredentials{}, oauthx.ErrInvalidRequest.WithDescription("client_id does not match the basic credentials")
	}
	if r.PostForm.Get("client_secret") != "" {
		return service.ClientCredentials{}, oauthx.ErrInvalidRequest.WithDescription("use only one client authentication method")
	}

	return service.ClientCredentials{ID: uid, Secret: usecret, Basic: true}, nil
}

package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/idp/pkg/oauthx"
)

// parseErrorResponse turns a failed response into an *oauthx.Error. Bearer
// errors carry their code in WWW-Authenticate when the body is empty.
func parseErrorResponse(resp *http.Response, body []byte) error {
	var errResp oauthx.Error
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Code != "" {
		errResp.StatusCode = resp.StatusCode
		return &errResp
	}

	if code := bearerErrorCode(resp.Header.Get("WWW-Authenticate")); code != "" {
		return &oauthx.Error{StatusCode: resp.StatusCode, Code: code}
	}

	return &oauthx.Error{
		StatusCode:  resp.StatusCode,
		Code:        oauthx.ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}

// bearerErrorCode extracts error="..." from a Bearer challenge.
func bearerErrorCode(challenge string) string {
	_, params, ok := strings.Cut(challenge, " ")
	if !ok {
		return ""
	}
	for _, p := range strings.Split(params, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if ok && k == "error" {
			return strings.Trim(v, `"`)
		}
	}
	return ""
}

// redirectError reads an error delivered on the redirect URI.
func redirectError(q map[string][]string) error {
	code := first(q["error"])
	if code == "" {
		return nil
	}
	return &oauthx.Error{
		StatusCode:  http.StatusFound,
		Code:        code,
		Description: first(q["error_description"]),
	}
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

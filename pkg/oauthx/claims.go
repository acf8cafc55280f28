package oauthx

// UserInfo is the slice of a user record that can end up in tokens and
// userinfo responses.
type UserInfo struct {
	ID       string
	Email    string
	TenantID string
	Roles    []string
	// Profile holds standard OIDC claims such as name, picture and
	// email_verified.
	Profile map[string]any
}

// Claims released by each scope (OIDC Core section 5.4).
var scopeClaims = map[string][]string{
	ScopeProfile: {
		"name", "family_name", "given_name", "middle_name", "nickname",
		"preferred_username", "profile", "picture", "website", "gender",
		"birthdate", "zoneinfo", "locale", "updated_at",
	},
	ScopeEmail: {"email", "email_verified"},
	"phone":    {"phone_number", "phone_number_verified"},
	"address":  {"address"},
}

// SupportedClaims lists every claim UserClaims can release.
func SupportedClaims() []string {
	out := []string{"sub", "iss", "aud", "exp", "iat", "auth_time", "nonce", "tenant_id", "roles"}
	for _, scope := range []string{ScopeProfile, ScopeEmail, "phone", "address"} {
		out = append(out, scopeClaims[scope]...)
	}
	return out
}

// UserClaims projects u onto the claims the granted scopes allow. sub is
// always present; tenant_id whenever the user has one.
func UserClaims(u UserInfo, scopes []string) map[string]any {
	out := map[string]any{"sub": u.ID}
	if u.TenantID != "" {
		out["tenant_id"] = u.TenantID
	}

	for _, scope := range scopes {
		for _, name := range scopeClaims[scope] {
			if v, ok := u.Profile[name]; ok {
				out[name] = v
			}
		}
	}

	if Contains(scopes, ScopeEmail) && u.Email != "" {
		out["email"] = u.Email
		if _, ok := out["email_verified"]; !ok {
			out["email_verified"] = false
		}
	}
	if Contains(scopes, ScopeRoles) && len(u.Roles) > 0 {
		out["roles"] = u.Roles
	}
	return out
}

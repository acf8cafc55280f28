package domain

import "time"

// AuthorizationCode is issued at the authorize step and consumed once at
// the token endpoint. CodeHash is the fingerprint of the code handed to the
// client; the plaintext is never stored. RedirectURIProvided records whether
// the authorize request named redirect_uri itself, in which case the token
// request must repeat it.
type AuthorizationCode struct {
	ID                  string
	CodeHash            string
	ClientID            string
	UserID              string
	TenantID            string
	RedirectURI         string
	RedirectURIProvided bool
	Scopes              []string
	Audience            []string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	CreatedAt           time.Time
}

// IsExpired reports whether the code is past its expiry at now.
func (c *AuthorizationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

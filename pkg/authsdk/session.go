package authsdk

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/idp/pkg/oauthx"
)

// refreshBuffer renews access tokens this long before they expire.
const refreshBuffer = 30 * time.Second

// ErrSessionExpired is returned when the access token expired and the
// session has no refresh token to renew it with.
var ErrSessionExpired = errors.New("authsdk: access token expired and no refresh token available")

// Session is an authenticated session. Its methods renew the access token
// through the refresh grant when it is about to expire.
type Session struct {
	client *SDKClient
	creds  ClientCredentials

	mu           sync.RWMutex
	accessToken  string
	idToken      string
	refreshToken string
	expiresAt    time.Time
	scopes       []string
}

func newSession(client *SDKClient, creds ClientCredentials, tokenResp *TokenResponse) *Session {
	s := &Session{client: client, creds: creds}
	s.apply(tokenResp)
	return s
}

// apply stores a token response. Callers hold mu, or own s exclusively.
// Refresh tokens are not rotated by the server, so an empty one keeps ours.
func (s *Session) apply(tokenResp *TokenResponse) {
	s.accessToken = tokenResp.AccessToken
	if tokenResp.IDToken != "" {
		s.idToken = tokenResp.IDToken
	}
	if tokenResp.RefreshToken != "" {
		s.refreshToken = tokenResp.RefreshToken
	}
	s.expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - refreshBuffer)
	s.scopes = oauthx.ParseScope(tokenResp.Scope)
}

// Revoke revokes the session's refresh token, or its access token when
// it has none.
func (s *Session) Revoke(ctx context.Context) error {
	s.mu.RLock()
	token := s.refreshToken
	if token == "" {
		token = s.accessToken
	}
	s.mu.RUnlock()

	return s.client.RevokeToken(ctx, token)
}

// getValidToken returns an unexpired access token, refreshing first when
// needed. Concurrent callers share one refresh.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if s.refreshToken == "" {
		return "", ErrSessionExpired
	}

	tokenResp, err := s.client.RefreshGrant(ctx, s.creds, s.refreshToken, nil)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	s.apply(tokenResp)

	return s.accessToken, nil
}

// AccessToken returns the current access token without checking expiry.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// IDToken returns the most recent ID token, if any.
func (s *Session) IDToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idToken
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// Scopes returns a copy of the granted scopes.
func (s *Session) Scopes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.scopes)
}

func (s *Session) HasScope(scope string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.scopes, scope)
}

func (s *Session) HasAllScopes(scopes ...string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return oauthx.Subset(scopes, s.scopes)
}

// checkScopes fails fast when scope checking is on and a required scope
// was not granted.
func (s *Session) checkScopes(required ...string) error {
	if !s.client.CheckScopes || len(required) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []string
	for _, scope := range required {
		if !slices.Contains(s.scopes, scope) {
			missing = append(missing, scope)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required scope(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

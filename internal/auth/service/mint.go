package service

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
	"github.com/aussiebroadwan/idp/pkg/jwtx"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
)

// Claim names beyond the registered ones.
const (
	ClaimClientID  = "client_id"
	ClaimTokenType = "token_type"
	ClaimTokenUse  = "token_use"
	ClaimTenantID  = "tenant_id"
	ClaimRoles     = "roles"
	ClaimNonce     = "nonce"
	ClaimAZP       = "azp"
	ClaimAuthTime  = "auth_time"
)

// issuance describes the tokens one successful grant produces.
type issuance struct {
	Client   *domain.Client
	Subject  string
	TokenUse string
	TenantID string
	Audience []string
	Scopes   []string

	// User is nil for service tokens.
	User *domain.User

	Nonce       string
	WithRefresh bool
	WithID      bool
}

// minter signs the tokens of a grant with the default purpose key.
type minter struct {
	keys   *jwtx.KeyManager
	policy Policy
}

func (m minter) issue(ctx context.Context, in issuance) (*oauthx.TokenResponse, error) {
	ttl, err := m.policy.accessTTL()
	if err != nil {
		return nil, fmt.Errorf("access token ttl: %w", err)
	}
	purpose := m.keys.DefaultPurpose()
	scope := oauthx.FormatScope(in.Scopes)

	access := m.base(in, oauthx.TokenTypeAccess)
	access[jwtx.ClaimAudience] = in.Audience
	if in.User != nil && len(in.User.Roles) > 0 {
		access[ClaimRoles] = in.User.Roles
	}

	resp := &oauthx.TokenResponse{
		TokenType: "Bearer",
		ExpiresIn: int64(ttl.Seconds()),
		Scope:     scope,
	}
	if resp.AccessToken, err = m.keys.CreateToken(ctx, access, m.policy.AccessTokenTTL, purpose); err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	if in.WithRefresh {
		refresh := m.base(in, oauthx.TokenTypeRefresh)
		refresh[jwtx.ClaimAudience] = []string{in.Client.ClientID}
		if resp.RefreshToken, err = m.keys.CreateToken(ctx, refresh, m.policy.RefreshTokenTTL, purpose); err != nil {
			return nil, fmt.Errorf("sign refresh token: %w", err)
		}
	}

	if in.WithID && in.User != nil {
		if resp.IDToken, err = m.idToken(ctx, in, purpose); err != nil {
			return nil, fmt.Errorf("sign id token: %w", err)
		}
	}
	return resp, nil
}

func (m minter) base(in issuance, tokenType string) jwtx.Claims {
	c := jwtx.Claims{
		jwtx.ClaimIssuer:  m.policy.Issuer,
		jwtx.ClaimSubject: in.Subject,
		jwtx.ClaimScope:   oauthx.FormatScope(in.Scopes),
		ClaimClientID:     in.Client.ClientID,
		ClaimTokenType:    tokenType,
		ClaimTokenUse:     in.TokenUse,
	}
	if in.TenantID != "" {
		c[ClaimTenantID] = in.TenantID
	}
	return c
}

func (m minter) idToken(ctx context.Context, in issuance, purpose string) (string, error) {
	c := jwtx.Claims{}
	for k, v := range oauthx.UserClaims(userInfo(in.User), in.Scopes) {
		c[k] = v
	}
	c[jwtx.ClaimIssuer] = m.policy.Issuer
	c[jwtx.ClaimSubject] = in.Subject
	c[jwtx.ClaimAudience] = []string{in.Client.ClientID}
	c[ClaimAZP] = in.Client.ClientID
	c[ClaimTokenType] = oauthx.TokenTypeID
	if in.Nonce != "" {
		c[ClaimNonce] = in.Nonce
	}
	return m.keys.CreateToken(ctx, c, m.policy.IDTokenTTL, purpose)
}

func userInfo(u *domain.User) oauthx.UserInfo {
	return oauthx.UserInfo{
		ID:       u.ID,
		Email:    u.Email,
		TenantID: u.TenantID,
		Roles:    u.Roles,
		Profile:  u.Profile,
	}
}

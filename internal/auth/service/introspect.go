package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/idp/pkg/jwtx"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// IntrospectionService answers RFC 7662 introspection and RFC 7009
// revocation requests.
type IntrospectionService struct {
	KeyManager *jwtx.KeyManager
	Clients    *ClientService
}

// Introspect authenticates the caller, then reports on token. Only a
// rejected caller is an error; internal failures and anything that does not
// verify come back inactive.
func (s *IntrospectionService) Introspect(ctx context.Context, caller ClientCredentials, token string) (*oauthx.IntrospectionResponse, error) {
	if _, err := s.Clients.AuthenticateClient(ctx, caller); err != nil {
		var oe *oauthx.Error
		if errors.As(err, &oe) {
			return nil, err
		}
		slogx.FromContext(ctx).Error("introspection caller lookup failed",
			slog.String("client_id", caller.ID),
			slog.Any("error", err),
		)
		return &oauthx.IntrospectionResponse{Active: false}, nil
	}
	if token == "" {
		return &oauthx.IntrospectionResponse{Active: false}, nil
	}

	claims := s.KeyManager.VerifyToken(ctx, token)
	if claims == nil {
		return &oauthx.IntrospectionResponse{Active: false}, nil
	}

	resp := &oauthx.IntrospectionResponse{
		Active:    true,
		Scope:     claims.String(jwtx.ClaimScope),
		ClientID:  claims.String(ClaimClientID),
		TokenType: claims.String(ClaimTokenType),
		TokenUse:  claims.String(ClaimTokenUse),
		Sub:       claims.String(jwtx.ClaimSubject),
		Aud:       claims.Strings(jwtx.ClaimAudience),
		Iss:       claims.String(jwtx.ClaimIssuer),
		Jti:       claims.String(jwtx.ClaimJTI),
		TenantID:  claims.String(ClaimTenantID),
	}
	if exp, ok := claims.Time(jwtx.ClaimExpiresAt); ok {
		resp.Exp = exp.Unix()
	}
	if iat, ok := claims.Time(jwtx.ClaimIssuedAt); ok {
		resp.Iat = iat.Unix()
	}
	return resp, nil
}

// Revoke always succeeds. Tokens are stateless, so there is nothing to
// revoke without a denylist.
func (s *IntrospectionService) Revoke(ctx context.Context, token, hint string) {
	slogx.FromContext(ctx).Debug("revocation requested",
		slog.Bool("token_present", token != ""),
		slog.String("token_type_hint", hint),
	)
}

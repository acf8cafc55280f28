package service

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/idp/internal/auth/store"
	"github.com/aussiebroadwan/idp/pkg/jwtx"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

type UserInfoService struct {
	KeyManager *jwtx.KeyManager
	Users      store.Users
}

// UserInfo returns the claims of the token's user that its scopes release.
// Every failure is invalid_token.
func (s *UserInfoService) UserInfo(ctx context.Context, token string) (map[string]any, error) {
	if token == "" {
		return nil, oauthx.ErrInvalidToken
	}
	claims := s.KeyManager.VerifyToken(ctx, token)
	if claims == nil || claims.String(ClaimTokenType) != oauthx.TokenTypeAccess {
		return nil, oauthx.ErrInvalidToken
	}
	if claims.String(ClaimTokenUse) == oauthx.TokenUseService {
		return nil, oauthx.ErrInvalidToken.WithDescription("service tokens have no user")
	}

	user, err := s.Users.GetUserByID(ctx, claims.String(jwtx.ClaimSubject))
	if errors.Is(err, store.ErrNotFound) {
		return nil, oauthx.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !user.Active {
		slogx.FromContext(ctx).Info("userinfo for disabled user", "user_id", user.ID)
		return nil, oauthx.ErrInvalidToken
	}

	return oauthx.UserClaims(userInfo(&user), claims.Scopes()), nil
}

package httpx

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/idp/pkg/jwtx"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// TokenVerifier verifies a compact token, returning nil when it is not valid.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) jwtx.Claims
}

// AuthnMiddleware requires a valid bearer access token and stores its claims
// in the request context.
func AuthnMiddleware(v TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := BearerToken(r)
			if !ok {
				WriteBearerError(w, http.StatusUnauthorized, "invalid_token", "missing bearer token")
				return
			}

			claims := v.VerifyToken(ctx, raw)
			if claims == nil {
				slogx.FromContext(ctx).Debug("bearer token rejected")
				WriteBearerError(w, http.StatusUnauthorized, "invalid_token", "token verification failed")
				return
			}
			if tt := claims.String("token_type"); tt != "" && tt != "access_token" {
				WriteBearerError(w, http.StatusUnauthorized, "invalid_token", "not an access token")
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithClaims(ctx, claims)))
		})
	}
}

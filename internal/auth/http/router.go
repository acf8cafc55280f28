package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/idp/internal/auth/service"
	"github.com/aussiebroadwan/idp/pkg/httpx"
	"github.com/aussiebroadwan/idp/pkg/jwtx"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// ScopeAdminKeys guards the key administration routes.
const ScopeAdminKeys = "admin:keys"

// RateLimits are the limiter profiles applied per route group.
type RateLimits struct {
	Strict   httpx.RateLimitConfig
	Moderate httpx.RateLimitConfig
	Public   httpx.RateLimitConfig
}

// DefaultRateLimits mirrors the httpx default profiles.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Strict:   httpx.StrictLimit,
		Moderate: httpx.ModerateLimit,
		Public:   httpx.PublicLimit,
	}
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeyManager
	discovery    oauthx.Discovery
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	// Dependencies checked by /readyz, by name.
	Health map[string]Pinger

	Limits RateLimits

	TokenService         *service.TokenService
	AuthorizeService     *service.AuthorizeService
	ClientService        *service.ClientService
	UserInfoService      *service.UserInfoService
	IntrospectionService *service.IntrospectionService
	KeyRotationService   *service.KeyRotationService
}

func NewRouter(
	keys *jwtx.KeyManager,
	discovery oauthx.Discovery,
	buildVersion string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		discovery:    discovery,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		Health:       map[string]Pinger{},
		Limits:       DefaultRateLimits(),
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

// ApplyRoutes registers every route. Services must be set first.
func (r *Router) ApplyRoutes() {
	r.registerOAuth2()
	r.registerWellKnown()
	r.registerKeyRotation()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerOAuth2() {
	authorize := &AuthorizeHandler{AuthorizeService: r.AuthorizeService}

	// GET renders the login form; POST is a credential attempt and is
	// limited per address and username.
	r.Mux.Handle("GET "+oauthx.PathAuthorize,
		httpx.Chain(http.HandlerFunc(authorize.HandleGet),
			httpx.RateLimitByIP(r.Limits.Moderate),
		),
	)
	r.Mux.Handle("POST "+oauthx.PathAuthorize,
		httpx.Chain(http.HandlerFunc(authorize.HandlePost),
			limitFormBody,
			httpx.RateLimitByIPAndField(r.Limits.Strict, "username"),
		),
	)

	r.Mux.Handle("POST "+oauthx.PathToken,
		httpx.Chain(&TokenHandler{TokenService: r.TokenService},
			limitFormBody,
			httpx.RateLimitByClient(r.Limits.Strict),
		),
	)

	userinfo := httpx.Chain(&UserInfoHandler{UserInfoService: r.UserInfoService},
		limitFormBody,
		httpx.RateLimitByIP(r.Limits.Moderate),
	)
	r.Mux.Handle("GET "+oauthx.PathUserinfo, userinfo)
	r.Mux.Handle("POST "+oauthx.PathUserinfo, userinfo)

	r.Mux.Handle("POST "+oauthx.PathIntrospect,
		httpx.Chain(&IntrospectHandler{IntrospectionService: r.IntrospectionService},
			limitFormBody,
			httpx.RateLimitByClient(r.Limits.Moderate),
		),
	)
	r.Mux.Handle("POST "+oauthx.PathRevoke,
		httpx.Chain(&RevokeHandler{IntrospectionService: r.IntrospectionService},
			httpx.RateLimitByIP(r.Limits.Moderate),
		),
	)
	r.Mux.Handle("POST "+oauthx.PathRegister,
		httpx.Chain(&RegisterHandler{ClientService: r.ClientService},
			httpx.RateLimitByIP(r.Limits.Strict),
		),
	)
}

func (r *Router) registerWellKnown() {
	r.Mux.Handle("GET "+oauthx.PathDiscovery,
		httpx.Chain(DiscoveryHandler(r.discovery),
			httpx.RateLimitByIP(r.Limits.Public),
		),
	)
	r.Mux.Handle("GET "+oauthx.PathJWKS,
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(r.Limits.Public),
		),
	)
}

func (r *Router) registerKeyRotation() {
	h := &KeyRotationHandler{KeyRotationService: r.KeyRotationService}

	secured := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			httpx.AuthnMiddleware(r.keys),
			httpx.RequireAnyScope(ScopeAdminKeys),
			httpx.RateLimitByIP(r.Limits.Moderate),
		)
	}

	r.Mux.Handle("POST /v1/keys/rotate", secured(h.HandleRotate))
	r.Mux.Handle("GET /v1/keys", secured(h.HandleListKeys))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.Health, r.keys))
}

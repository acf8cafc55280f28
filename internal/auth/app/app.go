package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/idp/internal/auth/http"
	"github.com/aussiebroadwan/idp/internal/auth/service"
	"github.com/aussiebroadwan/idp/internal/auth/store"
	"github.com/aussiebroadwan/idp/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/idp/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/idp/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/idp/pkg/jwtx"
	"github.com/aussiebroadwan/idp/pkg/oauthx"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// BuildVersion is overridden at build time via ldflags.
var BuildVersion = "v0.1.0"

// codeStore is an authorization code collection that owns a connection.
type codeStore interface {
	store.AuthorizationCodes
	Close() error
	Ping(ctx context.Context) error
}

// Application encapsulates the authorization server with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	codes      store.AuthorizationCodes
	redis      codeStore // nil unless AUTH_CODE_STORE=redis
	keyManager *jwtx.KeyManager

	// Services
	policy               service.Policy
	passwords            *service.StoreAuthenticator
	clientService        *service.ClientService
	tokenService         *service.TokenService
	authorizeService     *service.AuthorizeService
	userInfoService      *service.UserInfoService
	introspectionService *service.IntrospectionService
	keyRotationService   *service.KeyRotationService
	housekeepingService  *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "idp",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	ctx := slogx.WithContext(context.Background(), app.logger)

	// Storage first, the key manager reads its keys from it
	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initCodeStore(ctx); err != nil {
		app.closeStores()
		return nil, err
	}

	keyManager, err := InitAuthKeys(ctx, app.cfg, app.db.SigningKeys(), app.logger)
	if err != nil {
		app.closeStores()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	if err := app.provision(ctx); err != nil {
		app.closeStores()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("authorization server starting",
		"port", app.cfg.Port,
		"issuer", app.cfg.Issuer,
		"version", BuildVersion,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		app.housekeepingService.Stop()
		app.closeStores()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down authorization server...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.closeStores(); err != nil {
		return err
	}

	app.logger.Info("authorization server stopped")
	return nil
}

// Handler exposes the routed handler, mainly for in-process tests.
func (app *Application) Handler() http.Handler { return app.router }

func (app *Application) closeStores() error {
	var errs []error
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// initDatabase opens the configured store and applies migrations
func (app *Application) initDatabase() error {
	switch app.cfg.Storage {
	case StorageMemory:
		app.db = memory.NewStore()
		app.logger.Info("using in-memory storage")
		return nil
	default:
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
		db, err := sqlite.NewStore(dsn)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		app.db = db
	}

	if err := app.db.ApplyMigrations(); err != nil {
		_ = app.db.Close()
		app.db = nil
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "file", app.cfg.DatabaseFile)
	return nil
}

// initCodeStore picks where authorization codes live. Anything other than
// redis shares the main store.
func (app *Application) initCodeStore(ctx context.Context) error {
	if app.cfg.CodeStore != StorageRedis {
		app.codes = app.db.AuthorizationCodes()
		return nil
	}

	rs, err := redis.NewCodeStore(ctx, redis.Config{
		Addr:      app.cfg.RedisAddr,
		Password:  app.cfg.RedisPassword,
		DB:        app.cfg.RedisDB,
		KeyPrefix: app.cfg.RedisPrefix,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.redis = rs
	app.codes = rs

	app.logger.Info("authorization codes stored in redis", "addr", app.cfg.RedisAddr)
	return nil
}

// provision applies the seed file, if any
func (app *Application) provision(ctx context.Context) error {
	if app.cfg.SeedFile == "" {
		return nil
	}

	seed, err := service.LoadSeedFile(app.cfg.SeedFile)
	if err != nil {
		return fmt.Errorf("failed to load seed file: %w", err)
	}

	p := &service.ProvisionService{Users: app.db.Users(), Clients: app.db.Clients()}
	if _, err := p.Provision(ctx, seed); err != nil {
		return fmt.Errorf("failed to provision seed records: %w", err)
	}
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.policy = service.Policy{
		Issuer:            app.cfg.Issuer,
		AccessTokenTTL:    app.cfg.AccessTokenTTL,
		RefreshTokenTTL:   app.cfg.RefreshTokenTTL,
		IDTokenTTL:        app.cfg.IDTokenTTL,
		SupportedGrants:   app.cfg.SupportedGrants,
		SupportedScopes:   app.cfg.SupportedScopes,
		RequirePKCEPublic: app.cfg.RequirePKCEPublic,
	}

	app.passwords = &service.StoreAuthenticator{
		Users:         app.db.Users(),
		PasswordGrant: app.cfg.PasswordGrant,
	}

	app.clientService = &service.ClientService{
		Clients:           app.db.Clients(),
		Policy:            app.policy,
		DefaultTenant:     app.cfg.DefaultTenant,
		RegistrationToken: app.cfg.RegistrationToken,
	}

	app.tokenService = &service.TokenService{
		KeyManager: app.keyManager,
		Clients:    app.clientService,
		Users:      app.db.Users(),
		Codes:      app.codes,
		Passwords:  app.passwords,
		Policy:     app.policy,
	}

	app.authorizeService = &service.AuthorizeService{
		Clients:   app.db.Clients(),
		Codes:     app.codes,
		Passwords: app.passwords,
		Policy:    app.policy,
		CodeTTL:   app.cfg.CodeTTL,
	}

	app.userInfoService = &service.UserInfoService{
		KeyManager: app.keyManager,
		Users:      app.db.Users(),
	}

	app.introspectionService = &service.IntrospectionService{
		KeyManager: app.keyManager,
		Clients:    app.clientService,
	}

	app.keyRotationService = &service.KeyRotationService{
		KeyManager: app.keyManager,
		Interval:   app.cfg.KeyRotationInterval,
	}
	if app.cfg.KeyRotationInterval > 0 {
		app.logger.Info("automatic key rotation enabled", "interval", app.cfg.KeyRotationInterval)
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.codes,
		app.keyRotationService,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager,
		oauthx.NewDiscovery(app.cfg.Issuer, app.cfg.SupportedGrants, app.cfg.SupportedScopes),
		BuildVersion,
		app.logger,
	)

	router.Health["store"] = app.db
	if app.redis != nil {
		router.Health["redis"] = app.redis
	}

	if app.cfg.RateLimitDisabled {
		router.Limits = httpapi.RateLimits{}
		app.logger.Warn("rate limiting disabled")
	} else {
		router.Limits = httpapi.RateLimits{
			Strict:   app.cfg.RateLimits.Strict,
			Moderate: app.cfg.RateLimits.Moderate,
			Public:   app.cfg.RateLimits.Public,
		}
	}

	router.TokenService = app.tokenService
	router.AuthorizeService = app.authorizeService
	router.ClientService = app.clientService
	router.UserInfoService = app.userInfoService
	router.IntrospectionService = app.introspectionService
	router.KeyRotationService = app.keyRotationService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

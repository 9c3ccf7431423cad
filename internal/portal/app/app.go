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

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/portal/internal/portal/captcha"
	httpapi "github.com/aussiebroadwan/portal/internal/portal/http"
	"github.com/aussiebroadwan/portal/internal/portal/mailer"
	"github.com/aussiebroadwan/portal/internal/portal/metrics"
	"github.com/aussiebroadwan/portal/internal/portal/seed"
	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/internal/portal/store/drivers/sqlite"
	"github.com/aussiebroadwan/portal/pkg/cryptox"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/jwtx"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the portal with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      store.Store
	signer  *jwtx.HS256
	box     *cryptox.SecretBox
	metrics *metrics.Metrics
	limiter httpx.Limiter
	redis   *redis.Client      // Optional: only when PORTAL_REDIS_ADDR is set
	amqp    *mailer.AMQPSender // Optional: only when PORTAL_AMQP_URL is set
	captcha service.CaptchaVerifier

	// Services
	activityService     *service.ActivityService
	domainService       *service.DomainService
	userService         *service.UserService
	sessionService      *service.SessionService
	rateLimitService    *service.RateLimitService
	mfaService          *service.MFAService
	permissionService   *service.PermissionService
	rolesService        *service.RolesService
	authService         *service.AuthService
	bootstrapService    *service.BootstrapService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "portal",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := app.initSeed(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	signer, box, err := InitKeys(app.cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.signer = signer
	app.box = box

	if err := app.initIntegrations(ctx); err != nil {
		app.closeIntegrations()
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Start launches the background workers. Run calls it; embedders that serve
// Handler themselves call it directly and must call Shutdown afterwards.
func (app *Application) Start() {
	app.housekeepingService.Start()
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.Start()

	app.logger.Info("portal starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
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
	app.logger.Info("shutting down portal...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()
	app.closeIntegrations()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("portal stopped")
	return nil
}

// Handler exposes the routed handler, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initSeed reconciles the permission and system role catalog.
func (app *Application) initSeed(ctx context.Context) error {
	catalog, err := seed.LoadFile(app.cfg.SeedFile)
	if err != nil {
		return fmt.Errorf("failed to load seed catalog: %w", err)
	}
	if err := seed.Apply(ctx, app.db, catalog, time.Now()); err != nil {
		return fmt.Errorf("failed to apply seed catalog: %w", err)
	}

	app.logger.Info("seed catalog applied",
		"permissions", len(catalog.Permissions),
		"roles", len(catalog.Roles),
		"custom", app.cfg.SeedFile != "",
	)
	return nil
}

// initIntegrations picks the optional external backends. Each one falls back
// to an in-process implementation when it is not configured.
func (app *Application) initIntegrations(ctx context.Context) error {
	m, err := metrics.NewDefault()
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	app.metrics = m

	if app.cfg.CaptchaSecret != "" {
		app.captcha = captcha.NewRecaptcha(app.cfg.CaptchaSecret)
	} else {
		app.logger.Warn("no captcha secret configured, captcha checks are disabled")
		app.captcha = captcha.Static(true)
	}

	if app.cfg.AMQPURL != "" {
		sender, err := mailer.NewAMQPSender(app.cfg.AMQPURL, app.cfg.MailQueue)
		if err != nil {
			return fmt.Errorf("failed to connect mail broker: %w", err)
		}
		app.amqp = sender
		app.logger.Info("mail delivery via broker", "queue", app.cfg.MailQueue)
	}

	if app.cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		app.redis = client
		app.limiter = httpx.NewRedisLimiter(client)
		app.logger.Info("request throttling via redis", "addr", app.cfg.RedisAddr)
	} else {
		app.limiter = httpx.NewMemoryLimiter()
	}

	return nil
}

func (app *Application) closeIntegrations() {
	if app.amqp != nil {
		if err := app.amqp.Close(); err != nil {
			app.logger.Error("error closing mail broker", "error", err)
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.activityService = &service.ActivityService{Store: app.db}
	app.domainService = &service.DomainService{Store: app.db}

	app.userService = &service.UserService{
		Store:         app.db,
		Activity:      app.activityService,
		ResetTokenTTL: app.cfg.ResetTokenTTL,
	}
	app.sessionService = &service.SessionService{
		Store:    app.db,
		TTL:      app.cfg.SessionTTL,
		Activity: app.activityService,
		Events:   app.metrics,
	}
	app.rateLimitService = &service.RateLimitService{
		Store:           app.db,
		MaxAttempts:     app.cfg.MaxLoginAttempts,
		LockoutDuration: app.cfg.LockoutDuration,
	}
	app.mfaService = &service.MFAService{
		Store:             app.db,
		Box:               app.box,
		Issuer:            app.cfg.Issuer,
		Activity:          app.activityService,
		SetupTTL:          app.cfg.MFASetupTTL,
		ChallengeTTL:      app.cfg.MFAChallengeTTL,
		ChallengeAttempts: app.cfg.MFAChallengeAttempts,
	}
	app.permissionService = &service.PermissionService{Store: app.db, Activity: app.activityService}
	app.rolesService = &service.RolesService{Store: app.db, Activity: app.activityService}

	var sender mailer.Sender = mailer.LogSender{Logger: app.logger}
	if app.amqp != nil {
		sender = app.amqp
	}

	app.authService = &service.AuthService{
		Users:     app.userService,
		Sessions:  app.sessionService,
		MFA:       app.mfaService,
		RateLimit: app.rateLimitService,
		Domains:   app.domainService,
		Activity:  app.activityService,
		Captcha:   app.captcha,
		Mailer: &mailer.Mailer{
			AppName:  app.cfg.Issuer,
			BaseURL:  app.cfg.BaseURL,
			ResetTTL: app.cfg.ResetTokenTTL,
			Sender:   sender,
		},
		Events: app.metrics,
	}

	if app.cfg.BootstrapToken != "" {
		app.bootstrapService = &service.BootstrapService{
			Users:    app.userService,
			Activity: app.activityService,
			Token:    app.cfg.BootstrapToken,
		}
		app.logger.Info("bootstrap endpoint enabled")
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.sessionService,
		app.mfaService,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.signer,
		app.limiter,
		app.cfg.Issuer,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.Limits = httpapi.Limits{
		Strict:   app.cfg.StrictLimit,
		Moderate: app.cfg.ModerateLimit,
		Lenient:  app.cfg.LenientLimit,
		Public:   app.cfg.PublicLimit,
	}
	router.Cookie = httpapi.CookieConfig{
		Name:   httpapi.SessionCookieName,
		Domain: app.cfg.CookieDomain,
		Secure: app.cfg.CookieSecure,
	}
	router.Metrics = app.metrics

	// Wire services to router
	router.AuthService = app.authService
	router.UserService = app.userService
	router.RolesService = app.rolesService
	router.PermissionService = app.permissionService
	router.SessionService = app.sessionService
	router.MFAService = app.mfaService
	router.RateLimitService = app.rateLimitService
	router.ActivityService = app.activityService
	router.BootstrapService = app.bootstrapService // nil unless a bootstrap token is set
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

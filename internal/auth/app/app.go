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

	httpapi "github.com/aussiebroadwan/authz/internal/auth/http"
	"github.com/aussiebroadwan/authz/internal/auth/metrics"
	"github.com/aussiebroadwan/authz/internal/auth/service"
	"github.com/aussiebroadwan/authz/internal/auth/store"
	"github.com/aussiebroadwan/authz/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/authz/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/authz/pkg/cryptox"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

// Application encapsulates the authorization server with all its
// dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	durable *sqlite.Store
	db      store.Store
	keys    *Keys
	metrics *metrics.Metrics

	services     *service.Services
	housekeeping *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authz",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}
	if cfg.MetricsEnabled {
		app.metrics = metrics.New()
	}

	if err := cryptox.LoadPepper(cfg.PepperFile); err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := app.initStores(ctx); err != nil {
		return nil, err
	}

	keys, err := InitKeys(cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize signing keys: %w", err)
	}
	app.keys = keys

	if err := app.applySeed(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler returns the root HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeeping.Start()

	app.logger.Info("authz starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"ephemeral_backend", app.cfg.EphemeralBackend,
		"signing_mode", app.cfg.SigningMode,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeeping.Stop()
			_ = app.db.Close()
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

// Shutdown drains in-flight requests, stops housekeeping and closes the
// stores.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down authz...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGrace)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeeping.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing stores", "error", err)
		return err
	}

	app.logger.Info("authz stopped")
	return nil
}

// initStores opens the SQLite store and, for the redis backend, overlays
// Redis for codes, tokens and sessions.
func (app *Application) initStores(ctx context.Context) error {
	durable, err := sqlite.NewStore("file:" + app.cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := durable.ApplyMigrations(); err != nil {
		_ = durable.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.logger.Info("database migrations applied", "file", app.cfg.DatabaseFile)
	app.durable = durable

	if app.cfg.EphemeralBackend != BackendRedis {
		app.db = durable
		return nil
	}

	ephemeral, err := redis.NewStore(ctx, redis.Config{
		Addr:      app.cfg.RedisAddr,
		Username:  app.cfg.RedisUsername,
		Password:  app.cfg.RedisPassword,
		DB:        app.cfg.RedisDB,
		KeyPrefix: app.cfg.RedisKeyPrefix,
	})
	if err != nil {
		_ = durable.Close()
		return err
	}
	app.logger.Info("redis backend connected", "addr", app.cfg.RedisAddr)
	app.db = store.NewOverlay(durable, ephemeral)
	return nil
}

func (app *Application) applySeed(ctx context.Context) error {
	if app.cfg.SeedFile == "" {
		return nil
	}
	seed, err := service.LoadSeedFile(app.cfg.SeedFile)
	if err != nil {
		return err
	}
	if err := seed.Apply(ctx, app.durable); err != nil {
		return fmt.Errorf("apply seed %s: %w", app.cfg.SeedFile, err)
	}
	app.logger.Info("seed applied", "file", app.cfg.SeedFile, "clients", len(seed.Clients), "users", len(seed.Users))
	return nil
}

func (app *Application) initServices() {
	var rec metrics.Recorder
	if app.metrics != nil {
		rec = app.metrics
	}

	app.services = service.New(service.Options{
		Store:      app.db,
		Signer:     app.keys.Signer,
		Verifier:   app.keys.Verifier,
		Metrics:    rec,
		CodeTTL:    app.cfg.CodeTTL,
		AccessTTL:  app.cfg.AccessTokenTTL,
		RefreshTTL: app.cfg.RefreshTokenTTL,
		SessionTTL: app.cfg.SessionTTL,
	})

	app.housekeeping = service.NewHousekeepingService(app.db, app.logger, app.cfg.HousekeepingEvery)
	app.housekeeping.Metrics = rec
	if app.keys.Rotator != nil && app.cfg.KeyRotationEvery > 0 {
		app.housekeeping.Keys = app.keys.Rotator
		app.housekeeping.RotateEvery = app.cfg.KeyRotationEvery
		app.logger.Info("key rotation enabled", "interval", app.cfg.KeyRotationEvery)
	}
}

func (app *Application) initHTTP() {
	var publisher httpapi.KeyPublisher
	if app.keys.Publisher != nil {
		publisher = app.keys.Publisher
	}

	router := httpapi.NewRouter(httpapi.RouterOptions{
		Services: app.services,
		Store:    app.db,
		Signer:   app.keys.Signer,
		Keys:     publisher,
		Metrics:  app.metrics,
		Cookie: httpapi.SessionCookie{
			Secure: app.cfg.CookieSecure,
			MaxAge: app.cfg.SessionTTL,
		},
		BuildVersion: BuildVersion,
		Logger:       app.logger,
		SignerReady:  app.keys.Ready,
	})
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nanolos/gate/internal/gate/credential"
	"github.com/nanolos/gate/internal/gate/entitlement"
	httpapi "github.com/nanolos/gate/internal/gate/http"
	"github.com/nanolos/gate/internal/gate/session"
	"github.com/nanolos/gate/internal/gate/store"
	"github.com/nanolos/gate/internal/gate/store/drivers/memory"
	"github.com/nanolos/gate/internal/gate/store/drivers/sqlite"
	"github.com/nanolos/gate/pkg/cryptox"
	"github.com/nanolos/gate/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the gate agent with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	credentials *credential.Manager
	sessions    *session.Manager
	engine      *entitlement.Engine

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gated",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}

	if err := app.initCore(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	ctx := context.Background()

	if app.credentials.Initialize(ctx) {
		app.sessions.Initialize(ctx)
	}
	app.sessions.Start()
	app.engine.Start()

	// First validation pass off the serving path.
	go app.engine.Validate(ctx)

	app.logger.Info("gate starting", "port", app.cfg.Port, "host", app.cfg.Host, "version", BuildVersion)

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

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gate...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.engine.Stop()
	app.sessions.Stop()
	app.credentials.Close()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("gate stopped")
	return nil
}

// initStore initializes the key-value store. Ephemeral mode keeps all state
// in memory and forgets it on restart.
func (app *Application) initStore() error {
	if app.cfg.StorageMode == "ephemeral" {
		app.db = memory.NewStore()
		app.logger.Info("using in-memory store (ephemeral mode)")
		return nil
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
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

// initCore wires the three state machines together.
func (app *Application) initCore() error {
	secret, err := loadOrCreateSecret(app.cfg.SecretFile)
	if err != nil {
		return fmt.Errorf("failed to load installation secret: %w", err)
	}

	sealer, err := cryptox.NewSealer(secret)
	if err != nil {
		return fmt.Errorf("failed to initialize sealer: %w", err)
	}

	var refresher credential.Refresher
	if app.cfg.RefreshURL != "" {
		refresher = credential.NewHTTPRefresher(app.cfg.RefreshURL)
	}

	app.credentials = credential.NewManager(
		app.db.Credentials(),
		app.db.Host(),
		sealer,
		refresher,
		app.logger,
		credential.Config{
			MaxAttempts:     app.cfg.ExtractAttempts,
			RetryDelay:      app.cfg.ExtractRetryDelay,
			StaleThreshold:  app.cfg.StaleThreshold,
			DefaultLifetime: app.cfg.DefaultLifetime,
		},
	)

	app.sessions = session.NewManager(
		app.credentials,
		session.NewHTTPProfileClient(app.cfg.ProfileURL),
		app.db.Sessions(),
		app.logger,
		session.Config{
			SessionTimeout: app.cfg.SessionTimeout,
			MaxCacheAge:    24 * time.Hour,
			CheckInterval:  app.cfg.SessionCheckInterval,
		},
	)

	app.engine = entitlement.NewEngine(
		app.sessions,
		app.licenseSource(),
		app.db.Entitlements(),
		app.logger,
		entitlement.Config{
			Host:               app.cfg.Host,
			RevalidateInterval: app.cfg.RevalidateInterval,
			DocumentTTL:        app.cfg.DocumentTTL,
			RenewalWarningDays: app.cfg.RenewalWarningDays,
		},
	)

	return nil
}

// licenseSource picks the entitlement source from config: a local file wins,
// then the document URL, then the precomputed validation endpoint.
func (app *Application) licenseSource() entitlement.Source {
	switch {
	case app.cfg.LicenseFile != "":
		app.logger.Info("license source: file", "path", app.cfg.LicenseFile)
		return &entitlement.FileSource{Path: app.cfg.LicenseFile}
	case app.cfg.LicenseURL != "":
		app.logger.Info("license source: document URL")
		return entitlement.NewDocumentHTTPSource(app.cfg.LicenseURL)
	default:
		app.logger.Info("license source: validation endpoint")
		return entitlement.NewValidateHTTPSource(app.cfg.ValidateURL)
	}
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)
	router.Credentials = app.credentials
	router.Sessions = app.sessions
	router.Entitlements = app.engine
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// loadOrCreateSecret reads the installation secret, generating one on first
// run. The secret derives the at-rest sealing key, so it must stay stable
// across restarts for the cached credential to survive.
func loadOrCreateSecret(path string) ([]byte, error) {
	secret, err := os.ReadFile(path)
	if err == nil {
		if len(secret) == 0 {
			return nil, fmt.Errorf("secret file %s is empty", path)
		}
		return secret, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	secret = make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return nil, err
	}
	return secret, nil
}

// Package app is the composition root: it loads configuration, builds
// the validator chain, stores, limiters and services, and runs the HTTP
// server with graceful shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/driftlock/gateway/internal/gateway/auth"
	httpapi "github.com/driftlock/gateway/internal/gateway/http"
	"github.com/driftlock/gateway/internal/gateway/obs"
	"github.com/driftlock/gateway/internal/gateway/service"
	"github.com/driftlock/gateway/internal/gateway/store"
	"github.com/driftlock/gateway/internal/gateway/store/drivers/memory"
	"github.com/driftlock/gateway/internal/gateway/store/drivers/sqlite"
	"github.com/driftlock/gateway/pkg/cryptox"
	"github.com/driftlock/gateway/pkg/jwksx"
	"github.com/driftlock/gateway/pkg/ratelimitx"
	"github.com/driftlock/gateway/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
var BuildVersion = "v0.1.0"

// metricsOnce guards prometheus registration so tests can build multiple
// Applications in one process.
var metricsOnce sync.Once

// Application encapsulates the gateway with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db   store.Store
	keys *jwksx.Cache

	chain *auth.Chain
	mode  auth.Mode

	exchangeLimiter *ratelimitx.WindowLimiter
	userLimiter     *ratelimitx.UserLimiter

	sessionService      *service.SessionService
	exchangeService     *service.ExchangeService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gateway",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Development convenience: an absent secret gets an ephemeral one, so
	// a bare `go run` works. Sessions won't survive restarts, which is
	// fine for development.
	if app.cfg.InternalSecret == "" {
		app.cfg.InternalSecret = cryptox.MustGenerateToken(cryptox.TokenSize256)
		app.logger.Warn("no internal secret configured, generated an ephemeral one")
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}
	if err := app.initAuth(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initServices()
	app.initHTTP()

	metricsOnce.Do(obs.Init)

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()
	app.exchangeLimiter.StartSweeper()

	app.logger.Info("gateway starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"mode", string(app.mode),
		"store", app.cfg.StoreDriver,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
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

// Shutdown gracefully stops the HTTP server, background workers and store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()
	app.exchangeLimiter.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Info("gateway stopped")
	return nil
}

func (app *Application) initStore() error {
	switch app.cfg.StoreDriver {
	case "sqlite":
		dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
		db, err := sqlite.NewStore(dsn)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := db.ApplyMigrations(); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply database migrations: %w", err)
		}
		app.db = db
		app.logger.Info("database migrations applied successfully")

	default:
		app.db = memory.NewStore(0)
	}
	return nil
}

func (app *Application) initAuth() error {
	opts := []jwksx.Option{
		jwksx.WithLogger(app.logger),
		jwksx.WithFetchObserver(func(_ string, err error) { obs.ObserveJWKSFetch(err) }),
	}
	if app.cfg.JWKSURL != "" {
		// A configured JWKS endpoint overrides well-known discovery for
		// the configured issuer only; discovered issuers keep the default.
		configured := app.cfg.IssuerURL
		override := app.cfg.JWKSURL
		opts = append(opts, jwksx.WithURLResolver(func(issuer string) string {
			if issuer == configured {
				return override
			}
			return jwksx.WellKnownURL(issuer)
		}))
	}
	app.keys = jwksx.NewCache(opts...)

	chain, mode, err := auth.BuildChain(auth.Config{
		Environment:    app.cfg.Env,
		InternalIssuer: app.cfg.InternalIssuer,
		InternalSecret: []byte(app.cfg.InternalSecret),
		Provider:       app.cfg.Provider(),
	}, app.keys, app.logger)
	if err != nil {
		return err
	}

	app.chain = chain
	app.mode = mode
	return nil
}

func (app *Application) initServices() {
	app.exchangeLimiter = ratelimitx.NewWindowLimiter(ratelimitx.WindowConfig{
		Max:            app.cfg.ExchangeLimitMax,
		Window:         app.cfg.ExchangeLimitWindow,
		SkipSuccessful: app.cfg.ExchangeSkipSuccessful,
		SkipFailed:     app.cfg.ExchangeSkipFailed,
	})
	app.userLimiter = ratelimitx.NewUserLimiter(ratelimitx.UserLimits{
		MaxTokens:     app.cfg.UserMaxTokens,
		TokenWindow:   app.cfg.UserTokenWindow,
		MaxRequests:   app.cfg.UserMaxRequests,
		RequestWindow: app.cfg.UserRequestWindow,
	})

	app.sessionService = service.NewSessionService(app.db, app.cfg.SessionTTL, app.logger)

	app.exchangeService = &service.ExchangeService{
		Chain:     app.chain,
		Mode:      app.mode,
		Limiter:   app.exchangeLimiter,
		LimitMax:  app.cfg.ExchangeLimitMax,
		Window:    app.cfg.ExchangeLimitWindow,
		Sessions:  app.sessionService,
		Exchanges: app.db.Exchanges(),
		Logger:    app.logger,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.AuditRetention,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)
	router.ExchangeService = app.exchangeService
	router.SessionService = app.sessionService
	router.UserLimiter = app.userLimiter
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

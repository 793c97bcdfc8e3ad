// Package server wires the perfectkey auth server together: storage,
// token issuer, identity gateway, second-factor limiter, services, the gRPC
// endpoint and the session sweeper. Run blocks until a signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/perfectkey/internal/logging"
	"github.com/dmitrijs2005/perfectkey/internal/server/auth"
	"github.com/dmitrijs2005/perfectkey/internal/server/config"
	"github.com/dmitrijs2005/perfectkey/internal/server/devices"
	"github.com/dmitrijs2005/perfectkey/internal/server/gateway"
	"github.com/dmitrijs2005/perfectkey/internal/server/limiter"
	"github.com/dmitrijs2005/perfectkey/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/perfectkey/internal/server/services"
	"github.com/dmitrijs2005/perfectkey/internal/server/totp"

	gs "github.com/dmitrijs2005/perfectkey/internal/server/grpc"
)

type App struct {
	config         *config.Config
	logger         logging.Logger
	db             *sql.DB
	closeLimiter   func() error
	authService    *services.AuthService
	sessionService *services.SessionService
	profileService *services.ProfileService
	sweeper        *services.Sweeper
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(os.Stdout, logging.ParseLevel(c.LogLevel))

	db, rm, err := repomanager.Open(ctx, c.DatabaseDriver, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	issuer, err := auth.NewIssuer(auth.Config{
		SecretKey: []byte(c.SecretKey),
		Issuer:    c.JWTIssuer,
		Audience:  c.JWTAudience,
		AccessTTL: c.AccessTokenValidityDuration,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("token issuer error: %w", err)
	}

	lim, closeLimiter, err := limiter.Open(ctx, c.RedisAddr, limiter.Config{
		MaxAttempts: c.TwoFactorMaxAttempts,
		Lockout:     c.TwoFactorLockout,
	})
	if err != nil {
		// Throttling is best effort; the service keeps working without it.
		logger.Warn(ctx, "second factor limiter disabled", "error", err)
		lim, closeLimiter = limiter.Nop{}, func() error { return nil }
	}

	deps := services.AuthDeps{
		Tokens:  issuer,
		TOTP:    totp.NewEngine(c.AppName),
		Limiter: lim,
		Locator: devices.StaticLocator(devices.UnknownLocation),
		Mailer:  services.NewLogMailer(logger),
		Logger:  logger,
	}
	if c.GatewayBaseURL != "" {
		deps.Gateway = gateway.NewHTTPClient(c.GatewayBaseURL, c.GatewayTimeout, logger)
	}
	if c.GeoLookupURL != "" {
		deps.Locator = devices.NewIPAPILocator(c.GeoLookupURL, c.GeoLookupTimeout, logger)
	}

	app := &App{
		config:         c,
		logger:         logger,
		db:             db,
		closeLimiter:   closeLimiter,
		authService:    services.NewAuthService(db, rm, c, deps),
		sessionService: services.NewSessionService(db, rm, logger),
		profileService: services.NewProfileService(db, rm, c, logger),
	}
	if c.SweepInterval > 0 {
		app.sweeper = services.NewSweeper(db, rm, c.SessionRetention, c.SweepInterval, logger)
	}

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.authService, app.sessionService, app.profileService)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "grpc server stopped", "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	if app.sweeper != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.sweeper.Run(ctx)
		}()
	}

	wg.Wait()

	if err := app.closeLimiter(); err != nil {
		app.logger.Warn(ctx, "closing limiter", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "closing database", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"driveprov/internal/bootstrap"
	"driveprov/internal/config"
	handlers "driveprov/internal/http/handler"
	"driveprov/internal/http/middleware"
	"driveprov/internal/logging"
	"driveprov/internal/metrics"
	"driveprov/internal/otel"
	"driveprov/internal/service"
	"driveprov/internal/storage"
)

//	@title			Drive Provisioner API
//	@version		1.0
//	@description	Provisions the Odoo RDD folder and template spreadsheet.
//	@BasePath		/
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx)
	stop()
	os.Exit(code)
}

// run serves until ctx is cancelled. Startup failures return 1 after the deferred
// cleanups (tracing flush, ledger close) have run.
func run(ctx context.Context) int {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	loc := cfg.Location()
	logger := logging.New(cfg.Log, os.Stdout, loc)

	shutdownTracing, err := otel.Init(ctx, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize tracing")
		return 1
	}
	defer shutdownTracing(context.Background())

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str("backend", cfg.Store.Backend).Msg("failed to open document store")
		return 1
	}

	db, runs, err := bootstrap.OpenLedger(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open run ledger")
		return 1
	}
	if db != nil {
		defer db.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	provMetrics, err := metrics.NewProvisioning(reg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to register provisioning metrics")
		return 1
	}
	httpMetrics, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to register http metrics")
		return 1
	}

	opts := []service.Option{service.WithMetrics(provMetrics), service.WithDiagnostics(logger)}
	if runs != nil {
		opts = append(opts, service.WithRunRepository(runs))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		DisableStartupMessage: true,
	})

	app.Use(middleware.RequestID())
	app.Use(middleware.LoggerWithWriter(os.Stdout, loc))
	app.Use(otelfiber.Middleware())
	app.Use(httpMetrics.Handler())

	handlers.RegisterRoutes(app, handlers.Deps{
		Store: store,
		DB:    db,
		Runs:  runs,
		NewRunner: func(log service.Logger) handlers.Runner {
			return service.NewProvisioner(store, log, opts...)
		},
		Gatherer: reg,
		Logger:   logger,
	})

	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	addr := ":" + cfg.Port
	logger.Info().Str("addr", addr).Str("backend", cfg.Store.Backend).Msg("listening")
	if err := app.Listen(addr); err != nil {
		logger.Error().Err(err).Msg("failed to start server")
		return 1
	}
	return 0
}

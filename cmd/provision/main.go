// Command provision ensures the Odoo RDD folder and its template spreadsheet exist,
// prints the follow-up instructions and writes the result as JSON on stdout.
package main

import (
	"context"
	"encoding/json"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"

	"driveprov/internal/bootstrap"
	"driveprov/internal/config"
	"driveprov/internal/logging"
	"driveprov/internal/metrics"
	"driveprov/internal/otel"
	"driveprov/internal/service"
	"driveprov/internal/storage"
)

func main() {
	os.Exit(run(context.Background()))
}

func run(ctx context.Context) int {
	cfg := config.Load()
	// Narration goes to stderr so stdout carries only the JSON result.
	logger := logging.New(cfg.Log, os.Stderr, cfg.Location())

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
	provMetrics, err := metrics.NewProvisioning(reg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to register provisioning metrics")
		return 1
	}

	opts := []service.Option{service.WithMetrics(provMetrics), service.WithDiagnostics(logger)}
	if runs != nil {
		opts = append(opts, service.WithRunRepository(runs))
	}

	res, runErr := service.NewProvisioner(store, logging.NewSink(logger), opts...).Run(ctx)

	if cfg.Metrics.PushgatewayURL != "" {
		if err := metrics.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, reg); err != nil {
			logger.Warn().Err(err).Str("url", cfg.Metrics.PushgatewayURL).Msg("metrics push failed")
		}
	}

	if runErr != nil {
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		logger.Error().Err(err).Msg("failed to write result")
		return 1
	}
	return 0
}

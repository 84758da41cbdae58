package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/hydrometry-etl/internal/adapter/curves"
	httpadapter "github.com/couchcryptid/hydrometry-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/hydrometry-etl/internal/adapter/kafka"
	"github.com/couchcryptid/hydrometry-etl/internal/adapter/postgres"
	"github.com/couchcryptid/hydrometry-etl/internal/config"
	"github.com/couchcryptid/hydrometry-etl/internal/domain"
	"github.com/couchcryptid/hydrometry-etl/internal/observability"
	"github.com/couchcryptid/hydrometry-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Curve lookup is feature-flagged via CURVES_ENABLED / CURVES_API_URL.
	var provider domain.CurveProvider
	if cfg.CurvesEnabled {
		client := curves.NewClient(cfg.CurvesAPIURL, cfg.CurvesTimeout, metrics, logger)
		provider = curves.NewCachedProvider(client, cfg.CurvesCacheSize, cfg.CurvesCacheTTL, metrics)
		metrics.CurvesEnabled.Set(1)
		logger.Info("curve provider enabled",
			"url", cfg.CurvesAPIURL,
			"cache_size", cfg.CurvesCacheSize,
			"cache_ttl", cfg.CurvesCacheTTL,
			"timeout", cfg.CurvesTimeout,
		)
	} else {
		logger.Info("curve provider disabled, requests must carry their curves")
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	loaders := pipeline.FanOutLoader{writer}

	var store *postgres.Store
	if cfg.DatabaseURL != "" {
		store, err = postgres.Open(ctx, cfg.DatabaseURL, metrics, logger)
		if err != nil {
			logger.Error("failed to open postgres sink", "error", err)
			os.Exit(1)
		}
		loaders = append(loaders, store)
		logger.Info("postgres sink enabled")
	}

	transformer := pipeline.NewTransformer(provider, cfg.InsertPivots, metrics, logger)
	p := pipeline.New(reader, transformer, loaders, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, transformer, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ETL pipeline.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if store != nil {
		store.Close()
	}

	logger.Info("shutdown complete")
}

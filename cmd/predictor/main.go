package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/climate-favorability/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/climate-favorability/internal/adapter/kafka"
	"github.com/couchcryptid/climate-favorability/internal/adapter/postgres"
	"github.com/couchcryptid/climate-favorability/internal/adapter/schemafile"
	"github.com/couchcryptid/climate-favorability/internal/config"
	"github.com/couchcryptid/climate-favorability/internal/model"
	"github.com/couchcryptid/climate-favorability/internal/observability"
	"github.com/couchcryptid/climate-favorability/internal/pipeline"
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

	schemas := schemafile.NewCachedStore(cfg.SchemaPath, cfg.SchemaCacheSize, metrics)
	schema, err := schemas.Schema(ctx)
	if err != nil {
		logger.Error("failed to load feature schema", "path", cfg.SchemaPath, "error", err)
		os.Exit(1)
	}

	clf, err := model.Load(cfg.ModelPath)
	if err != nil {
		logger.Error("failed to load model", "path", cfg.ModelPath, "error", err)
		os.Exit(1)
	}
	if clf.SchemaVersion != schema.Version() {
		// Every request would fail alignment; refuse to start.
		logger.Error("model was trained on a different feature schema",
			"model_schema_version", clf.SchemaVersion,
			"schema_version", schema.Version(),
		)
		os.Exit(1)
	}
	logger.Info("model loaded", "schema_version", schema.Version(), "features", schema.Len(), "threshold", clf.Threshold)

	// Prediction auditing is optional (RECORDER_ENABLED / DATABASE_URL).
	var recorder pipeline.Recorder
	if cfg.RecorderEnabled {
		rec, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.RecorderTimeout)
		if err != nil {
			logger.Error("failed to open prediction recorder", "error", err)
			os.Exit(1)
		}
		defer rec.Close()
		recorder = rec
		logger.Info("prediction recorder enabled", "timeout", cfg.RecorderTimeout)
	} else {
		logger.Info("prediction recorder disabled")
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(schemas, schema, clf, recorder, logger, metrics)

	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, transformer, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start prediction pipeline.
	go func() {
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
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}

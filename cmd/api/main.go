// Command api serves the HTTP surface: start audits, poll state, stream
// progress over SSE, expose /metrics.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sitegrader/sitegrader/internal/api"
	"github.com/sitegrader/sitegrader/internal/bootstrap"
	"github.com/sitegrader/sitegrader/internal/config"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Info("Starting SiteGrader API",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	pipeline, err := bootstrap.Build(cfg, bootstrap.Options{
		WithDatabase: true,
		WithRedis:    true,
		Registerer:   prometheus.DefaultRegisterer,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to build pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	router := api.NewRouter(api.RouterConfig{
		Analyzer:   pipeline.Orchestrator,
		Logger:     logger,
		EnableCORS: true,
		RunTimeout: cfg.Audit.RunTimeout + 5*time.Minute,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API server listening", zap.String("addr", addr))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatal("Server error", zap.Error(err))

	case sig := <-shutdown:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("Graceful shutdown failed, forcing close", zap.Error(err))
			server.Close()
		}
	}
}

func initLogger(cfg *config.Config) *zap.Logger {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level, err := zapcore.ParseLevel(cfg.GetLogLevel()); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

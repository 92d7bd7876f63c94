// Command worker hosts the Temporal worker for durable audit execution.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	auditactivity "github.com/sitegrader/sitegrader/internal/activities/audit"
	"github.com/sitegrader/sitegrader/internal/bootstrap"
	"github.com/sitegrader/sitegrader/internal/config"
	"github.com/sitegrader/sitegrader/internal/domain"
	"github.com/sitegrader/sitegrader/internal/workflows"
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

	logger.Info("Starting SiteGrader Worker",
		zap.String("version", cfg.App.Version),
		zap.String("temporal_address", cfg.Temporal.Address()),
		zap.String("namespace", cfg.Temporal.Namespace),
		zap.String("task_queue", cfg.Temporal.TaskQueue),
	)

	pipeline, err := bootstrap.Build(cfg, bootstrap.Options{WithDatabase: true, WithRedis: true}, logger)
	if err != nil {
		logger.Fatal("Failed to build pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Address(),
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		logger.Fatal("Failed to create Temporal client", zap.Error(err))
	}
	defer c.Close()

	logger.Info("Connected to Temporal server")

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: cfg.Temporal.WorkerCount,
	})

	w.RegisterWorkflow(workflows.AuditWorkflow)

	var saveLead func(ctx context.Context, result *domain.AnalysisResult) (string, error)
	if pipeline.Leads != nil {
		leads := pipeline.Leads
		saveLead = func(ctx context.Context, result *domain.AnalysisResult) (string, error) {
			id, err := leads.SaveFromResult(ctx, result, "")
			if err != nil {
				return "", err
			}
			return id.String(), nil
		}
	}

	auditAct := auditactivity.NewActivity(pipeline.Orchestrator, saveLead, logger)
	w.RegisterActivityWithOptions(auditAct.Run, activity.RegisterOptions{
		Name: workflows.RunAuditActivityName,
	})

	logger.Info("Registered workflow and activity")

	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- w.Run(worker.InterruptCh())
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		if err != nil {
			logger.Fatal("Worker error", zap.Error(err))
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
		w.Stop()
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

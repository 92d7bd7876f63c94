// Command benchmark analyzes a reference site in benchmark mode: capture +
// visual strengths extraction, no grading, record written to storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sitegrader/sitegrader/internal/bootstrap"
	"github.com/sitegrader/sitegrader/internal/config"
	"github.com/sitegrader/sitegrader/internal/domain"
)

func main() {
	var (
		siteURL  = flag.String("url", "", "benchmark site URL (required)")
		company  = flag.String("company", "", "company name (required)")
		industry = flag.String("industry", "", "industry (required)")
		location = flag.String("location", "", "location")
		tier     = flag.String("tier", "manual", "benchmark tier: manual|regional|national")
		force    = flag.Bool("force", false, "re-analyze even when a cached record exists")
	)
	flag.Parse()

	if *siteURL == "" || *company == "" || *industry == "" {
		flag.Usage()
		os.Exit(2)
	}

	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	pipeline, err := bootstrap.Build(cfg, bootstrap.Options{WithDatabase: true, WithRedis: true}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pipeline: %v\n", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	benchmarks := pipeline.BenchmarkPipeline(cfg, logger)
	if benchmarks == nil {
		fmt.Fprintln(os.Stderr, "benchmark storage unavailable (is the database up?)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	record, err := benchmarks.BuildRecord(ctx, domain.Company{
		Name:     *company,
		Industry: *industry,
		Location: *location,
	}, *siteURL, domain.BenchmarkTier(*tier), *force)
	if err != nil {
		color.Red("benchmark analysis failed: %v", err)
		os.Exit(1)
	}

	color.Green("benchmark record %s saved", record.ID)
	fmt.Printf("  %s (%s, %s tier)\n", record.CompanyName, record.Industry, record.Tier)
	for dimension, strengths := range record.Strengths {
		fmt.Printf("  %s strengths:\n", dimension)
		for _, s := range strengths {
			fmt.Printf("   - %s\n", s)
		}
	}
}

func initLogger(cfg *config.Config) *zap.Logger {
	zapCfg := zap.NewDevelopmentConfig()
	if level, err := zapcore.ParseLevel(cfg.GetLogLevel()); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	logger, _ := zapCfg.Build()
	return logger
}

// Package bootstrap assembles the analysis pipeline from configuration, so
// the CLI, API server, and Temporal worker wire it identically.
package bootstrap

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sitegrader/sitegrader/internal/config"
	"github.com/sitegrader/sitegrader/internal/dedupe"
	"github.com/sitegrader/sitegrader/internal/domain"
	"github.com/sitegrader/sitegrader/internal/llm"
	"github.com/sitegrader/sitegrader/internal/observability"
	"github.com/sitegrader/sitegrader/internal/prompts"
	"github.com/sitegrader/sitegrader/internal/repository/postgres"
	rediscache "github.com/sitegrader/sitegrader/internal/repository/redis"
	"github.com/sitegrader/sitegrader/internal/services/analyzers"
	auditsvc "github.com/sitegrader/sitegrader/internal/services/audit"
	"github.com/sitegrader/sitegrader/internal/services/benchmark"
	"github.com/sitegrader/sitegrader/internal/services/capture"
	"github.com/sitegrader/sitegrader/internal/services/discovery"
	"github.com/sitegrader/sitegrader/internal/services/grading"
	"github.com/sitegrader/sitegrader/internal/services/selection"
	"github.com/sitegrader/sitegrader/internal/services/synthesis"
)

// Pipeline bundles the assembled orchestrator with the resources that need
// closing on shutdown.
type Pipeline struct {
	Orchestrator *auditsvc.Orchestrator
	Engine       *capture.Engine
	LLM          *llm.ClaudeClient
	Benchmarks   benchmark.Store
	Leads        *postgres.LeadRepository

	closers []func() error
}

// Close releases the pipeline's resources in reverse acquisition order.
func (p *Pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

// Options tweaks assembly for the different entry points.
type Options struct {
	// WithDatabase enables Postgres-backed benchmark storage and lead
	// persistence; without it the benchmark stage is skipped.
	WithDatabase bool

	// WithRedis fronts benchmark storage with the Redis cache.
	WithRedis bool

	// Registerer receives the pipeline metrics; nil disables them.
	Registerer prometheus.Registerer
}

// Build assembles the pipeline.
func Build(cfg *config.Config, opts Options, logger *zap.Logger) (*Pipeline, error) {
	p := &Pipeline{}

	claude, err := llm.NewClaudeClient(llm.Config{
		APIKey:        cfg.Claude.APIKey,
		Model:         cfg.Claude.Model,
		MaxTokens:     cfg.Claude.MaxTokens,
		Timeout:       cfg.Claude.Timeout,
		RateLimitRPM:  cfg.Claude.RateLimitRPM,
		CacheTTL:      cfg.Claude.CacheTTL,
		CacheSize:     cfg.Claude.CacheSize,
		MaxRetries:    cfg.Claude.MaxRetries,
		EnableCaching: cfg.Claude.EnableCaching,
	})
	if err != nil {
		return nil, err
	}
	p.LLM = claude

	catalog := prompts.NewCatalog(cfg.Claude.Model)

	engine, err := capture.NewEngine(capture.Config{
		Headless:      cfg.Audit.Headless,
		Concurrency:   cfg.Audit.CaptureConcurrency,
		PageTimeout:   cfg.Audit.PageTimeout,
		ScreenshotDir: cfg.Audit.ScreenshotDir,
	}, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Engine = engine
	p.closers = append(p.closers, engine.Close)

	post := capture.NewPostProcessor(capture.DefaultPostProcessorConfig())
	deduper := dedupe.New()

	var metrics *observability.Metrics
	if opts.Registerer != nil {
		metrics = observability.New(opts.Registerer)
	}

	var matcher auditsvc.Matcher
	if opts.WithDatabase {
		db, err := postgres.New(cfg.Database)
		if err != nil {
			logger.Warn("database unavailable, benchmark matching and lead persistence disabled", zap.Error(err))
		} else {
			p.closers = append(p.closers, db.Close)
			p.Leads = postgres.NewLeadRepository(db.DB)

			var store benchmark.Store = postgres.NewBenchmarkRepository(db.DB)
			if opts.WithRedis {
				cache, err := rediscache.New(cfg.Redis, cfg.Benchmark.CacheTTL)
				if err != nil {
					logger.Warn("redis unavailable, benchmark caching disabled", zap.Error(err))
				} else {
					p.closers = append(p.closers, cache.Close)
					store = rediscache.NewCachedBenchmarkStore(store, cache)
				}
			}
			p.Benchmarks = store

			matcher = benchmark.NewMatcher(store, claude, catalog, benchmark.Weights{
				Industry: cfg.Benchmark.IndustryWeight,
				Size:     cfg.Benchmark.SizeWeight,
				Location: cfg.Benchmark.LocationWeight,
			}, deduper, logger)
		}
	}

	synthCfg := synthesis.DefaultConfig()
	synthCfg.SimilarityThreshold = cfg.Audit.SimilarityThreshold
	synthCfg.SummaryTimeout = cfg.Audit.SynthesisTimeout

	p.Orchestrator = auditsvc.New(auditsvc.Deps{
		Discoverer: discovery.New(discovery.DefaultConfig(), logger),
		Selector:   selection.New(claude, catalog, logger),
		Capturer:   engine,
		Visual: analyzers.NewVisualAnalyzer(claude, catalog, post,
			cfg.Claude.VisionModel, logger),
		Technical:     analyzers.NewTechnicalAnalyzer(claude, catalog, logger),
		Social:        analyzers.NewSocialAnalyzer(claude, catalog, logger),
		Accessibility: analyzers.NewAccessibilityAnalyzer(claude, catalog, logger),
		Performance: analyzers.NewPerformanceAnalyzer(analyzers.PageSpeedConfig{
			BaseURL: cfg.PageSpeed.BaseURL,
			APIKey:  cfg.PageSpeed.APIKey,
			Timeout: cfg.PageSpeed.Timeout,
		}, logger),
		Matcher:     matcher,
		Synthesizer: synthesis.New(claude, catalog, synthCfg, logger),
		Grader:      grading.New(),
		Deduper:     deduper,
		Metrics:     metrics,
	}, auditsvc.Config{
		RunTimeout:    cfg.Audit.RunTimeout,
		StageTimeout:  cfg.Audit.StageTimeout,
		ScreenshotDir: cfg.Audit.ScreenshotDir,
	}, logger)

	return p, nil
}

// BenchmarkPipeline assembles the benchmark-mode pipeline over the same
// capture engine and vision analyzer. Returns nil when benchmark storage is
// unavailable.
func (p *Pipeline) BenchmarkPipeline(cfg *config.Config, logger *zap.Logger) *benchmark.Pipeline {
	if p.Benchmarks == nil {
		return nil
	}
	catalog := prompts.NewCatalog(cfg.Claude.Model)
	post := capture.NewPostProcessor(capture.DefaultPostProcessorConfig())
	visual := analyzers.NewVisualAnalyzer(p.LLM, catalog, post, cfg.Claude.VisionModel, logger)
	return benchmark.NewPipeline(p.Benchmarks, p.Engine, visual, cfg.Audit.ScreenshotDir, logger)
}

// RunOptionsFromConfig seeds RunOptions from the environment-level defaults.
func RunOptionsFromConfig(cfg *config.Config) domain.RunOptions {
	opts := domain.RunOptions{
		MaxPagesPerModule:      cfg.Audit.MaxPagesPerModule,
		PageTimeout:            cfg.Audit.PageTimeout,
		CaptureConcurrency:     cfg.Audit.CaptureConcurrency,
		EnableCrossPageContext: cfg.Audit.EnableCrossPageContext,
		EnableBenchmarkContext: cfg.Audit.EnableBenchmarkContext,
	}
	for _, m := range cfg.Audit.DisabledModules {
		opts.DisabledModules = append(opts.DisabledModules, domain.Module(m))
	}
	return opts
}

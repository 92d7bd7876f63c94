// Package audit drives the analysis pipeline: discovery, page selection,
// capture, the analyzer fan-out, benchmark matching, synthesis, and grading,
// threading the shared AnalysisContext forward through the stages.
package audit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitegrader/sitegrader/internal/debug"
	"github.com/sitegrader/sitegrader/internal/dedupe"
	"github.com/sitegrader/sitegrader/internal/domain"
	"github.com/sitegrader/sitegrader/internal/observability"
	"github.com/sitegrader/sitegrader/internal/services/analyzers"
	"github.com/sitegrader/sitegrader/internal/services/synthesis"
	"github.com/sitegrader/sitegrader/internal/urlfilter"
)

// Stage collaborators, consumed as interfaces so the orchestrator can be
// exercised without a browser or live APIs.

// Discoverer enumerates candidate pages.
type Discoverer interface {
	Discover(ctx context.Context, seedURL string) (*domain.DiscoveryResult, error)
}

// Selector partitions discovered pages per module.
type Selector interface {
	Select(ctx context.Context, discovery *domain.DiscoveryResult, target domain.Company, homepage string, quota int) (*domain.PageSelection, error)
}

// Capturer renders pages and persists screenshots.
type Capturer interface {
	CaptureAll(ctx context.Context, runID string, urls []string) ([]domain.Capture, error)
}

// TechnicalAnalyzer is the fused SEO+content analyzer.
type TechnicalAnalyzer interface {
	AnalyzeBoth(ctx context.Context, input analyzers.Input) (seo, content domain.ModuleResult)
}

// Matcher picks a benchmark for the target.
type Matcher interface {
	Match(ctx context.Context, target domain.Company, targetURL string) (*domain.BenchmarkMatch, error)
}

// Synthesizer consolidates findings and writes the summary.
type Synthesizer interface {
	Synthesize(ctx context.Context, input synthesis.Input) *domain.SynthesisResult
}

// Grader computes the composite grade.
type Grader interface {
	Grade(results map[domain.Module]domain.ModuleResult, flags domain.GradeFlags) *domain.GradeResult
}

// Config bounds the run.
type Config struct {
	RunTimeout    time.Duration
	StageTimeout  time.Duration
	ScreenshotDir string
}

// DefaultConfig returns the documented orchestration bounds.
func DefaultConfig() Config {
	return Config{
		RunTimeout:    15 * time.Minute,
		StageTimeout:  6 * time.Minute,
		ScreenshotDir: os.TempDir(),
	}
}

// Orchestrator runs the staged pipeline.
type Orchestrator struct {
	discoverer    Discoverer
	selector      Selector
	capturer      Capturer
	visual        analyzers.Analyzer
	technical     TechnicalAnalyzer
	social        analyzers.Analyzer
	accessibility analyzers.Analyzer
	performance   analyzers.Analyzer
	matcher       Matcher
	synthesizer   Synthesizer
	grader        Grader

	deduper *dedupe.Deduper
	metrics *observability.Metrics
	config  Config
	logger  *zap.Logger
}

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Discoverer    Discoverer
	Selector      Selector
	Capturer      Capturer
	Visual        analyzers.Analyzer
	Technical     TechnicalAnalyzer
	Social        analyzers.Analyzer
	Accessibility analyzers.Analyzer
	Performance   analyzers.Analyzer
	Matcher       Matcher
	Synthesizer   Synthesizer
	Grader        Grader

	// Deduper collapses identical concurrent runs; nil disables dedup.
	Deduper *dedupe.Deduper
	// Metrics may be nil.
	Metrics *observability.Metrics
}

// New creates an Orchestrator.
func New(deps Deps, config Config, logger *zap.Logger) *Orchestrator {
	if config.RunTimeout == 0 {
		config = DefaultConfig()
	}
	return &Orchestrator{
		discoverer:    deps.Discoverer,
		selector:      deps.Selector,
		capturer:      deps.Capturer,
		visual:        deps.Visual,
		technical:     deps.Technical,
		social:        deps.Social,
		accessibility: deps.Accessibility,
		performance:   deps.Performance,
		matcher:       deps.Matcher,
		synthesizer:   deps.Synthesizer,
		grader:        deps.Grader,
		deduper:       deps.Deduper,
		metrics:       deps.Metrics,
		config:        config,
		logger:        logger,
	}
}

// Analyze is the in-process entry point. Identical concurrent requests
// (same target, same options) share one execution.
func (o *Orchestrator) Analyze(ctx context.Context, targetURL string, company domain.Company, opts domain.RunOptions, onProgress domain.ProgressFunc) (*domain.AnalysisResult, error) {
	if o.deduper == nil {
		return o.analyze(ctx, targetURL, company, opts, onProgress)
	}

	key := dedupe.RunKey(targetURL, opts)
	result, shared, err := o.deduper.Do(ctx, key, func(ctx context.Context) (any, error) {
		return o.analyze(ctx, targetURL, company, opts, onProgress)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		o.logger.Info("joined in-flight analysis", zap.String("target_url", targetURL))
	}
	return result.(*domain.AnalysisResult), nil
}

func (o *Orchestrator) analyze(ctx context.Context, targetURL string, company domain.Company, opts domain.RunOptions, onProgress domain.ProgressFunc) (*domain.AnalysisResult, error) {
	start := time.Now()

	canonical, err := validateInput(targetURL, company)
	if err != nil {
		return nil, err
	}

	if opts.MaxPagesPerModule == 0 {
		opts = domain.DefaultRunOptions()
	}

	runCtx, cancel := context.WithTimeout(ctx, o.config.RunTimeout)
	defer cancel()

	ac := &domain.AnalysisContext{
		RunID:      uuid.NewString(),
		TargetURL:  canonical,
		Company:    company,
		StartedAt:  start.UTC(),
		Deadline:   start.Add(o.config.RunTimeout).UTC(),
		Options:    opts,
		OnProgress: onProgress,
	}

	runDir := filepath.Join(o.config.ScreenshotDir, ac.RunID)
	recorder := debug.NewRecorder(opts.DebugEnabled, runDir, o.logger)

	if o.metrics != nil {
		o.metrics.RunsStarted.Inc()
	}
	o.logger.Info("analysis run starting",
		zap.String("run_id", ac.RunID),
		zap.String("target_url", canonical),
		zap.String("company", company.Name),
	)

	runErr := o.runStages(runCtx, ac, runDir, recorder)
	duration := time.Since(start)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) || domain.ErrorCode(runErr) == domain.ErrCodeCancelled {
			// A cancelled run never emits done.
			o.metricsCancelled()
			return &domain.AnalysisResult{
				Status:   domain.StatusCancelled,
				Reason:   "run cancelled",
				Context:  ac,
				Duration: duration,
			}, nil
		}

		code := domain.ErrorCode(runErr)
		if code == domain.ErrCodeInvariant {
			recorder.RecordJSON("error", "context", ac)
		}
		o.metricsFailed(code)
		o.emit(ac, domain.StageError, domain.StepError, runErr.Error(), nil)

		return &domain.AnalysisResult{
			Status:   domain.StatusFailed,
			Reason:   runErr.Error(),
			Context:  ac,
			Duration: duration,
		}, nil
	}

	if o.metrics != nil {
		o.metrics.RunsCompleted.Inc()
	}
	o.emit(ac, domain.StageDone, domain.StepComplete,
		fmt.Sprintf("analysis complete: grade %s (%d/100)", ac.Grading.Letter, ac.Grading.OverallScore), nil)

	return &domain.AnalysisResult{
		Status:   domain.StatusCompleted,
		Context:  ac,
		Duration: duration,
	}, nil
}

// runStages executes the pipeline in order, consulting the failure policy
// per stage.
func (o *Orchestrator) runStages(ctx context.Context, ac *domain.AnalysisContext, runDir string, recorder *debug.Recorder) error {
	// Discovery: empty aborts the run.
	discovery, err := runStage(o, ctx, ac, domain.StageDiscovery, func(ctx context.Context) (*domain.DiscoveryResult, error) {
		return o.discoverer.Discover(ctx, ac.TargetURL)
	})
	if err != nil {
		return err
	}
	ac.Discovery = discovery
	recorder.RecordJSON("discovery", "parsed", discovery)
	o.emit(ac, domain.StageDiscovery, domain.StepComplete,
		fmt.Sprintf("%d pages discovered (sitemap=%t robots=%t)", len(discovery.Pages), discovery.HasSitemap, discovery.HasRobots), nil)

	// Selection: the selector owns its deterministic fallback.
	selection, err := runStage(o, ctx, ac, domain.StageSelection, func(ctx context.Context) (*domain.PageSelection, error) {
		return o.selector.Select(ctx, ac.Discovery, ac.Company, ac.TargetURL, ac.Options.MaxPagesPerModule)
	})
	if err != nil {
		return err
	}
	ac.Selection = selection
	recorder.RecordJSON("selection", "parsed", selection)
	o.emit(ac, domain.StageSelection, domain.StepComplete,
		fmt.Sprintf("%d pages selected (%s strategy)", len(selection.AllURLs()), selection.Strategy), nil)

	// Capture: individual failures are skipped; all-failed aborts.
	captures, err := runStage(o, ctx, ac, domain.StageCapture, func(ctx context.Context) ([]domain.Capture, error) {
		return o.capturer.CaptureAll(ctx, ac.RunID, ac.Selection.AllURLs())
	})
	if err != nil {
		return err
	}
	ac.Captures = captures
	if err := o.verifyCaptureInvariants(captures); err != nil {
		return err
	}

	failed := 0
	for _, c := range captures {
		if c.Failed() {
			failed++
			o.metricsCaptureFailure()
		}
	}
	o.emit(ac, domain.StageCapture, domain.StepComplete,
		fmt.Sprintf("%d/%d pages captured", len(captures)-failed, len(captures)), nil)

	// Analyzer bank: all modules in parallel; isolation per module.
	if err := o.runAnalysis(ctx, ac, runDir, recorder); err != nil {
		return err
	}

	// Benchmark: failure is non-fatal.
	if ac.Options.EnableBenchmarkContext && o.matcher != nil {
		match, err := runStage(o, ctx, ac, domain.StageBenchmark, func(ctx context.Context) (*domain.BenchmarkMatch, error) {
			return o.matcher.Match(ctx, ac.Company, ac.TargetURL)
		})
		if err != nil {
			if domain.ErrorCode(err) == domain.ErrCodeCancelled || errors.Is(err, context.Canceled) {
				return err
			}
			o.logger.Warn("benchmark match unavailable", zap.Error(err))
			o.emit(ac, domain.StageBenchmark, domain.StepError, "continuing without benchmark comparison", nil)
		} else {
			ac.BenchmarkMatch = match
			o.emit(ac, domain.StageBenchmark, domain.StepComplete,
				fmt.Sprintf("matched against %s (%s tier)", match.CompanyName, match.ComparisonTier), nil)
		}
	}

	// Synthesis: internal timeouts degrade to the template summary.
	synthResult, err := runStage(o, ctx, ac, domain.StageSynthesis, func(ctx context.Context) (*domain.SynthesisResult, error) {
		return o.synthesizer.Synthesize(ctx, synthesis.Input{
			Target:        ac.Company,
			TargetURL:     ac.TargetURL,
			ModuleResults: ac.ModuleResults,
			Benchmark:     ac.BenchmarkMatch,
		}), nil
	})
	if err != nil {
		return err
	}
	ac.Synthesis = synthResult
	recorder.RecordJSON("synthesis", "parsed", synthResult)
	o.emit(ac, domain.StageSynthesis, domain.StepComplete,
		fmt.Sprintf("%d consolidated issues", len(synthResult.ConsolidatedIssues)), nil)

	// Grading: deterministic; an error here is an invariant violation.
	grade, err := runStage(o, ctx, ac, domain.StageGrading, func(ctx context.Context) (*domain.GradeResult, error) {
		return o.grader.Grade(ac.ModuleResults, o.gradeFlags(ac)), nil
	})
	if err != nil {
		return err
	}
	if grade == nil {
		return domain.ErrInvariant("grader returned no result")
	}
	ac.Grading = grade
	recorder.RecordJSON("grading", "parsed", grade)
	o.emit(ac, domain.StageGrading, domain.StepComplete,
		fmt.Sprintf("grade %s (%d/100)", grade.Letter, grade.OverallScore), nil)

	return nil
}

// runAnalysis fans out the analyzer modules in parallel and collects their
// results, tolerating individual failures.
func (o *Orchestrator) runAnalysis(ctx context.Context, ac *domain.AnalysisContext, runDir string, recorder *debug.Recorder) error {
	o.emit(ac, domain.StageAnalysis, domain.StepStart, "analyzer bank starting", nil)
	stageStart := time.Now()

	stageCtx, cancel := o.stageContext(ctx)
	defer cancel()

	input := analyzers.Input{
		Target:    ac.Company,
		TargetURL: ac.TargetURL,
		Discovery: ac.Discovery,
		Selection: ac.Selection,
		Captures:  ac.SuccessfulCaptures(),
		Options:   ac.Options,
		RunDir:    runDir,
	}
	if ac.Options.EnableCrossPageContext {
		input.CrossPage = analyzers.NewCrossPageBuilder()
	}

	results := make(map[domain.Module]domain.ModuleResult)
	var mu sync.Mutex
	var wg sync.WaitGroup

	record := func(rs ...domain.ModuleResult) {
		mu.Lock()
		defer mu.Unlock()
		for _, r := range rs {
			results[r.Module] = r
			o.metricsModule(r)
			o.emit(ac, domain.StageAnalysis, domain.StepItem,
				fmt.Sprintf("%s: %d/100", r.Module, r.Score), map[string]any{"module": string(r.Module), "error": r.Error != ""})
		}
	}

	launch := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	if ac.Options.ModuleEnabled(domain.ModuleVisual) {
		launch(func() { record(o.visual.Analyze(stageCtx, input)) })
	}
	if ac.Options.ModuleEnabled(domain.ModuleSEO) || ac.Options.ModuleEnabled(domain.ModuleContent) {
		launch(func() {
			seo, content := o.technical.AnalyzeBoth(stageCtx, input)
			var keep []domain.ModuleResult
			if ac.Options.ModuleEnabled(domain.ModuleSEO) {
				keep = append(keep, seo)
			}
			if ac.Options.ModuleEnabled(domain.ModuleContent) {
				keep = append(keep, content)
			}
			record(keep...)
		})
	}
	if ac.Options.ModuleEnabled(domain.ModuleSocial) {
		launch(func() { record(o.social.Analyze(stageCtx, input)) })
	}
	if ac.Options.ModuleEnabled(domain.ModuleAccessibility) {
		launch(func() { record(o.accessibility.Analyze(stageCtx, input)) })
	}
	if ac.Options.ModuleEnabled(domain.ModulePerformance) {
		launch(func() { record(o.performance.Analyze(stageCtx, input)) })
	}

	wg.Wait()
	o.metrics.ObserveStage(string(domain.StageAnalysis), time.Since(stageStart), nil)

	if err := runContextError(ctx, domain.StageAnalysis); err != nil {
		return err
	}
	if len(results) == 0 {
		return domain.ErrInput("all analyzer modules disabled")
	}

	allFailed := true
	for _, r := range results {
		if !r.Failed() {
			allFailed = false
			break
		}
	}
	if allFailed {
		o.emit(ac, domain.StageAnalysis, domain.StepError, "every analyzer module failed", nil)
		return domain.ErrAllAnalyzersFailed()
	}

	ac.ModuleResults = results
	recorder.RecordJSON("analysis", "parsed", results)
	o.emit(ac, domain.StageAnalysis, domain.StepComplete,
		fmt.Sprintf("%d modules analyzed", len(results)), nil)

	return nil
}

// runStage wraps one stage: start event, stage deadline, duration metric,
// error translation. The caller emits its own completion event with a
// stage-specific summary.
func runStage[T any](o *Orchestrator, ctx context.Context, ac *domain.AnalysisContext, stage domain.Stage, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if err := runContextError(ctx, stage); err != nil {
		return zero, err
	}

	o.emit(ac, stage, domain.StepStart, string(stage)+" starting", nil)
	start := time.Now()

	stageCtx, cancel := o.stageContext(ctx)
	defer cancel()

	result, err := fn(stageCtx)
	o.metrics.ObserveStage(string(stage), time.Since(start), err)

	if err != nil {
		if ctxErr := runContextError(ctx, stage); ctxErr != nil {
			return zero, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) && stageCtx.Err() != nil {
			err = domain.ErrStageTimeout(stage).WithCause(err)
		}
		if stage != domain.StageBenchmark {
			o.emit(ac, stage, domain.StepError, err.Error(), nil)
		}
		return zero, err
	}

	return result, nil
}

// runContextError maps the run context's state to the taxonomy: caller
// cancellation is CANCELLED, a spent run deadline is a timeout failure.
func runContextError(ctx context.Context, stage domain.Stage) error {
	switch ctx.Err() {
	case context.Canceled:
		return domain.ErrCancelled().WithCause(ctx.Err())
	case context.DeadlineExceeded:
		return domain.ErrStageTimeout(stage).WithCause(ctx.Err())
	}
	return nil
}

func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.config.StageTimeout > 0 {
		return context.WithTimeout(ctx, o.config.StageTimeout)
	}
	return context.WithCancel(ctx)
}

// verifyCaptureInvariants asserts that successful captures persisted both
// screenshots to disk. A violation is terminal.
func (o *Orchestrator) verifyCaptureInvariants(captures []domain.Capture) error {
	for _, c := range captures {
		if c.Failed() {
			continue
		}
		for _, path := range []string{c.Screenshots.Desktop, c.Screenshots.Mobile} {
			if path == "" {
				return domain.ErrInvariant("successful capture missing screenshot path").WithMetadata("url", c.URL)
			}
			if _, err := os.Stat(path); err != nil {
				return domain.ErrInvariant("screenshot path does not exist on disk").
					WithMetadata("url", c.URL).
					WithMetadata("path", path).
					WithCause(err)
			}
		}
	}
	return nil
}

// gradeFlags derives the binary grading context from the gathered evidence.
func (o *Orchestrator) gradeFlags(ac *domain.AnalysisContext) domain.GradeFlags {
	flags := domain.GradeFlags{
		HasHTTPS:       strings.HasPrefix(ac.TargetURL, "https://"),
		SiteAccessible: len(ac.SuccessfulCaptures()) > 0,
	}

	// Mobile friendliness: the homepage capture carries a viewport meta tag.
	for _, c := range ac.SuccessfulCaptures() {
		if c.URL == ac.TargetURL {
			flags.IsMobileFriendly = analyzers.ExtractFeatures(c.URL, c.HTML).HasViewport
			break
		}
	}

	return flags
}

func (o *Orchestrator) emit(ac *domain.AnalysisContext, stage domain.Stage, step domain.ProgressStep, message string, extra map[string]any) {
	if ac.OnProgress == nil {
		return
	}
	ac.OnProgress(domain.ProgressEvent{
		Stage:     stage,
		Step:      step,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Extra:     extra,
	})
}

func (o *Orchestrator) metricsCancelled() {
	if o.metrics != nil {
		o.metrics.RunsCancelled.Inc()
	}
}

func (o *Orchestrator) metricsFailed(code string) {
	if o.metrics != nil {
		o.metrics.RunsFailed.WithLabelValues(code).Inc()
	}
}

func (o *Orchestrator) metricsCaptureFailure() {
	if o.metrics != nil {
		o.metrics.CaptureFailures.Inc()
	}
}

func (o *Orchestrator) metricsModule(r domain.ModuleResult) {
	if o.metrics == nil {
		return
	}
	if r.Failed() {
		o.metrics.AnalyzerErrors.WithLabelValues(string(r.Module)).Inc()
	}
	o.metrics.RecordUsage(r.Usage.InputTokens, r.Usage.OutputTokens, r.CostUnits)
}

// validateInput canonicalizes the target URL and checks the company context.
func validateInput(targetURL string, company domain.Company) (string, error) {
	if strings.TrimSpace(company.Name) == "" {
		return "", domain.ErrInput("company name is required")
	}

	canonical, err := urlfilter.Canonicalize(targetURL)
	if err != nil {
		return "", domain.ErrInvalidURL(targetURL, err)
	}
	parsed, err := url.Parse(canonical)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", domain.ErrInvalidURL(targetURL, fmt.Errorf("expected an absolute http(s) URL"))
	}

	return canonical, nil
}

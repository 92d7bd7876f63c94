// Command audit runs a full website analysis from the terminal.
//
//	audit -url https://example.com -company "Example Co" -industry restaurant
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sitegrader/sitegrader/internal/bootstrap"
	"github.com/sitegrader/sitegrader/internal/config"
	"github.com/sitegrader/sitegrader/internal/domain"
)

// stageWeights approximate each stage's share of a run for the progress bar.
var stageWeights = map[domain.Stage]int{
	domain.StageDiscovery: 10,
	domain.StageSelection: 15,
	domain.StageCapture:   40,
	domain.StageAnalysis:  75,
	domain.StageBenchmark: 82,
	domain.StageSynthesis: 92,
	domain.StageGrading:   98,
	domain.StageDone:      100,
}

func main() {
	var (
		targetURL = flag.String("url", "", "target site URL (required)")
		company   = flag.String("company", "", "company name (required)")
		industry  = flag.String("industry", "", "company industry")
		location  = flag.String("location", "", "company location")
		pages     = flag.Int("pages", 0, "max pages per module (default from env)")
		noContext = flag.Bool("no-cross-page", false, "disable cross-page context")
		noBench   = flag.Bool("no-benchmark", false, "disable benchmark comparison")
		debugMode = flag.Bool("debug", false, "record debug artifacts")
		saveLead  = flag.Bool("save", false, "persist the completed run as a lead")
		jsonOut   = flag.Bool("json", false, "print the full result as JSON")
	)
	flag.Parse()

	if *targetURL == "" || *company == "" {
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

	pipeline, err := bootstrap.Build(cfg, bootstrap.Options{WithDatabase: *saveLead || !*noBench, WithRedis: !*noBench}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pipeline: %v\n", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	opts := bootstrap.RunOptionsFromConfig(cfg)
	if *pages > 0 {
		opts.MaxPagesPerModule = *pages
	}
	if *noContext {
		opts.EnableCrossPageContext = false
	}
	if *noBench {
		opts.EnableBenchmarkContext = false
	}
	opts.DebugEnabled = *debugMode

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("auditing"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	onProgress := func(e domain.ProgressEvent) {
		if w, ok := stageWeights[e.Stage]; ok && e.Step == domain.StepComplete {
			bar.Set(w)
		}
		if e.Step == domain.StepComplete || e.Step == domain.StepError {
			bar.Describe(fmt.Sprintf("%s: %s", e.Stage, e.Message))
		}
	}

	start := time.Now()
	result, err := pipeline.Orchestrator.Analyze(ctx, *targetURL, domain.Company{
		Name:     *company,
		Industry: *industry,
		Location: *location,
	}, opts, onProgress)
	bar.Finish()

	if err != nil {
		color.Red("audit failed: %v", err)
		os.Exit(1)
	}

	switch result.Status {
	case domain.StatusCompleted:
		printResult(result, time.Since(start))
	case domain.StatusCancelled:
		color.Yellow("audit cancelled after %s", time.Since(start).Round(time.Second))
		os.Exit(130)
	default:
		color.Red("audit failed: %s", result.Reason)
		printPartial(result)
		os.Exit(1)
	}

	if *jsonOut {
		printJSON(result)
	}

	if *saveLead && pipeline.Leads != nil {
		leadID, err := pipeline.Leads.SaveFromResult(context.Background(), result, "")
		if err != nil {
			color.Red("lead save failed: %v", err)
		} else {
			fmt.Printf("saved lead %s\n", leadID)
		}
	}
}

func printResult(result *domain.AnalysisResult, elapsed time.Duration) {
	ac := result.Context
	grade := ac.Grading

	gradeColor := color.New(color.FgGreen, color.Bold)
	if grade.Letter == domain.GradeC || grade.Letter == domain.GradeD {
		gradeColor = color.New(color.FgYellow, color.Bold)
	} else if grade.Letter == domain.GradeF {
		gradeColor = color.New(color.FgRed, color.Bold)
	}

	fmt.Println()
	gradeColor.Printf("  Grade %s — %d/100", grade.Letter, grade.OverallScore)
	fmt.Printf("  (%s, %s)\n\n", ac.TargetURL, elapsed.Round(time.Second))

	for _, m := range domain.AllModules {
		if r, ok := ac.ModuleResults[m]; ok {
			status := ""
			if r.Failed() {
				status = color.RedString(" (errored, fallback score)")
			}
			fmt.Printf("  %-14s %3d/100%s\n", m, r.Score, status)
		}
	}

	if ac.BenchmarkMatch != nil {
		fmt.Printf("\n  benchmark: %s (%s tier, fit %d)\n",
			ac.BenchmarkMatch.CompanyName, ac.BenchmarkMatch.ComparisonTier, ac.BenchmarkMatch.MatchScore)
	}

	if ac.Synthesis != nil {
		fmt.Printf("\n  %s\n", color.New(color.Bold).Sprint(ac.Synthesis.Summary.Headline))
		for i, issue := range ac.Synthesis.ConsolidatedIssues {
			if i == 5 {
				fmt.Printf("  … and %d more\n", len(ac.Synthesis.ConsolidatedIssues)-5)
				break
			}
			fmt.Printf("  [%s] %s\n", severityColor(issue.Severity), issue.Title)
		}
	}

	if len(grade.QuickWins) > 0 {
		fmt.Printf("\n  quick wins:\n")
		for i, w := range grade.QuickWins {
			if i == 3 {
				break
			}
			fmt.Printf("   - %s\n", w.Title)
		}
	}
	fmt.Println()
}

func printPartial(result *domain.AnalysisResult) {
	ac := result.Context
	if ac == nil {
		return
	}
	if ac.Discovery != nil {
		fmt.Printf("  discovered %d pages before failure\n", len(ac.Discovery.Pages))
	}
	if len(ac.Captures) > 0 {
		ok := len(ac.SuccessfulCaptures())
		fmt.Printf("  captured %d/%d pages\n", ok, len(ac.Captures))
	}
	if len(ac.ModuleResults) > 0 {
		fmt.Printf("  %d module results gathered\n", len(ac.ModuleResults))
	}
}

func printJSON(result *domain.AnalysisResult) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(result)
}

func severityColor(s domain.Severity) string {
	switch s {
	case domain.SeverityCritical:
		return color.RedString(strings.ToUpper(string(s)))
	case domain.SeverityHigh:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func initLogger(cfg *config.Config) *zap.Logger {
	level := zapcore.WarnLevel // keep the CLI quiet; the progress bar narrates
	if cfg.Debug {
		level = zapcore.DebugLevel
	}

	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	logger, _ := zapCfg.Build()
	return logger
}

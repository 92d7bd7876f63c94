package analyzers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/sitegrader/sitegrader/internal/domain"
)

// Core Web Vitals "good" thresholds, per the official definitions. Any
// deviation would be a documented decision, not an accident.
const (
	lcpGoodMS  = 2500.0
	inpGoodMS  = 200.0
	clsGood    = 0.10
	fcpGoodMS  = 1800.0
	ttfbGoodMS = 800.0
)

// lcpPoorMS is the official Core Web Vitals "poor" LCP threshold; slower
// pages get a high-severity finding.
const lcpPoorMS = 4000.0

// PageSpeedConfig configures the performance API client.
type PageSpeedConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// PerformanceAnalyzer measures the target through a PageSpeed-compatible API
// for both strategies. It makes no LLM calls.
type PerformanceAnalyzer struct {
	config     PageSpeedConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewPerformanceAnalyzer creates a PerformanceAnalyzer.
func NewPerformanceAnalyzer(config PageSpeedConfig, logger *zap.Logger) *PerformanceAnalyzer {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	return &PerformanceAnalyzer{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// Module implements Analyzer.
func (a *PerformanceAnalyzer) Module() domain.Module {
	return domain.ModulePerformance
}

// pagespeedResponse is the subset of the API response the analyzer reads.
type pagespeedResponse struct {
	LighthouseResult struct {
		Categories struct {
			Performance struct {
				Score float64 `json:"score"`
			} `json:"performance"`
		} `json:"categories"`
		Audits map[string]struct {
			NumericValue float64 `json:"numericValue"`
		} `json:"audits"`
	} `json:"lighthouseResult"`
}

type strategyMetrics struct {
	strategy string
	score    int
	lcpMS    float64
	inpMS    float64
	cls      float64
	fcpMS    float64
	ttfbMS   float64
}

// Analyze implements Analyzer.
func (a *PerformanceAnalyzer) Analyze(ctx context.Context, input Input) domain.ModuleResult {
	var metrics []strategyMetrics
	var firstErr error

	for _, strategy := range []string{"mobile", "desktop"} {
		m, err := a.measure(ctx, input.TargetURL, strategy)
		if err != nil {
			a.logger.Warn("pagespeed measurement failed",
				zap.String("strategy", strategy), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics = append(metrics, *m)
	}

	if len(metrics) == 0 {
		return errorResult(domain.ModulePerformance, domain.ErrExternalAPI("pagespeed", firstErr))
	}

	out := domain.ModuleResult{
		Module:    domain.ModulePerformance,
		SubScores: map[string]int{},
	}

	scoreSum := 0
	for _, m := range metrics {
		scoreSum += m.score
		out.SubScores[m.strategy] = m.score
		out.Findings = append(out.Findings, a.vitalsFindings(m)...)
	}
	out.Score = scoreSum / len(metrics)

	return out
}

func (a *PerformanceAnalyzer) measure(ctx context.Context, targetURL, strategy string) (*strategyMetrics, error) {
	endpoint := fmt.Sprintf("%s/runPagespeed?url=%s&strategy=%s",
		a.config.BaseURL, url.QueryEscape(targetURL), strategy)
	if a.config.APIKey != "" {
		endpoint += "&key=" + url.QueryEscape(a.config.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("pagespeed status %d: %s", resp.StatusCode, body)
	}

	var parsed pagespeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding pagespeed response: %w", err)
	}

	audit := func(name string) float64 {
		if entry, ok := parsed.LighthouseResult.Audits[name]; ok {
			return entry.NumericValue
		}
		return 0
	}

	return &strategyMetrics{
		strategy: strategy,
		score:    int(math.Round(parsed.LighthouseResult.Categories.Performance.Score * 100)),
		lcpMS:    audit("largest-contentful-paint"),
		inpMS:    audit("interaction-to-next-paint"),
		cls:      audit("cumulative-layout-shift"),
		fcpMS:    audit("first-contentful-paint"),
		ttfbMS:   audit("server-response-time"),
	}, nil
}

// vitalsFindings keys findings on the Core Web Vitals thresholds for one
// strategy.
func (a *PerformanceAnalyzer) vitalsFindings(m strategyMetrics) []domain.Finding {
	viewport := domain.ViewportDesktop
	if m.strategy == "mobile" {
		viewport = domain.ViewportMobile
	}

	mk := func(severity domain.Severity, category, title, description, impact, rec string) domain.Finding {
		return domain.Finding{
			Module: domain.ModulePerformance, Category: category,
			Title: title, Description: description, Impact: impact, Recommendation: rec,
			Severity: severity, Priority: priorityForSeverity(severity),
			Difficulty: domain.DifficultyMedium, Viewport: viewport,
			SourceModule: domain.ModulePerformance, SourceType: "perf-" + category,
		}
	}

	var findings []domain.Finding

	if m.lcpMS > lcpGoodMS {
		severity := domain.SeverityMedium
		if m.lcpMS > lcpPoorMS {
			severity = domain.SeverityHigh
		}
		findings = append(findings, mk(severity, "lcp",
			fmt.Sprintf("Slow largest contentful paint on %s", m.strategy),
			fmt.Sprintf("LCP is %.1fs; the good threshold is %.1fs.", m.lcpMS/1000, lcpGoodMS/1000),
			"Visitors stare at an unfinished page; bounce rates climb with every second.",
			"Optimize the hero image and critical rendering path."))
	}
	if m.inpMS > inpGoodMS {
		findings = append(findings, mk(domain.SeverityMedium, "inp",
			fmt.Sprintf("Sluggish interaction response on %s", m.strategy),
			fmt.Sprintf("INP is %.0fms; the good threshold is %.0fms.", m.inpMS, inpGoodMS),
			"Taps and clicks feel laggy, eroding trust in the site.",
			"Break up long main-thread tasks and defer non-critical scripts."))
	}
	if m.cls > clsGood {
		findings = append(findings, mk(domain.SeverityMedium, "cls",
			fmt.Sprintf("Layout shifts on %s", m.strategy),
			fmt.Sprintf("CLS is %.2f; the good threshold is %.2f.", m.cls, clsGood),
			"Content jumps as it loads, causing misclicks.",
			"Reserve space for images, ads, and embeds."))
	}
	if m.fcpMS > fcpGoodMS {
		findings = append(findings, mk(domain.SeverityLow, "fcp",
			fmt.Sprintf("Slow first paint on %s", m.strategy),
			fmt.Sprintf("FCP is %.1fs; the good threshold is %.1fs.", m.fcpMS/1000, fcpGoodMS/1000),
			"The site feels slow from the very first moment.",
			"Inline critical CSS and reduce render-blocking resources."))
	}
	if m.ttfbMS > ttfbGoodMS {
		findings = append(findings, mk(domain.SeverityLow, "ttfb",
			fmt.Sprintf("Slow server response on %s", m.strategy),
			fmt.Sprintf("TTFB is %.0fms; the good threshold is %.0fms.", m.ttfbMS, ttfbGoodMS),
			"Every page view starts with a server-side delay.",
			"Add caching or upgrade hosting."))
	}

	return findings
}

package analyzers

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sitegrader/sitegrader/internal/domain"
	"github.com/sitegrader/sitegrader/internal/llm"
	"github.com/sitegrader/sitegrader/internal/prompts"
	"github.com/sitegrader/sitegrader/internal/services/capture"
)

// Per-page score weights for the visual composite.
const (
	visualDesktopWeight    = 0.40
	visualMobileWeight     = 0.40
	visualResponsiveWeight = 0.20

	// maxVisualPages bounds how many selected pages the analyzer inspects.
	maxVisualPages = 3

	// scoreVarianceThreshold is the per-page std-dev above which the
	// cross-page consistency finding fires. Requires at least three
	// comparable pages.
	scoreVarianceThreshold = 15.0

	// responsiveFloor is the responsive mean below which the poor-responsive
	// finding fires.
	responsiveFloor = 60.0
)

// VisualAnalyzer reviews page screenshots with a vision model, desktop and
// mobile together, and aggregates per-page results into one module result.
type VisualAnalyzer struct {
	llm         llm.Client
	catalog     *prompts.Catalog
	post        *capture.PostProcessor
	visionModel string
	logger      *zap.Logger
}

// NewVisualAnalyzer creates a VisualAnalyzer.
func NewVisualAnalyzer(client llm.Client, catalog *prompts.Catalog, post *capture.PostProcessor, visionModel string, logger *zap.Logger) *VisualAnalyzer {
	return &VisualAnalyzer{
		llm:         client,
		catalog:     catalog,
		post:        post,
		visionModel: visionModel,
		logger:      logger,
	}
}

// Module implements Analyzer.
func (a *VisualAnalyzer) Module() domain.Module {
	return domain.ModuleVisual
}

// visualResponse is the vision model's structured output for one page.
type visualResponse struct {
	DesktopScore     int           `json:"desktopScore"`
	MobileScore      int           `json:"mobileScore"`
	ResponsiveScore  int           `json:"responsiveScore"`
	DesktopIssues    []visualIssue `json:"desktopIssues"`
	MobileIssues     []visualIssue `json:"mobileIssues"`
	ResponsiveIssues []visualIssue `json:"responsiveIssues"`
	SharedIssues     []visualIssue `json:"sharedIssues"`
	Positives        []string      `json:"positives"`
}

type visualIssue struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Impact         string `json:"impact"`
	Recommendation string `json:"recommendation"`
	Severity       string `json:"severity"`
	Difficulty     string `json:"difficulty"`
	Category       string `json:"category"`
}

type visualPageResult struct {
	url      string
	response visualResponse
	findings []domain.Finding
	evidence []string
	usage    domain.Usage
	cost     float64
	err      error
}

// Analyze implements Analyzer. Pages run in parallel when cross-page context
// is disabled and strictly sequentially when enabled, because each page's
// output seeds the next page's prompt.
func (a *VisualAnalyzer) Analyze(ctx context.Context, input Input) domain.ModuleResult {
	pages := domain.CapturesFor(input.Captures, input.Selection.VisualPages)
	if len(pages) > maxVisualPages {
		pages = pages[:maxVisualPages]
	}
	if len(pages) == 0 {
		return errorResult(domain.ModuleVisual, fmt.Errorf("no usable captures for visual analysis"))
	}

	sequential := input.Options.EnableCrossPageContext && input.CrossPage != nil
	results := make([]visualPageResult, len(pages))

	if sequential {
		for i, page := range pages {
			results[i] = a.analyzePage(ctx, input, page, i, input.CrossPage)
			if results[i].err == nil {
				input.CrossPage.AddPageContext(PageContext{
					URL:    page.URL,
					Module: domain.ModuleVisual,
					Scores: map[string]int{
						"desktop":    results[i].response.DesktopScore,
						"mobile":     results[i].response.MobileScore,
						"responsive": results[i].response.ResponsiveScore,
					},
					Findings: results[i].findings,
				})
			}
		}
	} else {
		var wg sync.WaitGroup
		for i, page := range pages {
			wg.Add(1)
			go func(i int, page domain.Capture) {
				defer wg.Done()
				results[i] = a.analyzePage(ctx, input, page, i, nil)
			}(i, page)
		}
		wg.Wait()
	}

	return a.aggregate(results)
}

// analyzePage runs the vision call for one page's desktop+mobile screenshots.
func (a *VisualAnalyzer) analyzePage(ctx context.Context, input Input, page domain.Capture, pageIndex int, crossPage *CrossPageBuilder) visualPageResult {
	result := visualPageResult{url: page.URL}
	slug := capture.PageSlug(page.URL)

	images, index, evidence, err := a.assembleImages(page, input.RunDir, slug)
	if err != nil {
		result.err = fmt.Errorf("preparing screenshots for %s: %w", page.URL, err)
		return result
	}
	result.evidence = evidence

	promptID := prompts.VisualBase
	vars := map[string]string{
		"company":     input.Target.Name,
		"industry":    input.Target.Industry,
		"url":         page.URL,
		"fonts":       tokenList(page, "fonts"),
		"colors":      tokenList(page, "colors"),
		"image_index": index,
	}
	if crossPage != nil {
		promptID = prompts.VisualContextAware
		vars["prior_context"] = crossPage.GetPageContext(page.URL, pageIndex)
	}

	prompt, err := a.catalog.Load(promptID, vars)
	if err != nil {
		result.err = err
		return result
	}

	llmResult, err := a.llm.CallJSON(ctx, llm.Request{
		Model:       a.visionModel,
		System:      prompt.System,
		User:        prompt.User,
		Images:      images,
		Temperature: prompt.Temperature,
	}, &result.response)
	if llmResult != nil {
		result.usage = llmResult.Usage
		result.cost = llmResult.Cost
	}
	if err != nil {
		result.err = fmt.Errorf("vision call for %s: %w", page.URL, err)
		return result
	}

	if !validScore(result.response.DesktopScore) || !validScore(result.response.MobileScore) || !validScore(result.response.ResponsiveScore) {
		result.err = fmt.Errorf("vision scores out of range for %s: %d/%d/%d",
			page.URL, result.response.DesktopScore, result.response.MobileScore, result.response.ResponsiveScore)
		return result
	}

	result.findings = a.collectFindings(page.URL, result.response, evidence)
	return result
}

// assembleImages post-processes both screenshots and builds the ordered image
// list plus its textual index.
func (a *VisualAnalyzer) assembleImages(page domain.Capture, runDir, slug string) ([]llm.Image, string, []string, error) {
	var images []llm.Image
	var indexLines []string
	var evidence []string

	add := func(path string, viewport domain.Viewport) error {
		sections, err := a.post.Process(path, runDir, slug, viewport)
		if err != nil {
			return err
		}
		viewportName := strings.ToUpper(string(viewport))
		for _, s := range sections {
			label := fmt.Sprintf("Screenshot %d: %s", len(images)+1, viewportName)
			if s.Label != "" && s.Label != "FULL" {
				label += fmt.Sprintf(" — %s SECTION", s.Label)
			}
			images = append(images, llm.Image{Label: label, MediaType: s.MediaType, Data: s.Data})
			indexLines = append(indexLines, label)
			evidence = append(evidence, s.Path)
		}
		return nil
	}

	if err := add(page.Screenshots.Desktop, domain.ViewportDesktop); err != nil {
		return nil, "", nil, err
	}
	if err := add(page.Screenshots.Mobile, domain.ViewportMobile); err != nil {
		return nil, "", nil, err
	}

	return images, strings.Join(indexLines, "\n"), evidence, nil
}

// collectFindings converts the per-viewport issue arrays into tagged findings.
func (a *VisualAnalyzer) collectFindings(pageURL string, resp visualResponse, evidence []string) []domain.Finding {
	var findings []domain.Finding

	convert := func(issues []visualIssue, viewport domain.Viewport) {
		for _, issue := range issues {
			severity := severityOf(issue.Severity)
			category := issue.Category
			if category == "" {
				category = "visual"
			}
			findings = append(findings, domain.Finding{
				Module:         domain.ModuleVisual,
				Category:       category,
				Title:          issue.Title,
				Description:    issue.Description,
				Impact:         issue.Impact,
				Recommendation: issue.Recommendation,
				Severity:       severity,
				Priority:       priorityForSeverity(severity),
				Difficulty:     difficultyOf(issue.Difficulty),
				Viewport:       viewport,
				AffectedPages:  []string{pageURL},
				EvidenceRefs:   evidence,
				SourceModule:   domain.ModuleVisual,
				SourceType:     "visual-" + category,
			})
		}
	}

	convert(resp.DesktopIssues, domain.ViewportDesktop)
	convert(resp.MobileIssues, domain.ViewportMobile)
	convert(resp.ResponsiveIssues, domain.ViewportResponsive)
	convert(resp.SharedIssues, domain.ViewportBoth)

	return findings
}

// aggregate folds per-page results into the module result: weighted-mean
// scores, page-tagged findings, and cross-page consistency findings derived
// from score variance.
func (a *VisualAnalyzer) aggregate(results []visualPageResult) domain.ModuleResult {
	out := domain.ModuleResult{Module: domain.ModuleVisual}

	var succeeded []visualPageResult
	for _, r := range results {
		out.Usage.Add(r.usage)
		out.CostUnits += r.cost
		if r.err != nil {
			a.logger.Warn("visual page analysis failed", zap.String("url", r.url), zap.Error(r.err))
			continue
		}
		succeeded = append(succeeded, r)
	}

	if len(succeeded) == 0 {
		failure := errorResult(domain.ModuleVisual, fmt.Errorf("every visual page analysis failed"))
		failure.Usage = out.Usage
		failure.CostUnits = out.CostUnits
		return failure
	}

	var desktopSum, mobileSum, responsiveSum, compositeSum float64
	var composites []float64
	for _, r := range succeeded {
		out.Findings = append(out.Findings, r.findings...)
		for _, p := range r.response.Positives {
			out.Positives = append(out.Positives, domain.Positive{Page: r.url, Text: p})
		}

		desktopSum += float64(r.response.DesktopScore)
		mobileSum += float64(r.response.MobileScore)
		responsiveSum += float64(r.response.ResponsiveScore)

		composite := visualDesktopWeight*float64(r.response.DesktopScore) +
			visualMobileWeight*float64(r.response.MobileScore) +
			visualResponsiveWeight*float64(r.response.ResponsiveScore)
		composites = append(composites, composite)
		compositeSum += composite
	}

	n := float64(len(succeeded))
	out.Score = clampScore(int(math.Round(compositeSum / n)))
	out.SubScores = map[string]int{
		"desktop":    int(math.Round(desktopSum / n)),
		"mobile":     int(math.Round(mobileSum / n)),
		"responsive": int(math.Round(responsiveSum / n)),
	}

	out.Findings = append(out.Findings, a.consistencyFindings(succeeded, composites, responsiveSum/n)...)

	sort.SliceStable(out.Findings, func(i, j int) bool {
		return out.Findings[i].Severity.Rank() > out.Findings[j].Severity.Rank()
	})

	return out
}

// consistencyFindings derives cross-page findings: high per-page score
// variance (three or more comparable pages) and a weak responsive mean.
func (a *VisualAnalyzer) consistencyFindings(pages []visualPageResult, composites []float64, responsiveMean float64) []domain.Finding {
	var findings []domain.Finding

	if len(composites) >= 3 {
		if stdDev(composites) > scoreVarianceThreshold {
			urls := make([]string, len(pages))
			for i, p := range pages {
				urls[i] = p.url
			}
			findings = append(findings, domain.Finding{
				Module:         domain.ModuleVisual,
				Category:       "consistency",
				Title:          "Inconsistent UX quality across pages",
				Description:    "Visual quality varies widely between the analyzed pages, which reads as an unfinished or neglected site.",
				Impact:         "Visitors who land on a weak page judge the whole business by it.",
				Recommendation: "Bring the weakest pages up to the standard of the strongest before driving traffic to them.",
				Severity:       domain.SeverityHigh,
				Priority:       domain.PriorityHigh,
				Difficulty:     domain.DifficultyMajor,
				Viewport:       domain.ViewportBoth,
				AffectedPages:  urls,
				SourceModule:   domain.ModuleVisual,
				SourceType:     "visual-consistency",
			})
		}
	}

	if responsiveMean < responsiveFloor {
		findings = append(findings, domain.Finding{
			Module:         domain.ModuleVisual,
			Category:       "responsive",
			Title:          "Poor responsive implementation",
			Description:    "The mobile rendering diverges badly from the desktop layout across the analyzed pages.",
			Impact:         "Most small-business traffic is mobile; a broken mobile experience loses those visitors outright.",
			Recommendation: "Audit the responsive breakpoints and fix the mobile layout site-wide.",
			Severity:       domain.SeverityHigh,
			Priority:       domain.PriorityHigh,
			Difficulty:     domain.DifficultyMajor,
			Viewport:       domain.ViewportResponsive,
			SourceModule:   domain.ModuleVisual,
			SourceType:     "visual-responsive",
		})
	}

	return findings
}

func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}

func tokenList(page domain.Capture, kind string) string {
	var values []string
	for _, viewport := range []domain.Viewport{domain.ViewportDesktop, domain.ViewportMobile} {
		tokens, ok := page.Tokens[viewport]
		if !ok {
			continue
		}
		if kind == "fonts" {
			values = append(values, tokens.Fonts...)
		} else {
			values = append(values, tokens.Colors...)
		}
	}

	seen := make(map[string]bool)
	var distinct []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			distinct = append(distinct, v)
		}
	}
	if len(distinct) == 0 {
		return "unknown"
	}
	return strings.Join(distinct, ", ")
}

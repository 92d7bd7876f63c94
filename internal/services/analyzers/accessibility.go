package analyzers

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sitegrader/sitegrader/internal/domain"
	"github.com/sitegrader/sitegrader/internal/llm"
	"github.com/sitegrader/sitegrader/internal/prompts"
)

// AccessibilityAnalyzer extracts deterministic WCAG signals from every
// captured page and augments them with one LLM interpretation call. The
// deterministic findings stand even when the LLM call fails.
type AccessibilityAnalyzer struct {
	llm     llm.Client
	catalog *prompts.Catalog
	logger  *zap.Logger
}

// NewAccessibilityAnalyzer creates an AccessibilityAnalyzer.
func NewAccessibilityAnalyzer(client llm.Client, catalog *prompts.Catalog, logger *zap.Logger) *AccessibilityAnalyzer {
	return &AccessibilityAnalyzer{llm: client, catalog: catalog, logger: logger}
}

// Module implements Analyzer.
func (a *AccessibilityAnalyzer) Module() domain.Module {
	return domain.ModuleAccessibility
}

type accessibilityResponse struct {
	Score  int `json:"score"`
	Issues []struct {
		Title          string `json:"title"`
		Description    string `json:"description"`
		Impact         string `json:"impact"`
		Recommendation string `json:"recommendation"`
		Severity       string `json:"severity"`
		Difficulty     string `json:"difficulty"`
		Category       string `json:"category"`
		WCAGCriterion  string `json:"wcagCriterion"`
	} `json:"issues"`
	Positives []string `json:"positives"`
}

// Analyze implements Analyzer.
func (a *AccessibilityAnalyzer) Analyze(ctx context.Context, input Input) domain.ModuleResult {
	pages := input.Captures
	if len(pages) == 0 {
		return errorResult(domain.ModuleAccessibility, fmt.Errorf("no usable captures for accessibility analysis"))
	}

	features := make([]PageFeatures, len(pages))
	for i, p := range pages {
		features[i] = ExtractFeatures(p.URL, p.HTML)
	}

	deterministic, signalSummary, deterministicScore := a.signalFindings(features)

	out := domain.ModuleResult{
		Module:   domain.ModuleAccessibility,
		Score:    deterministicScore,
		Findings: deterministic,
	}

	prompt, err := a.catalog.Load(prompts.Accessibility, map[string]string{
		"company": input.Target.Name,
		"url":     input.TargetURL,
		"signals": signalSummary,
	})
	if err != nil {
		out.Error = err.Error()
		return out
	}

	var resp accessibilityResponse
	result, err := a.llm.CallJSON(ctx, llm.Request{
		Model:       prompt.Model,
		System:      prompt.System,
		User:        prompt.User,
		Temperature: prompt.Temperature,
	}, &resp)
	if result != nil {
		out.Usage = result.Usage
		out.CostUnits = result.Cost
	}
	if err != nil {
		// Deterministic signals carry the module; record the degradation.
		a.logger.Warn("accessibility llm call failed, using signal score", zap.Error(err))
		return out
	}

	if validScore(resp.Score) {
		out.Score = resp.Score
	}
	seen := make(map[string]bool)
	for _, f := range out.Findings {
		seen[strings.ToLower(f.Title)] = true
	}
	for _, issue := range resp.Issues {
		if seen[strings.ToLower(issue.Title)] {
			continue
		}
		severity := severityOf(issue.Severity)
		category := issue.Category
		if category == "" {
			category = "wcag"
		}
		f := domain.Finding{
			Module:         domain.ModuleAccessibility,
			Category:       category,
			Title:          issue.Title,
			Description:    issue.Description,
			Impact:         issue.Impact,
			Recommendation: issue.Recommendation,
			Severity:       severity,
			Priority:       priorityForSeverity(severity),
			Difficulty:     difficultyOf(issue.Difficulty),
			Viewport:       domain.ViewportNone,
			SourceModule:   domain.ModuleAccessibility,
			SourceType:     "a11y-" + category,
		}
		if issue.WCAGCriterion != "" {
			f.EvidenceRefs = []string{"wcag:" + issue.WCAGCriterion}
		}
		out.Findings = append(out.Findings, f)
	}
	for _, p := range resp.Positives {
		out.Positives = append(out.Positives, domain.Positive{Text: p})
	}

	return out
}

// signalFindings turns the deterministic signals into WCAG-tagged site-wide
// findings plus a summary for the LLM and a signal-derived score.
func (a *AccessibilityAnalyzer) signalFindings(features []PageFeatures) ([]domain.Finding, string, int) {
	var imgTotal, imgWithAlt, inputs, labelled, headingSkips, positiveTabindex, ariaAttrs, landmarks int
	var noLang, noSkipLink []string

	for _, f := range features {
		imgTotal += f.ImageCount
		imgWithAlt += f.ImagesWithAlt
		inputs += f.FormInputCount
		labelled += f.LabelledInputs
		headingSkips += f.HeadingSkips()
		positiveTabindex += f.PositiveTabindex
		ariaAttrs += f.AriaAttrCount
		landmarks += f.LandmarkCount
		if !f.HasLang {
			noLang = append(noLang, f.URL)
		}
		if !f.HasSkipLink {
			noSkipLink = append(noSkipLink, f.URL)
		}
	}

	mk := func(severity domain.Severity, category, wcag, title, description, impact, rec string, pages []string) domain.Finding {
		return domain.Finding{
			Module: domain.ModuleAccessibility, Category: category,
			Title: title, Description: description, Impact: impact, Recommendation: rec,
			Severity: severity, Priority: priorityForSeverity(severity),
			Difficulty: domain.DifficultyQuickWin, Viewport: domain.ViewportNone,
			AffectedPages: pages, EvidenceRefs: []string{"wcag:" + wcag},
			SourceModule: domain.ModuleAccessibility, SourceType: "a11y-" + category,
		}
	}

	var findings []domain.Finding
	score := 100

	if imgTotal > 0 && imgWithAlt < imgTotal {
		missing := imgTotal - imgWithAlt
		severity := domain.SeverityMedium
		if float64(imgWithAlt)/float64(imgTotal) < 0.5 {
			severity = domain.SeverityHigh
		}
		findings = append(findings, mk(severity, "images", "1.1.1",
			"Images without text alternatives",
			fmt.Sprintf("%d of %d images across analyzed pages have no alt text.", missing, imgTotal),
			"Screen reader users get no information from these images.",
			"Add alt text to meaningful images; mark decorative ones with empty alt.", nil))
		score -= 15
	}
	if inputs > 0 && labelled < inputs {
		findings = append(findings, mk(domain.SeverityHigh, "forms", "3.3.2",
			"Form inputs without labels",
			fmt.Sprintf("%d of %d form inputs have no associated label.", inputs-labelled, inputs),
			"Screen reader users cannot tell what these fields expect.",
			"Associate every input with a label element or aria-label.", nil))
		score -= 15
	}
	if headingSkips > 0 {
		findings = append(findings, mk(domain.SeverityMedium, "headings", "1.3.1",
			"Heading levels skipped",
			fmt.Sprintf("%d heading-level skips across analyzed pages.", headingSkips),
			"Screen reader users navigating by heading lose the document structure.",
			"Keep heading levels sequential.", nil))
		score -= 10
	}
	if len(noLang) > 0 {
		findings = append(findings, mk(domain.SeverityHigh, "document", "3.1.1",
			"Missing language attribute",
			fmt.Sprintf("%d analyzed page(s) declare no lang attribute on <html>.", len(noLang)),
			"Screen readers may announce the page in the wrong language.",
			"Set lang on the html element.", noLang))
		score -= 10
	}
	// Kept as a single site-wide finding even when only one page is affected,
	// for compatibility with historical reports.
	if positiveTabindex > 0 {
		findings = append(findings, mk(domain.SeverityMedium, "keyboard", "2.4.3",
			"Positive tabindex values in use",
			fmt.Sprintf("%d element(s) use a positive tabindex, overriding the natural tab order.", positiveTabindex),
			"Keyboard users get an unpredictable focus order.",
			"Remove positive tabindex values; rely on DOM order.", nil))
		score -= 10
	}
	if landmarks == 0 {
		findings = append(findings, mk(domain.SeverityMedium, "landmarks", "1.3.6",
			"No landmark regions",
			"No header, nav, main, or footer landmarks were found on the analyzed pages.",
			"Assistive technology users cannot jump between page regions.",
			"Use semantic landmark elements for the page structure.", nil))
		score -= 10
	}
	if len(noSkipLink) == len(features) && len(features) > 0 {
		findings = append(findings, mk(domain.SeverityLow, "keyboard", "2.4.1",
			"No skip-to-content link",
			"No analyzed page offers a skip link past the navigation.",
			"Keyboard users must tab through the full navigation on every page.",
			"Add a skip-to-content link as the first focusable element.", nil))
		score -= 5
	}

	if score < 0 {
		score = 0
	}

	var summary strings.Builder
	fmt.Fprintf(&summary, "pages analyzed: %d\n", len(features))
	fmt.Fprintf(&summary, "images: %d total, %d with alt\n", imgTotal, imgWithAlt)
	fmt.Fprintf(&summary, "form inputs: %d total, %d labelled\n", inputs, labelled)
	fmt.Fprintf(&summary, "heading level skips: %d\n", headingSkips)
	fmt.Fprintf(&summary, "pages missing lang: %d\n", len(noLang))
	fmt.Fprintf(&summary, "positive tabindex elements: %d\n", positiveTabindex)
	fmt.Fprintf(&summary, "aria attributes: %d\n", ariaAttrs)
	fmt.Fprintf(&summary, "landmark elements: %d\n", landmarks)
	fmt.Fprintf(&summary, "pages without skip link: %d\n", len(noSkipLink))

	return findings, summary.String(), score
}

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

const (
	// thinContentWords is the word count below which a page counts as thin.
	thinContentWords = 200

	// altRatioFloor is the site-wide alt coverage below which a finding fires.
	altRatioFloor = 0.5

	// htmlExcerptLimit bounds the truncated HTML passed to the model.
	htmlExcerptLimit = 6000
	htmlExcerptPages = 3
)

// TechnicalAnalyzer fuses the SEO and content modules into one LLM call over
// deterministically extracted page features. Site-wide signals are computed
// in code and prepended to the model's issue lists.
type TechnicalAnalyzer struct {
	llm     llm.Client
	catalog *prompts.Catalog
	logger  *zap.Logger
}

// NewTechnicalAnalyzer creates a TechnicalAnalyzer.
func NewTechnicalAnalyzer(client llm.Client, catalog *prompts.Catalog, logger *zap.Logger) *TechnicalAnalyzer {
	return &TechnicalAnalyzer{llm: client, catalog: catalog, logger: logger}
}

// technicalResponse is the fused LLM output.
type technicalResponse struct {
	OverallTechnicalScore int              `json:"overallTechnicalScore"`
	SEOScore              int              `json:"seoScore"`
	ContentScore          int              `json:"contentScore"`
	SEOIssues             []technicalIssue `json:"seoIssues"`
	ContentIssues         []technicalIssue `json:"contentIssues"`
	CrossCuttingIssues    []technicalIssue `json:"crossCuttingIssues"`
	EngagementHooks       []string         `json:"engagementHooks"`
	Positives             []string         `json:"positives"`
	HasBlog               bool             `json:"hasBlog"`
	BlogFrequency         string           `json:"blogFrequency"`
}

type technicalIssue struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Impact         string   `json:"impact"`
	Recommendation string   `json:"recommendation"`
	Severity       string   `json:"severity"`
	Difficulty     string   `json:"difficulty"`
	Category       string   `json:"category"`
	AffectedPages  []string `json:"affectedPages"`
}

// AnalyzeBoth runs the fused analysis and returns the SEO and content module
// results. A failed LLM call degrades both modules to their fallback, but the
// deterministic site-wide findings survive in the SEO result.
func (a *TechnicalAnalyzer) AnalyzeBoth(ctx context.Context, input Input) (seo, content domain.ModuleResult) {
	pages := domain.CapturesFor(input.Captures, append(input.Selection.SEOPages, input.Selection.ContentPages...))
	if len(pages) == 0 {
		return errorResult(domain.ModuleSEO, fmt.Errorf("no usable captures for technical analysis")),
			errorResult(domain.ModuleContent, fmt.Errorf("no usable captures for technical analysis"))
	}

	features := make([]PageFeatures, len(pages))
	for i, p := range pages {
		features[i] = ExtractFeatures(p.URL, p.HTML)
	}

	seoSiteWide, contentSiteWide := a.siteWideFindings(input, features)

	resp, usage, cost, err := a.callModel(ctx, input, pages, features, seoSiteWide, contentSiteWide)
	if err != nil {
		a.logger.Warn("technical llm call failed", zap.Error(err))
		seo = errorResult(domain.ModuleSEO, err)
		seo.Findings = append(seoSiteWide, seo.Findings...)
		content = errorResult(domain.ModuleContent, err)
		content.Findings = append(contentSiteWide, content.Findings...)
		seo.Usage = usage
		seo.CostUnits = cost
		return seo, content
	}

	if !validScore(resp.SEOScore) || !validScore(resp.ContentScore) {
		err := fmt.Errorf("technical scores out of range: seo=%d content=%d", resp.SEOScore, resp.ContentScore)
		seo = errorResult(domain.ModuleSEO, err)
		seo.Findings = append(seoSiteWide, seo.Findings...)
		content = errorResult(domain.ModuleContent, err)
		content.Findings = append(contentSiteWide, content.Findings...)
		return seo, content
	}

	seo = domain.ModuleResult{
		Module:    domain.ModuleSEO,
		Score:     resp.SEOScore,
		Findings:  append(seoSiteWide, a.convertIssues(resp.SEOIssues, domain.ModuleSEO, "seo")...),
		SubScores: map[string]int{"technical": resp.OverallTechnicalScore},
		Usage:     usage,
		CostUnits: cost,
	}

	content = domain.ModuleResult{
		Module:   domain.ModuleContent,
		Score:    resp.ContentScore,
		Findings: append(contentSiteWide, a.convertIssues(resp.ContentIssues, domain.ModuleContent, "content")...),
	}

	// Cross-cutting issues live on the SEO result; synthesis merges across
	// modules anyway.
	seo.Findings = append(seo.Findings, a.convertIssues(resp.CrossCuttingIssues, domain.ModuleSEO, "cross-cutting")...)

	for _, p := range resp.Positives {
		content.Positives = append(content.Positives, domain.Positive{Text: p})
	}
	for _, h := range resp.EngagementHooks {
		content.Positives = append(content.Positives, domain.Positive{Text: "Engagement hook: " + h})
	}

	blogState := "none"
	if resp.HasBlog {
		blogState = resp.BlogFrequency
	}
	content.SubScores = map[string]int{}
	if blogState == "active" {
		content.SubScores["blog_activity"] = 100
	} else if blogState == "stale" {
		content.SubScores["blog_activity"] = 40
	} else {
		content.SubScores["blog_activity"] = 0
	}

	return seo, content
}

// siteWideFindings computes the deterministic signals that never go through
// the model.
func (a *TechnicalAnalyzer) siteWideFindings(input Input, features []PageFeatures) (seo, content []domain.Finding) {
	mkSEO := func(severity domain.Severity, difficulty domain.Difficulty, category, title, description, impact, rec string, pages []string) domain.Finding {
		return domain.Finding{
			Module: domain.ModuleSEO, Category: category, Title: title,
			Description: description, Impact: impact, Recommendation: rec,
			Severity: severity, Priority: priorityForSeverity(severity),
			Difficulty: difficulty, Viewport: domain.ViewportNone,
			AffectedPages: pages, SourceModule: domain.ModuleSEO, SourceType: "seo-" + category,
		}
	}
	mkContent := func(severity domain.Severity, difficulty domain.Difficulty, category, title, description, impact, rec string, pages []string) domain.Finding {
		f := mkSEO(severity, difficulty, category, title, description, impact, rec, pages)
		f.Module = domain.ModuleContent
		f.SourceModule = domain.ModuleContent
		f.SourceType = "content-" + category
		return f
	}

	if input.Discovery != nil && !input.Discovery.HasSitemap {
		seo = append(seo, mkSEO(domain.SeverityCritical, domain.DifficultyQuickWin, "indexability",
			"No sitemap.xml found",
			"The site does not publish a sitemap.xml, so search engines must discover pages by crawling alone.",
			"New and deep pages are indexed late or not at all.",
			"Generate and publish a sitemap.xml and reference it from robots.txt.", nil))
	}
	if input.Discovery != nil && !input.Discovery.HasRobots {
		seo = append(seo, mkSEO(domain.SeverityHigh, domain.DifficultyQuickWin, "indexability",
			"No robots.txt file found",
			"The site serves no robots.txt, leaving crawler behavior entirely to defaults.",
			"Crawl budget is spent without guidance and the sitemap goes unadvertised.",
			"Add a robots.txt that references the sitemap.", nil))
	}

	titles := make(map[string][]string)
	var noH1, noMeta, noViewport, thin, ctaLess []string
	schemaAnywhere := false
	var imgTotal, imgWithAlt int

	for _, f := range features {
		if f.Title != "" {
			titles[f.Title] = append(titles[f.Title], f.URL)
		}
		if f.HeadingCounts[0] == 0 {
			noH1 = append(noH1, f.URL)
		}
		if f.MetaDescription == "" {
			noMeta = append(noMeta, f.URL)
		}
		if !f.HasViewport {
			noViewport = append(noViewport, f.URL)
		}
		if f.HasSchema {
			schemaAnywhere = true
		}
		if f.WordCount < thinContentWords {
			thin = append(thin, f.URL)
		}
		if f.CTACount == 0 {
			ctaLess = append(ctaLess, f.URL)
		}
		imgTotal += f.ImageCount
		imgWithAlt += f.ImagesWithAlt
	}

	for title, pages := range titles {
		if len(pages) > 1 {
			seo = append(seo, mkSEO(domain.SeverityMedium, domain.DifficultyQuickWin, "meta",
				"Duplicate page titles",
				fmt.Sprintf("%d pages share the title %q.", len(pages), title),
				"Search results cannot distinguish these pages.",
				"Give every page a unique, descriptive title.", pages))
		}
	}
	if len(noH1) > 0 {
		seo = append(seo, mkSEO(domain.SeverityMedium, domain.DifficultyQuickWin, "headings",
			"Pages missing an H1 heading",
			fmt.Sprintf("%d analyzed page(s) have no H1.", len(noH1)),
			"Search engines and screen readers lose the page's primary topic.",
			"Add a single descriptive H1 to each page.", noH1))
	}
	if len(noMeta) > 0 {
		seo = append(seo, mkSEO(domain.SeverityHigh, domain.DifficultyQuickWin, "meta",
			"Pages missing meta descriptions",
			fmt.Sprintf("%d analyzed page(s) have no meta description.", len(noMeta)),
			"Search engines substitute arbitrary page text in results, lowering click-through.",
			"Write a 150-160 character meta description per page.", noMeta))
	}
	if len(noViewport) > 0 {
		seo = append(seo, mkSEO(domain.SeverityCritical, domain.DifficultyQuickWin, "mobile",
			"Missing viewport meta tag",
			fmt.Sprintf("%d analyzed page(s) lack a viewport meta tag.", len(noViewport)),
			"Mobile browsers render the desktop layout scaled down; mobile rankings suffer.",
			"Add <meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">.", noViewport))
	}
	if !schemaAnywhere {
		seo = append(seo, mkSEO(domain.SeverityMedium, domain.DifficultyMedium, "structured-data",
			"No structured data on any analyzed page",
			"None of the analyzed pages embed schema.org markup.",
			"The site is ineligible for rich results.",
			"Add LocalBusiness (or the appropriate type) JSON-LD to key pages.", nil))
	}
	if imgTotal > 0 && float64(imgWithAlt)/float64(imgTotal) < altRatioFloor {
		seo = append(seo, mkSEO(domain.SeverityMedium, domain.DifficultyQuickWin, "images",
			"Most images missing alt text",
			fmt.Sprintf("Only %d of %d images across analyzed pages carry alt text.", imgWithAlt, imgTotal),
			"Image search traffic is lost and accessibility suffers.",
			"Add descriptive alt text to content images.", nil))
	}

	if len(thin) > 0 {
		content = append(content, mkContent(domain.SeverityMedium, domain.DifficultyMedium, "depth",
			"Thin content pages",
			fmt.Sprintf("%d analyzed page(s) have under %d words.", len(thin), thinContentWords),
			"Thin pages rank poorly and give visitors no reason to stay.",
			"Expand these pages with substantive, specific content.", thin))
	}
	if len(ctaLess) > 0 {
		content = append(content, mkContent(domain.SeverityHigh, domain.DifficultyQuickWin, "conversion",
			"Pages without a call to action",
			fmt.Sprintf("%d analyzed page(s) present no call to action.", len(ctaLess)),
			"Visitors read and leave; nothing channels them toward contact or purchase.",
			"Add a clear next step to every page.", ctaLess))
	}

	if input.Discovery != nil {
		hasAbout, hasServices := false, false
		for _, p := range input.Discovery.Pages {
			switch p.PageTypeHint {
			case domain.PageTypeAbout:
				hasAbout = true
			case domain.PageTypeServices:
				hasServices = true
			}
		}
		if !hasAbout {
			content = append(content, mkContent(domain.SeverityMedium, domain.DifficultyMedium, "trust",
				"No About page discovered",
				"Discovery found no page describing who is behind the business.",
				"Visitors looking for credibility signals come up empty.",
				"Publish an About page with the team and story.", nil))
		}
		if !hasServices {
			content = append(content, mkContent(domain.SeverityMedium, domain.DifficultyMedium, "offer",
				"No Services page discovered",
				"Discovery found no page laying out the offering.",
				"Prospects cannot tell what the business actually sells.",
				"Publish a dedicated services or products page.", nil))
		}
	}

	return seo, content
}

func (a *TechnicalAnalyzer) callModel(ctx context.Context, input Input, pages []domain.Capture, features []PageFeatures, seoSiteWide, contentSiteWide []domain.Finding) (*technicalResponse, domain.Usage, float64, error) {
	var signals strings.Builder
	for _, f := range append(append([]domain.Finding{}, seoSiteWide...), contentSiteWide...) {
		fmt.Fprintf(&signals, "- %s\n", f.Title)
	}
	if signals.Len() == 0 {
		signals.WriteString("(none)")
	}

	var featureSummary strings.Builder
	for _, f := range features {
		fmt.Fprintf(&featureSummary,
			"%s\n  title=%q meta_desc=%t h1=%d words=%d ctas=%d images=%d/%d-alt schema=%t og=%d canonical=%t viewport=%t testimonials=%t blog_links=%d\n",
			f.URL, f.Title, f.MetaDescription != "", f.HeadingCounts[0], f.WordCount, f.CTACount,
			f.ImagesWithAlt, f.ImageCount, f.HasSchema, f.OGTagCount, f.HasCanonical, f.HasViewport,
			f.HasTestimonial, f.BlogHints)
	}

	var excerpts strings.Builder
	for i, p := range pages {
		if i == htmlExcerptPages {
			break
		}
		html := p.HTML
		if len(html) > htmlExcerptLimit {
			html = html[:htmlExcerptLimit]
		}
		fmt.Fprintf(&excerpts, "=== %s ===\n%s\n", p.URL, html)
	}

	prompt, err := a.catalog.Load(prompts.Technical, map[string]string{
		"company":       input.Target.Name,
		"industry":      input.Target.Industry,
		"url":           input.TargetURL,
		"site_signals":  signals.String(),
		"page_features": featureSummary.String(),
		"html_excerpts": excerpts.String(),
	})
	if err != nil {
		return nil, domain.Usage{}, 0, err
	}

	var resp technicalResponse
	result, err := a.llm.CallJSON(ctx, llm.Request{
		Model:       prompt.Model,
		System:      prompt.System,
		User:        prompt.User,
		Temperature: prompt.Temperature,
	}, &resp)

	var usage domain.Usage
	var cost float64
	if result != nil {
		usage = result.Usage
		cost = result.Cost
	}
	if err != nil {
		return nil, usage, cost, err
	}
	return &resp, usage, cost, nil
}

func (a *TechnicalAnalyzer) convertIssues(issues []technicalIssue, module domain.Module, prefix string) []domain.Finding {
	var findings []domain.Finding
	for _, issue := range issues {
		severity := severityOf(issue.Severity)
		category := issue.Category
		if category == "" {
			category = prefix
		}
		findings = append(findings, domain.Finding{
			Module:         module,
			Category:       category,
			Title:          issue.Title,
			Description:    issue.Description,
			Impact:         issue.Impact,
			Recommendation: issue.Recommendation,
			Severity:       severity,
			Priority:       priorityForSeverity(severity),
			Difficulty:     difficultyOf(issue.Difficulty),
			Viewport:       domain.ViewportNone,
			AffectedPages:  issue.AffectedPages,
			SourceModule:   module,
			SourceType:     prefix + "-" + category,
		})
	}
	return findings
}

package analyzers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/sitegrader/sitegrader/internal/domain"
	"github.com/sitegrader/sitegrader/internal/prompts"
)

const barePage = `<html><head><title>%s</title></head><body><p>short</p></body></html>`

func technicalInput(discovery *domain.DiscoveryResult, captures []domain.Capture) Input {
	urls := make([]string, len(captures))
	for i, c := range captures {
		urls[i] = c.URL
	}
	return Input{
		Target:    domain.Company{Name: "Example Domain", Industry: "other"},
		TargetURL: urls[0],
		Discovery: discovery,
		Selection: &domain.PageSelection{SEOPages: urls, ContentPages: urls},
		Captures:  captures,
	}
}

func TestTechnicalSiteWideFindings(t *testing.T) {
	captures := []domain.Capture{
		{URL: "https://example.com", HTML: strings.ReplaceAll(barePage, "%s", "Example")},
		{URL: "https://example.com/a", HTML: strings.ReplaceAll(barePage, "%s", "Example")},
	}
	discovery := &domain.DiscoveryResult{HasSitemap: false, HasRobots: false}

	client := &scriptedClient{responses: []string{
		`{"overallTechnicalScore":40,"seoScore":35,"contentScore":30,
		  "seoIssues":[],"contentIssues":[],"crossCuttingIssues":[],
		  "engagementHooks":[],"positives":[],"hasBlog":false,"blogFrequency":"none"}`,
	}}

	a := NewTechnicalAnalyzer(client, prompts.NewCatalog("m"), zap.NewNop())
	seo, content := a.AnalyzeBoth(context.Background(), technicalInput(discovery, captures))

	if seo.Failed() || content.Failed() {
		t.Fatalf("unexpected errors: %s / %s", seo.Error, content.Error)
	}
	if seo.Score != 35 || content.Score != 30 {
		t.Errorf("scores = %d/%d", seo.Score, content.Score)
	}

	titles := make(map[string]domain.Severity)
	for _, f := range seo.Findings {
		titles[f.Title] = f.Severity
	}

	if sev, ok := titles["No sitemap.xml found"]; !ok || sev != domain.SeverityCritical {
		t.Errorf("sitemap finding = %v, %v", sev, ok)
	}
	if sev, ok := titles["No robots.txt file found"]; !ok || sev != domain.SeverityHigh {
		t.Errorf("robots finding = %v, %v", sev, ok)
	}
	if _, ok := titles["Duplicate page titles"]; !ok {
		t.Error("duplicate titles not detected")
	}
	if _, ok := titles["Pages missing an H1 heading"]; !ok {
		t.Error("missing H1 not detected")
	}
	if _, ok := titles["Pages missing meta descriptions"]; !ok {
		t.Error("missing meta descriptions not detected")
	}
	if _, ok := titles["Missing viewport meta tag"]; !ok {
		t.Error("missing viewport not detected")
	}
	if _, ok := titles["No structured data on any analyzed page"]; !ok {
		t.Error("schema absence not detected")
	}

	contentTitles := make(map[string]bool)
	for _, f := range content.Findings {
		contentTitles[f.Title] = true
	}
	if !contentTitles["Thin content pages"] {
		t.Error("thin content not detected")
	}
	if !contentTitles["Pages without a call to action"] {
		t.Error("cta-less pages not detected")
	}
	if !contentTitles["No About page discovered"] || !contentTitles["No Services page discovered"] {
		t.Error("missing about/services not detected")
	}
}

func TestTechnicalLLMFailureKeepsDeterministicFindings(t *testing.T) {
	captures := []domain.Capture{
		{URL: "https://example.com", HTML: strings.ReplaceAll(barePage, "%s", "Example")},
	}
	discovery := &domain.DiscoveryResult{HasSitemap: false, HasRobots: true}

	client := &scriptedClient{err: errors.New("api down")}
	a := NewTechnicalAnalyzer(client, prompts.NewCatalog("m"), zap.NewNop())
	seo, content := a.AnalyzeBoth(context.Background(), technicalInput(discovery, captures))

	if !seo.Failed() || !content.Failed() {
		t.Error("both modules must carry the error")
	}
	if seo.Score != FallbackScore(domain.ModuleSEO) {
		t.Errorf("seo fallback = %d", seo.Score)
	}

	var hasSitemapFinding bool
	for _, f := range seo.Findings {
		if f.Title == "No sitemap.xml found" {
			hasSitemapFinding = true
		}
	}
	if !hasSitemapFinding {
		t.Error("deterministic sitemap finding must survive an LLM failure")
	}
}

func TestTechnicalLLMIssuesConverted(t *testing.T) {
	captures := []domain.Capture{
		{URL: "https://example.com", HTML: sampleHTML},
	}
	discovery := &domain.DiscoveryResult{HasSitemap: true, HasRobots: true, Pages: []domain.DiscoveredPage{
		{URL: "https://example.com/about", PageTypeHint: domain.PageTypeAbout},
		{URL: "https://example.com/services", PageTypeHint: domain.PageTypeServices},
	}}

	client := &scriptedClient{responses: []string{
		`{"overallTechnicalScore":75,"seoScore":72,"contentScore":68,
		  "seoIssues":[{"title":"Generic title tag","description":"d","impact":"i","recommendation":"r","severity":"medium","difficulty":"quick-win","category":"meta","affectedPages":["https://example.com"]}],
		  "contentIssues":[{"title":"Vague value proposition","description":"d","impact":"i","recommendation":"r","severity":"high","difficulty":"medium","category":"messaging"}],
		  "crossCuttingIssues":[],"engagementHooks":["free estimate offer"],"positives":["strong testimonials"],
		  "hasBlog":true,"blogFrequency":"active"}`,
	}}

	a := NewTechnicalAnalyzer(client, prompts.NewCatalog("m"), zap.NewNop())
	seo, content := a.AnalyzeBoth(context.Background(), technicalInput(discovery, captures))

	var gotSEOIssue, gotContentIssue bool
	for _, f := range seo.Findings {
		if f.Title == "Generic title tag" && f.SourceModule == domain.ModuleSEO {
			gotSEOIssue = true
		}
	}
	for _, f := range content.Findings {
		if f.Title == "Vague value proposition" && f.Severity == domain.SeverityHigh {
			gotContentIssue = true
		}
	}
	if !gotSEOIssue || !gotContentIssue {
		t.Errorf("llm issues not converted: seo=%v content=%v", gotSEOIssue, gotContentIssue)
	}
	if content.SubScores["blog_activity"] != 100 {
		t.Errorf("blog activity = %d", content.SubScores["blog_activity"])
	}
}

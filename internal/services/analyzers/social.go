package analyzers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sitegrader/sitegrader/internal/domain"
	"github.com/sitegrader/sitegrader/internal/llm"
	"github.com/sitegrader/sitegrader/internal/prompts"
)

// ExternalProfile is externally supplied social profile data, authoritative
// for follower counts over anything scraped from the site.
type ExternalProfile struct {
	Platform  string `json:"platform"`
	URL       string `json:"url"`
	Followers int    `json:"followers,omitempty"`
	LastPost  string `json:"last_post,omitempty"`
}

// SocialAnalyzer merges on-site social links with external profile data and
// interprets completeness and activity with one LLM call.
type SocialAnalyzer struct {
	llm     llm.Client
	catalog *prompts.Catalog
	logger  *zap.Logger
}

// NewSocialAnalyzer creates a SocialAnalyzer.
func NewSocialAnalyzer(client llm.Client, catalog *prompts.Catalog, logger *zap.Logger) *SocialAnalyzer {
	return &SocialAnalyzer{llm: client, catalog: catalog, logger: logger}
}

// Module implements Analyzer.
func (a *SocialAnalyzer) Module() domain.Module {
	return domain.ModuleSocial
}

type socialResponse struct {
	Score               int           `json:"score"`
	Issues              []socialIssue `json:"issues"`
	Positives           []string      `json:"positives"`
	PlatformAssessments []struct {
		Platform   string `json:"platform"`
		Present    bool   `json:"present"`
		Assessment string `json:"assessment"`
	} `json:"platformAssessments"`
}

type socialIssue struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Impact         string `json:"impact"`
	Recommendation string `json:"recommendation"`
	Severity       string `json:"severity"`
	Difficulty     string `json:"difficulty"`
	Category       string `json:"category"`
}

// Analyze implements Analyzer.
func (a *SocialAnalyzer) Analyze(ctx context.Context, input Input) domain.ModuleResult {
	pages := domain.CapturesFor(input.Captures, input.Selection.SocialPages)
	if len(pages) == 0 {
		return errorResult(domain.ModuleSocial, fmt.Errorf("no usable captures for social analysis"))
	}

	// Per-page link presence; platform -> pages carrying it.
	sitePlatforms := make(map[string]string)
	presence := make(map[string][]string)
	var placement strings.Builder
	for _, p := range pages {
		f := ExtractFeatures(p.URL, p.HTML)
		names := make([]string, 0, len(f.SocialLinks))
		for platform, href := range f.SocialLinks {
			if _, ok := sitePlatforms[platform]; !ok {
				sitePlatforms[platform] = href
			}
			presence[platform] = append(presence[platform], p.URL)
			names = append(names, platform)
		}
		sort.Strings(names)
		if len(names) == 0 {
			fmt.Fprintf(&placement, "%s: no social links\n", p.URL)
		} else {
			fmt.Fprintf(&placement, "%s: %s\n", p.URL, strings.Join(names, ", "))
		}
	}

	// Inconsistent integration: a platform linked on some analyzed pages but
	// not others.
	var inconsistent []string
	for platform, pagesWith := range presence {
		if len(pagesWith) > 0 && len(pagesWith) < len(pages) {
			inconsistent = append(inconsistent, platform)
		}
	}
	sort.Strings(inconsistent)

	var siteProfiles strings.Builder
	platforms := make([]string, 0, len(sitePlatforms))
	for p := range sitePlatforms {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)
	for _, p := range platforms {
		fmt.Fprintf(&siteProfiles, "%s: %s\n", p, sitePlatforms[p])
	}
	if siteProfiles.Len() == 0 {
		siteProfiles.WriteString("(none found)")
	}

	var external strings.Builder
	for _, p := range input.SocialProfiles {
		fmt.Fprintf(&external, "%s: %s (followers: %d, last post: %s)\n", p.Platform, p.URL, p.Followers, p.LastPost)
	}
	if external.Len() == 0 {
		external.WriteString("(none supplied)")
	}

	prompt, err := a.catalog.Load(prompts.SocialPresence, map[string]string{
		"company":           input.Target.Name,
		"industry":          input.Target.Industry,
		"url":               input.TargetURL,
		"site_profiles":     siteProfiles.String(),
		"external_profiles": external.String(),
		"placement_notes":   placement.String(),
	})
	if err != nil {
		return errorResult(domain.ModuleSocial, err)
	}

	var resp socialResponse
	result, err := a.llm.CallJSON(ctx, llm.Request{
		Model:       prompt.Model,
		System:      prompt.System,
		User:        prompt.User,
		Temperature: prompt.Temperature,
	}, &resp)
	if err != nil {
		return errorResult(domain.ModuleSocial, err)
	}
	if !validScore(resp.Score) {
		return errorResult(domain.ModuleSocial, fmt.Errorf("social score out of range: %d", resp.Score))
	}

	out := domain.ModuleResult{
		Module:    domain.ModuleSocial,
		Score:     resp.Score,
		Usage:     result.Usage,
		CostUnits: result.Cost,
	}

	if len(inconsistent) > 0 {
		out.Findings = append(out.Findings, domain.Finding{
			Module:         domain.ModuleSocial,
			Category:       "integration",
			Title:          "Inconsistent social media integration",
			Description:    fmt.Sprintf("Links to %s appear on some pages but not others.", strings.Join(inconsistent, ", ")),
			Impact:         "Visitors on the unlinked pages never find the business's social presence.",
			Recommendation: "Put the social links in a shared footer so every page carries them.",
			Severity:       domain.SeverityLow,
			Priority:       domain.PriorityLow,
			Difficulty:     domain.DifficultyQuickWin,
			Viewport:       domain.ViewportNone,
			SourceModule:   domain.ModuleSocial,
			SourceType:     "social-integration",
		})
	}

	for _, issue := range resp.Issues {
		severity := severityOf(issue.Severity)
		category := issue.Category
		if category == "" {
			category = "presence"
		}
		out.Findings = append(out.Findings, domain.Finding{
			Module:         domain.ModuleSocial,
			Category:       category,
			Title:          issue.Title,
			Description:    issue.Description,
			Impact:         issue.Impact,
			Recommendation: issue.Recommendation,
			Severity:       severity,
			Priority:       priorityForSeverity(severity),
			Difficulty:     difficultyOf(issue.Difficulty),
			Viewport:       domain.ViewportNone,
			SourceModule:   domain.ModuleSocial,
			SourceType:     "social-" + category,
		})
	}

	for _, p := range resp.Positives {
		out.Positives = append(out.Positives, domain.Positive{Text: p})
	}

	return out
}

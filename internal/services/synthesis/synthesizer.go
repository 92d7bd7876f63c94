// Package synthesis deduplicates findings across modules into consolidated
// issues and produces the executive summary.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sitegrader/sitegrader/internal/domain"
	"github.com/sitegrader/sitegrader/internal/llm"
	"github.com/sitegrader/sitegrader/internal/prompts"
)

// Config tunes synthesis.
type Config struct {
	// SimilarityThreshold is the Jaccard keyword overlap at which two
	// findings cluster. Empirical; configurable on purpose.
	SimilarityThreshold float64

	// SummaryTimeout bounds the executive summary LLM call; on expiry a
	// deterministic template summary substitutes.
	SummaryTimeout time.Duration

	// MaxImpactCalls bounds per-cluster business impact LLM calls; clusters
	// beyond it get deterministic impact text.
	MaxImpactCalls int
}

// DefaultConfig returns the documented synthesis defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.55,
		SummaryTimeout:      90 * time.Second,
		MaxImpactCalls:      8,
	}
}

// Input is the read-view synthesis consumes.
type Input struct {
	Target        domain.Company
	TargetURL     string
	ModuleResults map[domain.Module]domain.ModuleResult
	Benchmark     *domain.BenchmarkMatch
}

// Synthesizer folds module findings into consolidated issues plus an
// executive summary.
type Synthesizer struct {
	llm     llm.Client
	catalog *prompts.Catalog
	config  Config
	logger  *zap.Logger
}

// New creates a Synthesizer.
func New(client llm.Client, catalog *prompts.Catalog, config Config, logger *zap.Logger) *Synthesizer {
	if config.SimilarityThreshold == 0 {
		config = DefaultConfig()
	}
	return &Synthesizer{llm: client, catalog: catalog, config: config, logger: logger}
}

// Synthesize is never fatal: LLM failures degrade to deterministic impact
// text and the template summary.
func (s *Synthesizer) Synthesize(ctx context.Context, input Input) *domain.SynthesisResult {
	findings := collectFindings(input.ModuleResults)
	clusters := s.cluster(findings)

	issues := make([]domain.ConsolidatedIssue, len(clusters))
	for i, c := range clusters {
		issues[i] = s.consolidate(ctx, c, i < s.config.MaxImpactCalls)
	}

	summary := s.executiveSummary(ctx, input, issues)

	return &domain.SynthesisResult{
		ConsolidatedIssues: issues,
		Summary:            summary,
	}
}

// collectFindings flattens module results in module order, skipping the
// self-describing error findings of failed modules.
func collectFindings(results map[domain.Module]domain.ModuleResult) []domain.Finding {
	var out []domain.Finding
	for _, m := range domain.AllModules {
		r, ok := results[m]
		if !ok {
			continue
		}
		for _, f := range r.Findings {
			if f.SourceType == "analysis-error" {
				continue
			}
			out = append(out, f)
		}
	}
	return out
}

// cluster groups near-duplicate findings: same source type with title plus
// description keyword similarity at or over the threshold, or same category
// with title keyword similarity at or over the threshold.
func (s *Synthesizer) cluster(findings []domain.Finding) [][]domain.Finding {
	var clusters [][]domain.Finding

next:
	for _, f := range findings {
		for i, c := range clusters {
			if s.belongs(f, c) {
				clusters[i] = append(clusters[i], f)
				continue next
			}
		}
		clusters = append(clusters, []domain.Finding{f})
	}

	// Stable order: max severity desc, then first-seen module order.
	sort.SliceStable(clusters, func(i, j int) bool {
		si, sj := maxSeverity(clusters[i]), maxSeverity(clusters[j])
		if si.Rank() != sj.Rank() {
			return si.Rank() > sj.Rank()
		}
		return clusters[i][0].OrderKey() < clusters[j][0].OrderKey()
	})

	return clusters
}

func (s *Synthesizer) belongs(f domain.Finding, cluster []domain.Finding) bool {
	for _, member := range cluster {
		titleSim := jaccard(keywords(f.Title+" "+f.Description), keywords(member.Title+" "+member.Description))
		if f.SourceType == member.SourceType && titleSim >= s.config.SimilarityThreshold {
			return true
		}
		if f.Category == member.Category && jaccard(keywords(f.Title), keywords(member.Title)) >= s.config.SimilarityThreshold {
			return true
		}
	}
	return false
}

// consolidate merges one cluster: longest description, max severity, union
// of evidence refs and source modules, LLM-written business impact when
// budget allows.
func (s *Synthesizer) consolidate(ctx context.Context, cluster []domain.Finding, useLLM bool) domain.ConsolidatedIssue {
	issue := domain.ConsolidatedIssue{
		Title:    cluster[0].Title,
		Category: cluster[0].Category,
		Severity: maxSeverity(cluster),
		Members:  cluster,
	}

	evidenceSeen := make(map[string]bool)
	moduleSeen := make(map[domain.Module]bool)
	pageSeen := make(map[string]bool)
	for _, f := range cluster {
		if len(f.Description) > len(issue.Description) {
			issue.Description = f.Description
		}
		for _, ref := range f.EvidenceRefs {
			if !evidenceSeen[ref] {
				evidenceSeen[ref] = true
				issue.EvidenceRefs = append(issue.EvidenceRefs, ref)
			}
		}
		if !moduleSeen[f.SourceModule] {
			moduleSeen[f.SourceModule] = true
			issue.SourceModules = append(issue.SourceModules, f.SourceModule)
		}
		for _, p := range f.AffectedPages {
			if !pageSeen[p] {
				pageSeen[p] = true
				issue.AffectedPages = append(issue.AffectedPages, p)
			}
		}
	}

	issue.BusinessImpact = s.businessImpact(ctx, cluster, useLLM)
	return issue
}

func (s *Synthesizer) businessImpact(ctx context.Context, cluster []domain.Finding, useLLM bool) string {
	fallback := cluster[0].Impact
	for _, f := range cluster {
		if len(f.Impact) > len(fallback) {
			fallback = f.Impact
		}
	}

	if !useLLM {
		return fallback
	}

	var members strings.Builder
	for _, f := range cluster {
		fmt.Fprintf(&members, "- [%s/%s] %s: %s\n", f.SourceModule, f.Severity, f.Title, f.Description)
	}

	prompt, err := s.catalog.Load(prompts.SynthesisImpact, map[string]string{"members": members.String()})
	if err != nil {
		return fallback
	}

	var out struct {
		BusinessImpact string `json:"businessImpact"`
	}
	if _, err := s.llm.CallJSON(ctx, llm.Request{
		Model:       prompt.Model,
		System:      prompt.System,
		User:        prompt.User,
		Temperature: prompt.Temperature,
	}, &out); err != nil || out.BusinessImpact == "" {
		return fallback
	}
	return out.BusinessImpact
}

// executiveSummary runs the summary LLM call under its own deadline; timeout
// or failure substitutes the deterministic template.
func (s *Synthesizer) executiveSummary(ctx context.Context, input Input, issues []domain.ConsolidatedIssue) domain.ExecutiveSummary {
	summaryCtx, cancel := context.WithTimeout(ctx, s.config.SummaryTimeout)
	defer cancel()

	var scores strings.Builder
	for _, m := range domain.AllModules {
		if r, ok := input.ModuleResults[m]; ok {
			fmt.Fprintf(&scores, "%s: %d\n", m, r.Score)
		}
	}

	var issueText strings.Builder
	for i, issue := range issues {
		if i == 12 {
			break
		}
		fmt.Fprintf(&issueText, "- [%s] %s — %s\n", issue.Severity, issue.Title, issue.BusinessImpact)
	}

	benchmarkText := "(no benchmark available)"
	if input.Benchmark != nil {
		benchmarkText = fmt.Sprintf("%s (%s, %s tier): %s",
			input.Benchmark.CompanyName, input.Benchmark.Industry, input.Benchmark.ComparisonTier, input.Benchmark.MatchReasoning)
	}

	prompt, err := s.catalog.Load(prompts.SynthesisExecutive, map[string]string{
		"company":   input.Target.Name,
		"industry":  input.Target.Industry,
		"url":       input.TargetURL,
		"scores":    scores.String(),
		"issues":    issueText.String(),
		"benchmark": benchmarkText,
	})
	if err != nil {
		return s.templateSummary(input, issues)
	}

	var out struct {
		Headline            string   `json:"headline"`
		Overview            string   `json:"overview"`
		CriticalFindings    []string `json:"criticalFindings"`
		Roadmap30           []string `json:"roadmap30"`
		Roadmap60           []string `json:"roadmap60"`
		Roadmap90           []string `json:"roadmap90"`
		ROIStatement        string   `json:"roiStatement"`
		CompetitivePosition string   `json:"competitivePosition"`
		MarketOpportunity   string   `json:"marketOpportunity"`
		CallToAction        string   `json:"callToAction"`
	}
	if _, err := s.llm.CallJSON(summaryCtx, llm.Request{
		Model:       prompt.Model,
		System:      prompt.System,
		User:        prompt.User,
		Temperature: prompt.Temperature,
		Timeout:     s.config.SummaryTimeout,
	}, &out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(summaryCtx.Err(), context.DeadlineExceeded) {
			s.logger.Warn("executive summary timed out, using template")
		} else {
			s.logger.Warn("executive summary failed, using template", zap.Error(err))
		}
		return s.templateSummary(input, issues)
	}

	return domain.ExecutiveSummary{
		Headline:            out.Headline,
		Overview:            out.Overview,
		CriticalFindings:    out.CriticalFindings,
		Roadmap30:           out.Roadmap30,
		Roadmap60:           out.Roadmap60,
		Roadmap90:           out.Roadmap90,
		ROIStatement:        out.ROIStatement,
		CompetitivePosition: out.CompetitivePosition,
		MarketOpportunity:   out.MarketOpportunity,
		CallToAction:        out.CallToAction,
	}
}

// templateSummary is the deterministic fallback derived from scores and the
// top three consolidated issues.
func (s *Synthesizer) templateSummary(input Input, issues []domain.ConsolidatedIssue) domain.ExecutiveSummary {
	total, count := 0, 0
	for _, r := range input.ModuleResults {
		total += r.Score
		count++
	}
	mean := 0
	if count > 0 {
		mean = total / count
	}

	summary := domain.ExecutiveSummary{
		Headline: fmt.Sprintf("%s's website scores %d/100 across %d audit dimensions", input.Target.Name, mean, count),
		Overview: fmt.Sprintf("The audit of %s reviewed design, search visibility, content, social integration, accessibility, and performance. %d consolidated issues were identified.", input.TargetURL, len(issues)),
		ROIStatement: "Addressing the highest-severity issues typically recovers lost traffic and conversions within one to two quarters.",
		CallToAction: "Start with the quick wins below, then schedule the larger fixes.",
		Template:     true,
	}

	for i, issue := range issues {
		if i == 3 {
			break
		}
		summary.CriticalFindings = append(summary.CriticalFindings, fmt.Sprintf("%s (%s)", issue.Title, issue.Severity))
	}

	for _, issue := range issues {
		bucket := &summary.Roadmap90
		for _, m := range issue.Members {
			if m.Difficulty == domain.DifficultyQuickWin {
				bucket = &summary.Roadmap30
				break
			} else if m.Difficulty == domain.DifficultyMedium {
				bucket = &summary.Roadmap60
			}
		}
		if len(*bucket) < 4 {
			*bucket = append(*bucket, issue.Title)
		}
	}

	if input.Benchmark != nil {
		summary.CompetitivePosition = fmt.Sprintf("Compared against %s, a %s-tier benchmark in %s.",
			input.Benchmark.CompanyName, input.Benchmark.ComparisonTier, input.Benchmark.Industry)
	}

	return summary
}

func maxSeverity(cluster []domain.Finding) domain.Severity {
	max := cluster[0].Severity
	for _, f := range cluster {
		if f.Severity.Rank() > max.Rank() {
			max = f.Severity
		}
	}
	return max
}

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "on": true, "in": true,
	"to": true, "for": true, "and": true, "or": true, "is": true, "are": true,
	"with": true, "without": true, "no": true, "not": true, "page": true,
	"pages": true, "site": true, "website": true,
}

func keywords(text string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(w) < 3 || stopwords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

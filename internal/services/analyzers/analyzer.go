// Package analyzers holds the per-module analyzers. Every analyzer consumes
// structured page inputs and produces a typed ModuleResult; failures are
// isolated into the result, never thrown.
package analyzers

import (
	"context"
	"fmt"

	"github.com/sitegrader/sitegrader/internal/domain"
)

// Input is the read-view an analyzer receives: the captures for its selected
// pages plus the accumulated run context it may consult.
type Input struct {
	Target    domain.Company
	TargetURL string
	Discovery *domain.DiscoveryResult
	Selection *domain.PageSelection
	Captures  []domain.Capture
	Benchmark *domain.BenchmarkMatch
	Options   domain.RunOptions

	// RunDir is the run-scoped artifact directory (screenshot sections).
	RunDir string

	// CrossPage is non-nil only for the sequential visual path.
	CrossPage *CrossPageBuilder

	// SocialProfiles are externally supplied profiles, authoritative for
	// follower counts when present.
	SocialProfiles []ExternalProfile
}

// Analyzer is the uniform module contract. Analyze never returns an error:
// failures become a ModuleResult with Error set, the module's fallback score,
// and one self-describing error finding.
type Analyzer interface {
	Module() domain.Module
	Analyze(ctx context.Context, input Input) domain.ModuleResult
}

// fallbackScores are the documented per-module scores used when a module
// errors out. LLM-interpreted modules fall back to 50 (inconclusive);
// signal-driven modules fall back to 30 (the signals themselves failed).
var fallbackScores = map[domain.Module]int{
	domain.ModuleVisual:        50,
	domain.ModuleSEO:           50,
	domain.ModuleContent:       50,
	domain.ModuleSocial:        30,
	domain.ModuleAccessibility: 30,
	domain.ModulePerformance:   30,
}

// FallbackScore returns the documented fallback for a module.
func FallbackScore(m domain.Module) int {
	if s, ok := fallbackScores[m]; ok {
		return s
	}
	return 30
}

// errorResult builds the contract-mandated failure envelope for a module.
func errorResult(m domain.Module, err error) domain.ModuleResult {
	return domain.ModuleResult{
		Module: m,
		Score:  FallbackScore(m),
		Error:  err.Error(),
		Findings: []domain.Finding{{
			Module:       m,
			Category:     "analysis-error",
			Title:        fmt.Sprintf("%s analysis could not be completed", m),
			Description:  err.Error(),
			Impact:       "This area was scored with a conservative fallback value.",
			Severity:     domain.SeverityLow,
			Priority:     domain.PriorityLow,
			Difficulty:   domain.DifficultyUnknown,
			Viewport:     domain.ViewportNone,
			SourceModule: m,
			SourceType:   "analysis-error",
		}},
	}
}

// clampScore bounds an LLM-reported score to [0,100].
func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// validScore reports whether an LLM-reported score is in range.
func validScore(s int) bool {
	return s >= 0 && s <= 100
}

// severityOf maps a free-form severity string to the enum, defaulting to
// medium for anything unrecognized.
func severityOf(s string) domain.Severity {
	switch domain.Severity(s) {
	case domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow:
		return domain.Severity(s)
	}
	return domain.SeverityMedium
}

// difficultyOf maps a free-form difficulty string to the enum.
func difficultyOf(s string) domain.Difficulty {
	switch domain.Difficulty(s) {
	case domain.DifficultyQuickWin, domain.DifficultyMedium, domain.DifficultyMajor:
		return domain.Difficulty(s)
	}
	return domain.DifficultyUnknown
}

// priorityForSeverity derives a default priority when the model does not
// supply one.
func priorityForSeverity(s domain.Severity) domain.Priority {
	switch s {
	case domain.SeverityCritical:
		return domain.PriorityCritical
	case domain.SeverityHigh:
		return domain.PriorityHigh
	case domain.SeverityMedium:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

// Package grading computes the deterministic composite grade from module
// scores and a handful of binary context flags.
package grading

import (
	"math"
	"sort"

	"github.com/sitegrader/sitegrader/internal/domain"
)

// moduleWeights is the documented composite split. A missing module's weight
// is redistributed proportionally across the present ones.
var moduleWeights = map[domain.Module]float64{
	domain.ModuleVisual:        0.25,
	domain.ModuleSEO:           0.25,
	domain.ModulePerformance:   0.20,
	domain.ModuleContent:       0.15,
	domain.ModuleAccessibility: 0.10,
	domain.ModuleSocial:        0.05,
}

// Fixed adjustment magnitudes.
const (
	quickWinBonusThreshold = 3
	quickWinBonusPoints    = 3

	notMobileFriendlyPenalty = 8
	noHTTPSPenalty           = 10
	notAccessiblePenalty     = 5
)

// Grader computes GradeResults. It is stateless and never fails on valid
// input.
type Grader struct{}

// New creates a Grader.
func New() *Grader {
	return &Grader{}
}

// Grade computes the weighted composite, letter, adjustments, quick wins and
// top issue from the module results and context flags.
func (g *Grader) Grade(results map[domain.Module]domain.ModuleResult, flags domain.GradeFlags) *domain.GradeResult {
	out := &domain.GradeResult{
		SubScores: make(map[domain.Module]int),
	}

	// Redistribute absent modules' weight proportionally.
	presentWeight := 0.0
	for m, w := range moduleWeights {
		if _, ok := results[m]; ok {
			presentWeight += w
		}
	}

	base := 0.0
	if presentWeight > 0 {
		for m, r := range results {
			w, ok := moduleWeights[m]
			if !ok {
				continue
			}
			out.SubScores[m] = r.Score
			base += (w / presentWeight) * float64(r.Score)
		}
	}

	score := base

	quickWins := collectQuickWins(results)
	out.QuickWins = quickWins
	if len(quickWins) >= quickWinBonusThreshold {
		out.Bonuses = append(out.Bonuses, domain.GradeAdjustment{
			Label:  "Multiple quick wins available",
			Points: quickWinBonusPoints,
		})
		score += quickWinBonusPoints
	}

	if !flags.IsMobileFriendly {
		out.Penalties = append(out.Penalties, domain.GradeAdjustment{
			Label:  "Not mobile friendly",
			Points: -notMobileFriendlyPenalty,
		})
		score -= notMobileFriendlyPenalty
	}
	if !flags.HasHTTPS {
		out.Penalties = append(out.Penalties, domain.GradeAdjustment{
			Label:  "No HTTPS",
			Points: -noHTTPSPenalty,
		})
		score -= noHTTPSPenalty
	}
	if !flags.SiteAccessible {
		out.Penalties = append(out.Penalties, domain.GradeAdjustment{
			Label:  "Site not reliably accessible",
			Points: -notAccessiblePenalty,
		})
		score -= notAccessiblePenalty
	}

	out.OverallScore = clamp(int(math.Round(score)))
	out.Letter = LetterFor(out.OverallScore)
	out.TopIssue = topIssue(results)

	return out
}

// LetterFor applies the documented thresholds: A >= 85, B 70-84, C 55-69,
// D 40-54, F below 40.
func LetterFor(score int) domain.Letter {
	switch {
	case score >= 85:
		return domain.GradeA
	case score >= 70:
		return domain.GradeB
	case score >= 55:
		return domain.GradeC
	case score >= 40:
		return domain.GradeD
	default:
		return domain.GradeF
	}
}

// collectQuickWins gathers every quick-win finding ordered by severity desc,
// then module order.
func collectQuickWins(results map[domain.Module]domain.ModuleResult) []domain.Finding {
	var wins []domain.Finding
	for _, m := range domain.AllModules {
		r, ok := results[m]
		if !ok {
			continue
		}
		for _, f := range r.Findings {
			if f.Difficulty == domain.DifficultyQuickWin {
				wins = append(wins, f)
			}
		}
	}

	sort.SliceStable(wins, func(i, j int) bool {
		if wins[i].Severity.Rank() != wins[j].Severity.Rank() {
			return wins[i].Severity.Rank() > wins[j].Severity.Rank()
		}
		return wins[i].OrderKey() < wins[j].OrderKey()
	})

	return wins
}

// topIssue picks the highest (severity, priority) finding; ties break on the
// documented module order.
func topIssue(results map[domain.Module]domain.ModuleResult) *domain.Finding {
	var top *domain.Finding
	for _, m := range domain.AllModules {
		r, ok := results[m]
		if !ok {
			continue
		}
		for i := range r.Findings {
			f := &r.Findings[i]
			if f.SourceType == "analysis-error" {
				continue
			}
			if top == nil || outranks(f, top) {
				top = f
			}
		}
	}
	return top
}

func outranks(a, b *domain.Finding) bool {
	if a.Severity.Rank() != b.Severity.Rank() {
		return a.Severity.Rank() > b.Severity.Rank()
	}
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() > b.Priority.Rank()
	}
	return a.OrderKey() < b.OrderKey()
}

func clamp(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

package domain

import "time"

// BenchmarkTier classifies how a benchmark record was sourced.
type BenchmarkTier string

const (
	TierManual   BenchmarkTier = "manual"
	TierRegional BenchmarkTier = "regional"
	TierNational BenchmarkTier = "national"
)

// ComparisonTier describes the relation between a target and its benchmark.
type ComparisonTier string

const (
	TierAspirational ComparisonTier = "aspirational"
	TierPeer         ComparisonTier = "peer"
	TierCompetitive  ComparisonTier = "competitive"
)

// BenchmarkRecord is a reference site previously analyzed in benchmark mode.
// Its strengths and screenshots are cached resources: re-analysis of the same
// benchmark reuses them instead of re-capturing.
type BenchmarkRecord struct {
	ID          string              `json:"id" db:"id"`
	CompanyName string              `json:"company_name" db:"company_name"`
	URL         string              `json:"url" db:"url"`
	Industry    string              `json:"industry" db:"industry"`
	Location    string              `json:"location,omitempty" db:"location"`
	Tier        BenchmarkTier       `json:"tier" db:"tier"`
	Scores      map[string]int      `json:"scores"`
	Strengths   map[string][]string `json:"strengths"`
	Screenshots ScreenshotSet       `json:"screenshots"`
	AnalyzedAt  time.Time           `json:"analyzed_at" db:"analyzed_at"`
}

// BenchmarkMatch is the best-fit benchmark for a target plus the comparison
// context the matcher derived.
type BenchmarkMatch struct {
	ID             string              `json:"id"`
	CompanyName    string              `json:"company_name"`
	URL            string              `json:"url"`
	Industry       string              `json:"industry"`
	Tier           BenchmarkTier       `json:"tier"`
	MatchScore     int                 `json:"match_score"`
	ComparisonTier ComparisonTier      `json:"comparison_tier"`
	MatchReasoning string              `json:"match_reasoning"`
	Similarities   []string            `json:"similarities"`
	Differences    []string            `json:"differences"`
	Scores         map[string]int      `json:"scores"`
	Strengths      map[string][]string `json:"strengths"`
}

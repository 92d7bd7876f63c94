package domain

// Module identifies an analyzer module.
type Module string

const (
	ModuleVisual        Module = "visual"
	ModuleSEO           Module = "seo"
	ModuleContent       Module = "content"
	ModuleSocial        Module = "social"
	ModuleAccessibility Module = "accessibility"
	ModulePerformance   Module = "performance"
)

// AllModules lists every analyzer module in registration order.
var AllModules = []Module{
	ModuleVisual,
	ModuleSEO,
	ModuleContent,
	ModuleSocial,
	ModuleAccessibility,
	ModulePerformance,
}

// Severity ranks how damaging a finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank returns a numeric rank for ordering (higher is worse).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Priority ranks how urgently a finding should be addressed.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank returns a numeric rank for ordering (higher is more urgent).
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Difficulty estimates the effort to fix a finding.
type Difficulty string

const (
	DifficultyQuickWin Difficulty = "quick-win"
	DifficultyMedium   Difficulty = "medium"
	DifficultyMajor    Difficulty = "major"
	DifficultyUnknown  Difficulty = "unknown"
)

// Viewport identifies which rendering of a page a finding applies to.
type Viewport string

const (
	ViewportDesktop    Viewport = "desktop"
	ViewportMobile     Viewport = "mobile"
	ViewportResponsive Viewport = "responsive"
	ViewportBoth       Viewport = "both"
	ViewportNone       Viewport = "n/a"
)

// Finding is the universal analyzer output: one atomic issue about one or
// more pages.
type Finding struct {
	Module         Module     `json:"module"`
	Category       string     `json:"category"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Impact         string     `json:"impact"`
	Recommendation string     `json:"recommendation"`
	Severity       Severity   `json:"severity"`
	Priority       Priority   `json:"priority"`
	Difficulty     Difficulty `json:"difficulty"`
	Viewport       Viewport   `json:"viewport,omitempty"`

	// AffectedPages is empty for site-wide findings.
	AffectedPages []string `json:"affected_pages,omitempty"`

	// EvidenceRefs point into screenshot sections or DOM locations.
	EvidenceRefs []string `json:"evidence_refs,omitempty"`

	SourceModule Module `json:"source_module"`
	SourceType   string `json:"source_type"`
}

// moduleOrder is the documented tie-break order for grading: a finding from
// an earlier entry outranks an equal finding from a later one.
var moduleOrder = map[string]int{
	"accessibility":  0,
	"performance":    1,
	"seo":            2,
	"visual-mobile":  3,
	"visual-desktop": 4,
	"content":        5,
	"social":         6,
}

// OrderKey returns the module-order rank used to break severity ties. Visual
// findings are split by viewport; unknown combinations sort last.
func (f Finding) OrderKey() int {
	key := string(f.Module)
	if f.Module == ModuleVisual {
		switch f.Viewport {
		case ViewportMobile:
			key = "visual-mobile"
		default:
			key = "visual-desktop"
		}
	}
	if rank, ok := moduleOrder[key]; ok {
		return rank
	}
	return len(moduleOrder)
}

// Positive records something a page does well.
type Positive struct {
	Page string `json:"page,omitempty"`
	Text string `json:"text"`
}

// Usage tracks LLM token consumption for a module.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another usage record.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// ModuleResult is the per-analyzer envelope. If Error is set, Score holds the
// module's documented fallback and Findings may contain one self-describing
// error finding.
type ModuleResult struct {
	Module    Module         `json:"module"`
	Score     int            `json:"score"`
	Findings  []Finding      `json:"findings"`
	Positives []Positive     `json:"positives,omitempty"`
	SubScores map[string]int `json:"sub_scores,omitempty"`

	// Strengths holds per-dimension strength notes, populated in benchmark
	// mode for later comparison context.
	Strengths map[string][]string `json:"strengths,omitempty"`

	CostUnits float64 `json:"cost_units"`
	ModelID   string  `json:"model_id,omitempty"`
	Usage     Usage   `json:"usage"`
	Error     string  `json:"error,omitempty"`
}

// Failed reports whether the module errored out.
func (r ModuleResult) Failed() bool {
	return r.Error != ""
}

// ConsolidatedIssue is a cluster of near-duplicate findings from one or more
// modules, produced by the synthesis stage.
type ConsolidatedIssue struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	Severity       Severity  `json:"severity"`
	BusinessImpact string    `json:"business_impact"`
	EvidenceRefs   []string  `json:"evidence_refs,omitempty"`
	SourceModules  []Module  `json:"source_modules"`
	Members        []Finding `json:"members"`
	AffectedPages  []string  `json:"affected_pages,omitempty"`
}

// ExecutiveSummary is the synthesis stage's narrative output.
type ExecutiveSummary struct {
	Headline            string   `json:"headline"`
	Overview            string   `json:"overview"`
	CriticalFindings    []string `json:"critical_findings"`
	Roadmap30           []string `json:"roadmap_30"`
	Roadmap60           []string `json:"roadmap_60"`
	Roadmap90           []string `json:"roadmap_90"`
	ROIStatement        string   `json:"roi_statement"`
	CompetitivePosition string   `json:"competitive_position,omitempty"`
	MarketOpportunity   string   `json:"market_opportunity,omitempty"`
	CallToAction        string   `json:"call_to_action"`

	// Template is true when the summary was produced by the deterministic
	// fallback instead of the LLM.
	Template bool `json:"template,omitempty"`
}

// SynthesisResult bundles the synthesis stage output.
type SynthesisResult struct {
	ConsolidatedIssues []ConsolidatedIssue `json:"consolidated_issues"`
	Summary            ExecutiveSummary    `json:"executive_summary"`
}

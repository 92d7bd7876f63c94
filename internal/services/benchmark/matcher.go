// Package benchmark picks the best-fit benchmark record for a target and
// runs the benchmark-mode pipeline that produces those records.
package benchmark

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sitegrader/sitegrader/internal/dedupe"
	"github.com/sitegrader/sitegrader/internal/domain"
	"github.com/sitegrader/sitegrader/internal/llm"
	"github.com/sitegrader/sitegrader/internal/prompts"
)

// Store is the external benchmark storage contract.
type Store interface {
	QueryByIndustry(ctx context.Context, industry string) ([]domain.BenchmarkRecord, error)
	Get(ctx context.Context, id string) (*domain.BenchmarkRecord, error)
	Save(ctx context.Context, record *domain.BenchmarkRecord) error
}

// Weights tune the deterministic candidate fit score. Defaults mirror the
// historical behavior; they are configuration, not contract.
type Weights struct {
	Industry float64
	Size     float64
	Location float64
}

// DefaultWeights returns the documented default split.
func DefaultWeights() Weights {
	return Weights{Industry: 0.50, Size: 0.25, Location: 0.25}
}

// relatedIndustries relaxes an exact-industry miss to adjacent industries.
var relatedIndustries = map[string][]string{
	"restaurant":   {"cafe", "catering", "food service", "hospitality"},
	"cafe":         {"restaurant", "bakery", "food service"},
	"plumbing":     {"hvac", "electrical", "home services", "contractor"},
	"hvac":         {"plumbing", "electrical", "home services"},
	"electrical":   {"plumbing", "hvac", "home services"},
	"dental":       {"medical", "healthcare", "orthodontics"},
	"medical":      {"dental", "healthcare", "clinic"},
	"legal":        {"accounting", "professional services", "consulting"},
	"accounting":   {"legal", "professional services", "financial services"},
	"real estate":  {"property management", "construction", "mortgage"},
	"fitness":      {"wellness", "sports", "health club"},
	"retail":       {"ecommerce", "consumer goods"},
	"construction": {"contractor", "real estate", "home services"},
	"salon":        {"spa", "beauty", "wellness"},
}

// Matcher selects a benchmark for a target.
type Matcher struct {
	store   Store
	llm     llm.Client
	catalog *prompts.Catalog
	weights Weights
	deduper *dedupe.Deduper
	logger  *zap.Logger
}

// NewMatcher creates a Matcher. deduper may be nil when concurrent match
// deduplication is not wanted.
func NewMatcher(store Store, client llm.Client, catalog *prompts.Catalog, weights Weights, deduper *dedupe.Deduper, logger *zap.Logger) *Matcher {
	if weights.Industry == 0 && weights.Size == 0 && weights.Location == 0 {
		weights = DefaultWeights()
	}
	return &Matcher{store: store, llm: client, catalog: catalog, weights: weights, deduper: deduper, logger: logger}
}

type scoredCandidate struct {
	record domain.BenchmarkRecord
	score  int
}

// Match picks the best benchmark for the target. Identical concurrent match
// requests share one execution through the deduper.
func (m *Matcher) Match(ctx context.Context, target domain.Company, targetURL string) (*domain.BenchmarkMatch, error) {
	if m.deduper == nil {
		return m.match(ctx, target, targetURL)
	}

	key := dedupe.StageKey("match", strings.ToLower(target.Industry), targetURL)
	result, _, err := m.deduper.Do(ctx, key, func(ctx context.Context) (any, error) {
		return m.match(ctx, target, targetURL)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.BenchmarkMatch), nil
}

func (m *Matcher) match(ctx context.Context, target domain.Company, targetURL string) (*domain.BenchmarkMatch, error) {
	industry := strings.ToLower(strings.TrimSpace(target.Industry))

	candidates, err := m.store.QueryByIndustry(ctx, industry)
	if err != nil {
		return nil, domain.ErrBenchmarkUnavailable(err)
	}

	exactIndustry := len(candidates) > 0
	if !exactIndustry {
		for _, related := range relatedIndustries[industry] {
			relatedCandidates, err := m.store.QueryByIndustry(ctx, related)
			if err != nil {
				continue
			}
			candidates = append(candidates, relatedCandidates...)
		}
	}

	if len(candidates) == 0 {
		return nil, domain.ErrBenchmarkUnavailable(fmt.Errorf("no benchmark records for industry %q or related industries", industry))
	}

	scored := make([]scoredCandidate, len(candidates))
	for i, c := range candidates {
		scored[i] = scoredCandidate{record: c, score: m.fitScore(target, c, exactIndustry)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	match, err := m.pickWithLLM(ctx, target, targetURL, scored)
	if err != nil {
		m.logger.Warn("llm benchmark pick failed, using top heuristic candidate", zap.Error(err))
		match = m.pickFallback(scored[0])
	}

	return match, nil
}

// fitScore computes the deterministic candidate fit from industry match, size
// hints (tier standing in for verified size data), and location proximity.
func (m *Matcher) fitScore(target domain.Company, c domain.BenchmarkRecord, exactIndustry bool) int {
	industryScore := 60.0
	if exactIndustry && strings.EqualFold(c.Industry, target.Industry) {
		industryScore = 100.0
	}

	sizeScore := 50.0
	switch c.Tier {
	case domain.TierManual:
		sizeScore = 90 // hand-picked comparables
	case domain.TierRegional:
		sizeScore = 70
	case domain.TierNational:
		sizeScore = 40
	}

	locationScore := 30.0
	if target.Location != "" && c.Location != "" {
		tl, cl := strings.ToLower(target.Location), strings.ToLower(c.Location)
		if tl == cl {
			locationScore = 100
		} else if strings.Contains(cl, tl) || strings.Contains(tl, cl) {
			locationScore = 70
		}
	}

	score := m.weights.Industry*industryScore + m.weights.Size*sizeScore + m.weights.Location*locationScore
	if score > 100 {
		score = 100
	}
	return int(score)
}

type llmPick struct {
	SelectedID     string   `json:"selectedId"`
	MatchScore     int      `json:"matchScore"`
	ComparisonTier string   `json:"comparisonTier"`
	MatchReasoning string   `json:"matchReasoning"`
	Similarities   []string `json:"similarities"`
	Differences    []string `json:"differences"`
}

func (m *Matcher) pickWithLLM(ctx context.Context, target domain.Company, targetURL string, scored []scoredCandidate) (*domain.BenchmarkMatch, error) {
	var sb strings.Builder
	for _, s := range scored {
		fmt.Fprintf(&sb, "id=%s name=%q industry=%s location=%q tier=%s fit=%d\n",
			s.record.ID, s.record.CompanyName, s.record.Industry, s.record.Location, s.record.Tier, s.score)
	}

	prompt, err := m.catalog.Load(prompts.BenchmarkMatch, map[string]string{
		"company":    target.Name,
		"industry":   target.Industry,
		"location":   target.Location,
		"url":        targetURL,
		"candidates": sb.String(),
	})
	if err != nil {
		return nil, err
	}

	var pick llmPick
	if _, err := m.llm.CallJSON(ctx, llm.Request{
		Model:       prompt.Model,
		System:      prompt.System,
		User:        prompt.User,
		Temperature: prompt.Temperature,
	}, &pick); err != nil {
		return nil, err
	}

	var selected *domain.BenchmarkRecord
	for i := range scored {
		if scored[i].record.ID == pick.SelectedID {
			selected = &scored[i].record
			break
		}
	}
	if selected == nil {
		return nil, fmt.Errorf("llm selected unknown benchmark id %q", pick.SelectedID)
	}
	if pick.MatchScore < 0 || pick.MatchScore > 100 {
		return nil, fmt.Errorf("llm match score out of range: %d", pick.MatchScore)
	}

	tier := domain.ComparisonTier(pick.ComparisonTier)
	switch tier {
	case domain.TierAspirational, domain.TierPeer, domain.TierCompetitive:
	default:
		return nil, fmt.Errorf("llm comparison tier invalid: %q", pick.ComparisonTier)
	}

	return &domain.BenchmarkMatch{
		ID:             selected.ID,
		CompanyName:    selected.CompanyName,
		URL:            selected.URL,
		Industry:       selected.Industry,
		Tier:           selected.Tier,
		MatchScore:     pick.MatchScore,
		ComparisonTier: tier,
		MatchReasoning: pick.MatchReasoning,
		Similarities:   pick.Similarities,
		Differences:    pick.Differences,
		Scores:         selected.Scores,
		Strengths:      selected.Strengths,
	}, nil
}

func (m *Matcher) pickFallback(top scoredCandidate) *domain.BenchmarkMatch {
	return &domain.BenchmarkMatch{
		ID:             top.record.ID,
		CompanyName:    top.record.CompanyName,
		URL:            top.record.URL,
		Industry:       top.record.Industry,
		Tier:           top.record.Tier,
		MatchScore:     top.score,
		ComparisonTier: domain.TierPeer,
		MatchReasoning: fmt.Sprintf("Highest deterministic fit score (%d) among %s-industry candidates.", top.score, top.record.Industry),
		Scores:         top.record.Scores,
		Strengths:      top.record.Strengths,
	}
}

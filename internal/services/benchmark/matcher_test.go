package benchmark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/sitegrader/sitegrader/internal/dedupe"
	"github.com/sitegrader/sitegrader/internal/domain"
	"github.com/sitegrader/sitegrader/internal/llm"
	"github.com/sitegrader/sitegrader/internal/prompts"
	"github.com/sitegrader/sitegrader/internal/services/analyzers"
)

type fakeStore struct {
	records map[string][]domain.BenchmarkRecord
	byID    map[string]*domain.BenchmarkRecord
	saved   []*domain.BenchmarkRecord
	queries int32
}

func (s *fakeStore) QueryByIndustry(ctx context.Context, industry string) ([]domain.BenchmarkRecord, error) {
	atomic.AddInt32(&s.queries, 1)
	return s.records[industry], nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (*domain.BenchmarkRecord, error) {
	if r, ok := s.byID[id]; ok {
		return r, nil
	}
	return nil, errors.New("not found")
}

func (s *fakeStore) Save(ctx context.Context, record *domain.BenchmarkRecord) error {
	s.saved = append(s.saved, record)
	return nil
}

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Call(ctx context.Context, req llm.Request) (*llm.Result, error) {
	return f.CallJSON(ctx, req, &map[string]any{})
}

func (f *fakeLLM) CallJSON(ctx context.Context, req llm.Request, out any) (*llm.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := json.Unmarshal([]byte(f.response), out); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrInvalidResponse, err)
	}
	return &llm.Result{Content: f.response}, nil
}

func restaurantStore() *fakeStore {
	return &fakeStore{
		records: map[string][]domain.BenchmarkRecord{
			"restaurant": {
				{
					ID: "bm-saladplace", CompanyName: "Salad Place", URL: "https://saladplace.example",
					Industry: "restaurant", Location: "Springfield", Tier: domain.TierManual,
					Scores:    map[string]int{"visual": 88},
					Strengths: map[string][]string{"visual": {"striking hero photography"}},
				},
				{
					ID: "bm-burgerbarn", CompanyName: "Burger Barn", URL: "https://burgerbarn.example",
					Industry: "restaurant", Tier: domain.TierNational,
				},
			},
		},
	}
}

func TestMatchLLMPath(t *testing.T) {
	client := &fakeLLM{response: `{
		"selectedId": "bm-saladplace", "matchScore": 82, "comparisonTier": "peer",
		"matchReasoning": "Same industry, similar scale.",
		"similarities": ["fast-casual"], "differences": ["larger footprint"]
	}`}

	m := NewMatcher(restaurantStore(), client, prompts.NewCatalog("m"), DefaultWeights(), nil, zap.NewNop())
	match, err := m.Match(context.Background(), domain.Company{Name: "Sweetgreen", Industry: "restaurant", Location: "Springfield"}, "https://sweetgreen.example")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}

	if match.ID != "bm-saladplace" {
		t.Errorf("id = %s", match.ID)
	}
	if match.ComparisonTier != domain.TierPeer || match.MatchScore != 82 {
		t.Errorf("tier/score = %s/%d", match.ComparisonTier, match.MatchScore)
	}
	if len(match.Strengths["visual"]) == 0 {
		t.Error("match must carry the stored strengths")
	}
	if match.Scores["visual"] != 88 {
		t.Errorf("match scores = %v", match.Scores)
	}
}

func TestMatchFallbackOnLLMFailure(t *testing.T) {
	client := &fakeLLM{err: errors.New("down")}
	m := NewMatcher(restaurantStore(), client, prompts.NewCatalog("m"), DefaultWeights(), nil, zap.NewNop())

	match, err := m.Match(context.Background(), domain.Company{Name: "Sweetgreen", Industry: "restaurant", Location: "Springfield"}, "https://sweetgreen.example")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}

	// Manual-tier, same-location candidate outranks the national one.
	if match.ID != "bm-saladplace" {
		t.Errorf("fallback picked %s", match.ID)
	}
	if match.ComparisonTier != domain.TierPeer {
		t.Errorf("fallback tier = %s", match.ComparisonTier)
	}
}

func TestMatchRejectsInvalidLLMPick(t *testing.T) {
	client := &fakeLLM{response: `{"selectedId":"bm-nonexistent","matchScore":50,"comparisonTier":"peer"}`}
	m := NewMatcher(restaurantStore(), client, prompts.NewCatalog("m"), DefaultWeights(), nil, zap.NewNop())

	match, err := m.Match(context.Background(), domain.Company{Industry: "restaurant"}, "https://x.example")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	// Unknown id falls back to the heuristic winner.
	if match.ID != "bm-saladplace" && match.ID != "bm-burgerbarn" {
		t.Errorf("match id = %s", match.ID)
	}
}

func TestMatchRelatedIndustryRelaxation(t *testing.T) {
	store := &fakeStore{
		records: map[string][]domain.BenchmarkRecord{
			"cafe": {{ID: "bm-cafe", CompanyName: "Cafe", Industry: "cafe", Tier: domain.TierRegional}},
		},
	}
	client := &fakeLLM{err: errors.New("force fallback")}
	m := NewMatcher(store, client, prompts.NewCatalog("m"), DefaultWeights(), nil, zap.NewNop())

	match, err := m.Match(context.Background(), domain.Company{Industry: "restaurant"}, "https://x.example")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if match.ID != "bm-cafe" {
		t.Errorf("related-industry candidate not used: %s", match.ID)
	}
}

func TestMatchNoCandidates(t *testing.T) {
	store := &fakeStore{records: map[string][]domain.BenchmarkRecord{}}
	m := NewMatcher(store, &fakeLLM{}, prompts.NewCatalog("m"), DefaultWeights(), nil, zap.NewNop())

	_, err := m.Match(context.Background(), domain.Company{Industry: "aerospace"}, "https://x.example")
	ae, ok := domain.AsAuditError(err)
	if !ok || ae.Code != domain.ErrCodeBenchmark {
		t.Errorf("err = %v, want BENCHMARK_UNAVAILABLE", err)
	}
}

type fakeEngine struct {
	calls int32
}

func (e *fakeEngine) CaptureAll(ctx context.Context, runID string, urls []string) ([]domain.Capture, error) {
	atomic.AddInt32(&e.calls, 1)
	return []domain.Capture{{
		URL: urls[0], FinalURL: urls[0], HTTPStatus: 200,
		Screenshots: domain.ScreenshotSet{Desktop: "/tmp/d.png", Mobile: "/tmp/m.png"},
	}}, nil
}

type fakeVisualStrengths struct {
	calls int32
}

func (v *fakeVisualStrengths) Analyze(ctx context.Context, input analyzers.Input) domain.ModuleResult {
	atomic.AddInt32(&v.calls, 1)
	return domain.ModuleResult{
		Module:    domain.ModuleVisual,
		Score:     85,
		SubScores: map[string]int{"desktop": 88, "mobile": 82},
		Positives: []domain.Positive{{Text: "striking hero photography"}},
	}
}

func TestPipelineCachesRecords(t *testing.T) {
	store := restaurantStore()
	store.byID = map[string]*domain.BenchmarkRecord{}

	engine := &fakeEngine{}
	visual := &fakeVisualStrengths{}
	p := NewPipeline(store, engine, visual, t.TempDir(), zap.NewNop())

	company := domain.Company{Name: "Salad Place", Industry: "Restaurant"}
	first, err := p.BuildRecord(context.Background(), company, "https://saladplace.example", domain.TierManual, false)
	if err != nil {
		t.Fatalf("BuildRecord: %v", err)
	}
	if first.Industry != "restaurant" {
		t.Errorf("industry not normalized: %s", first.Industry)
	}
	if len(store.saved) != 1 {
		t.Fatalf("saved = %d", len(store.saved))
	}

	// Second run with force=false hits the cached record: no capture, no
	// vision call.
	store.byID[first.ID] = first
	second, err := p.BuildRecord(context.Background(), company, "https://saladplace.example", domain.TierManual, false)
	if err != nil {
		t.Fatalf("BuildRecord cached: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("cached id = %s", second.ID)
	}
	if atomic.LoadInt32(&engine.calls) != 1 {
		t.Errorf("capture calls = %d, want 1 (second run must reuse cache)", engine.calls)
	}
	if atomic.LoadInt32(&visual.calls) != 1 {
		t.Errorf("vision calls = %d, want 1", visual.calls)
	}

	// force=true re-analyzes.
	if _, err := p.BuildRecord(context.Background(), company, "https://saladplace.example", domain.TierManual, true); err != nil {
		t.Fatalf("BuildRecord forced: %v", err)
	}
	if atomic.LoadInt32(&engine.calls) != 2 {
		t.Errorf("capture calls after force = %d, want 2", engine.calls)
	}
}

func TestMatchDeduplication(t *testing.T) {
	store := restaurantStore()
	client := &fakeLLM{err: errors.New("force fallback")}
	m := NewMatcher(store, client, prompts.NewCatalog("m"), DefaultWeights(), dedupe.New(), zap.NewNop())

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			m.Match(context.Background(), domain.Company{Industry: "restaurant"}, "https://x.example")
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	// With dedupe, concurrent identical matches may collapse into fewer store
	// queries. Exact counts depend on scheduling, so assert the upper bound
	// only: at most one query per call.
	if atomic.LoadInt32(&store.queries) > 4 {
		t.Errorf("queries = %d", store.queries)
	}
}

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitegrader/sitegrader/internal/domain"
)

func TestBenchmarkRepositoryRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBenchmarkRepository(db.DB)
	ctx := context.Background()

	record := &domain.BenchmarkRecord{
		ID:          "bm-saladplace-example",
		CompanyName: "Salad Place",
		URL:         "https://saladplace.example",
		Industry:    "Restaurant",
		Location:    "Springfield",
		Tier:        domain.TierManual,
		Scores:      map[string]int{"visual": 88, "visual_desktop": 90},
		Strengths:   map[string][]string{"visual": {"striking hero photography"}},
		Screenshots: domain.ScreenshotSet{Desktop: "s3://b/d.png", Mobile: "s3://b/m.png"},
		AnalyzedAt:  time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, repo.Save(ctx, record))

	got, err := repo.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "restaurant", got.Industry, "industry stored lowercase")
	assert.Equal(t, record.Scores, got.Scores)
	assert.Equal(t, record.Strengths, got.Strengths)
	assert.Equal(t, record.Screenshots, got.Screenshots)

	byIndustry, err := repo.QueryByIndustry(ctx, "restaurant")
	require.NoError(t, err)
	require.Len(t, byIndustry, 1)
	assert.Equal(t, record.ID, byIndustry[0].ID)

	// Upsert replaces.
	record.Scores["visual"] = 92
	require.NoError(t, repo.Save(ctx, record))
	got, err = repo.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, 92, got.Scores["visual"])
}

func TestBenchmarkQueryOrdersByTier(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBenchmarkRepository(db.DB)
	ctx := context.Background()

	now := time.Now().UTC()
	for _, rec := range []*domain.BenchmarkRecord{
		{ID: "bm-national", CompanyName: "Big Co", URL: "https://big.example", Industry: "hvac", Tier: domain.TierNational, AnalyzedAt: now},
		{ID: "bm-manual", CompanyName: "Hand Picked", URL: "https://hp.example", Industry: "hvac", Tier: domain.TierManual, AnalyzedAt: now},
		{ID: "bm-regional", CompanyName: "Region Co", URL: "https://r.example", Industry: "hvac", Tier: domain.TierRegional, AnalyzedAt: now},
	} {
		require.NoError(t, repo.Save(ctx, rec))
	}

	records, err := repo.QueryByIndustry(ctx, "hvac")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "bm-manual", records[0].ID)
	assert.Equal(t, "bm-regional", records[1].ID)
	assert.Equal(t, "bm-national", records[2].ID)
}

func TestLeadAndReportRepositories(t *testing.T) {
	db := setupTestDB(t)
	leads := NewLeadRepository(db.DB)
	reports := NewReportRepository(db.DB)
	ctx := context.Background()

	runID := uuid.New()
	result := &domain.AnalysisResult{
		Status: domain.StatusCompleted,
		Context: &domain.AnalysisContext{
			RunID:     runID.String(),
			TargetURL: "https://acme.example",
			Company:   domain.Company{Name: "Acme", Industry: "tools", Location: "Springfield"},
			Grading: &domain.GradeResult{
				Letter:       domain.GradeB,
				OverallScore: 74,
				SubScores:    map[domain.Module]int{domain.ModuleSEO: 70},
				QuickWins:    []domain.Finding{{Title: "w1"}, {Title: "w2"}},
			},
			Synthesis: &domain.SynthesisResult{
				ConsolidatedIssues: []domain.ConsolidatedIssue{{Title: "i1"}, {Title: "i2"}, {Title: "i3"}},
			},
		},
	}

	leadID, err := leads.SaveFromResult(ctx, result, "")
	require.NoError(t, err)

	lead, err := leads.Get(ctx, leadID)
	require.NoError(t, err)
	assert.Equal(t, "B", lead.Letter)
	assert.Equal(t, 74, lead.OverallScore)
	assert.Equal(t, 3, lead.IssueCount)
	assert.Equal(t, 2, lead.QuickWinCount)

	reportID, err := reports.Save(ctx, leadID, runID, "s3://bucket/report.pdf", "pdf")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, reportID)

	list, err := reports.ListForLead(ctx, leadID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "pdf", list[0].Format)

	all, err := leads.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

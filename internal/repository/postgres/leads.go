package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sitegrader/sitegrader/internal/domain"
)

// Lead is a completed analysis persisted for follow-up.
type Lead struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	RunID         uuid.UUID       `db:"run_id" json:"run_id"`
	CompanyName   string          `db:"company_name" json:"company_name"`
	Industry      string          `db:"industry" json:"industry"`
	Location      string          `db:"location" json:"location"`
	TargetURL     string          `db:"target_url" json:"target_url"`
	Letter        string          `db:"letter" json:"letter"`
	OverallScore  int             `db:"overall_score" json:"overall_score"`
	SubScores     json.RawMessage `db:"sub_scores" json:"sub_scores"`
	IssueCount    int             `db:"issue_count" json:"issue_count"`
	QuickWinCount int             `db:"quick_win_count" json:"quick_win_count"`
	ReportURL     string          `db:"report_url" json:"report_url"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// LeadRepository persists leads.
type LeadRepository struct {
	db *sqlx.DB
}

// NewLeadRepository creates a LeadRepository.
func NewLeadRepository(db *sqlx.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// SaveFromResult converts a completed analysis into a lead row.
func (r *LeadRepository) SaveFromResult(ctx context.Context, result *domain.AnalysisResult, reportURL string) (uuid.UUID, error) {
	ac := result.Context
	if ac == nil || ac.Grading == nil {
		return uuid.Nil, fmt.Errorf("result has no grading to persist")
	}

	subScores, err := json.Marshal(ac.Grading.SubScores)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshaling sub scores: %w", err)
	}

	issueCount := 0
	if ac.Synthesis != nil {
		issueCount = len(ac.Synthesis.ConsolidatedIssues)
	}

	runID, err := uuid.Parse(ac.RunID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("run id is not a UUID: %w", err)
	}

	lead := Lead{
		ID:            uuid.New(),
		RunID:         runID,
		CompanyName:   ac.Company.Name,
		Industry:      ac.Company.Industry,
		Location:      ac.Company.Location,
		TargetURL:     ac.TargetURL,
		Letter:        string(ac.Grading.Letter),
		OverallScore:  ac.Grading.OverallScore,
		SubScores:     subScores,
		IssueCount:    issueCount,
		QuickWinCount: len(ac.Grading.QuickWins),
		ReportURL:     reportURL,
		CreatedAt:     time.Now().UTC(),
	}

	const query = `
		INSERT INTO leads (id, run_id, company_name, industry, location, target_url,
			letter, overall_score, sub_scores, issue_count, quick_win_count, report_url, created_at)
		VALUES (:id, :run_id, :company_name, :industry, :location, :target_url,
			:letter, :overall_score, :sub_scores, :issue_count, :quick_win_count, :report_url, :created_at)`

	if _, err := r.db.NamedExecContext(ctx, query, lead); err != nil {
		return uuid.Nil, fmt.Errorf("inserting lead: %w", err)
	}

	return lead.ID, nil
}

// Get fetches a lead by id.
func (r *LeadRepository) Get(ctx context.Context, id uuid.UUID) (*Lead, error) {
	var lead Lead
	err := r.db.GetContext(ctx, &lead, `SELECT * FROM leads WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lead %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching lead: %w", err)
	}
	return &lead, nil
}

// List returns leads newest first.
func (r *LeadRepository) List(ctx context.Context, limit int) ([]Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	var leads []Lead
	err := r.db.SelectContext(ctx, &leads, `SELECT * FROM leads ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing leads: %w", err)
	}
	return leads, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Report is a rendered report record pointing at stored output.
type Report struct {
	ID        uuid.UUID `db:"id" json:"id"`
	LeadID    uuid.UUID `db:"lead_id" json:"lead_id"`
	RunID     uuid.UUID `db:"run_id" json:"run_id"`
	URL       string    `db:"url" json:"url"`
	Format    string    `db:"format" json:"format"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ReportRepository persists report records.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository creates a ReportRepository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Save records a rendered report.
func (r *ReportRepository) Save(ctx context.Context, leadID, runID uuid.UUID, url, format string) (uuid.UUID, error) {
	report := Report{
		ID:        uuid.New(),
		LeadID:    leadID,
		RunID:     runID,
		URL:       url,
		Format:    format,
		CreatedAt: time.Now().UTC(),
	}

	const query = `
		INSERT INTO reports (id, lead_id, run_id, url, format, created_at)
		VALUES (:id, :lead_id, :run_id, :url, :format, :created_at)`

	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return uuid.Nil, fmt.Errorf("inserting report: %w", err)
	}
	return report.ID, nil
}

// ListForLead returns a lead's reports newest first.
func (r *ReportRepository) ListForLead(ctx context.Context, leadID uuid.UUID) ([]Report, error) {
	var reports []Report
	err := r.db.SelectContext(ctx, &reports,
		`SELECT * FROM reports WHERE lead_id = $1 ORDER BY created_at DESC`, leadID)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	return reports, nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sitegrader/sitegrader/internal/domain"
)

// benchmarkRow is the storage shape; JSONB columns marshal the nested maps.
type benchmarkRow struct {
	ID          string          `db:"id"`
	CompanyName string          `db:"company_name"`
	URL         string          `db:"url"`
	Industry    string          `db:"industry"`
	Location    string          `db:"location"`
	Tier        string          `db:"tier"`
	Scores      json.RawMessage `db:"scores"`
	Strengths   json.RawMessage `db:"strengths"`
	Screenshots json.RawMessage `db:"screenshots"`
	AnalyzedAt  time.Time       `db:"analyzed_at"`
}

// BenchmarkRepository implements benchmark.Store on Postgres.
type BenchmarkRepository struct {
	db *sqlx.DB
}

// NewBenchmarkRepository creates a BenchmarkRepository.
func NewBenchmarkRepository(db *sqlx.DB) *BenchmarkRepository {
	return &BenchmarkRepository{db: db}
}

// QueryByIndustry returns benchmark records for an industry, manual tier
// first.
func (r *BenchmarkRepository) QueryByIndustry(ctx context.Context, industry string) ([]domain.BenchmarkRecord, error) {
	var rows []benchmarkRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM benchmarks WHERE industry = $1
		 ORDER BY CASE tier WHEN 'manual' THEN 0 WHEN 'regional' THEN 1 ELSE 2 END, analyzed_at DESC`,
		strings.ToLower(industry))
	if err != nil {
		return nil, fmt.Errorf("querying benchmarks: %w", err)
	}

	records := make([]domain.BenchmarkRecord, 0, len(rows))
	for _, row := range rows {
		record, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

// Get fetches a benchmark record by id.
func (r *BenchmarkRepository) Get(ctx context.Context, id string) (*domain.BenchmarkRecord, error) {
	var row benchmarkRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM benchmarks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("benchmark %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching benchmark: %w", err)
	}
	return row.toDomain()
}

// Save upserts a benchmark record.
func (r *BenchmarkRepository) Save(ctx context.Context, record *domain.BenchmarkRecord) error {
	scores, err := json.Marshal(record.Scores)
	if err != nil {
		return fmt.Errorf("marshaling scores: %w", err)
	}
	strengths, err := json.Marshal(record.Strengths)
	if err != nil {
		return fmt.Errorf("marshaling strengths: %w", err)
	}
	screenshots, err := json.Marshal(record.Screenshots)
	if err != nil {
		return fmt.Errorf("marshaling screenshots: %w", err)
	}

	const query = `
		INSERT INTO benchmarks (id, company_name, url, industry, location, tier, scores, strengths, screenshots, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			company_name = EXCLUDED.company_name,
			url = EXCLUDED.url,
			industry = EXCLUDED.industry,
			location = EXCLUDED.location,
			tier = EXCLUDED.tier,
			scores = EXCLUDED.scores,
			strengths = EXCLUDED.strengths,
			screenshots = EXCLUDED.screenshots,
			analyzed_at = EXCLUDED.analyzed_at`

	_, err = r.db.ExecContext(ctx, query,
		record.ID, record.CompanyName, record.URL, strings.ToLower(record.Industry),
		record.Location, string(record.Tier), scores, strengths, screenshots, record.AnalyzedAt)
	if err != nil {
		return fmt.Errorf("upserting benchmark: %w", err)
	}
	return nil
}

func (row benchmarkRow) toDomain() (*domain.BenchmarkRecord, error) {
	record := &domain.BenchmarkRecord{
		ID:          row.ID,
		CompanyName: row.CompanyName,
		URL:         row.URL,
		Industry:    row.Industry,
		Location:    row.Location,
		Tier:        domain.BenchmarkTier(row.Tier),
		AnalyzedAt:  row.AnalyzedAt,
	}
	if err := json.Unmarshal(row.Scores, &record.Scores); err != nil {
		return nil, fmt.Errorf("unmarshaling benchmark scores: %w", err)
	}
	if err := json.Unmarshal(row.Strengths, &record.Strengths); err != nil {
		return nil, fmt.Errorf("unmarshaling benchmark strengths: %w", err)
	}
	if err := json.Unmarshal(row.Screenshots, &record.Screenshots); err != nil {
		return nil, fmt.Errorf("unmarshaling benchmark screenshots: %w", err)
	}
	return record, nil
}

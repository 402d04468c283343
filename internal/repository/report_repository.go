package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/the-outlaw-004/medai-backend/internal/model"
)

// ReportRepository is the pipeline-facing slice of report persistence.
type ReportRepository struct {
	pool *pgxpool.Pool
}

func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

// CreatePending inserts a new report row in the pending state. Called by the
// upload producer, never by the worker.
func (r *ReportRepository) CreatePending(ctx context.Context, userID uuid.UUID, filePath string) (uuid.UUID, error) {
	const q = `
INSERT INTO reports (user_id, file_path, status)
VALUES ($1, $2, 'pending')
RETURNING id;
`
	var id uuid.UUID
	if err := r.pool.QueryRow(ctx, q, userID, filePath).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("insert pending report: %w", err)
	}
	return id, nil
}

// Finalize writes the pipeline's result as a single atomic update. Running it
// again with the same arguments after a redelivered job converges on the same
// row state, which is what makes at-least-once delivery safe here.
func (r *ReportRepository) Finalize(ctx context.Context, id uuid.UUID, extractedText string, summary json.RawMessage) error {
	const q = `
UPDATE reports SET
	extracted_text = $2,
	ai_summary = $3,
	status = 'completed'
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, q, id, extractedText, summary)
	if err != nil {
		return fmt.Errorf("finalize report %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ReportRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Report, error) {
	const q = `
SELECT id, user_id, file_path, status, extracted_text, ai_summary, created_at
FROM reports
WHERE id = $1;
`
	report, err := scanReport(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return report, nil
}

func (r *ReportRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Report, error) {
	const q = `
SELECT id, user_id, file_path, status, extracted_text, ai_summary, created_at
FROM reports
WHERE user_id = $1
ORDER BY created_at DESC;
`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*model.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*model.Report, error) {
	var (
		report       model.Report
		statusText   string
		extracted    *string
		summaryBytes []byte
		createdAt    time.Time
	)
	if err := row.Scan(
		&report.ID,
		&report.UserID,
		&report.FilePath,
		&statusText,
		&extracted, // NULL => nil
		&summaryBytes,
		&createdAt,
	); err != nil {
		return nil, err
	}
	report.Status = model.ReportStatus(statusText)
	report.ExtractedText = extracted
	if summaryBytes != nil {
		report.AISummary = json.RawMessage(summaryBytes)
	}
	report.CreatedAt = createdAt
	return &report, nil
}

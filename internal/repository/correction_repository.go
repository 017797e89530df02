package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/session-attendance-api/internal/models"
)

const correctionColumns = `id, session_id, student_id, current_status, requested_status, justification, proof_url, status, reviewed_by, reviewed_at, review_comments, created_at`

// CorrectionRepository persists student correction requests.
type CorrectionRepository struct {
	db *sqlx.DB
}

// NewCorrectionRepository constructs the repository.
func NewCorrectionRepository(db *sqlx.DB) *CorrectionRepository {
	return &CorrectionRepository{db: db}
}

// Create stores a new request.
func (r *CorrectionRepository) Create(ctx context.Context, req *models.CorrectionRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO correction_requests (id, session_id, student_id, current_status, requested_status, justification, proof_url, status, created_at)
VALUES (:id, :session_id, :student_id, :current_status, :requested_status, :justification, :proof_url, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create correction request: %w", err)
	}
	return nil
}

// GetByID loads one request.
func (r *CorrectionRepository) GetByID(ctx context.Context, id string) (*models.CorrectionRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM correction_requests WHERE id = $1`, correctionColumns)
	var req models.CorrectionRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, fmt.Errorf("get correction request %s: %w", id, err)
	}
	return &req, nil
}

// List returns requests matching the filter, newest first.
func (r *CorrectionRepository) List(ctx context.Context, filter models.CorrectionFilter) ([]models.CorrectionRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM correction_requests WHERE 1=1`, correctionColumns)
	args := []interface{}{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		query += fmt.Sprintf(" AND student_id = $%d", len(args))
	}
	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		query += fmt.Sprintf(" AND session_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	var requests []models.CorrectionRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, fmt.Errorf("list correction requests: %w", err)
	}
	return requests, nil
}

// FinalizeReview records the terminal decision. The status predicate makes
// the update a compare-and-set against PENDING; zero rows affected means
// someone else reviewed first and surfaces as sql.ErrNoRows.
func (r *CorrectionRepository) FinalizeReview(ctx context.Context, id string, status models.CorrectionStatus, reviewerID string, reviewedAt time.Time, comments *string) error {
	const query = `UPDATE correction_requests
SET status = $2, reviewed_by = $3, reviewed_at = $4, review_comments = $5
WHERE id = $1 AND status = $6`
	res, err := r.db.ExecContext(ctx, query, id, status, reviewerID, reviewedAt.UTC(), comments, models.CorrectionPending)
	if err != nil {
		return fmt.Errorf("finalize correction review: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize correction review affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

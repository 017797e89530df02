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

const substituteColumns = `id, original_teacher_id, substitute_teacher_id, section, subject, date, time_label, day_code, status, assigned_by, reason, created_at, updated_at`

// SubstituteRepository persists substitute-teacher assignments.
type SubstituteRepository struct {
	db *sqlx.DB
}

// NewSubstituteRepository constructs the repository.
func NewSubstituteRepository(db *sqlx.DB) *SubstituteRepository {
	return &SubstituteRepository{db: db}
}

// Upsert stores an assignment; one per slot per date, a repeated assignment
// replaces the previous one.
func (r *SubstituteRepository) Upsert(ctx context.Context, assignment *models.SubstituteAssignment) (*models.SubstituteAssignment, error) {
	now := time.Now().UTC()
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now
	query := fmt.Sprintf(`INSERT INTO substitute_assignments
(id, original_teacher_id, substitute_teacher_id, section, subject, date, time_label, day_code, status, assigned_by, reason, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (section, date, time_label)
DO UPDATE SET original_teacher_id = EXCLUDED.original_teacher_id,
    substitute_teacher_id = EXCLUDED.substitute_teacher_id,
    subject = EXCLUDED.subject, day_code = EXCLUDED.day_code,
    status = EXCLUDED.status, assigned_by = EXCLUDED.assigned_by,
    reason = EXCLUDED.reason, updated_at = EXCLUDED.updated_at
RETURNING %s`, substituteColumns)
	var stored models.SubstituteAssignment
	err := r.db.GetContext(ctx, &stored, query,
		assignment.ID, assignment.OriginalTeacherID, assignment.SubstituteTeacherID,
		assignment.Section, assignment.Subject, assignment.Date, assignment.TimeLabel,
		assignment.DayCode, assignment.Status, assignment.AssignedBy, assignment.Reason,
		assignment.CreatedAt, assignment.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert substitute assignment: %w", err)
	}
	return &stored, nil
}

// FindBySlot returns the assignment for the exact slot and date, if any.
func (r *SubstituteRepository) FindBySlot(ctx context.Context, section string, date time.Time, timeLabel string) (*models.SubstituteAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM substitute_assignments WHERE section = $1 AND date = $2 AND time_label = $3`, substituteColumns)
	var assignment models.SubstituteAssignment
	if err := r.db.GetContext(ctx, &assignment, query, section, date, timeLabel); err != nil {
		return nil, fmt.Errorf("find substitute by slot: %w", err)
	}
	return &assignment, nil
}

// GetByID loads one assignment.
func (r *SubstituteRepository) GetByID(ctx context.Context, id string) (*models.SubstituteAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM substitute_assignments WHERE id = $1`, substituteColumns)
	var assignment models.SubstituteAssignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, fmt.Errorf("get substitute assignment %s: %w", id, err)
	}
	return &assignment, nil
}

// ListByDate returns assignments for a date, optionally scoped to a section.
func (r *SubstituteRepository) ListByDate(ctx context.Context, date time.Time, section string) ([]models.SubstituteAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM substitute_assignments WHERE date = $1`, substituteColumns)
	args := []interface{}{date}
	if section != "" {
		args = append(args, section)
		query += fmt.Sprintf(" AND section = $%d", len(args))
	}
	query += " ORDER BY time_label"
	var assignments []models.SubstituteAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, fmt.Errorf("list substitute assignments: %w", err)
	}
	return assignments, nil
}

// UpdateStatus transitions an assignment's status.
func (r *SubstituteRepository) UpdateStatus(ctx context.Context, id string, status models.SubstituteStatus) error {
	const query = `UPDATE substitute_assignments SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update substitute status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update substitute status affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

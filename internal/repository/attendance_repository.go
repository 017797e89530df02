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

const sessionColumns = `id, section, subject, date, time_label, day_code, start_time, end_time, teacher_id,
marks, is_locked, locked_at, last_modified_by, last_modified_at, override_reason, created_at, updated_at`

// AttendanceRepository persists the session ledger and its per-student
// history mirror. The mirror is always written in the same transaction as
// the ledger.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Exists reports whether a ledger record already exists for the session
// tuple. The unique index is the authoritative guard; this check only
// serves the friendly conflict message.
func (r *AttendanceRepository) Exists(ctx context.Context, key models.SessionKey) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM attendance_sessions WHERE section = $1 AND subject = $2 AND date = $3 AND time_label = $4)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, key.Section, key.Subject, key.Date, key.TimeLabel); err != nil {
		return false, fmt.Errorf("attendance exists check: %w", err)
	}
	return exists, nil
}

// Create inserts a new session record plus its mirror rows. A concurrent
// duplicate loses at the unique index and surfaces as sql.ErrNoRows.
func (r *AttendanceRepository) Create(ctx context.Context, session *models.AttendanceSession) error {
	now := time.Now().UTC()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance create: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	const insert = `INSERT INTO attendance_sessions
(id, section, subject, date, time_label, day_code, start_time, end_time, teacher_id, marks, is_locked, locked_at, last_modified_by, last_modified_at, override_reason, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (section, subject, date, time_label) DO NOTHING
RETURNING id`
	var insertedID string
	err = tx.QueryRowxContext(ctx, insert,
		session.ID, session.Section, session.Subject, session.Date, session.TimeLabel,
		session.DayCode, session.StartTime, session.EndTime, session.TeacherID,
		session.Marks, session.IsLocked, session.LockedAt,
		session.LastModifiedBy, session.LastModifiedAt, session.OverrideReason,
		session.CreatedAt, session.UpdatedAt,
	).Scan(&insertedID)
	if err != nil {
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		return fmt.Errorf("insert attendance session: %w", err)
	}

	if err := upsertHistory(ctx, tx, session); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance create: %w", err)
	}
	committed = true
	return nil
}

// GetByID loads one session record.
func (r *AttendanceRepository) GetByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_sessions WHERE id = $1`, sessionColumns)
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, fmt.Errorf("get attendance session %s: %w", id, err)
	}
	return &session, nil
}

// GetByKey loads a session record by its identifying tuple.
func (r *AttendanceRepository) GetByKey(ctx context.Context, key models.SessionKey) (*models.AttendanceSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_sessions WHERE section = $1 AND subject = $2 AND date = $3 AND time_label = $4`, sessionColumns)
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, key.Section, key.Subject, key.Date, key.TimeLabel); err != nil {
		return nil, fmt.Errorf("get attendance session by key: %w", err)
	}
	return &session, nil
}

// ListBySectionDate returns every session recorded for a section on a date.
func (r *AttendanceRepository) ListBySectionDate(ctx context.Context, section string, date time.Time) ([]models.AttendanceSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_sessions WHERE section = $1 AND date = $2 ORDER BY start_time`, sessionColumns)
	var sessions []models.AttendanceSession
	if err := r.db.SelectContext(ctx, &sessions, query, section, date); err != nil {
		return nil, fmt.Errorf("list attendance by section/date: %w", err)
	}
	return sessions, nil
}

// UpdateMarks replaces the per-student marks of a session and refreshes the
// mirror rows in the same transaction. Used by the override and
// correction-approval paths only.
func (r *AttendanceRepository) UpdateMarks(ctx context.Context, session *models.AttendanceSession) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin marks update: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	session.UpdatedAt = time.Now().UTC()
	const update = `UPDATE attendance_sessions
SET marks = $2, last_modified_by = $3, last_modified_at = $4, override_reason = $5, updated_at = $6
WHERE id = $1`
	res, err := tx.ExecContext(ctx, update, session.ID, session.Marks,
		session.LastModifiedBy, session.LastModifiedAt, session.OverrideReason, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update attendance marks: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	if err := upsertHistory(ctx, tx, session); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit marks update: %w", err)
	}
	committed = true
	return nil
}

// SetLock flips the lock flag. The is_locked predicate makes the update a
// compare-and-set: zero rows affected means the record was already in the
// requested state (or missing) and surfaces as sql.ErrNoRows.
func (r *AttendanceRepository) SetLock(ctx context.Context, id string, locked bool, at time.Time) error {
	const query = `UPDATE attendance_sessions
SET is_locked = $2, locked_at = CASE WHEN $2 THEN $3 ELSE locked_at END, updated_at = $3
WHERE id = $1 AND is_locked = NOT $2`
	res, err := r.db.ExecContext(ctx, query, id, locked, at.UTC())
	if err != nil {
		return fmt.Errorf("set attendance lock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set attendance lock affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// LockOlderThan locks every unlocked session created before the cutoff and
// returns the affected ids. Safe to run concurrently: already-locked rows
// are excluded by the filter.
func (r *AttendanceRepository) LockOlderThan(ctx context.Context, cutoff time.Time, at time.Time) ([]string, error) {
	const query = `UPDATE attendance_sessions
SET is_locked = TRUE, locked_at = $1, updated_at = $1
WHERE is_locked = FALSE AND created_at < $2
RETURNING id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, at.UTC(), cutoff.UTC()); err != nil {
		return nil, fmt.Errorf("lock sweep: %w", err)
	}
	return ids, nil
}

// StudentHistory reads the per-student mirror, newest first.
func (r *AttendanceRepository) StudentHistory(ctx context.Context, studentID string, filter models.StudentHistoryFilter) ([]models.HistoryRow, error) {
	query := `SELECT id, session_id, student_id, section, subject, date, time_label, status, marked_at
FROM attendance_history WHERE student_id = $1`
	args := []interface{}{studentID}
	if filter.Subject != "" {
		args = append(args, filter.Subject)
		query += fmt.Sprintf(" AND subject = $%d", len(args))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	query += " ORDER BY date DESC, time_label DESC"
	var rows []models.HistoryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("student attendance history: %w", err)
	}
	return rows, nil
}

// StudentSummary aggregates a student's mirror rows. A student with no
// recorded sessions yields zero counts, not an error.
func (r *AttendanceRepository) StudentSummary(ctx context.Context, studentID string, filter models.StudentHistoryFilter) (*models.AttendanceSummary, error) {
	query := `SELECT
COUNT(*) FILTER (WHERE status = 'present') AS present,
COUNT(*) FILTER (WHERE status = 'absent') AS absent,
COUNT(*) FILTER (WHERE status = 'late') AS late,
COUNT(*) AS total
FROM attendance_history WHERE student_id = $1`
	args := []interface{}{studentID}
	if filter.Subject != "" {
		args = append(args, filter.Subject)
		query += fmt.Sprintf(" AND subject = $%d", len(args))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	var summary models.AttendanceSummary
	if err := r.db.GetContext(ctx, &summary, query, args...); err != nil {
		return nil, fmt.Errorf("student attendance summary: %w", err)
	}
	return &summary, nil
}

func upsertHistory(ctx context.Context, tx *sqlx.Tx, session *models.AttendanceSession) error {
	const query = `INSERT INTO attendance_history (id, session_id, student_id, section, subject, date, time_label, status, marked_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (session_id, student_id)
DO UPDATE SET status = EXCLUDED.status, marked_at = EXCLUDED.marked_at`
	for _, mark := range session.Marks {
		if _, err := tx.ExecContext(ctx, query,
			uuid.NewString(), session.ID, mark.StudentID,
			session.Section, session.Subject, session.Date, session.TimeLabel,
			mark.Status, mark.MarkedAt,
		); err != nil {
			return fmt.Errorf("upsert history row for %s: %w", mark.StudentID, err)
		}
	}
	return nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campushq/session-attendance-api/internal/models"
)

// TimetableRepository persists validated section timetables.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs the repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// ReplaceAll upserts every section's weekly schedule in one transaction so a
// timetable upload is all-or-nothing.
func (r *TimetableRepository) ReplaceAll(ctx context.Context, timetables []models.Timetable) error {
	if len(timetables) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin timetable replace: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	const query = `INSERT INTO timetables (section, days, updated_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (section)
DO UPDATE SET days = EXCLUDED.days, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for i := range timetables {
		t := &timetables[i]
		if _, err := tx.ExecContext(ctx, query, t.Section, t.Days, t.UpdatedBy, now); err != nil {
			return fmt.Errorf("upsert timetable %s: %w", t.Section, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit timetable replace: %w", err)
	}
	committed = true
	return nil
}

// GetBySection loads one section's timetable.
func (r *TimetableRepository) GetBySection(ctx context.Context, section string) (*models.Timetable, error) {
	const query = `SELECT section, days, updated_by, created_at, updated_at FROM timetables WHERE section = $1`
	var t models.Timetable
	if err := r.db.GetContext(ctx, &t, query, section); err != nil {
		return nil, fmt.Errorf("get timetable %s: %w", section, err)
	}
	return &t, nil
}

// ListSections returns every section that has an uploaded timetable.
func (r *TimetableRepository) ListSections(ctx context.Context) ([]string, error) {
	var sections []string
	if err := r.db.SelectContext(ctx, &sections, `SELECT section FROM timetables ORDER BY section`); err != nil {
		return nil, fmt.Errorf("list timetable sections: %w", err)
	}
	return sections, nil
}

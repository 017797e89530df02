package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campushq/session-attendance-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func testSession() *models.AttendanceSession {
	return &models.AttendanceSession{
		Section:   "CS-3A",
		Subject:   "Maths",
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		TimeLabel: "9-10",
		DayCode:   models.DayMon,
		StartTime: "09:00",
		EndTime:   "10:00",
		TeacherID: "t-101",
		Marks: models.StudentMarks{
			{StudentID: "s-1", Status: models.MarkPresent, MarkedAt: time.Now().UTC()},
			{StudentID: "s-2", Status: models.MarkAbsent, MarkedAt: time.Now().UTC()},
		},
	}
}

func TestAttendanceRepositoryCreateWritesLedgerAndMirror(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	session := testSession()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_sessions")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sess-1"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_history")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_history")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), session))
	require.NotEmpty(t, session.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreateDuplicateSurfacesNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	// ON CONFLICT DO NOTHING returns no row when the unique index fires.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_sessions")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), testSession())
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	key := models.SessionKey{Section: "CS-3A", Subject: "Maths", Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), TimeLabel: "9-10"}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(key.Section, key.Subject, key.Date, key.TimeLabel).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.Exists(context.Background(), key)
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositorySetLockCompareAndSet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_sessions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetLock(context.Background(), "sess-1", true, time.Now()))

	// Already in the requested state: zero rows affected.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_sessions")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.SetLock(context.Background(), "sess-1", true, time.Now())
	require.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryLockOlderThan(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE attendance_sessions")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sess-1").AddRow("sess-2"))

	ids, err := repo.LockOlderThan(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	require.Equal(t, []string{"sess-1", "sess-2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryStudentSummaryFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"present", "absent", "late", "total"}).AddRow(8, 1, 1, 10)
	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_history")).
		WithArgs("s-1", "Maths", from).
		WillReturnRows(rows)

	summary, err := repo.StudentSummary(context.Background(), "s-1", models.StudentHistoryFilter{Subject: "Maths", DateFrom: &from})
	require.NoError(t, err)
	require.Equal(t, 8, summary.Present)
	require.Equal(t, 10, summary.Total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryUpdateMarksMissingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	session := testSession()
	session.ID = "sess-404"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_sessions")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.UpdateMarks(context.Background(), session)
	require.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

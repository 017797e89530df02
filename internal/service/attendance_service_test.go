package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/session-attendance-api/internal/models"
	appErrors "github.com/campushq/session-attendance-api/pkg/errors"
)

type recorderStub struct {
	entries []*models.AuditEntry
}

func (r *recorderStub) Record(_ context.Context, entry *models.AuditEntry) {
	r.entries = append(r.entries, entry)
}

type emitterStub struct {
	events []Event
}

func (e *emitterStub) Emit(_ context.Context, event Event) {
	e.events = append(e.events, event)
}

type mockAttendanceRepo struct {
	exists    bool
	existsErr error
	createErr error
	created   *models.AttendanceSession
	session   *models.AttendanceSession
	getErr    error
	summary   *models.AttendanceSummary
}

func (m *mockAttendanceRepo) Exists(ctx context.Context, key models.SessionKey) (bool, error) {
	return m.exists, m.existsErr
}

func (m *mockAttendanceRepo) Create(ctx context.Context, session *models.AttendanceSession) error {
	if m.createErr != nil {
		return m.createErr
	}
	session.ID = "sess-1"
	m.created = session
	return nil
}

func (m *mockAttendanceRepo) GetByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.session, nil
}

func (m *mockAttendanceRepo) GetByKey(ctx context.Context, key models.SessionKey) (*models.AttendanceSession, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.session, nil
}

func (m *mockAttendanceRepo) ListBySectionDate(ctx context.Context, section string, date time.Time) ([]models.AttendanceSession, error) {
	if m.session == nil {
		return nil, nil
	}
	return []models.AttendanceSession{*m.session}, nil
}

func (m *mockAttendanceRepo) StudentHistory(ctx context.Context, studentID string, filter models.StudentHistoryFilter) ([]models.HistoryRow, error) {
	return nil, nil
}

func (m *mockAttendanceRepo) StudentSummary(ctx context.Context, studentID string, filter models.StudentHistoryFilter) (*models.AttendanceSummary, error) {
	return m.summary, nil
}

type stubResolver struct {
	resolved     *ResolvedSession
	resolveErr   error
	authorizeErr error
}

func (s *stubResolver) Resolve(ctx context.Context, section string, at time.Time) (*ResolvedSession, error) {
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	return s.resolved, nil
}

func (s *stubResolver) Authorize(resolved *ResolvedSession, actor models.Actor) error {
	return s.authorizeErr
}

func activeResolved() *ResolvedSession {
	return &ResolvedSession{
		Section: "CS-3A",
		Date:    monday(0, 0),
		DayCode: models.DayMon,
		Slot: models.Slot{
			Label: "9-10", Start: "09:00", End: "10:00",
			Subject: "Maths", TeacherID: "t-101",
		},
		Phase:               PhaseActive,
		AuthorizedTeacherID: "t-101",
	}
}

func teacherActor() models.Actor {
	return models.Actor{ID: "t-101", Role: models.RoleTeacher, Name: "Ms. Grant"}
}

func TestMarkCurrentDefaultsToPresent(t *testing.T) {
	repo := &mockAttendanceRepo{}
	audit := &recorderStub{}
	svc := NewAttendanceService(repo, &stubResolver{resolved: activeResolved()}, audit, nil, nil, nil)

	session, err := svc.MarkCurrent(context.Background(), MarkSessionRequest{
		Section:  "CS-3A",
		Students: []string{"s-1", "s-2", "s-3"},
		Statuses: map[string]models.MarkStatus{"s-2": models.MarkLate},
	}, teacherActor())
	require.NoError(t, err)

	require.Len(t, session.Marks, 3)
	assert.Equal(t, models.MarkPresent, session.Marks[0].Status)
	assert.Equal(t, models.MarkLate, session.Marks[1].Status)
	assert.Equal(t, models.MarkPresent, session.Marks[2].Status)
	assert.Equal(t, "Maths", session.Subject)
	assert.Equal(t, "t-101", session.TeacherID)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionCreate, audit.entries[0].Action)
	assert.Equal(t, "sess-1", audit.entries[0].EntityID)
}

func TestMarkCurrentDuplicateSessionConflicts(t *testing.T) {
	svc := NewAttendanceService(&mockAttendanceRepo{exists: true}, &stubResolver{resolved: activeResolved()}, &recorderStub{}, nil, nil, nil)

	_, err := svc.MarkCurrent(context.Background(), MarkSessionRequest{
		Section:  "CS-3A",
		Students: []string{"s-1"},
	}, teacherActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestMarkCurrentLosingCreateRaceConflicts(t *testing.T) {
	// The pre-check missed a concurrent create; the unique index reports it.
	svc := NewAttendanceService(&mockAttendanceRepo{createErr: sql.ErrNoRows}, &stubResolver{resolved: activeResolved()}, &recorderStub{}, nil, nil, nil)

	_, err := svc.MarkCurrent(context.Background(), MarkSessionRequest{
		Section:  "CS-3A",
		Students: []string{"s-1"},
	}, teacherActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestMarkCurrentUniqueViolationConflicts(t *testing.T) {
	pqDup := &pq.Error{Code: "23505"}
	svc := NewAttendanceService(&mockAttendanceRepo{createErr: pqDup}, &stubResolver{resolved: activeResolved()}, &recorderStub{}, nil, nil, nil)

	_, err := svc.MarkCurrent(context.Background(), MarkSessionRequest{
		Section:  "CS-3A",
		Students: []string{"s-1"},
	}, teacherActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestMarkCurrentOutsideWindow(t *testing.T) {
	resolver := &stubResolver{resolveErr: appErrors.Clone(appErrors.ErrNotFound, "no session")}
	svc := NewAttendanceService(&mockAttendanceRepo{}, resolver, &recorderStub{}, nil, nil, nil)

	_, err := svc.MarkCurrent(context.Background(), MarkSessionRequest{
		Section:  "CS-3A",
		Students: []string{"s-1"},
	}, teacherActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrWindowClosed.Code, appErrors.FromError(err).Code)
}

func TestMarkCurrentRejectsUnknownStatus(t *testing.T) {
	svc := NewAttendanceService(&mockAttendanceRepo{}, &stubResolver{resolved: activeResolved()}, &recorderStub{}, nil, nil, nil)

	_, err := svc.MarkCurrent(context.Background(), MarkSessionRequest{
		Section:  "CS-3A",
		Students: []string{"s-1"},
		Statuses: map[string]models.MarkStatus{"s-1": "excused"},
	}, teacherActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMarkCurrentEmitsLowAttendanceOnAbsence(t *testing.T) {
	events := &emitterStub{}
	svc := NewAttendanceService(&mockAttendanceRepo{}, &stubResolver{resolved: activeResolved()}, &recorderStub{}, events, nil, nil)

	_, err := svc.MarkCurrent(context.Background(), MarkSessionRequest{
		Section:  "CS-3A",
		Students: []string{"s-1", "s-2"},
		Statuses: map[string]models.MarkStatus{"s-2": models.MarkAbsent},
	}, teacherActor())
	require.NoError(t, err)

	require.Len(t, events.events, 1)
	assert.Equal(t, EventLowAttendance, events.events[0].Type)
	assert.Equal(t, []string{"s-2"}, events.events[0].StudentIDs)
}

func TestStudentSummaryPercentage(t *testing.T) {
	repo := &mockAttendanceRepo{summary: &models.AttendanceSummary{Present: 2, Absent: 1, Total: 3}}
	svc := NewAttendanceService(repo, &stubResolver{}, &recorderStub{}, nil, nil, nil)

	summary, err := svc.StudentSummary(context.Background(), "s-1", models.StudentHistoryFilter{})
	require.NoError(t, err)
	assert.InDelta(t, 66.67, summary.Percent, 0.001)
}

func TestStudentSummaryZeroSessions(t *testing.T) {
	repo := &mockAttendanceRepo{summary: &models.AttendanceSummary{}}
	svc := NewAttendanceService(repo, &stubResolver{}, &recorderStub{}, nil, nil, nil)

	summary, err := svc.StudentSummary(context.Background(), "s-1", models.StudentHistoryFilter{})
	require.NoError(t, err)
	assert.Zero(t, summary.Percent)
}

func TestPercentageRounding(t *testing.T) {
	assert.InDelta(t, 66.67, Percentage(2, 3), 0.001)
	assert.InDelta(t, 33.33, Percentage(1, 3), 0.001)
	assert.InDelta(t, 100.0, Percentage(5, 5), 0.001)
	assert.Zero(t, Percentage(0, 0))
}

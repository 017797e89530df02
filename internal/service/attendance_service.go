package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/campushq/session-attendance-api/internal/models"
	appErrors "github.com/campushq/session-attendance-api/pkg/errors"
)

type attendanceStore interface {
	Exists(ctx context.Context, key models.SessionKey) (bool, error)
	Create(ctx context.Context, session *models.AttendanceSession) error
	GetByID(ctx context.Context, id string) (*models.AttendanceSession, error)
	GetByKey(ctx context.Context, key models.SessionKey) (*models.AttendanceSession, error)
	ListBySectionDate(ctx context.Context, section string, date time.Time) ([]models.AttendanceSession, error)
	StudentHistory(ctx context.Context, studentID string, filter models.StudentHistoryFilter) ([]models.HistoryRow, error)
	StudentSummary(ctx context.Context, studentID string, filter models.StudentHistoryFilter) (*models.AttendanceSummary, error)
}

type sessionResolver interface {
	Resolve(ctx context.Context, section string, at time.Time) (*ResolvedSession, error)
	Authorize(resolved *ResolvedSession, actor models.Actor) error
}

// MarkSessionRequest records attendance for the session happening now.
// Students carries the section roster; anyone not listed in Statuses is
// marked present.
type MarkSessionRequest struct {
	Section  string                       `json:"section" validate:"required"`
	Students []string                     `json:"students" validate:"required,min=1"`
	Statuses map[string]models.MarkStatus `json:"statuses"`
}

// AttendanceService is the session ledger: it creates and reads attendance
// records and guards the one-record-per-session invariant.
type AttendanceService struct {
	repo      attendanceStore
	resolver  sessionResolver
	audit     auditRecorder
	events    EventEmitter
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAttendanceService constructs the ledger service.
func NewAttendanceService(repo attendanceStore, resolver sessionResolver, audit auditRecorder, events EventEmitter, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		repo:      repo,
		resolver:  resolver,
		audit:     audit,
		events:    events,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now() },
	}
}

// MarkCurrent records attendance for whichever session is active (or in its
// grace window) for the section right now. The caller must be the slot's
// authorized teacher, its substitute, or an admin.
func (s *AttendanceService) MarkCurrent(ctx context.Context, req MarkSessionRequest, actor models.Actor) (*models.AttendanceSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	for student, status := range req.Statuses {
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported status for student "+student)
		}
	}

	now := s.now()
	resolved, err := s.resolver.Resolve(ctx, req.Section, now)
	if err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrNotFound.Code && !actor.Role.Elevated() {
			return nil, appErrors.Clone(appErrors.ErrWindowClosed, "no session is open for marking right now")
		}
		return nil, err
	}
	if err := s.resolver.Authorize(resolved, actor); err != nil {
		return nil, err
	}

	session := s.buildSession(resolved, req, now)
	return s.create(ctx, session, actor)
}

// CreateResolved records attendance for an explicitly resolved session.
// Used by the retroactive-create branch of the override path, which has
// already done its own authorization.
func (s *AttendanceService) CreateResolved(ctx context.Context, resolved *ResolvedSession, req MarkSessionRequest, actor models.Actor) (*models.AttendanceSession, error) {
	session := s.buildSession(resolved, req, s.now())
	return s.create(ctx, session, actor)
}

func (s *AttendanceService) buildSession(resolved *ResolvedSession, req MarkSessionRequest, at time.Time) *models.AttendanceSession {
	marks := make(models.StudentMarks, 0, len(req.Students))
	stamp := at.UTC()
	for _, studentID := range req.Students {
		status, ok := req.Statuses[studentID]
		if !ok {
			status = models.MarkPresent
		}
		marks = append(marks, models.StudentMark{StudentID: studentID, Status: status, MarkedAt: stamp})
	}
	return &models.AttendanceSession{
		Section:   resolved.Section,
		Subject:   resolved.Slot.Subject,
		Date:      resolved.Date,
		TimeLabel: resolved.Slot.Label,
		DayCode:   resolved.DayCode,
		StartTime: resolved.Slot.Start,
		EndTime:   resolved.Slot.End,
		TeacherID: resolved.AuthorizedTeacherID,
		Marks:     marks,
	}
}

func (s *AttendanceService) create(ctx context.Context, session *models.AttendanceSession, actor models.Actor) (*models.AttendanceSession, error) {
	// Courtesy pre-check for a clean message; the unique index is the real
	// guard against the create/create race.
	exists, err := s.repo.Exists(ctx, session.Key())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check for existing session")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session already recorded")
	}

	if err := s.repo.Create(ctx, session); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "session already recorded")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record session")
	}

	after, _ := json.Marshal(session.Marks)
	s.audit.Record(ctx, &models.AuditEntry{
		EntityType: models.AuditEntityAttendanceSession,
		EntityID:   session.ID,
		Action:     models.AuditActionCreate,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		ActorName:  actor.Name,
		Context:    sessionContext(session, ""),
		After:      after,
	})

	if s.events != nil && session.Marks.HasAbsence() {
		absent := make([]string, 0)
		for _, mark := range session.Marks {
			if mark.Status == models.MarkAbsent {
				absent = append(absent, mark.StudentID)
			}
		}
		s.events.Emit(ctx, Event{
			Type:       EventLowAttendance,
			Section:    session.Section,
			Subject:    session.Subject,
			Date:       session.Date.Format("2006-01-02"),
			TimeLabel:  session.TimeLabel,
			StudentIDs: absent,
		})
	}
	return session, nil
}

// GetByID loads one ledger record.
func (s *AttendanceService) GetByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// SectionDate lists every session recorded for a section on a date.
func (s *AttendanceService) SectionDate(ctx context.Context, section string, date time.Time) ([]models.AttendanceSession, error) {
	sessions, err := s.repo.ListBySectionDate(ctx, section, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// StudentHistory reads a student's mirror rows, optionally filtered by
// subject and date range.
func (s *AttendanceService) StudentHistory(ctx context.Context, studentID string, filter models.StudentHistoryFilter) ([]models.HistoryRow, error) {
	rows, err := s.repo.StudentHistory(ctx, studentID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}
	return rows, nil
}

// StudentSummary aggregates a student's sessions. A student with zero
// recorded sessions reports 0%, not an error.
func (s *AttendanceService) StudentSummary(ctx context.Context, studentID string, filter models.StudentHistoryFilter) (*models.AttendanceSummary, error) {
	summary, err := s.repo.StudentSummary(ctx, studentID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise attendance")
	}
	summary.Percent = Percentage(summary.Present, summary.Total)
	return summary, nil
}

// Percentage computes present/total*100 rounded to two decimal places; zero
// sessions yields 0 rather than an error.
func Percentage(present, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(present)/float64(total)*10000) / 100
}

// isUniqueViolation detects a Postgres unique-constraint error (23505), the
// shape a lost create/create race takes when it bypasses the RETURNING path.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func sessionContext(session *models.AttendanceSession, studentID string) json.RawMessage {
	ctx := models.AuditContext{
		Section:   session.Section,
		Subject:   session.Subject,
		Date:      session.Date.Format("2006-01-02"),
		TimeLabel: session.TimeLabel,
		StudentID: studentID,
	}
	raw, _ := json.Marshal(ctx)
	return raw
}

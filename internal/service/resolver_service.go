package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/campushq/session-attendance-api/internal/models"
	appErrors "github.com/campushq/session-attendance-api/pkg/errors"
)

// SessionPhase tells whether a resolved slot is in progress or in its
// post-class grace window.
type SessionPhase string

const (
	PhaseActive SessionPhase = "active"
	PhaseGrace  SessionPhase = "grace"
	PhaseClosed SessionPhase = "closed"
)

// ResolvedSession is the answer to "what session is actionable right now".
type ResolvedSession struct {
	Section     string       `json:"section"`
	Date        time.Time    `json:"date"`
	DayCode     models.DayCode `json:"day_code"`
	Slot        models.Slot  `json:"slot"`
	Phase       SessionPhase `json:"phase"`
	// Teacher authorized to act: the substitute when an active assignment
	// exists for the slot, otherwise the slot's nominal teacher.
	AuthorizedTeacherID string `json:"authorized_teacher_id"`
	Substituted         bool   `json:"substituted"`
}

// Key returns the ledger tuple for the resolved session.
func (r *ResolvedSession) Key() models.SessionKey {
	return models.SessionKey{
		Section:   r.Section,
		Subject:   r.Slot.Subject,
		Date:      r.Date,
		TimeLabel: r.Slot.Label,
	}
}

type scheduleSource interface {
	Get(ctx context.Context, section string) (*models.Timetable, error)
}

type substituteSource interface {
	FindBySlot(ctx context.Context, section string, date time.Time, timeLabel string) (*models.SubstituteAssignment, error)
}

// ResolverService answers which session is actionable for a section at a
// given clock reading, and who may act on it.
type ResolverService struct {
	schedules   scheduleSource
	substitutes substituteSource
	gracePeriod time.Duration
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewResolverService constructs the resolver.
func NewResolverService(schedules scheduleSource, substitutes substituteSource, gracePeriod time.Duration, metrics *MetricsService, logger *zap.Logger) *ResolverService {
	if gracePeriod <= 0 {
		gracePeriod = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResolverService{
		schedules:   schedules,
		substitutes: substitutes,
		gracePeriod: gracePeriod,
		metrics:     metrics,
		logger:      logger,
	}
}

// GracePeriod exposes the configured window for collaborating services.
func (s *ResolverService) GracePeriod() time.Duration {
	return s.gracePeriod
}

// Resolve finds the active session for the section at the given instant,
// falling back to a slot still inside its grace window. With back-to-back
// slots and a large grace window several slots may qualify; the
// earliest-ending one wins.
func (s *ResolverService) Resolve(ctx context.Context, section string, at time.Time) (*ResolvedSession, error) {
	timetable, err := s.schedules.Get(ctx, section)
	if err != nil {
		s.observe("error")
		return nil, err
	}

	day := models.DayCodeFor(at.Weekday())
	slots := timetable.Days[day]
	clock := at.Format("15:04")

	for _, slot := range slots {
		if slot.Start <= clock && clock < slot.End {
			s.observe("active")
			return s.resolved(ctx, section, at, day, slot, PhaseActive)
		}
	}

	atMinutes := minutesOfDay(clock)
	graceMinutes := int(s.gracePeriod.Minutes())
	var best *models.Slot
	for i := range slots {
		end := minutesOfDay(slots[i].End)
		if end <= atMinutes && atMinutes <= end+graceMinutes {
			if best == nil || slots[i].End < best.End {
				best = &slots[i]
			}
		}
	}
	if best != nil {
		s.observe("grace")
		return s.resolved(ctx, section, at, day, *best, PhaseGrace)
	}

	s.observe("none")
	return nil, appErrors.Clone(appErrors.ErrNotFound, "no active or grace session for section "+section)
}

// ResolveSlot resolves a named slot on a date without consulting the clock.
// Serves the retroactive path where an admin records a session whose window
// has long since closed.
func (s *ResolverService) ResolveSlot(ctx context.Context, section string, date time.Time, timeLabel string) (*ResolvedSession, error) {
	timetable, err := s.schedules.Get(ctx, section)
	if err != nil {
		return nil, err
	}
	day := models.DayCodeFor(date.Weekday())
	for _, slot := range timetable.Days[day] {
		if slot.Label == timeLabel {
			return s.resolved(ctx, section, date, day, slot, PhaseClosed)
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "no slot "+timeLabel+" scheduled for section "+section)
}

// Authorize checks that the actor may act on the resolved session. Admins
// are always authorized, including outside class hours; that is what the
// override path relies on.
func (s *ResolverService) Authorize(resolved *ResolvedSession, actor models.Actor) error {
	if actor.Role.Elevated() {
		return nil
	}
	if actor.Role != models.RoleTeacher {
		return appErrors.Clone(appErrors.ErrForbidden, "only teachers may mark attendance")
	}
	if actor.ID != resolved.AuthorizedTeacherID {
		if resolved.Substituted {
			return appErrors.Clone(appErrors.ErrForbidden, "slot is assigned to a substitute teacher")
		}
		return appErrors.Clone(appErrors.ErrForbidden, "not the teacher assigned to this slot")
	}
	return nil
}

func (s *ResolverService) resolved(ctx context.Context, section string, at time.Time, day models.DayCode, slot models.Slot, phase SessionPhase) (*ResolvedSession, error) {
	date := dateOnly(at)
	out := &ResolvedSession{
		Section:             section,
		Date:                date,
		DayCode:             day,
		Slot:                slot,
		Phase:               phase,
		AuthorizedTeacherID: slot.TeacherID,
	}

	assignment, err := s.substitutes.FindBySlot(ctx, section, date, slot.Label)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check substitute assignment")
		}
		return out, nil
	}
	if assignment.Status.Authorizes() {
		out.AuthorizedTeacherID = assignment.SubstituteTeacherID
		out.Substituted = true
	}
	return out, nil
}

func (s *ResolverService) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveResolution(outcome)
	}
}

func minutesOfDay(clock string) int {
	if len(clock) != 5 {
		return 0
	}
	h := int(clock[0]-'0')*10 + int(clock[1]-'0')
	m := int(clock[3]-'0')*10 + int(clock[4]-'0')
	return h*60 + m
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

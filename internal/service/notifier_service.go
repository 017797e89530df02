package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/campushq/session-attendance-api/internal/models"
)

type scheduleCatalog interface {
	Sections(ctx context.Context) ([]string, error)
	Get(ctx context.Context, section string) (*models.Timetable, error)
}

type sessionChecker interface {
	Exists(ctx context.Context, key models.SessionKey) (bool, error)
}

// NotifierService watches for slots whose grace window closed without an
// attendance record and raises an UNMARKED_SESSION event for each. Each
// scan covers the window since the previous one, so a slot is reported at
// most once.
type NotifierService struct {
	schedules scheduleCatalog
	sessions  sessionChecker
	events    EventEmitter
	grace     time.Duration
	logger    *zap.Logger
	now       func() time.Time
	lastRun   time.Time
}

// NewNotifierService constructs the watcher.
func NewNotifierService(schedules scheduleCatalog, sessions sessionChecker, events EventEmitter, grace time.Duration, logger *zap.Logger) *NotifierService {
	if grace <= 0 {
		grace = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifierService{
		schedules: schedules,
		sessions:  sessions,
		events:    events,
		grace:     grace,
		logger:    logger,
		now:       func() time.Time { return time.Now() },
	}
}

// Scan reports every slot whose marking window closed since the previous
// scan and has no session recorded. Returns the number of events emitted.
func (s *NotifierService) Scan(ctx context.Context) (int, error) {
	now := s.now()
	since := s.lastRun
	if since.IsZero() {
		since = now.Add(-time.Hour)
	}
	s.lastRun = now

	sections, err := s.schedules.Sections(ctx)
	if err != nil {
		return 0, err
	}

	day := models.DayCodeFor(now.Weekday())
	date := dateOnly(now)
	emitted := 0
	for _, section := range sections {
		timetable, err := s.schedules.Get(ctx, section)
		if err != nil {
			s.logger.Warn("notifier skipped section", zap.String("section", section), zap.Error(err))
			continue
		}
		for _, slot := range timetable.Days[day] {
			closedAt := windowClose(now, slot.End, s.grace)
			if !closedAt.After(since) || closedAt.After(now) {
				continue
			}
			key := models.SessionKey{Section: section, Subject: slot.Subject, Date: date, TimeLabel: slot.Label}
			exists, err := s.sessions.Exists(ctx, key)
			if err != nil {
				s.logger.Warn("notifier existence check failed", zap.String("section", section), zap.String("time_label", slot.Label), zap.Error(err))
				continue
			}
			if exists {
				continue
			}
			s.events.Emit(ctx, Event{
				Type:      EventUnmarkedSession,
				Section:   section,
				Subject:   slot.Subject,
				Date:      date.Format("2006-01-02"),
				TimeLabel: slot.Label,
			})
			emitted++
		}
	}
	return emitted, nil
}

// Start runs Scan on the given interval until the context ends.
func (s *NotifierService) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Scan(ctx); err != nil {
					s.logger.Error("unmarked-session scan failed", zap.Error(err))
				}
			}
		}
	}()
}

// windowClose returns the instant the marking window of a slot ending at end
// shuts on ref's calendar day, in ref's own location so the comparison
// against the wall clock holds in any server timezone.
func windowClose(ref time.Time, end string, grace time.Duration) time.Time {
	midnight := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	return midnight.Add(time.Duration(minutesOfDay(end))*time.Minute + grace)
}

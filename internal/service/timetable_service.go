package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/campushq/session-attendance-api/internal/models"
	appErrors "github.com/campushq/session-attendance-api/pkg/errors"
)

type timetableStore interface {
	ReplaceAll(ctx context.Context, timetables []models.Timetable) error
	GetBySection(ctx context.Context, section string) (*models.Timetable, error)
	ListSections(ctx context.Context) ([]string, error)
}

type timetableCache interface {
	GetTimetable(ctx context.Context, section string) (*models.Timetable, error)
	SetTimetable(ctx context.Context, t *models.Timetable) error
	InvalidateSections(ctx context.Context, sections []string) error
}

type auditRecorder interface {
	Record(ctx context.Context, entry *models.AuditEntry)
}

// TimetableService parses, validates and stores section timetables.
type TimetableService struct {
	repo   timetableStore
	cache  timetableCache
	audit  auditRecorder
	logger *zap.Logger
}

// NewTimetableService constructs the service.
func NewTimetableService(repo timetableStore, cache timetableCache, audit auditRecorder, logger *zap.Logger) *TimetableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{repo: repo, cache: cache, audit: audit, logger: logger}
}

// Upload parses raw timetable text and replaces the stored schedules of the
// sections it names. Every parse and validation problem is reported in one
// batch; any hard error rejects the whole upload. Warnings (a weekday with
// no schedule) are returned but do not block.
func (s *TimetableService) Upload(ctx context.Context, raw string, actor models.Actor) (*ParseReport, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "timetable text is empty")
	}
	report := ParseTimetableText(raw)
	if !report.OK() {
		return report, appErrors.Clone(appErrors.ErrValidation, "timetable text has errors")
	}
	if len(report.Timetables) == 0 {
		return report, appErrors.Clone(appErrors.ErrValidation, "timetable text names no sections")
	}

	sections := make([]string, len(report.Timetables))
	for i := range report.Timetables {
		report.Timetables[i].UpdatedBy = actor.ID
		sections[i] = report.Timetables[i].Section
	}
	if err := s.repo.ReplaceAll(ctx, report.Timetables); err != nil {
		return report, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store timetables")
	}
	if s.cache != nil {
		if err := s.cache.InvalidateSections(ctx, sections); err != nil {
			s.logger.Warn("failed to invalidate timetable cache", zap.Error(err))
		}
	}

	after, _ := json.Marshal(map[string]interface{}{"sections": sections})
	s.audit.Record(ctx, &models.AuditEntry{
		EntityType: models.AuditEntityTimetable,
		EntityID:   strings.Join(sections, ","),
		Action:     models.AuditActionTimetableUpload,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		ActorName:  actor.Name,
		After:      after,
	})
	return report, nil
}

// Get returns one section's timetable, read through the cache.
func (s *TimetableService) Get(ctx context.Context, section string) (*models.Timetable, error) {
	if s.cache != nil {
		if t, err := s.cache.GetTimetable(ctx, section); err == nil {
			return t, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("timetable cache read failed", zap.String("section", section), zap.Error(err))
		}
	}
	t, err := s.repo.GetBySection(ctx, section)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no timetable for section "+section)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if s.cache != nil {
		if err := s.cache.SetTimetable(ctx, t); err != nil {
			s.logger.Warn("timetable cache write failed", zap.String("section", section), zap.Error(err))
		}
	}
	return t, nil
}

// Sections lists every section with an uploaded timetable.
func (s *TimetableService) Sections(ctx context.Context) ([]string, error) {
	sections, err := s.repo.ListSections(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	return sections, nil
}

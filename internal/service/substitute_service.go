package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/session-attendance-api/internal/models"
	appErrors "github.com/campushq/session-attendance-api/pkg/errors"
)

type substituteStore interface {
	Upsert(ctx context.Context, assignment *models.SubstituteAssignment) (*models.SubstituteAssignment, error)
	FindBySlot(ctx context.Context, section string, date time.Time, timeLabel string) (*models.SubstituteAssignment, error)
	GetByID(ctx context.Context, id string) (*models.SubstituteAssignment, error)
	ListByDate(ctx context.Context, date time.Time, section string) ([]models.SubstituteAssignment, error)
	UpdateStatus(ctx context.Context, id string, status models.SubstituteStatus) error
}

// AssignSubstituteRequest maps a slot to a stand-in teacher for one date.
type AssignSubstituteRequest struct {
	Section             string    `json:"section" validate:"required"`
	Date                time.Time `json:"date" validate:"required"`
	TimeLabel           string    `json:"time_label" validate:"required"`
	SubstituteTeacherID string    `json:"substitute_teacher_id" validate:"required"`
	Reason              string    `json:"reason" validate:"required"`
}

// SubstituteService manages per-date substitute assignments. A substitute
// temporarily inherits the slot's marking authority through the resolver.
type SubstituteService struct {
	repo      substituteStore
	resolver  slotResolver
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubstituteService constructs the service.
func NewSubstituteService(repo substituteStore, resolver slotResolver, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *SubstituteService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubstituteService{
		repo:      repo,
		resolver:  resolver,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// Assign creates or replaces the assignment for a slot and date. Admin
// only. Assigning the slot's own teacher as their substitute is rejected.
func (s *SubstituteService) Assign(ctx context.Context, req AssignSubstituteRequest, actor models.Actor) (*models.SubstituteAssignment, error) {
	if !actor.Role.Elevated() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may assign substitutes")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	resolved, err := s.resolver.ResolveSlot(ctx, req.Section, req.Date, req.TimeLabel)
	if err != nil {
		return nil, err
	}
	if resolved.Slot.TeacherID == req.SubstituteTeacherID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "substitute is already the slot's teacher")
	}

	previous, err := s.repo.FindBySlot(ctx, req.Section, dateOnly(req.Date), req.TimeLabel)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing assignment")
	}

	assignment, err := s.repo.Upsert(ctx, &models.SubstituteAssignment{
		OriginalTeacherID:   resolved.Slot.TeacherID,
		SubstituteTeacherID: req.SubstituteTeacherID,
		Section:             req.Section,
		Subject:             resolved.Slot.Subject,
		Date:                dateOnly(req.Date),
		TimeLabel:           req.TimeLabel,
		DayCode:             resolved.DayCode,
		Status:              models.SubstitutePending,
		AssignedBy:          actor.ID,
		Reason:              req.Reason,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign substitute")
	}

	var before json.RawMessage
	if previous != nil {
		before, _ = json.Marshal(previous)
	}
	after, _ := json.Marshal(assignment)
	s.audit.Record(ctx, &models.AuditEntry{
		EntityType: models.AuditEntitySubstitute,
		EntityID:   assignment.ID,
		Action:     models.AuditActionSubstituteAssign,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		ActorName:  actor.Name,
		Context:    assignmentContext(assignment),
		Before:     before,
		After:      after,
		Reason:     req.Reason,
	})
	return assignment, nil
}

// UpdateStatus advances an assignment's lifecycle. Admin only. Cancelling
// or completing an assignment returns the slot to its original teacher.
func (s *SubstituteService) UpdateStatus(ctx context.Context, id string, status models.SubstituteStatus, actor models.Actor) (*models.SubstituteAssignment, error) {
	if !actor.Role.Elevated() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may update assignments")
	}
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported assignment status")
	}

	assignment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if assignment.Status == status {
		return assignment, nil
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "substitute assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
	}

	before, _ := json.Marshal(assignment)
	assignment.Status = status
	after, _ := json.Marshal(assignment)
	s.audit.Record(ctx, &models.AuditEntry{
		EntityType: models.AuditEntitySubstitute,
		EntityID:   id,
		Action:     models.AuditActionSubstituteUpdate,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		ActorName:  actor.Name,
		Context:    assignmentContext(assignment),
		Before:     before,
		After:      after,
	})
	return assignment, nil
}

// Get loads one assignment.
func (s *SubstituteService) Get(ctx context.Context, id string) (*models.SubstituteAssignment, error) {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "substitute assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

// Lookup returns the assignment currently authorizing a substitute for the
// slot, or NotFound when none is active.
func (s *SubstituteService) Lookup(ctx context.Context, section string, date time.Time, timeLabel string) (*models.SubstituteAssignment, error) {
	assignment, err := s.repo.FindBySlot(ctx, section, dateOnly(date), timeLabel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no substitute assigned for this slot")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up assignment")
	}
	if !assignment.Status.Authorizes() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no substitute assigned for this slot")
	}
	return assignment, nil
}

// ListByDate returns all assignments for a date, optionally one section.
func (s *SubstituteService) ListByDate(ctx context.Context, date time.Time, section string) ([]models.SubstituteAssignment, error) {
	assignments, err := s.repo.ListByDate(ctx, dateOnly(date), section)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

func assignmentContext(a *models.SubstituteAssignment) json.RawMessage {
	raw, _ := json.Marshal(models.AuditContext{
		Section:   a.Section,
		Subject:   a.Subject,
		Date:      a.Date.Format("2006-01-02"),
		TimeLabel: a.TimeLabel,
	})
	return raw
}

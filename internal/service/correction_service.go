package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/session-attendance-api/internal/models"
	appErrors "github.com/campushq/session-attendance-api/pkg/errors"
)

type correctionStore interface {
	Create(ctx context.Context, req *models.CorrectionRequest) error
	GetByID(ctx context.Context, id string) (*models.CorrectionRequest, error)
	List(ctx context.Context, filter models.CorrectionFilter) ([]models.CorrectionRequest, error)
	FinalizeReview(ctx context.Context, id string, status models.CorrectionStatus, reviewerID string, reviewedAt time.Time, comments *string) error
}

type correctionLedger interface {
	GetByID(ctx context.Context, id string) (*models.AttendanceSession, error)
	UpdateMarks(ctx context.Context, session *models.AttendanceSession) error
}

// SubmitCorrectionRequest is a student's dispute against their own mark.
type SubmitCorrectionRequest struct {
	SessionID       string            `json:"session_id" validate:"required"`
	RequestedStatus models.MarkStatus `json:"requested_status" validate:"required"`
	Justification   string            `json:"justification" validate:"required,min=10"`
	ProofURL        *string           `json:"proof_url,omitempty"`
}

// ReviewDecision closes a correction request one way or the other.
type ReviewDecision struct {
	Approve  bool    `json:"approve"`
	Comments *string `json:"comments,omitempty"`
}

// CorrectionService runs the student correction workflow: submit, single
// terminal review, and ledger update on approval.
type CorrectionService struct {
	repo      correctionStore
	ledger    correctionLedger
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewCorrectionService constructs the workflow service.
func NewCorrectionService(repo correctionStore, ledger correctionLedger, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *CorrectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CorrectionService{
		repo:      repo,
		ledger:    ledger,
		audit:     audit,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now() },
	}
}

// Submit files a dispute. Students may only dispute their own mark, the
// requested status must differ from the recorded one, and at most one
// pending request per session and student is allowed.
func (s *CorrectionService) Submit(ctx context.Context, req SubmitCorrectionRequest, actor models.Actor) (*models.CorrectionRequest, error) {
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may submit correction requests")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if !req.RequestedStatus.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported requested status")
	}

	session, err := s.ledger.GetByID(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	mark := session.Marks.Find(actor.ID)
	if mark == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no mark recorded for you in this session")
	}
	if mark.Status == req.RequestedStatus {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requested status matches the recorded mark")
	}

	open, err := s.repo.List(ctx, models.CorrectionFilter{
		StudentID: actor.ID,
		SessionID: req.SessionID,
		Status:    models.CorrectionPending,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open requests")
	}
	if len(open) > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a pending correction request already exists for this session")
	}

	request := &models.CorrectionRequest{
		SessionID:       req.SessionID,
		StudentID:       actor.ID,
		CurrentStatus:   mark.Status,
		RequestedStatus: req.RequestedStatus,
		Justification:   req.Justification,
		ProofURL:        req.ProofURL,
		Status:          models.CorrectionPending,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit correction request")
	}

	s.audit.Record(ctx, &models.AuditEntry{
		EntityType: models.AuditEntityCorrection,
		EntityID:   request.ID,
		Action:     models.AuditActionCorrectionSubmit,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		ActorName:  actor.Name,
		Context:    sessionContext(session, actor.ID),
		Reason:     req.Justification,
	})
	return request, nil
}

// Review closes a request. The compare-and-set in storage guarantees that
// exactly one review wins even when two reviewers act simultaneously; the
// loser gets a Conflict. Approval applies the requested status to the
// ledger.
func (s *CorrectionService) Review(ctx context.Context, id string, decision ReviewDecision, actor models.Actor) (*models.CorrectionRequest, error) {
	request, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "correction request already reviewed")
	}

	session, err := s.ledger.GetByID(ctx, request.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if !actor.Role.Elevated() && actor.ID != session.TeacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the session teacher or an admin may review")
	}
	if !decision.Approve && (decision.Comments == nil || strings.TrimSpace(*decision.Comments) == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection comments are required")
	}

	status := models.CorrectionRejected
	action := models.AuditActionCorrectionRejected
	if decision.Approve {
		status = models.CorrectionApproved
		action = models.AuditActionCorrectionApproved
	}

	now := s.now().UTC()
	if err := s.repo.FinalizeReview(ctx, id, status, actor.ID, now, decision.Comments); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "correction request already reviewed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize review")
	}

	request.Status = status
	request.ReviewedBy = &actor.ID
	request.ReviewedAt = &now
	request.ReviewComments = decision.Comments

	var before, after json.RawMessage
	if decision.Approve {
		before, _ = json.Marshal(session.Marks)
		if mark := session.Marks.Find(request.StudentID); mark != nil {
			mark.Status = request.RequestedStatus
			mark.MarkedAt = now
		}
		modifier := actor
		session.LastModifiedBy = &modifier
		session.LastModifiedAt = &now
		reason := "correction " + request.ID + " approved: " + request.Justification
		session.OverrideReason = &reason
		if err := s.ledger.UpdateMarks(ctx, session); err != nil {
			// The review decision stands; the ledger write is retried by the
			// caller against the approved request.
			s.logger.Error("approved correction not applied to ledger",
				zap.String("correction_id", id), zap.String("session_id", session.ID), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "review recorded but ledger update failed")
		}
		after, _ = json.Marshal(session.Marks)
	}

	comments := ""
	if decision.Comments != nil {
		comments = *decision.Comments
	}
	s.audit.Record(ctx, &models.AuditEntry{
		EntityType: models.AuditEntityCorrection,
		EntityID:   id,
		Action:     action,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		ActorName:  actor.Name,
		Context:    sessionContext(session, request.StudentID),
		Before:     before,
		After:      after,
		Reason:     comments,
	})
	return request, nil
}

// Get loads one request. Students may only read their own.
func (s *CorrectionService) Get(ctx context.Context, id string, actor models.Actor) (*models.CorrectionRequest, error) {
	request, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudent && request.StudentID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not your correction request")
	}
	return request, nil
}

// List returns requests matching the filter. Students are always scoped to
// their own requests regardless of the filter they send.
func (s *CorrectionService) List(ctx context.Context, filter models.CorrectionFilter, actor models.Actor) ([]models.CorrectionRequest, error) {
	if actor.Role == models.RoleStudent {
		filter.StudentID = actor.ID
	}
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list correction requests")
	}
	return requests, nil
}

func (s *CorrectionService) get(ctx context.Context, id string) (*models.CorrectionRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "correction request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load correction request")
	}
	return request, nil
}

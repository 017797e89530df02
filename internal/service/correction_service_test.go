package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/session-attendance-api/internal/models"
	appErrors "github.com/campushq/session-attendance-api/pkg/errors"
)

type mockCorrectionRepo struct {
	created     *models.CorrectionRequest
	createErr   error
	request     *models.CorrectionRequest
	getErr      error
	pending     []models.CorrectionRequest
	finalizeErr error
	finalized   models.CorrectionStatus
}

func (m *mockCorrectionRepo) Create(ctx context.Context, req *models.CorrectionRequest) error {
	if m.createErr != nil {
		return m.createErr
	}
	req.ID = "corr-1"
	m.created = req
	return nil
}

func (m *mockCorrectionRepo) GetByID(ctx context.Context, id string) (*models.CorrectionRequest, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	clone := *m.request
	return &clone, nil
}

func (m *mockCorrectionRepo) List(ctx context.Context, filter models.CorrectionFilter) ([]models.CorrectionRequest, error) {
	return m.pending, nil
}

func (m *mockCorrectionRepo) FinalizeReview(ctx context.Context, id string, status models.CorrectionStatus, reviewerID string, reviewedAt time.Time, comments *string) error {
	if m.finalizeErr != nil {
		return m.finalizeErr
	}
	m.finalized = status
	return nil
}

type mockCorrectionLedger struct {
	session   *models.AttendanceSession
	getErr    error
	updated   *models.AttendanceSession
	updateErr error
}

func (m *mockCorrectionLedger) GetByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.session, nil
}

func (m *mockCorrectionLedger) UpdateMarks(ctx context.Context, session *models.AttendanceSession) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updated = session
	return nil
}

func studentActor() models.Actor {
	return models.Actor{ID: "s-2", Role: models.RoleStudent, Name: "Priya"}
}

func pendingRequest() *models.CorrectionRequest {
	return &models.CorrectionRequest{
		ID:              "corr-1",
		SessionID:       "sess-1",
		StudentID:       "s-2",
		CurrentStatus:   models.MarkAbsent,
		RequestedStatus: models.MarkPresent,
		Justification:   "I was present, the scanner rejected my card",
		Status:          models.CorrectionPending,
	}
}

func TestSubmitCorrection(t *testing.T) {
	repo := &mockCorrectionRepo{}
	ledger := &mockCorrectionLedger{session: unlockedSession()}
	audit := &recorderStub{}
	svc := NewCorrectionService(repo, ledger, audit, nil, nil)

	request, err := svc.Submit(context.Background(), SubmitCorrectionRequest{
		SessionID:       "sess-1",
		RequestedStatus: models.MarkPresent,
		Justification:   "I was in the medical room",
	}, studentActor())
	require.NoError(t, err)

	assert.Equal(t, models.CorrectionPending, request.Status)
	assert.Equal(t, models.MarkAbsent, request.CurrentStatus)
	assert.Equal(t, "s-2", request.StudentID)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionCorrectionSubmit, audit.entries[0].Action)
}

func TestSubmitCorrectionOnlyStudents(t *testing.T) {
	svc := NewCorrectionService(&mockCorrectionRepo{}, &mockCorrectionLedger{}, &recorderStub{}, nil, nil)

	_, err := svc.Submit(context.Background(), SubmitCorrectionRequest{
		SessionID:       "sess-1",
		RequestedStatus: models.MarkPresent,
		Justification:   "I was in the medical room",
	}, teacherActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSubmitCorrectionNotInSession(t *testing.T) {
	ledger := &mockCorrectionLedger{session: unlockedSession()}
	svc := NewCorrectionService(&mockCorrectionRepo{}, ledger, &recorderStub{}, nil, nil)

	_, err := svc.Submit(context.Background(), SubmitCorrectionRequest{
		SessionID:       "sess-1",
		RequestedStatus: models.MarkPresent,
		Justification:   "I was definitely there",
	}, models.Actor{ID: "s-99", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSubmitCorrectionSameStatusRejected(t *testing.T) {
	ledger := &mockCorrectionLedger{session: unlockedSession()}
	svc := NewCorrectionService(&mockCorrectionRepo{}, ledger, &recorderStub{}, nil, nil)

	_, err := svc.Submit(context.Background(), SubmitCorrectionRequest{
		SessionID:       "sess-1",
		RequestedStatus: models.MarkAbsent,
		Justification:   "status already matches",
	}, studentActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubmitCorrectionDuplicatePendingConflicts(t *testing.T) {
	repo := &mockCorrectionRepo{pending: []models.CorrectionRequest{*pendingRequest()}}
	ledger := &mockCorrectionLedger{session: unlockedSession()}
	svc := NewCorrectionService(repo, ledger, &recorderStub{}, nil, nil)

	_, err := svc.Submit(context.Background(), SubmitCorrectionRequest{
		SessionID:       "sess-1",
		RequestedStatus: models.MarkPresent,
		Justification:   "I was in the medical room",
	}, studentActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestReviewApprovalUpdatesLedger(t *testing.T) {
	repo := &mockCorrectionRepo{request: pendingRequest()}
	ledger := &mockCorrectionLedger{session: unlockedSession()}
	audit := &recorderStub{}
	svc := NewCorrectionService(repo, ledger, audit, nil, nil)

	request, err := svc.Review(context.Background(), "corr-1", ReviewDecision{Approve: true}, teacherActor())
	require.NoError(t, err)

	assert.Equal(t, models.CorrectionApproved, request.Status)
	assert.Equal(t, models.CorrectionApproved, repo.finalized)
	require.NotNil(t, ledger.updated)
	assert.Equal(t, models.MarkPresent, ledger.updated.Marks.Find("s-2").Status)
	require.NotNil(t, ledger.updated.LastModifiedBy)
	assert.Equal(t, "t-101", ledger.updated.LastModifiedBy.ID)
	require.NotNil(t, ledger.updated.OverrideReason)
	assert.Equal(t, "correction corr-1 approved: I was present, the scanner rejected my card", *ledger.updated.OverrideReason)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionCorrectionApproved, audit.entries[0].Action)
}

func TestReviewRejectionLeavesLedgerAlone(t *testing.T) {
	repo := &mockCorrectionRepo{request: pendingRequest()}
	ledger := &mockCorrectionLedger{session: unlockedSession()}
	audit := &recorderStub{}
	svc := NewCorrectionService(repo, ledger, audit, nil, nil)

	comments := "no supporting evidence"
	request, err := svc.Review(context.Background(), "corr-1", ReviewDecision{Comments: &comments}, teacherActor())
	require.NoError(t, err)

	assert.Equal(t, models.CorrectionRejected, request.Status)
	assert.Nil(t, ledger.updated)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionCorrectionRejected, audit.entries[0].Action)
}

func TestReviewRejectionRequiresComments(t *testing.T) {
	repo := &mockCorrectionRepo{request: pendingRequest()}
	ledger := &mockCorrectionLedger{session: unlockedSession()}
	svc := NewCorrectionService(repo, ledger, &recorderStub{}, nil, nil)

	_, err := svc.Review(context.Background(), "corr-1", ReviewDecision{}, teacherActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReviewSecondReviewerConflicts(t *testing.T) {
	// Lost the compare-and-set: another reviewer finalized first.
	repo := &mockCorrectionRepo{request: pendingRequest(), finalizeErr: sql.ErrNoRows}
	ledger := &mockCorrectionLedger{session: unlockedSession()}
	svc := NewCorrectionService(repo, ledger, &recorderStub{}, nil, nil)

	_, err := svc.Review(context.Background(), "corr-1", ReviewDecision{Approve: true}, teacherActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestReviewTerminalRequestConflicts(t *testing.T) {
	approved := pendingRequest()
	approved.Status = models.CorrectionApproved
	repo := &mockCorrectionRepo{request: approved}
	svc := NewCorrectionService(repo, &mockCorrectionLedger{}, &recorderStub{}, nil, nil)

	_, err := svc.Review(context.Background(), "corr-1", ReviewDecision{Approve: true}, teacherActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestReviewByUnrelatedTeacherForbidden(t *testing.T) {
	repo := &mockCorrectionRepo{request: pendingRequest()}
	ledger := &mockCorrectionLedger{session: unlockedSession()}
	svc := NewCorrectionService(repo, ledger, &recorderStub{}, nil, nil)

	_, err := svc.Review(context.Background(), "corr-1", ReviewDecision{Approve: true}, models.Actor{ID: "t-999", Role: models.RoleTeacher})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestGetScopesStudentsToOwnRequests(t *testing.T) {
	repo := &mockCorrectionRepo{request: pendingRequest()}
	svc := NewCorrectionService(repo, &mockCorrectionLedger{}, &recorderStub{}, nil, nil)

	_, err := svc.Get(context.Background(), "corr-1", models.Actor{ID: "s-99", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	request, err := svc.Get(context.Background(), "corr-1", studentActor())
	require.NoError(t, err)
	assert.Equal(t, "corr-1", request.ID)
}

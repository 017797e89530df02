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

type mockSubstituteRepo struct {
	existing      *models.SubstituteAssignment
	upserted      *models.SubstituteAssignment
	statusUpdated models.SubstituteStatus
}

func (m *mockSubstituteRepo) Upsert(ctx context.Context, assignment *models.SubstituteAssignment) (*models.SubstituteAssignment, error) {
	assignment.ID = "sub-1"
	m.upserted = assignment
	return assignment, nil
}

func (m *mockSubstituteRepo) FindBySlot(ctx context.Context, section string, date time.Time, timeLabel string) (*models.SubstituteAssignment, error) {
	if m.existing == nil {
		return nil, sql.ErrNoRows
	}
	return m.existing, nil
}

func (m *mockSubstituteRepo) GetByID(ctx context.Context, id string) (*models.SubstituteAssignment, error) {
	if m.existing == nil {
		return nil, sql.ErrNoRows
	}
	clone := *m.existing
	return &clone, nil
}

func (m *mockSubstituteRepo) ListByDate(ctx context.Context, date time.Time, section string) ([]models.SubstituteAssignment, error) {
	if m.existing == nil {
		return nil, nil
	}
	return []models.SubstituteAssignment{*m.existing}, nil
}

func (m *mockSubstituteRepo) UpdateStatus(ctx context.Context, id string, status models.SubstituteStatus) error {
	m.statusUpdated = status
	return nil
}

func confirmedAssignment() *models.SubstituteAssignment {
	return &models.SubstituteAssignment{
		ID:                  "sub-1",
		OriginalTeacherID:   "t-101",
		SubstituteTeacherID: "t-200",
		Section:             "CS-3A",
		Subject:             "Maths",
		Date:                monday(0, 0),
		TimeLabel:           "9-10",
		Status:              models.SubstituteConfirmed,
	}
}

func TestAssignSubstitute(t *testing.T) {
	repo := &mockSubstituteRepo{}
	audit := &recorderStub{}
	svc := NewSubstituteService(repo, &stubSlotResolver{resolved: activeResolved()}, audit, nil, nil)

	assignment, err := svc.Assign(context.Background(), AssignSubstituteRequest{
		Section:             "CS-3A",
		Date:                monday(0, 0),
		TimeLabel:           "9-10",
		SubstituteTeacherID: "t-200",
		Reason:              "medical leave",
	}, adminActor())
	require.NoError(t, err)

	assert.Equal(t, "t-101", assignment.OriginalTeacherID)
	assert.Equal(t, "t-200", assignment.SubstituteTeacherID)
	assert.Equal(t, models.SubstitutePending, assignment.Status)
	assert.Equal(t, "Maths", assignment.Subject)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionSubstituteAssign, audit.entries[0].Action)
	assert.Empty(t, audit.entries[0].Before)
}

func TestAssignSubstituteReplacementCarriesBeforeState(t *testing.T) {
	repo := &mockSubstituteRepo{existing: confirmedAssignment()}
	audit := &recorderStub{}
	svc := NewSubstituteService(repo, &stubSlotResolver{resolved: activeResolved()}, audit, nil, nil)

	_, err := svc.Assign(context.Background(), AssignSubstituteRequest{
		Section:             "CS-3A",
		Date:                monday(0, 0),
		TimeLabel:           "9-10",
		SubstituteTeacherID: "t-300",
		Reason:              "first substitute also unavailable",
	}, adminActor())
	require.NoError(t, err)

	require.Len(t, audit.entries, 1)
	assert.NotEmpty(t, audit.entries[0].Before)
	assert.Equal(t, "t-300", repo.upserted.SubstituteTeacherID)
}

func TestAssignSubstituteRequiresAdmin(t *testing.T) {
	svc := NewSubstituteService(&mockSubstituteRepo{}, &stubSlotResolver{resolved: activeResolved()}, &recorderStub{}, nil, nil)

	_, err := svc.Assign(context.Background(), AssignSubstituteRequest{
		Section:             "CS-3A",
		Date:                monday(0, 0),
		TimeLabel:           "9-10",
		SubstituteTeacherID: "t-200",
		Reason:              "medical leave",
	}, teacherActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAssignSubstituteRejectsSlotTeacher(t *testing.T) {
	svc := NewSubstituteService(&mockSubstituteRepo{}, &stubSlotResolver{resolved: activeResolved()}, &recorderStub{}, nil, nil)

	_, err := svc.Assign(context.Background(), AssignSubstituteRequest{
		Section:             "CS-3A",
		Date:                monday(0, 0),
		TimeLabel:           "9-10",
		SubstituteTeacherID: "t-101",
		Reason:              "confused request",
	}, adminActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLookupIgnoresInactiveAssignments(t *testing.T) {
	cancelled := confirmedAssignment()
	cancelled.Status = models.SubstituteCancelled
	svc := NewSubstituteService(&mockSubstituteRepo{existing: cancelled}, &stubSlotResolver{}, &recorderStub{}, nil, nil)

	_, err := svc.Lookup(context.Background(), "CS-3A", monday(0, 0), "9-10")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUpdateStatus(t *testing.T) {
	repo := &mockSubstituteRepo{existing: confirmedAssignment()}
	audit := &recorderStub{}
	svc := NewSubstituteService(repo, &stubSlotResolver{}, audit, nil, nil)

	assignment, err := svc.UpdateStatus(context.Background(), "sub-1", models.SubstituteCompleted, adminActor())
	require.NoError(t, err)
	assert.Equal(t, models.SubstituteCompleted, assignment.Status)
	assert.Equal(t, models.SubstituteCompleted, repo.statusUpdated)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionSubstituteUpdate, audit.entries[0].Action)
}

func TestUpdateStatusSameStatusIsNoOp(t *testing.T) {
	repo := &mockSubstituteRepo{existing: confirmedAssignment()}
	audit := &recorderStub{}
	svc := NewSubstituteService(repo, &stubSlotResolver{}, audit, nil, nil)

	_, err := svc.UpdateStatus(context.Background(), "sub-1", models.SubstituteConfirmed, adminActor())
	require.NoError(t, err)
	assert.Empty(t, audit.entries)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc := NewSubstituteService(&mockSubstituteRepo{existing: confirmedAssignment()}, &stubSlotResolver{}, &recorderStub{}, nil, nil)

	_, err := svc.UpdateStatus(context.Background(), "sub-1", "PAUSED", adminActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

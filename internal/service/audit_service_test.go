package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/session-attendance-api/internal/models"
	"github.com/campushq/session-attendance-api/pkg/config"
)

type mockAuditRepo struct {
	mu        sync.Mutex
	inserted  []*models.AuditEntry
	insertErr error
}

func (m *mockAuditRepo) Insert(ctx context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, entry)
	return nil
}

func (m *mockAuditRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inserted)
}

func (m *mockAuditRepo) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditEntry, error) {
	return nil, nil
}

func (m *mockAuditRepo) ListByActor(ctx context.Context, actorID string, limit int) ([]models.AuditEntry, error) {
	return nil, nil
}

func (m *mockAuditRepo) ListBySection(ctx context.Context, section string, from, to time.Time, limit int) ([]models.AuditEntry, error) {
	return nil, nil
}

func queueConfig() config.AuditConfig {
	return config.AuditConfig{Workers: 1, BufferSize: 16, MaxRetries: 1, RetryDelay: time.Millisecond}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRecordPersistsAsynchronously(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewAuditService(repo, nil, queueConfig(), nil)
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Record(context.Background(), &models.AuditEntry{
		EntityType: models.AuditEntityAttendanceSession,
		EntityID:   "sess-1",
		Action:     models.AuditActionCreate,
		ActorID:    "t-101",
	})

	waitFor(t, func() bool { return repo.count() == 1 })
	repo.mu.Lock()
	entry := repo.inserted[0]
	repo.mu.Unlock()
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestRecordNeverPropagatesStorageFailure(t *testing.T) {
	repo := &mockAuditRepo{insertErr: errors.New("db down")}
	svc := NewAuditService(repo, nil, queueConfig(), nil)
	svc.Start(context.Background())
	defer svc.Stop()

	// Record has no error to return; the caller's mutation proceeds
	// regardless of what happens to the trail entry.
	svc.Record(context.Background(), &models.AuditEntry{
		EntityType: models.AuditEntityAttendanceSession,
		EntityID:   "sess-1",
		Action:     models.AuditActionCreate,
	})

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, repo.count())
}

func TestRecordBeforeStartDropsSilently(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewAuditService(repo, nil, queueConfig(), nil)

	svc.Record(context.Background(), &models.AuditEntry{Action: models.AuditActionLock})
	assert.Zero(t, repo.count())
}

func TestRecordNilEntryIsIgnored(t *testing.T) {
	svc := NewAuditService(&mockAuditRepo{}, nil, queueConfig(), nil)
	svc.Start(context.Background())
	defer svc.Stop()

	require.NotPanics(t, func() {
		svc.Record(context.Background(), nil)
	})
}

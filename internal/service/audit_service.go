package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushq/session-attendance-api/internal/models"
	"github.com/campushq/session-attendance-api/pkg/config"
	appErrors "github.com/campushq/session-attendance-api/pkg/errors"
	"github.com/campushq/session-attendance-api/pkg/jobs"
)

type auditStore interface {
	Insert(ctx context.Context, entry *models.AuditEntry) error
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditEntry, error)
	ListByActor(ctx context.Context, actorID string, limit int) ([]models.AuditEntry, error)
	ListBySection(ctx context.Context, section string, from, to time.Time, limit int) ([]models.AuditEntry, error)
}

// AuditService is the best-effort audit side channel. Record never blocks
// and never fails the caller's primary mutation: entries flow through a
// bounded in-memory queue, and anything lost to a full buffer or a storage
// failure is counted and logged rather than surfaced.
type AuditService struct {
	repo    auditStore
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAuditService constructs the service and its outbox queue. Call Start
// before recording and Stop on shutdown.
func NewAuditService(repo auditStore, metrics *MetricsService, cfg config.AuditConfig, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{repo: repo, metrics: metrics, logger: logger}
	s.queue = jobs.NewQueue("audit", s.persist, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		OnDrop: func(job jobs.Job, err error) {
			if metrics != nil {
				metrics.ObserveAuditDropped()
			}
			logger.Warn("audit entry dropped", zap.String("job_id", job.ID), zap.Error(err))
		},
	})
	return s
}

// Start launches the outbox workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record enqueues an entry. Fire-and-forget: callers get no error and must
// not depend on the entry being visible immediately.
func (s *AuditService) Record(_ context.Context, entry *models.AuditEntry) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.queue.TryEnqueue(jobs.Job{ID: entry.ID, Type: entry.Action, Payload: entry})
}

func (s *AuditService) persist(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.AuditEntry)
	if !ok {
		s.logger.Error("audit job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ObserveAuditWritten()
	}
	return nil
}

// EntityTrail returns the chronological (most recent first) trail for one
// entity.
func (s *AuditService) EntityTrail(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditEntry, error) {
	entries, err := s.repo.ListByEntity(ctx, entityType, entityID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entity trail")
	}
	return entries, nil
}

// ActorTrail returns every recorded action of one actor.
func (s *AuditService) ActorTrail(ctx context.Context, actorID string, limit int) ([]models.AuditEntry, error) {
	entries, err := s.repo.ListByActor(ctx, actorID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actor trail")
	}
	return entries, nil
}

// SectionTrail returns a section's trail within a date range.
func (s *AuditService) SectionTrail(ctx context.Context, section string, from, to time.Time, limit int) ([]models.AuditEntry, error) {
	entries, err := s.repo.ListBySection(ctx, section, from, to, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section trail")
	}
	return entries, nil
}

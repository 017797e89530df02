package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campushq/session-attendance-api/internal/models"
	appErrors "github.com/campushq/session-attendance-api/pkg/errors"
)

type lockingStore interface {
	GetByID(ctx context.Context, id string) (*models.AttendanceSession, error)
	UpdateMarks(ctx context.Context, session *models.AttendanceSession) error
	SetLock(ctx context.Context, id string, locked bool, at time.Time) error
	LockOlderThan(ctx context.Context, cutoff time.Time, at time.Time) ([]string, error)
}

type slotResolver interface {
	ResolveSlot(ctx context.Context, section string, date time.Time, timeLabel string) (*ResolvedSession, error)
}

type retroCreator interface {
	CreateResolved(ctx context.Context, resolved *ResolvedSession, req MarkSessionRequest, actor models.Actor) (*models.AttendanceSession, error)
}

// OverrideRequest edits the marks of an existing session. Admin only; works
// on locked records without unlocking them first.
type OverrideRequest struct {
	Statuses map[string]models.MarkStatus `json:"statuses"`
	Reason   string                       `json:"reason"`
}

// RetroactiveRequest records a session whose marking window has closed.
type RetroactiveRequest struct {
	Section   string                       `json:"section"`
	Date      time.Time                    `json:"date"`
	TimeLabel string                       `json:"time_label"`
	Students  []string                     `json:"students"`
	Statuses  map[string]models.MarkStatus `json:"statuses"`
	Reason    string                       `json:"reason"`
}

// LockingService owns the lock state machine: explicit lock/unlock, admin
// overrides of locked records, and the background sweep that locks sessions
// left open past the grace period.
type LockingService struct {
	repo     lockingStore
	resolver slotResolver
	ledger   retroCreator
	audit    auditRecorder
	metrics  *MetricsService
	logger   *zap.Logger
	grace    time.Duration
	now      func() time.Time
}

// NewLockingService constructs the lock manager.
func NewLockingService(repo lockingStore, resolver slotResolver, ledger retroCreator, audit auditRecorder, grace time.Duration, metrics *MetricsService, logger *zap.Logger) *LockingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockingService{
		repo:     repo,
		resolver: resolver,
		ledger:   ledger,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
		grace:    grace,
		now:      func() time.Time { return time.Now() },
	}
}

// Lock finalizes a session early. Any teacher or admin may lock; locking is
// a safe one-way door since unlock stays admin-gated. Locking an
// already-locked session is a conflict.
func (s *LockingService) Lock(ctx context.Context, id string, actor models.Actor) (*models.AttendanceSession, error) {
	if actor.Role != models.RoleTeacher && !actor.Role.Elevated() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers or admins may lock a session")
	}
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.IsLocked {
		return nil, appErrors.Clone(appErrors.ErrLocked, "session is already locked")
	}

	now := s.now()
	if err := s.repo.SetLock(ctx, id, true, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost the race to another locker.
			return nil, appErrors.Clone(appErrors.ErrLocked, "session is already locked")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock session")
	}
	lockedAt := now.UTC()
	session.IsLocked = true
	session.LockedAt = &lockedAt

	s.audit.Record(ctx, &models.AuditEntry{
		EntityType: models.AuditEntityAttendanceSession,
		EntityID:   id,
		Action:     models.AuditActionLock,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		ActorName:  actor.Name,
		Context:    sessionContext(session, ""),
	})
	return session, nil
}

// Unlock reopens a locked session. Admin only, and a reason is mandatory
// because every unlock is an integrity-relevant event.
func (s *LockingService) Unlock(ctx context.Context, id, reason string, actor models.Actor) (*models.AttendanceSession, error) {
	if !actor.Role.Elevated() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may unlock a session")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unlock reason is required")
	}

	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.IsLocked {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session is not locked")
	}

	if err := s.repo.SetLock(ctx, id, false, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "session is not locked")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unlock session")
	}
	session.IsLocked = false

	s.audit.Record(ctx, &models.AuditEntry{
		EntityType: models.AuditEntityAttendanceSession,
		EntityID:   id,
		Action:     models.AuditActionUnlock,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		ActorName:  actor.Name,
		Context:    sessionContext(session, ""),
		Reason:     reason,
	})
	return session, nil
}

// Override edits the marks of an existing session. Admin only; the lock is
// deliberately not a barrier here, the override trail is the compensating
// control.
func (s *LockingService) Override(ctx context.Context, id string, req OverrideRequest, actor models.Actor) (*models.AttendanceSession, error) {
	if !actor.Role.Elevated() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may override a session")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "override reason is required")
	}
	if len(req.Statuses) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "override must change at least one student")
	}
	for student, status := range req.Statuses {
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported status for student "+student)
		}
	}

	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	before, _ := json.Marshal(session.Marks)
	now := s.now().UTC()
	for student, status := range req.Statuses {
		if mark := session.Marks.Find(student); mark != nil {
			mark.Status = status
			mark.MarkedAt = now
			continue
		}
		session.Marks = append(session.Marks, models.StudentMark{StudentID: student, Status: status, MarkedAt: now})
	}
	modifier := actor
	session.LastModifiedBy = &modifier
	session.LastModifiedAt = &now
	session.OverrideReason = &req.Reason

	if err := s.repo.UpdateMarks(ctx, session); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to override session")
	}

	after, _ := json.Marshal(session.Marks)
	s.audit.Record(ctx, &models.AuditEntry{
		EntityType: models.AuditEntityAttendanceSession,
		EntityID:   id,
		Action:     models.AuditActionOverride,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		ActorName:  actor.Name,
		Context:    sessionContext(session, ""),
		Before:     before,
		After:      after,
		Reason:     req.Reason,
	})
	return session, nil
}

// RecordMissed creates a session after its window closed. Admin only; the
// record lands as an ordinary create with its own CREATE trail entry, so a
// retroactive session is indistinguishable from a timely one except by its
// timestamps.
func (s *LockingService) RecordMissed(ctx context.Context, req RetroactiveRequest, actor models.Actor) (*models.AttendanceSession, error) {
	if !actor.Role.Elevated() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may record a missed session")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a reason is required for retroactive records")
	}
	if len(req.Students) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student roster is required")
	}

	resolved, err := s.resolver.ResolveSlot(ctx, req.Section, req.Date, req.TimeLabel)
	if err != nil {
		return nil, err
	}
	session, err := s.ledger.CreateResolved(ctx, resolved, MarkSessionRequest{
		Section:  req.Section,
		Students: req.Students,
		Statuses: req.Statuses,
	}, actor)
	if err != nil {
		return nil, err
	}

	reason := req.Reason
	now := s.now().UTC()
	modifier := actor
	session.LastModifiedBy = &modifier
	session.LastModifiedAt = &now
	session.OverrideReason = &reason
	if err := s.repo.UpdateMarks(ctx, session); err != nil {
		s.logger.Warn("failed to stamp retroactive reason", zap.String("session_id", session.ID), zap.Error(err))
	}
	return session, nil
}

// Sweep locks every unlocked session older than the grace period.
// Idempotent: the update only touches unlocked rows, so a second run over
// the same data is a no-op. One aggregate LOCK entry records the swept ids.
func (s *LockingService) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-s.grace)
	ids, err := s.repo.LockOlderThan(ctx, cutoff, now)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "lock sweep failed")
	}
	if s.metrics != nil {
		s.metrics.ObserveSweep(len(ids))
	}
	if len(ids) == 0 {
		return 0, nil
	}

	after, _ := json.Marshal(map[string]interface{}{"locked_session_ids": ids})
	s.audit.Record(ctx, &models.AuditEntry{
		EntityType: models.AuditEntityAttendanceSession,
		EntityID:   "sweep",
		Action:     models.AuditActionLock,
		ActorID:    "system",
		ActorRole:  models.RoleAdmin,
		ActorName:  "lock-sweeper",
		After:      after,
		Reason:     "automatic grace-period lock",
	})
	s.logger.Info("lock sweep completed", zap.Int("locked", len(ids)))
	return len(ids), nil
}

// StartSweeper runs Sweep on the given interval until the context ends.
func (s *LockingService) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.logger.Error("scheduled lock sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

func (s *LockingService) load(ctx context.Context, id string) (*models.AttendanceSession, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

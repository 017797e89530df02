package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/session-attendance-api/internal/models"
)

const auditColumns = `id, entity_type, entity_id, action, actor_id, actor_role, actor_name, context, before_state, after_state, reason, created_at`

// AuditRepository stores the append-only trail. Entries are never updated
// or deleted.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends one entry.
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_entries (id, entity_type, entity_id, action, actor_id, actor_role, actor_name, context, before_state, after_state, reason, created_at)
VALUES (:id, :entity_type, :entity_id, :action, :actor_id, :actor_role, :actor_name, :context, :before_state, :after_state, :reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByEntity returns an entity's trail, most recent first.
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM audit_entries WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at DESC LIMIT $3`, auditColumns)
	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, entityType, entityID, normalizeLimit(limit)); err != nil {
		return nil, fmt.Errorf("list audit by entity: %w", err)
	}
	return entries, nil
}

// ListByActor returns every entry recorded for one actor, most recent first.
func (r *AuditRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]models.AuditEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM audit_entries WHERE actor_id = $1 ORDER BY created_at DESC LIMIT $2`, auditColumns)
	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, actorID, normalizeLimit(limit)); err != nil {
		return nil, fmt.Errorf("list audit by actor: %w", err)
	}
	return entries, nil
}

// ListBySection returns entries whose context names the section within the
// date range, most recent first.
func (r *AuditRepository) ListBySection(ctx context.Context, section string, from, to time.Time, limit int) ([]models.AuditEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM audit_entries
WHERE context ->> 'section' = $1 AND created_at >= $2 AND created_at <= $3
ORDER BY created_at DESC LIMIT $4`, auditColumns)
	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, section, from.UTC(), to.UTC(), normalizeLimit(limit)); err != nil {
		return nil, fmt.Errorf("list audit by section: %w", err)
	}
	return entries, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

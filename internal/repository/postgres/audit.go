package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Create(ctx context.Context, event *model.AuditEvent) error {
	query := `
		INSERT INTO audit_events (id, action, entity_type, entity_id, actor_id, session_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.GetDB().ExecContext(ctx, query,
		event.ID, event.Action, event.EntityType, event.EntityID,
		event.ActorID, event.SessionID, event.Details, event.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create audit event: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditEvent, error) {
	query := `
		SELECT * FROM audit_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
	`
	var events []*model.AuditEvent
	if err := r.GetDB().SelectContext(ctx, &events, query, entityType, entityID); err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	return events, nil
}

func (r *auditRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.GetDB().ExecContext(ctx, `DELETE FROM audit_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit events: %w", err)
	}
	return result.RowsAffected()
}

// Package audit emits audit events for every sensitive operation. Events
// are persisted locally and published to the broker; durable delivery of
// the log beyond the broker is an external concern.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository"
	"github.com/ecgcare/vault-api/pkg/logger"
	"github.com/ecgcare/vault-api/pkg/messaging"
)

// Channel is the broker channel audit events are published on.
const Channel = "audit.events"

type Service struct {
	repo   repository.AuditRepository
	broker messaging.Broker
	logger *logger.Logger
}

// NewService creates an audit emitter. broker may be nil when no external
// delivery is configured.
func NewService(repo repository.AuditRepository, broker messaging.Broker, l *logger.Logger) *Service {
	if l == nil {
		l = logger.NewLogger(nil)
	}
	return &Service{repo: repo, broker: broker, logger: l}
}

type LogOptions struct {
	SessionID *uuid.UUID
	Details   interface{}
}

// Log records one audit event. Audit failures are logged but never fail the
// operation being audited.
func (s *Service) Log(ctx context.Context, actorID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) {
	event := &model.AuditEvent{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		CreatedAt:  time.Now(),
	}

	if opts != nil {
		event.SessionID = opts.SessionID
		if opts.Details != nil {
			details, err := json.Marshal(opts.Details)
			if err != nil {
				s.logger.Error(err, "failed to marshal audit details", "action", action)
			} else {
				event.Details = details
			}
		}
	}

	if err := s.repo.Create(ctx, event); err != nil {
		s.logger.Error(err, "failed to persist audit event", "action", action, "entity", entityType)
	}

	if s.broker != nil {
		if err := s.broker.Publish(ctx, Channel, event); err != nil {
			s.logger.Error(err, "failed to publish audit event", "action", action, "entity", entityType)
		}
	}
}

func (s *Service) List(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditEvent, error) {
	return s.repo.List(ctx, entityType, entityID)
}

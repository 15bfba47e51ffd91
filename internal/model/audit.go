package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEvent describes one action against one entity. The vault only emits
// events; durable delivery of the log is the broker consumer's concern.
type AuditEvent struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id" db:"entity_id"`
	ActorID    uuid.UUID       `json:"actor_id" db:"actor_id"`
	SessionID  *uuid.UUID      `json:"session_id,omitempty" db:"session_id"`
	Details    json.RawMessage `json:"details,omitempty" db:"details"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionRegister = "register"
	AuditActionLogin    = "login"
	AuditActionLogout   = "logout"
	AuditActionCreate   = "create"
	AuditActionRead     = "read"
	AuditActionUpdate   = "update"
	AuditActionDelete   = "delete"
	AuditActionShare    = "share"
	AuditActionRevoke   = "revoke"
	AuditActionUpload   = "upload"
	AuditActionPredict  = "predict"

	// Entity types
	AuditEntityDoctor  = "doctor"
	AuditEntitySession = "session"
	AuditEntityRecord  = "record"
	AuditEntityAccess  = "record_access"
	AuditEntityScan    = "scan"
	AuditEntityDraft   = "draft"
)

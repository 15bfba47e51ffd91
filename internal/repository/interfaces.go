package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ecgcare/vault-api/internal/model"
)

type DoctorRepository interface {
	// Create persists doctor, credential and key pair in one transaction so
	// an identity never exists without usable key material.
	Create(ctx context.Context, doctor *model.Doctor, cred *model.Credential, keys *model.DoctorKeyPair) error
	Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error)
	GetByEmail(ctx context.Context, email string) (*model.Doctor, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	GetCredential(ctx context.Context, doctorID uuid.UUID) (*model.Credential, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

type KeyPairRepository interface {
	Create(ctx context.Context, keys *model.DoctorKeyPair) error
	Get(ctx context.Context, doctorID uuid.UUID) (*model.DoctorKeyPair, error)
}

type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	Get(ctx context.Context, id uuid.UUID) (*model.Session, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	// End transitions an Active session owned by doctorID to its terminal
	// state. Returns false without error when the session is already ended
	// or owned by someone else, making logout idempotent.
	End(ctx context.Context, id, doctorID uuid.UUID, at time.Time, reason model.SessionEndReason) (bool, error)
	// TimeoutIdle ends every Active session whose last activity predates
	// the cutoff. Used by the background timeout worker, not the core.
	TimeoutIdle(ctx context.Context, lastActivityBefore time.Time) (int64, error)
}

type RecordRepository interface {
	// Create persists record, owner key wrap and owner grant atomically;
	// a record must never exist without at least one usable key wrap.
	Create(ctx context.Context, record *model.Record, key *model.RecordKey, grant *model.AccessGrant) error
	Get(ctx context.Context, id uuid.UUID) (*model.Record, error)
	// UpdatePayload replaces ciphertext, IV and tag together and bumps
	// updated_at.
	UpdatePayload(ctx context.Context, id uuid.UUID, sealed model.Record) error
	// Delete removes the record and cascades all key and grant rows.
	Delete(ctx context.Context, id uuid.UUID) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, p model.Pagination) ([]*model.RecordSummary, error)

	GetKey(ctx context.Context, recordID, doctorID uuid.UUID) (*model.RecordKey, error)
	RoleOf(ctx context.Context, recordID, doctorID uuid.UUID) (model.Role, bool, error)
	// CreateGrantWithKey and DeleteGrantWithKey uphold the pairing
	// invariant inside a single transaction each.
	CreateGrantWithKey(ctx context.Context, grant *model.AccessGrant, key *model.RecordKey) error
	DeleteGrantWithKey(ctx context.Context, recordID, doctorID uuid.UUID) error
	UpdateGrantRole(ctx context.Context, recordID, doctorID uuid.UUID, role model.Role) error
	ListAccess(ctx context.Context, recordID uuid.UUID) ([]*model.AccessEntry, error)
	CountOwners(ctx context.Context, recordID uuid.UUID) (int, error)
}

type AuditRepository interface {
	Create(ctx context.Context, event *model.AuditEvent) error
	List(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditEvent, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type ScanRepository interface {
	Create(ctx context.Context, scan *model.Scan) error
	Get(ctx context.Context, id uuid.UUID) (*model.Scan, error)
	ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*model.Scan, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type MLResultRepository interface {
	Create(ctx context.Context, result *model.MLResult) error
	ListByScan(ctx context.Context, scanID uuid.UUID) ([]*model.MLResult, error)
}

type DraftRepository interface {
	Upsert(ctx context.Context, draft *model.Draft) error
	Get(ctx context.Context, recordID, doctorID uuid.UUID) (*model.Draft, error)
	Delete(ctx context.Context, recordID, doctorID uuid.UUID) error
}

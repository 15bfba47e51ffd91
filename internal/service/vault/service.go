// Package vault is the record façade: envelope encryption, key wrapping and
// role enforcement behind one API. Plaintext payloads and unwrapped DEKs
// exist only inside a single operation and are zeroed before it returns.
package vault

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository"
	"github.com/ecgcare/vault-api/internal/service/access"
	"github.com/ecgcare/vault-api/internal/service/audit"
	"github.com/ecgcare/vault-api/internal/service/envelope"
	"github.com/ecgcare/vault-api/internal/service/keys"
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
	"github.com/ecgcare/vault-api/pkg/logger"
	"github.com/ecgcare/vault-api/pkg/metrics"
)

type Service struct {
	records repository.RecordRepository
	keys    *keys.Service
	access  *access.Service
	auditor *audit.Service
	logger  *logger.Logger
	locks   *recordLocks
}

func NewService(
	records repository.RecordRepository,
	keySvc *keys.Service,
	accessSvc *access.Service,
	auditor *audit.Service,
	l *logger.Logger,
) *Service {
	if l == nil {
		l = logger.NewLogger(nil)
	}
	return &Service{
		records: records,
		keys:    keySvc,
		access:  accessSvc,
		auditor: auditor,
		logger:  l,
		locks:   newRecordLocks(),
	}
}

// Create encrypts the payload under a fresh DEK, wraps the DEK for the
// creating doctor and persists record, key and owner grant atomically.
func (s *Service) Create(ctx context.Context, doctorID uuid.UUID, payload []byte) (record *model.Record, err error) {
	start := time.Now()
	defer func() { metrics.ObserveVaultOp("create", start, err) }()

	dek, err := envelope.GenerateDataKey()
	if err != nil {
		return nil, apperrors.Crypto("failed to generate data key", err)
	}
	defer envelope.Zero(dek)

	sealed, err := envelope.Encrypt(payload, dek)
	if err != nil {
		return nil, apperrors.Crypto("failed to encrypt payload", err)
	}

	publicKey, err := s.keys.PublicKey(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	wrapped, err := envelope.WrapKey(dek, publicKey)
	if err != nil {
		return nil, apperrors.Crypto("failed to wrap data key", err)
	}

	code, err := newAnonymizedCode()
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to generate record code: %w", err))
	}

	now := time.Now()
	record = &model.Record{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		AnonymizedCode: code,
		PayloadEnc:     sealed.Ciphertext,
		PayloadIV:      sealed.IV,
		PayloadTag:     sealed.Tag,
	}
	key := &model.RecordKey{
		RecordID:       record.ID,
		DoctorID:       doctorID,
		WrappingScheme: envelope.WrappingScheme,
		DEKEnc:         wrapped.Ciphertext,
		DEKIV:          wrapped.IV,
		DEKTag:         wrapped.Tag,
	}
	grant := &model.AccessGrant{
		RecordID:  record.ID,
		DoctorID:  doctorID,
		Role:      model.RoleOwner,
		GrantedBy: doctorID,
		GrantedAt: now,
	}
	if err = s.records.Create(ctx, record, key, grant); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, doctorID, model.AuditActionCreate, model.AuditEntityRecord, record.ID, nil)
	return record, nil
}

// Read decrypts the record payload for the caller. Viewer role suffices.
// The caller's passphrase is needed to recover their private key; it never
// leaves this operation.
func (s *Service) Read(ctx context.Context, recordID, doctorID uuid.UUID, passphrase string) (record *model.Record, payload []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveVaultOp("read", start, err) }()

	if _, err = s.access.RequireRole(ctx, recordID, doctorID, model.RoleViewer); err != nil {
		return nil, nil, err
	}

	record, err = s.records.Get(ctx, recordID)
	if err != nil {
		return nil, nil, err
	}

	dek, err := s.unwrapDEK(ctx, recordID, doctorID, passphrase)
	if err != nil {
		return nil, nil, err
	}
	defer envelope.Zero(dek)

	payload, err = envelope.Decrypt(envelope.Sealed{
		Ciphertext: record.PayloadEnc,
		IV:         record.PayloadIV,
		Tag:        record.PayloadTag,
	}, dek)
	if err != nil {
		metrics.CryptoFailures.WithLabelValues("read").Inc()
		s.logger.Error(err, "payload decryption failed", "record_id", recordID)
		return nil, nil, apperrors.Crypto("failed to decrypt record", err)
	}

	s.auditor.Log(ctx, doctorID, model.AuditActionRead, model.AuditEntityRecord, recordID, nil)
	return record, payload, nil
}

// Update re-encrypts a new payload under the record's existing DEK, so no
// other doctor's wrapped key needs touching. Editor role required.
func (s *Service) Update(ctx context.Context, recordID, doctorID uuid.UUID, passphrase string, payload []byte) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveVaultOp("update", start, err) }()

	if _, err = s.access.RequireRole(ctx, recordID, doctorID, model.RoleEditor); err != nil {
		return err
	}

	dek, err := s.unwrapDEK(ctx, recordID, doctorID, passphrase)
	if err != nil {
		return err
	}
	defer envelope.Zero(dek)

	sealed, err := envelope.Encrypt(payload, dek)
	if err != nil {
		return apperrors.Crypto("failed to encrypt payload", err)
	}

	if err = s.records.UpdatePayload(ctx, recordID, model.Record{
		PayloadEnc: sealed.Ciphertext,
		PayloadIV:  sealed.IV,
		PayloadTag: sealed.Tag,
	}); err != nil {
		return err
	}

	s.auditor.Log(ctx, doctorID, model.AuditActionUpdate, model.AuditEntityRecord, recordID, nil)
	return nil
}

// Delete removes a record with all its keys, grants and drafts. Owner only.
// No passphrase needed: deletion destroys ciphertext, it never reads it.
func (s *Service) Delete(ctx context.Context, recordID, doctorID uuid.UUID) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveVaultOp("delete", start, err) }()

	unlock := s.locks.Lock(recordID.String())
	defer unlock()

	if _, err = s.access.RequireRole(ctx, recordID, doctorID, model.RoleOwner); err != nil {
		return err
	}
	if err = s.records.Delete(ctx, recordID); err != nil {
		return err
	}

	s.auditor.Log(ctx, doctorID, model.AuditActionDelete, model.AuditEntityRecord, recordID, nil)
	return nil
}

// List returns summaries of every record the doctor holds any role on.
func (s *Service) List(ctx context.Context, doctorID uuid.UUID, p model.Pagination) ([]*model.RecordSummary, error) {
	return s.records.ListByDoctor(ctx, doctorID, p.Normalize())
}

// Share grants the recipient a role on the record. The owner unwraps the DEK
// with their own private key and rewraps it for the recipient's public key;
// the DEK itself crosses between wrappings only in memory here.
func (s *Service) Share(ctx context.Context, recordID, ownerID, recipientID uuid.UUID, role model.Role, passphrase string) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveVaultOp("share", start, err) }()

	unlock := s.locks.Lock(recordID.String())
	defer unlock()

	if _, err = s.access.RequireRole(ctx, recordID, ownerID, model.RoleOwner); err != nil {
		return err
	}

	dek, err := s.unwrapDEK(ctx, recordID, ownerID, passphrase)
	if err != nil {
		return err
	}
	defer envelope.Zero(dek)

	recipientPub, err := s.keys.PublicKey(ctx, recipientID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrNotFound {
			return apperrors.NotFound("recipient doctor", err)
		}
		return err
	}
	wrapped, err := envelope.WrapKey(dek, recipientPub)
	if err != nil {
		return apperrors.Crypto("failed to wrap data key for recipient", err)
	}

	key := &model.RecordKey{
		RecordID:       recordID,
		DoctorID:       recipientID,
		WrappingScheme: envelope.WrappingScheme,
		DEKEnc:         wrapped.Ciphertext,
		DEKIV:          wrapped.IV,
		DEKTag:         wrapped.Tag,
	}
	return s.access.Grant(ctx, recordID, ownerID, recipientID, role, key)
}

// UpdateRole changes an existing grant's role without touching key material.
func (s *Service) UpdateRole(ctx context.Context, recordID, ownerID, recipientID uuid.UUID, role model.Role) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveVaultOp("update_role", start, err) }()

	unlock := s.locks.Lock(recordID.String())
	defer unlock()

	return s.access.UpdateRole(ctx, recordID, ownerID, recipientID, role)
}

// Revoke removes the recipient's grant and wrapped key together.
func (s *Service) Revoke(ctx context.Context, recordID, ownerID, recipientID uuid.UUID) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveVaultOp("revoke", start, err) }()

	unlock := s.locks.Lock(recordID.String())
	defer unlock()

	return s.access.Revoke(ctx, recordID, ownerID, recipientID)
}

// ListAccess returns every grant on the record. Any role suffices.
func (s *Service) ListAccess(ctx context.Context, recordID, doctorID uuid.UUID) ([]*model.AccessEntry, error) {
	return s.access.List(ctx, recordID, doctorID)
}

// UnwrapDEK recovers the record's data key for a doctor who already passed a
// role check. Exported for sibling services (scans, drafts) that encrypt
// under the record DEK.
func (s *Service) UnwrapDEK(ctx context.Context, recordID, doctorID uuid.UUID, passphrase string) ([]byte, error) {
	return s.unwrapDEK(ctx, recordID, doctorID, passphrase)
}

func (s *Service) unwrapDEK(ctx context.Context, recordID, doctorID uuid.UUID, passphrase string) ([]byte, error) {
	key, err := s.records.GetKey(ctx, recordID, doctorID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrNotFound {
			// A granted doctor without a key row means the pairing invariant
			// is broken; surface it loudly rather than as a missing record.
			s.logger.Error(err, "record key missing for granted doctor", "record_id", recordID, "doctor_id", doctorID)
			return nil, apperrors.Crypto("record key unavailable", err)
		}
		return nil, err
	}

	privateKey, err := s.keys.RecoverPrivateKey(ctx, doctorID, passphrase)
	if err != nil {
		return nil, err
	}
	defer envelope.Zero(privateKey)

	dek, err := envelope.UnwrapKey(envelope.Sealed{
		Ciphertext: key.DEKEnc,
		IV:         key.DEKIV,
		Tag:        key.DEKTag,
	}, privateKey)
	if err != nil {
		if errors.Is(err, envelope.ErrAuthenticationFailed) {
			metrics.CryptoFailures.WithLabelValues("unwrap").Inc()
			return nil, apperrors.Crypto("failed to unwrap data key", err)
		}
		return nil, apperrors.Crypto("failed to unwrap data key", err)
	}
	return dek, nil
}

func newAnonymizedCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("PAT-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(buf)), nil
}

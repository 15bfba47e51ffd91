// Package draft stores per-doctor working notes on a record, sealed under
// the record's DEK. Revoking a doctor's access leaves their draft ciphertext
// unreadable even before cleanup removes it.
package draft

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository"
	"github.com/ecgcare/vault-api/internal/service/access"
	"github.com/ecgcare/vault-api/internal/service/envelope"
	"github.com/ecgcare/vault-api/internal/service/vault"
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
)

type Service struct {
	drafts repository.DraftRepository
	access *access.Service
	vault  *vault.Service
}

func NewService(drafts repository.DraftRepository, accessSvc *access.Service, vaultSvc *vault.Service) *Service {
	return &Service{
		drafts: drafts,
		access: accessSvc,
		vault:  vaultSvc,
	}
}

// Save encrypts and upserts the caller's draft for the record. Any role on
// the record suffices; a draft is private to its author.
func (s *Service) Save(ctx context.Context, recordID, doctorID uuid.UUID, passphrase string, content []byte) error {
	if _, err := s.access.RequireRole(ctx, recordID, doctorID, model.RoleViewer); err != nil {
		return err
	}

	dek, err := s.vault.UnwrapDEK(ctx, recordID, doctorID, passphrase)
	if err != nil {
		return err
	}
	defer envelope.Zero(dek)

	sealed, err := envelope.Encrypt(content, dek)
	if err != nil {
		return apperrors.Crypto("failed to encrypt draft", err)
	}

	return s.drafts.Upsert(ctx, &model.Draft{
		RecordID:   recordID,
		DoctorID:   doctorID,
		ContentEnc: sealed.Ciphertext,
		ContentIV:  sealed.IV,
		ContentTag: sealed.Tag,
		UpdatedAt:  time.Now(),
	})
}

// Load decrypts the caller's own draft for the record.
func (s *Service) Load(ctx context.Context, recordID, doctorID uuid.UUID, passphrase string) ([]byte, error) {
	if _, err := s.access.RequireRole(ctx, recordID, doctorID, model.RoleViewer); err != nil {
		return nil, err
	}

	draft, err := s.drafts.Get(ctx, recordID, doctorID)
	if err != nil {
		return nil, err
	}

	dek, err := s.vault.UnwrapDEK(ctx, recordID, doctorID, passphrase)
	if err != nil {
		return nil, err
	}
	defer envelope.Zero(dek)

	content, err := envelope.Decrypt(envelope.Sealed{
		Ciphertext: draft.ContentEnc,
		IV:         draft.ContentIV,
		Tag:        draft.ContentTag,
	}, dek)
	if err != nil {
		return nil, apperrors.Crypto("failed to decrypt draft", err)
	}
	return content, nil
}

// Discard removes the caller's draft. Idempotent.
func (s *Service) Discard(ctx context.Context, recordID, doctorID uuid.UUID) error {
	return s.drafts.Delete(ctx, recordID, doctorID)
}

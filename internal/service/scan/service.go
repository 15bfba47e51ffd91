// Package scan manages uploaded ECG images attached to records. Bytes go to
// the blob store; only metadata and a checksum live in the database.
package scan

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository"
	"github.com/ecgcare/vault-api/internal/service/access"
	"github.com/ecgcare/vault-api/internal/service/audit"
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
	"github.com/ecgcare/vault-api/pkg/storage"
)

type Service struct {
	scans   repository.ScanRepository
	access  *access.Service
	blobs   storage.BlobStore
	auditor *audit.Service
}

func NewService(scans repository.ScanRepository, accessSvc *access.Service, blobs storage.BlobStore, auditor *audit.Service) *Service {
	return &Service{
		scans:   scans,
		access:  accessSvc,
		blobs:   blobs,
		auditor: auditor,
	}
}

// Upload stores a scan for the record. Editor role required. The checksum is
// computed server-side over the exact bytes stored.
func (s *Service) Upload(ctx context.Context, recordID, doctorID uuid.UUID, mimetype string, content io.Reader, metadata map[string]interface{}) (*model.Scan, error) {
	if _, err := s.access.RequireRole(ctx, recordID, doctorID, model.RoleEditor); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return nil, apperrors.BadRequest("failed to read scan content", err)
	}
	if len(data) == 0 {
		return nil, apperrors.BadRequest("empty scan content", nil)
	}
	sum := sha256.Sum256(data)

	id := uuid.New()
	uri, err := s.blobs.Put(ctx, id.String(), mimetype, bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to store scan: %w", err))
	}

	scan := &model.Scan{
		ID:         id,
		RecordID:   recordID,
		StorageURI: uri,
		Mimetype:   mimetype,
		Checksum:   hex.EncodeToString(sum[:]),
		UploadedBy: doctorID,
		UploadedAt: time.Now(),
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return nil, apperrors.BadRequest("invalid scan metadata", err)
		}
		scan.Metadata = raw
	}

	if err := s.scans.Create(ctx, scan); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, doctorID, model.AuditActionUpload, model.AuditEntityScan, scan.ID, &audit.LogOptions{
		Details: map[string]interface{}{"record_id": recordID},
	})
	return scan, nil
}

// Get returns a scan's metadata. Viewer role on the parent record suffices.
func (s *Service) Get(ctx context.Context, scanID, doctorID uuid.UUID) (*model.Scan, error) {
	scan, err := s.scans.Get(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.RequireRole(ctx, scan.RecordID, doctorID, model.RoleViewer); err != nil {
		return nil, err
	}
	return scan, nil
}

// Download streams a scan's content. Viewer role suffices.
func (s *Service) Download(ctx context.Context, scanID, doctorID uuid.UUID) (*model.Scan, io.ReadCloser, error) {
	scan, err := s.Get(ctx, scanID, doctorID)
	if err != nil {
		return nil, nil, err
	}
	body, err := s.blobs.Get(ctx, scan.ID.String())
	if err != nil {
		return nil, nil, apperrors.Internal(fmt.Errorf("failed to fetch scan content: %w", err))
	}
	return scan, body, nil
}

// ListByRecord lists a record's scans. Viewer role suffices.
func (s *Service) ListByRecord(ctx context.Context, recordID, doctorID uuid.UUID) ([]*model.Scan, error) {
	if _, err := s.access.RequireRole(ctx, recordID, doctorID, model.RoleViewer); err != nil {
		return nil, err
	}
	return s.scans.ListByRecord(ctx, recordID)
}

// Delete removes a scan and its stored bytes. Owner role required.
func (s *Service) Delete(ctx context.Context, scanID, doctorID uuid.UUID) error {
	scan, err := s.scans.Get(ctx, scanID)
	if err != nil {
		return err
	}
	if _, err := s.access.RequireRole(ctx, scan.RecordID, doctorID, model.RoleOwner); err != nil {
		return err
	}

	if err := s.scans.Delete(ctx, scanID); err != nil {
		return err
	}
	// Blob removal after the row: an orphan blob is recoverable, a dangling
	// row is not.
	if err := s.blobs.Delete(ctx, scan.ID.String()); err != nil {
		return apperrors.Internal(fmt.Errorf("failed to delete scan content: %w", err))
	}

	s.auditor.Log(ctx, doctorID, model.AuditActionDelete, model.AuditEntityScan, scanID, &audit.LogOptions{
		Details: map[string]interface{}{"record_id": scan.RecordID},
	})
	return nil
}

// Package access tracks and enforces per-record roles. Only owners may
// administer grants; a grant and its RecordKey row live and die together.
package access

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository"
	"github.com/ecgcare/vault-api/internal/service/audit"
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
)

type Service struct {
	records repository.RecordRepository
	doctors repository.DoctorRepository
	auditor *audit.Service
}

func NewService(records repository.RecordRepository, doctors repository.DoctorRepository, auditor *audit.Service) *Service {
	return &Service{
		records: records,
		doctors: doctors,
		auditor: auditor,
	}
}

// RoleOf returns the doctor's role on the record, if any.
func (s *Service) RoleOf(ctx context.Context, recordID, doctorID uuid.UUID) (model.Role, bool, error) {
	return s.records.RoleOf(ctx, recordID, doctorID)
}

// RequireRole fetches the caller's role and checks it against the minimum.
// No grant at all and an insufficient grant both come back Forbidden, so a
// caller cannot probe which records exist.
func (s *Service) RequireRole(ctx context.Context, recordID, doctorID uuid.UUID, minimum model.Role) (model.Role, error) {
	role, ok, err := s.records.RoleOf(ctx, recordID, doctorID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperrors.Forbidden("no access to this record", nil)
	}
	if !role.AtLeast(minimum) {
		return "", apperrors.Forbidden(fmt.Sprintf("requires %s role", minimum), nil)
	}
	return role, nil
}

// Grant gives recipientID the role on the record, paired with the wrapped
// key the vault prepared for them. Owner-only.
func (s *Service) Grant(ctx context.Context, recordID, granterID, recipientID uuid.UUID, role model.Role, key *model.RecordKey) error {
	if !role.Valid() {
		return apperrors.BadRequest("invalid role", nil)
	}
	if _, err := s.RequireRole(ctx, recordID, granterID, model.RoleOwner); err != nil {
		return err
	}

	exists, err := s.doctors.Exists(ctx, recipientID)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NotFound("recipient doctor", nil)
	}

	if _, ok, err := s.records.RoleOf(ctx, recordID, recipientID); err != nil {
		return err
	} else if ok {
		return apperrors.Conflict("access already granted", nil)
	}

	grant := &model.AccessGrant{
		RecordID:  recordID,
		DoctorID:  recipientID,
		Role:      role,
		GrantedBy: granterID,
		GrantedAt: time.Now(),
	}
	if err := s.records.CreateGrantWithKey(ctx, grant, key); err != nil {
		return err
	}

	s.auditor.Log(ctx, granterID, model.AuditActionShare, model.AuditEntityAccess, recordID, &audit.LogOptions{
		Details: map[string]interface{}{
			"recipient": recipientID,
			"role":      role,
		},
	})
	return nil
}

// UpdateRole changes an existing grant's role. Owner-only; key material is
// untouched. Demoting the last owner is refused for the same reason the
// last owner cannot be revoked.
func (s *Service) UpdateRole(ctx context.Context, recordID, granterID, recipientID uuid.UUID, newRole model.Role) error {
	if !newRole.Valid() {
		return apperrors.BadRequest("invalid role", nil)
	}
	if _, err := s.RequireRole(ctx, recordID, granterID, model.RoleOwner); err != nil {
		return err
	}

	current, ok, err := s.records.RoleOf(ctx, recordID, recipientID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFound("access grant", nil)
	}

	if current == model.RoleOwner && newRole != model.RoleOwner {
		if err := s.requireAnotherOwner(ctx, recordID); err != nil {
			return err
		}
	}

	return s.records.UpdateGrantRole(ctx, recordID, recipientID, newRole)
}

// Revoke removes a grant and its RecordKey atomically. Owner-only. Revoking
// the last remaining owner, self included, is refused so a record can never
// be orphaned with no one able to administer or delete it.
func (s *Service) Revoke(ctx context.Context, recordID, granterID, recipientID uuid.UUID) error {
	if _, err := s.RequireRole(ctx, recordID, granterID, model.RoleOwner); err != nil {
		return err
	}

	role, ok, err := s.records.RoleOf(ctx, recordID, recipientID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFound("access grant", nil)
	}

	if role == model.RoleOwner {
		if err := s.requireAnotherOwner(ctx, recordID); err != nil {
			return err
		}
	}

	if err := s.records.DeleteGrantWithKey(ctx, recordID, recipientID); err != nil {
		return err
	}

	s.auditor.Log(ctx, granterID, model.AuditActionRevoke, model.AuditEntityAccess, recordID, &audit.LogOptions{
		Details: map[string]interface{}{"recipient": recipientID},
	})
	return nil
}

// List returns every grant on the record. Any role suffices.
func (s *Service) List(ctx context.Context, recordID, callerID uuid.UUID) ([]*model.AccessEntry, error) {
	if _, err := s.RequireRole(ctx, recordID, callerID, model.RoleViewer); err != nil {
		return nil, err
	}
	return s.records.ListAccess(ctx, recordID)
}

func (s *Service) requireAnotherOwner(ctx context.Context, recordID uuid.UUID) error {
	owners, err := s.records.CountOwners(ctx, recordID)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return apperrors.Conflict("cannot remove the last owner of a record", nil)
	}
	return nil
}

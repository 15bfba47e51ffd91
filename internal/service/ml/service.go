// Package ml requests rhythm classification for uploaded scans from an
// external inference service and keeps the results.
package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository"
	"github.com/ecgcare/vault-api/internal/service/access"
	"github.com/ecgcare/vault-api/internal/service/audit"
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
)

// Prediction is one classification outcome from the inference service.
type Prediction struct {
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	ModelName  string          `json:"model_name"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// Inferencer calls the external model with a scan's storage URI.
type Inferencer interface {
	Predict(ctx context.Context, storageURI string) (*Prediction, error)
}

type Service struct {
	scans   repository.ScanRepository
	results repository.MLResultRepository
	access  *access.Service
	inferer Inferencer
	auditor *audit.Service
}

func NewService(
	scans repository.ScanRepository,
	results repository.MLResultRepository,
	accessSvc *access.Service,
	inferer Inferencer,
	auditor *audit.Service,
) *Service {
	return &Service{
		scans:   scans,
		results: results,
		access:  accessSvc,
		inferer: inferer,
		auditor: auditor,
	}
}

// Predict runs inference on a scan and persists the outcome. Viewer role on
// the parent record suffices; predictions do not modify the record.
func (s *Service) Predict(ctx context.Context, scanID, doctorID uuid.UUID) (*model.MLResult, error) {
	scan, err := s.scans.Get(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.RequireRole(ctx, scan.RecordID, doctorID, model.RoleViewer); err != nil {
		return nil, err
	}

	prediction, err := s.inferer.Predict(ctx, scan.StorageURI)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("inference failed: %w", err))
	}

	result := &model.MLResult{
		ID:          uuid.New(),
		ScanID:      scanID,
		Label:       prediction.Label,
		Confidence:  prediction.Confidence,
		ModelName:   prediction.ModelName,
		RawResponse: prediction.Raw,
		RequestedBy: doctorID,
		CreatedAt:   time.Now(),
	}
	if err := s.results.Create(ctx, result); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, doctorID, model.AuditActionPredict, model.AuditEntityScan, scanID, &audit.LogOptions{
		Details: map[string]interface{}{"label": result.Label, "model": result.ModelName},
	})
	return result, nil
}

// Results lists prior predictions for a scan. Viewer role suffices.
func (s *Service) Results(ctx context.Context, scanID, doctorID uuid.UUID) ([]*model.MLResult, error) {
	scan, err := s.scans.Get(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.RequireRole(ctx, scan.RecordID, doctorID, model.RoleViewer); err != nil {
		return nil, err
	}
	return s.results.ListByScan(ctx, scanID)
}

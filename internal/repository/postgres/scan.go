package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository"
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
)

type scanRepository struct {
	BaseRepository
}

func NewScanRepository(base BaseRepository) repository.ScanRepository {
	return &scanRepository{base}
}

func (r *scanRepository) Create(ctx context.Context, scan *model.Scan) error {
	query := `
		INSERT INTO scans (id, record_id, storage_uri, mimetype, checksum, metadata, uploaded_by, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.GetDB().ExecContext(ctx, query,
		scan.ID, scan.RecordID, scan.StorageURI, scan.Mimetype,
		scan.Checksum, scan.Metadata, scan.UploadedBy, scan.UploadedAt,
	); err != nil {
		return fmt.Errorf("failed to create scan: %w", err)
	}
	return nil
}

func (r *scanRepository) Get(ctx context.Context, id uuid.UUID) (*model.Scan, error) {
	var scan model.Scan
	query := `SELECT * FROM scans WHERE id = $1`
	if err := r.GetDB().GetContext(ctx, &scan, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("scan", err)
		}
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	return &scan, nil
}

func (r *scanRepository) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*model.Scan, error) {
	query := `SELECT * FROM scans WHERE record_id = $1 ORDER BY uploaded_at DESC`
	var scans []*model.Scan
	if err := r.GetDB().SelectContext(ctx, &scans, query, recordID); err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	return scans, nil
}

func (r *scanRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.GetDB().ExecContext(ctx, `DELETE FROM scans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scan: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("scan", nil)
	}
	return nil
}

type mlResultRepository struct {
	BaseRepository
}

func NewMLResultRepository(base BaseRepository) repository.MLResultRepository {
	return &mlResultRepository{base}
}

func (r *mlResultRepository) Create(ctx context.Context, result *model.MLResult) error {
	query := `
		INSERT INTO ml_results (id, scan_id, label, confidence, model_name, raw_response, requested_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.GetDB().ExecContext(ctx, query,
		result.ID, result.ScanID, result.Label, result.Confidence,
		result.ModelName, result.RawResponse, result.RequestedBy, result.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create ml result: %w", err)
	}
	return nil
}

func (r *mlResultRepository) ListByScan(ctx context.Context, scanID uuid.UUID) ([]*model.MLResult, error) {
	query := `SELECT * FROM ml_results WHERE scan_id = $1 ORDER BY created_at DESC`
	var results []*model.MLResult
	if err := r.GetDB().SelectContext(ctx, &results, query, scanID); err != nil {
		return nil, fmt.Errorf("failed to list ml results: %w", err)
	}
	return results, nil
}

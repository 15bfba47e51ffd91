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

type draftRepository struct {
	BaseRepository
}

func NewDraftRepository(base BaseRepository) repository.DraftRepository {
	return &draftRepository{base}
}

func (r *draftRepository) Upsert(ctx context.Context, draft *model.Draft) error {
	query := `
		INSERT INTO drafts (record_id, doctor_id, content_enc, content_iv, content_tag, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (record_id, doctor_id) DO UPDATE
		SET content_enc = $3, content_iv = $4, content_tag = $5, updated_at = $6
	`
	if _, err := r.GetDB().ExecContext(ctx, query,
		draft.RecordID, draft.DoctorID,
		draft.ContentEnc, draft.ContentIV, draft.ContentTag, draft.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert draft: %w", err)
	}
	return nil
}

func (r *draftRepository) Get(ctx context.Context, recordID, doctorID uuid.UUID) (*model.Draft, error) {
	var draft model.Draft
	query := `SELECT * FROM drafts WHERE record_id = $1 AND doctor_id = $2`
	if err := r.GetDB().GetContext(ctx, &draft, query, recordID, doctorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("draft", err)
		}
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return &draft, nil
}

func (r *draftRepository) Delete(ctx context.Context, recordID, doctorID uuid.UUID) error {
	query := `DELETE FROM drafts WHERE record_id = $1 AND doctor_id = $2`
	result, err := r.GetDB().ExecContext(ctx, query, recordID, doctorID)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("draft", nil)
	}
	return nil
}

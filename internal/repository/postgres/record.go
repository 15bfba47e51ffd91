package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository"
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
)

type recordRepository struct {
	BaseRepository
}

func NewRecordRepository(base BaseRepository) repository.RecordRepository {
	return &recordRepository{base}
}

func (r *recordRepository) Create(ctx context.Context, record *model.Record, key *model.RecordKey, grant *model.AccessGrant) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO records (id, anonymized_code, payload_enc, payload_iv, payload_tag, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		if _, err := tx.ExecContext(ctx, query,
			record.ID, record.AnonymizedCode,
			record.PayloadEnc, record.PayloadIV, record.PayloadTag,
			record.CreatedAt, record.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to create record: %w", err)
		}

		if err := insertRecordKey(ctx, tx, key); err != nil {
			return err
		}
		return insertGrant(ctx, tx, grant)
	})
}

func (r *recordRepository) Get(ctx context.Context, id uuid.UUID) (*model.Record, error) {
	var record model.Record
	query := `SELECT * FROM records WHERE id = $1`
	if err := r.GetDB().GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("record", err)
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &record, nil
}

func (r *recordRepository) UpdatePayload(ctx context.Context, id uuid.UUID, sealed model.Record) error {
	// Ciphertext, IV and tag are one blob: always replaced together.
	query := `
		UPDATE records
		SET payload_enc = $2, payload_iv = $3, payload_tag = $4, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.GetDB().ExecContext(ctx, query,
		id, sealed.PayloadEnc, sealed.PayloadIV, sealed.PayloadTag,
	)
	if err != nil {
		return fmt.Errorf("failed to update record payload: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("record", nil)
	}
	return nil
}

func (r *recordRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, query := range []string{
			`DELETE FROM drafts WHERE record_id = $1`,
			`DELETE FROM record_keys WHERE record_id = $1`,
			`DELETE FROM record_access WHERE record_id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, query, id); err != nil {
				return fmt.Errorf("failed to cascade record delete: %w", err)
			}
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete record: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return apperrors.NotFound("record", nil)
		}
		return nil
	})
}

func (r *recordRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, p model.Pagination) ([]*model.RecordSummary, error) {
	p = p.Normalize()
	query := `
		SELECT r.id, r.anonymized_code, a.role, r.created_at, r.updated_at
		FROM records r
		JOIN record_access a ON a.record_id = r.id
		WHERE a.doctor_id = $1
		ORDER BY r.created_at DESC
		LIMIT $2 OFFSET $3
	`
	var records []*model.RecordSummary
	if err := r.GetDB().SelectContext(ctx, &records, query, doctorID, p.PageSize, p.Page*p.PageSize); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

func (r *recordRepository) GetKey(ctx context.Context, recordID, doctorID uuid.UUID) (*model.RecordKey, error) {
	var key model.RecordKey
	query := `SELECT * FROM record_keys WHERE record_id = $1 AND doctor_id = $2`
	if err := r.GetDB().GetContext(ctx, &key, query, recordID, doctorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("record key", err)
		}
		return nil, fmt.Errorf("failed to get record key: %w", err)
	}
	return &key, nil
}

func (r *recordRepository) RoleOf(ctx context.Context, recordID, doctorID uuid.UUID) (model.Role, bool, error) {
	var role model.Role
	query := `SELECT role FROM record_access WHERE record_id = $1 AND doctor_id = $2`
	if err := r.GetDB().GetContext(ctx, &role, query, recordID, doctorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get role: %w", err)
	}
	return role, true, nil
}

func (r *recordRepository) CreateGrantWithKey(ctx context.Context, grant *model.AccessGrant, key *model.RecordKey) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertGrant(ctx, tx, grant); err != nil {
			return err
		}
		return insertRecordKey(ctx, tx, key)
	})
}

func (r *recordRepository) DeleteGrantWithKey(ctx context.Context, recordID, doctorID uuid.UUID) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM drafts WHERE record_id = $1 AND doctor_id = $2`, recordID, doctorID,
		); err != nil {
			return fmt.Errorf("failed to delete draft: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			`DELETE FROM record_access WHERE record_id = $1 AND doctor_id = $2`, recordID, doctorID,
		)
		if err != nil {
			return fmt.Errorf("failed to delete grant: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return apperrors.NotFound("access grant", nil)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM record_keys WHERE record_id = $1 AND doctor_id = $2`, recordID, doctorID,
		); err != nil {
			return fmt.Errorf("failed to delete record key: %w", err)
		}
		return nil
	})
}

func (r *recordRepository) UpdateGrantRole(ctx context.Context, recordID, doctorID uuid.UUID, role model.Role) error {
	query := `UPDATE record_access SET role = $3 WHERE record_id = $1 AND doctor_id = $2`
	result, err := r.GetDB().ExecContext(ctx, query, recordID, doctorID, role)
	if err != nil {
		return fmt.Errorf("failed to update grant role: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("access grant", nil)
	}
	return nil
}

func (r *recordRepository) ListAccess(ctx context.Context, recordID uuid.UUID) ([]*model.AccessEntry, error) {
	query := `
		SELECT a.doctor_id, d.full_name AS doctor_name, d.email AS doctor_email,
		       a.role, a.granted_by, a.granted_at
		FROM record_access a
		JOIN doctors d ON d.id = a.doctor_id
		WHERE a.record_id = $1
		ORDER BY a.granted_at
	`
	var entries []*model.AccessEntry
	if err := r.GetDB().SelectContext(ctx, &entries, query, recordID); err != nil {
		return nil, fmt.Errorf("failed to list access: %w", err)
	}
	return entries, nil
}

func (r *recordRepository) CountOwners(ctx context.Context, recordID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM record_access WHERE record_id = $1 AND role = 'owner'`
	if err := r.GetDB().GetContext(ctx, &count, query, recordID); err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return count, nil
}

func insertRecordKey(ctx context.Context, tx *sqlx.Tx, key *model.RecordKey) error {
	query := `
		INSERT INTO record_keys (record_id, doctor_id, wrapping_scheme, dek_enc, dek_iv, dek_tag)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.ExecContext(ctx, query,
		key.RecordID, key.DoctorID, key.WrappingScheme,
		key.DEKEnc, key.DEKIV, key.DEKTag,
	); err != nil {
		return fmt.Errorf("failed to create record key: %w", err)
	}
	return nil
}

func insertGrant(ctx context.Context, tx *sqlx.Tx, grant *model.AccessGrant) error {
	query := `
		INSERT INTO record_access (record_id, doctor_id, role, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.ExecContext(ctx, query,
		grant.RecordID, grant.DoctorID, grant.Role, grant.GrantedBy, grant.GrantedAt,
	); err != nil {
		return fmt.Errorf("failed to create grant: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository"
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
)

type doctorRepository struct {
	BaseRepository
}

func NewDoctorRepository(base BaseRepository) repository.DoctorRepository {
	return &doctorRepository{base}
}

func (r *doctorRepository) Create(ctx context.Context, doctor *model.Doctor, cred *model.Credential, keys *model.DoctorKeyPair) error {
	params, err := json.Marshal(keys.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal key params: %w", err)
	}

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO doctors (id, email, full_name, phone, is_active, created_at, updated_at)
			VALUES ($1, lower($2), $3, $4, $5, $6, $7)
		`
		if _, err := tx.ExecContext(ctx, query,
			doctor.ID, doctor.Email, doctor.FullName, doctor.Phone,
			doctor.IsActive, doctor.CreatedAt, doctor.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to create doctor: %w", err)
		}

		query = `
			INSERT INTO doctor_credentials (doctor_id, password_hash, mfa_enabled, mfa_secret)
			VALUES ($1, $2, $3, $4)
		`
		if _, err := tx.ExecContext(ctx, query,
			cred.DoctorID, cred.PasswordHash, cred.MFAEnabled, cred.MFASecret,
		); err != nil {
			return fmt.Errorf("failed to create credential: %w", err)
		}

		query = `
			INSERT INTO doctor_keys (
				doctor_id, public_key, private_key_enc, private_key_iv,
				private_key_tag, kdf_salt, kek_params, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		if _, err := tx.ExecContext(ctx, query,
			keys.DoctorID, keys.PublicKey, keys.PrivateKeyEnc, keys.PrivateKeyIV,
			keys.PrivateKeyTag, keys.KDFSalt, params, keys.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to create key pair: %w", err)
		}

		return nil
	})
}

func (r *doctorRepository) Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	var doctor model.Doctor
	query := `SELECT * FROM doctors WHERE id = $1`
	if err := r.GetDB().GetContext(ctx, &doctor, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("doctor", err)
		}
		return nil, fmt.Errorf("failed to get doctor: %w", err)
	}
	return &doctor, nil
}

func (r *doctorRepository) GetByEmail(ctx context.Context, email string) (*model.Doctor, error) {
	var doctor model.Doctor
	query := `SELECT * FROM doctors WHERE email = lower($1)`
	if err := r.GetDB().GetContext(ctx, &doctor, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("doctor", err)
		}
		return nil, fmt.Errorf("failed to get doctor by email: %w", err)
	}
	return &doctor, nil
}

func (r *doctorRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`
	if err := r.GetDB().GetContext(ctx, &exists, query, id); err != nil {
		return false, fmt.Errorf("failed to check doctor existence: %w", err)
	}
	return exists, nil
}

func (r *doctorRepository) GetCredential(ctx context.Context, doctorID uuid.UUID) (*model.Credential, error) {
	var cred model.Credential
	query := `SELECT * FROM doctor_credentials WHERE doctor_id = $1`
	if err := r.GetDB().GetContext(ctx, &cred, query, doctorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("credential", err)
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &cred, nil
}

func (r *doctorRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `UPDATE doctors SET is_active = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.GetDB().ExecContext(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("failed to update doctor status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("doctor", nil)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository"
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
)

type keyPairRepository struct {
	BaseRepository
}

func NewKeyPairRepository(base BaseRepository) repository.KeyPairRepository {
	return &keyPairRepository{base}
}

func (r *keyPairRepository) Create(ctx context.Context, keys *model.DoctorKeyPair) error {
	params, err := json.Marshal(keys.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal key params: %w", err)
	}

	query := `
		INSERT INTO doctor_keys (
			doctor_id, public_key, private_key_enc, private_key_iv,
			private_key_tag, kdf_salt, kek_params, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.GetDB().ExecContext(ctx, query,
		keys.DoctorID, keys.PublicKey, keys.PrivateKeyEnc, keys.PrivateKeyIV,
		keys.PrivateKeyTag, keys.KDFSalt, params, keys.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create key pair: %w", err)
	}
	return nil
}

func (r *keyPairRepository) Get(ctx context.Context, doctorID uuid.UUID) (*model.DoctorKeyPair, error) {
	var keys model.DoctorKeyPair
	query := `SELECT * FROM doctor_keys WHERE doctor_id = $1`
	if err := r.GetDB().GetContext(ctx, &keys, query, doctorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("key pair", err)
		}
		return nil, fmt.Errorf("failed to get key pair: %w", err)
	}
	if err := json.Unmarshal(keys.ParamsJSON, &keys.Params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key params: %w", err)
	}
	return &keys, nil
}

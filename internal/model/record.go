package model

import (
	"time"

	"github.com/google/uuid"
)

// Record is an encrypted patient record. The three payload fields form one
// AEAD blob and are always replaced together, never individually.
type Record struct {
	Base
	AnonymizedCode string `json:"anonymized_code" db:"anonymized_code"`
	PayloadEnc     []byte `json:"-" db:"payload_enc"`
	PayloadIV      []byte `json:"-" db:"payload_iv"`
	PayloadTag     []byte `json:"-" db:"payload_tag"`
}

// RecordKey is one doctor's wrapped copy of a record's data-encryption key,
// keyed by (record_id, doctor_id). Every RecordKey row for a record unwraps
// to the same DEK, and a row exists iff the matching AccessGrant exists.
type RecordKey struct {
	RecordID       uuid.UUID `json:"record_id" db:"record_id"`
	DoctorID       uuid.UUID `json:"doctor_id" db:"doctor_id"`
	WrappingScheme string    `json:"wrapping_scheme" db:"wrapping_scheme"`
	DEKEnc         []byte    `json:"-" db:"dek_enc"`
	DEKIV          []byte    `json:"-" db:"dek_iv"`
	DEKTag         []byte    `json:"-" db:"dek_tag"`
}

// RecordSummary is the list view of a record: no payload, just identity
// and the caller's role.
type RecordSummary struct {
	ID             uuid.UUID `json:"id" db:"id"`
	AnonymizedCode string    `json:"anonymized_code" db:"anonymized_code"`
	Role           Role      `json:"access_role" db:"role"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

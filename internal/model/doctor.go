package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Doctor is the caller identity for every vault operation. Deactivation is a
// state flip; rows are never deleted while referenced by grants or sessions.
type Doctor struct {
	Base
	Email    string `json:"email" db:"email"`
	FullName string `json:"full_name" db:"full_name"`
	Phone    string `json:"phone,omitempty" db:"phone"`
	IsActive bool   `json:"is_active" db:"is_active"`
}

// Credential holds the doctor's login secrets, 1:1 with Doctor.
type Credential struct {
	DoctorID     uuid.UUID  `json:"doctor_id" db:"doctor_id"`
	PasswordHash string     `json:"-" db:"password_hash"`
	MFAEnabled   bool       `json:"mfa_enabled" db:"mfa_enabled"`
	MFASecret    *string    `json:"-" db:"mfa_secret"`
	LastResetAt  *time.Time `json:"last_reset_at,omitempty" db:"last_reset_at"`
}

// KeyParams records how the private key's wrapping key is derived. Stored
// per row so parameters can evolve without invalidating old key pairs.
type KeyParams struct {
	Algorithm   string `json:"algorithm"`
	Memory      uint32 `json:"memory"`
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
	KeyLength   uint32 `json:"key_length"`
}

// DoctorKeyPair is the doctor's asymmetric key material, 1:1 with Doctor.
// The private key is stored sealed under a KEK derived from the doctor's
// credential secret; it is never persisted in recoverable plaintext.
type DoctorKeyPair struct {
	DoctorID      uuid.UUID       `json:"doctor_id" db:"doctor_id"`
	PublicKey     []byte          `json:"public_key" db:"public_key"`
	PrivateKeyEnc []byte          `json:"-" db:"private_key_enc"`
	PrivateKeyIV  []byte          `json:"-" db:"private_key_iv"`
	PrivateKeyTag []byte          `json:"-" db:"private_key_tag"`
	KDFSalt       []byte          `json:"-" db:"kdf_salt"`
	ParamsJSON    json.RawMessage `json:"-" db:"kek_params"`
	Params        KeyParams       `json:"kek_params"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

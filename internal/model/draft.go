package model

import (
	"time"

	"github.com/google/uuid"
)

// Draft is a doctor's unsaved interpretation notes for a record, keyed by
// (record_id, doctor_id) and encrypted under the record's DEK so a revoked
// doctor loses the draft along with the record.
type Draft struct {
	RecordID   uuid.UUID `json:"record_id" db:"record_id"`
	DoctorID   uuid.UUID `json:"doctor_id" db:"doctor_id"`
	ContentEnc []byte    `json:"-" db:"content_enc"`
	ContentIV  []byte    `json:"-" db:"content_iv"`
	ContentTag []byte    `json:"-" db:"content_tag"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

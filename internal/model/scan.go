package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Scan is the metadata row for one uploaded ECG image. The bytes live in an
// opaque content-addressed blob store; StorageURI is the only handle.
type Scan struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	RecordID   uuid.UUID       `json:"record_id" db:"record_id"`
	StorageURI string          `json:"storage_uri" db:"storage_uri"`
	Mimetype   string          `json:"mimetype" db:"mimetype"`
	Checksum   string          `json:"checksum" db:"checksum"`
	Metadata   json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	UploadedBy uuid.UUID       `json:"uploaded_by" db:"uploaded_by"`
	UploadedAt time.Time       `json:"uploaded_at" db:"uploaded_at"`
}

// MLResult is one inference outcome for a scan.
type MLResult struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	ScanID      uuid.UUID       `json:"scan_id" db:"scan_id"`
	Label       string          `json:"label" db:"label"`
	Confidence  float64         `json:"confidence" db:"confidence"`
	ModelName   string          `json:"model_name" db:"model_name"`
	RawResponse json.RawMessage `json:"raw_response,omitempty" db:"raw_response"`
	RequestedBy uuid.UUID       `json:"requested_by" db:"requested_by"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

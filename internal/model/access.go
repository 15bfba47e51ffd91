package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the per-record access role. Roles are totally ordered for minimum
// checks (owner > editor > viewer); only owner may administer grants.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleOwner:  3,
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleRank[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r meets the given minimum in the role order.
func (r Role) AtLeast(minimum Role) bool {
	return roleRank[r] >= roleRank[minimum]
}

// AccessGrant gives one doctor a role on one record, keyed by
// (record_id, doctor_id). A grant exists iff the matching RecordKey exists;
// the two are created and destroyed in the same transaction.
type AccessGrant struct {
	RecordID  uuid.UUID `json:"record_id" db:"record_id"`
	DoctorID  uuid.UUID `json:"doctor_id" db:"doctor_id"`
	Role      Role      `json:"role" db:"role"`
	GrantedBy uuid.UUID `json:"granted_by" db:"granted_by"`
	GrantedAt time.Time `json:"granted_at" db:"granted_at"`
}

// AccessEntry is a grant joined with the grantee's identity for listing.
type AccessEntry struct {
	DoctorID    uuid.UUID `json:"doctor_id" db:"doctor_id"`
	DoctorName  string    `json:"doctor_name" db:"doctor_name"`
	DoctorEmail string    `json:"doctor_email" db:"doctor_email"`
	Role        Role      `json:"role" db:"role"`
	GrantedBy   uuid.UUID `json:"granted_by" db:"granted_by"`
	GrantedAt   time.Time `json:"granted_at" db:"granted_at"`
}

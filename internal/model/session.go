package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionEndReason records how a session was terminated.
type SessionEndReason string

const (
	SessionEndLogout  SessionEndReason = "logout"
	SessionEndTimeout SessionEndReason = "timeout"
)

// Session is one authenticated login. Lifecycle: created Active, transitions
// exactly once to LoggedOut or TimedOut and cannot be reopened.
type Session struct {
	ID             uuid.UUID         `json:"id" db:"id"`
	DoctorID       uuid.UUID         `json:"doctor_id" db:"doctor_id"`
	LoginAt        time.Time         `json:"login_at" db:"login_at"`
	LastActivityAt time.Time         `json:"last_activity_at" db:"last_activity_at"`
	LogoutAt       *time.Time        `json:"logout_at,omitempty" db:"logout_at"`
	EndedBy        *SessionEndReason `json:"ended_by,omitempty" db:"ended_by"`
	IPAddress      string            `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent      string            `json:"user_agent,omitempty" db:"user_agent"`
}

func (s *Session) Active() bool {
	return s.LogoutAt == nil
}

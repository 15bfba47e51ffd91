package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository"
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
)

type sessionRepository struct {
	BaseRepository
}

func NewSessionRepository(base BaseRepository) repository.SessionRepository {
	return &sessionRepository{base}
}

func (r *sessionRepository) Create(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO sessions (id, doctor_id, login_at, last_activity_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.GetDB().ExecContext(ctx, query,
		session.ID, session.DoctorID, session.LoginAt, session.LastActivityAt,
		session.IPAddress, session.UserAgent,
	); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *sessionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	var session model.Session
	query := `SELECT * FROM sessions WHERE id = $1`
	if err := r.GetDB().GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("session", err)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (r *sessionRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE sessions SET last_activity_at = $2 WHERE id = $1 AND logout_at IS NULL`
	if _, err := r.GetDB().ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (r *sessionRepository) End(ctx context.Context, id, doctorID uuid.UUID, at time.Time, reason model.SessionEndReason) (bool, error) {
	// The logout_at IS NULL guard makes the transition one-shot: an ended
	// session can never be reopened or re-ended.
	query := `
		UPDATE sessions
		SET logout_at = $3, ended_by = $4
		WHERE id = $1 AND doctor_id = $2 AND logout_at IS NULL
	`
	result, err := r.GetDB().ExecContext(ctx, query, id, doctorID, at, reason)
	if err != nil {
		return false, fmt.Errorf("failed to end session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *sessionRepository) TimeoutIdle(ctx context.Context, lastActivityBefore time.Time) (int64, error) {
	query := `
		UPDATE sessions
		SET logout_at = NOW(), ended_by = $2
		WHERE logout_at IS NULL AND last_activity_at < $1
	`
	result, err := r.GetDB().ExecContext(ctx, query, lastActivityBefore, model.SessionEndTimeout)
	if err != nil {
		return 0, fmt.Errorf("failed to time out sessions: %w", err)
	}
	return result.RowsAffected()
}

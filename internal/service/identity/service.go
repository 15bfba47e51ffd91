// Package identity covers registration, login sessions and token issuance.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository"
	"github.com/ecgcare/vault-api/internal/service/audit"
	"github.com/ecgcare/vault-api/internal/service/keys"
	"github.com/ecgcare/vault-api/pkg/auth"
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
	"github.com/ecgcare/vault-api/pkg/security"
)

// RequestMeta carries transport-level context recorded on the session.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type Service struct {
	doctors  repository.DoctorRepository
	sessions repository.SessionRepository
	keys     *keys.Service
	hasher   security.PasswordHasher
	jwt      auth.JWTService
	auditor  *audit.Service
}

func NewService(
	doctors repository.DoctorRepository,
	sessions repository.SessionRepository,
	keySvc *keys.Service,
	hasher security.PasswordHasher,
	jwtSvc auth.JWTService,
	auditor *audit.Service,
) *Service {
	return &Service{
		doctors:  doctors,
		sessions: sessions,
		keys:     keySvc,
		hasher:   hasher,
		jwt:      jwtSvc,
		auditor:  auditor,
	}
}

// Register creates a doctor with credentials and a fresh key pair in one
// transaction. The password doubles as the secret the private-key KEK is
// derived from, so key material is usable from the first login.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.Doctor, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := s.doctors.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.Conflict("email already registered", nil)
	} else if apperrors.CodeOf(err) != apperrors.ErrNotFound {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperrors.BadRequest("invalid password", err)
	}

	now := time.Now()
	doctor := &model.Doctor{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Email:    email,
		FullName: req.FullName,
		Phone:    req.Phone,
		IsActive: true,
	}
	cred := &model.Credential{
		DoctorID:     doctor.ID,
		PasswordHash: hash,
	}

	keyPair, err := s.keys.GenerateKeyPair(doctor.ID, req.Password)
	if err != nil {
		return nil, err
	}

	if err := s.doctors.Create(ctx, doctor, cred, keyPair); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, doctor.ID, model.AuditActionRegister, model.AuditEntityDoctor, doctor.ID, nil)
	return doctor, nil
}

// Login verifies credentials, opens a session and issues a token pair bound
// to it. Every failure mode reads the same to the caller.
func (s *Service) Login(ctx context.Context, req *model.LoginRequest, meta RequestMeta) (*model.TokenResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	doctor, err := s.doctors.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	if !doctor.IsActive {
		return nil, apperrors.Unauthorized(errors.New("account deactivated"))
	}

	cred, err := s.doctors.GetCredential(ctx, doctor.ID)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	if err := s.hasher.Compare(cred.PasswordHash, req.Password); err != nil {
		return nil, apperrors.Unauthorized(errors.New("invalid credentials"))
	}

	now := time.Now()
	session := &model.Session{
		ID:             uuid.New(),
		DoctorID:       doctor.ID,
		LoginAt:        now,
		LastActivityAt: now,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	tokens, err := s.issueTokens(doctor.ID, doctor.Email, session.ID)
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, doctor.ID, model.AuditActionLogin, model.AuditEntitySession, session.ID, &audit.LogOptions{
		SessionID: &session.ID,
	})
	return tokens, nil
}

// Refresh exchanges a valid refresh token for a new token pair. The session
// the token was issued for must still be active; a refresh token cannot
// resurrect a logged-out or timed-out session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.TokenResponse, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	doctorID, err := claims.DoctorID()
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}

	session, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	if session.DoctorID != doctorID || !session.Active() {
		return nil, apperrors.Unauthorized(errors.New("session ended"))
	}

	doctor, err := s.doctors.Get(ctx, doctorID)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	if !doctor.IsActive {
		return nil, apperrors.Unauthorized(errors.New("account deactivated"))
	}

	if err := s.sessions.Touch(ctx, session.ID, time.Now()); err != nil {
		return nil, err
	}
	return s.issueTokens(doctor.ID, doctor.Email, session.ID)
}

// Verify validates an access token and checks its session is still live.
// Called on every authenticated request; it also counts as activity.
func (s *Service) Verify(ctx context.Context, accessToken string) (*auth.Claims, error) {
	claims, err := s.jwt.ValidateToken(accessToken)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	doctorID, err := claims.DoctorID()
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}

	session, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	if session.DoctorID != doctorID || !session.Active() {
		return nil, apperrors.Unauthorized(errors.New("session ended"))
	}

	if err := s.sessions.Touch(ctx, session.ID, time.Now()); err != nil {
		return nil, err
	}
	return claims, nil
}

// Logout ends the session. Idempotent: logging out an already-ended session
// succeeds without effect.
func (s *Service) Logout(ctx context.Context, doctorID, sessionID uuid.UUID) error {
	ended, err := s.sessions.End(ctx, sessionID, doctorID, time.Now(), model.SessionEndLogout)
	if err != nil {
		return err
	}
	if ended {
		s.auditor.Log(ctx, doctorID, model.AuditActionLogout, model.AuditEntitySession, sessionID, &audit.LogOptions{
			SessionID: &sessionID,
		})
	}
	return nil
}

// Me returns the caller's own profile.
func (s *Service) Me(ctx context.Context, doctorID uuid.UUID) (*model.Doctor, error) {
	return s.doctors.Get(ctx, doctorID)
}

func (s *Service) issueTokens(doctorID uuid.UUID, email string, sessionID uuid.UUID) (*model.TokenResponse, error) {
	access, err := s.jwt.GenerateAccessToken(doctorID, email, sessionID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to issue access token: %w", err))
	}
	refresh, err := s.jwt.GenerateRefreshToken(doctorID, sessionID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to issue refresh token: %w", err))
	}
	return &model.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.jwt.AccessTTL().Seconds()),
		SessionID:    sessionID,
	}, nil
}

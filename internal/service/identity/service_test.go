package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository/memory"
	"github.com/ecgcare/vault-api/internal/service/audit"
	"github.com/ecgcare/vault-api/internal/service/identity"
	"github.com/ecgcare/vault-api/internal/service/keys"
	"github.com/ecgcare/vault-api/pkg/auth"
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
	"github.com/ecgcare/vault-api/pkg/security"
)

type fixture struct {
	svc      *identity.Service
	doctors  *memory.DoctorRepository
	sessions *memory.SessionRepository
	jwt      auth.JWTService
}

func newFixture() *fixture {
	keyPairs := memory.NewKeyPairRepository()
	doctors := memory.NewDoctorRepository(keyPairs)
	sessions := memory.NewSessionRepository()

	keySvc := keys.NewService(keyPairs, model.KeyParams{
		Algorithm:   "argon2id",
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		KeyLength:   32,
	})
	jwtSvc := auth.NewJWTService(auth.Config{
		Secret: "test-secret",
		Issuer: "vault-api-test",
	})
	hasher := security.NewBcryptHasher(4)
	auditor := audit.NewService(memory.NewAuditRepository(), nil, nil)

	return &fixture{
		svc:      identity.NewService(doctors, sessions, keySvc, hasher, jwtSvc, auditor),
		doctors:  doctors,
		sessions: sessions,
		jwt:      jwtSvc,
	}
}

func registerRequest(email string) *model.RegisterRequest {
	return &model.RegisterRequest{
		Email:    email,
		Password: "correct horse battery",
		FullName: "Dr. Test",
	}
}

func TestRegister(t *testing.T) {
	f := newFixture()

	doctor, err := f.svc.Register(context.Background(), registerRequest("Alice@Clinic.Test"))
	require.NoError(t, err)
	assert.Equal(t, "alice@clinic.test", doctor.Email)
	assert.True(t, doctor.IsActive)

	// Credential stored hashed, key pair provisioned atomically.
	cred, err := f.doctors.GetCredential(context.Background(), doctor.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery", cred.PasswordHash)

	// Duplicate email conflicts, case-insensitively.
	_, err = f.svc.Register(context.Background(), registerRequest("alice@clinic.test"))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestLoginAndVerify(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Register(context.Background(), registerRequest("alice@clinic.test"))
	require.NoError(t, err)

	tokens, err := f.svc.Login(context.Background(), &model.LoginRequest{
		Email:    "alice@clinic.test",
		Password: "correct horse battery",
	}, identity.RequestMeta{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.NotEqual(t, uuid.Nil, tokens.SessionID)

	claims, err := f.svc.Verify(context.Background(), tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, tokens.SessionID, claims.SessionID)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	f := newFixture()
	doctor, err := f.svc.Register(context.Background(), registerRequest("alice@clinic.test"))
	require.NoError(t, err)

	// Wrong password and unknown email read the same.
	_, err = f.svc.Login(context.Background(), &model.LoginRequest{Email: "alice@clinic.test", Password: "wrong password"}, identity.RequestMeta{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))

	_, err = f.svc.Login(context.Background(), &model.LoginRequest{Email: "nobody@clinic.test", Password: "whatever12"}, identity.RequestMeta{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))

	// Deactivated account too.
	require.NoError(t, f.doctors.SetActive(context.Background(), doctor.ID, false))
	_, err = f.svc.Login(context.Background(), &model.LoginRequest{Email: "alice@clinic.test", Password: "correct horse battery"}, identity.RequestMeta{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
}

func TestRefresh(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Register(context.Background(), registerRequest("alice@clinic.test"))
	require.NoError(t, err)

	tokens, err := f.svc.Login(context.Background(), &model.LoginRequest{
		Email:    "alice@clinic.test",
		Password: "correct horse battery",
	}, identity.RequestMeta{})
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(context.Background(), tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Equal(t, tokens.SessionID, refreshed.SessionID)

	// An access token is not a refresh token.
	_, err = f.svc.Refresh(context.Background(), tokens.AccessToken)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
}

func TestRefreshAfterLogout(t *testing.T) {
	f := newFixture()
	doctor, err := f.svc.Register(context.Background(), registerRequest("alice@clinic.test"))
	require.NoError(t, err)

	tokens, err := f.svc.Login(context.Background(), &model.LoginRequest{
		Email:    "alice@clinic.test",
		Password: "correct horse battery",
	}, identity.RequestMeta{})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(context.Background(), doctor.ID, tokens.SessionID))

	// A refresh token cannot resurrect an ended session.
	_, err = f.svc.Refresh(context.Background(), tokens.RefreshToken)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))

	// Access token is dead too.
	_, err = f.svc.Verify(context.Background(), tokens.AccessToken)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
}

func TestLogoutIdempotent(t *testing.T) {
	f := newFixture()
	doctor, err := f.svc.Register(context.Background(), registerRequest("alice@clinic.test"))
	require.NoError(t, err)

	tokens, err := f.svc.Login(context.Background(), &model.LoginRequest{
		Email:    "alice@clinic.test",
		Password: "correct horse battery",
	}, identity.RequestMeta{})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(context.Background(), doctor.ID, tokens.SessionID))
	require.NoError(t, f.svc.Logout(context.Background(), doctor.ID, tokens.SessionID))

	session, err := f.sessions.Get(context.Background(), tokens.SessionID)
	require.NoError(t, err)
	require.NotNil(t, session.EndedBy)
	assert.Equal(t, model.SessionEndLogout, *session.EndedBy)
}

func TestVerifyExpiredToken(t *testing.T) {
	f := newFixture()
	doctor, err := f.svc.Register(context.Background(), registerRequest("alice@clinic.test"))
	require.NoError(t, err)

	// Sign an already-expired token with the fixture's secret and issuer.
	now := time.Now()
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   doctor.ID.String(),
			Issuer:    "vault-api-test",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		},
		SessionID: uuid.New(),
	})
	token, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = f.svc.Verify(context.Background(), token)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
}

func TestVerifyTamperedToken(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Register(context.Background(), registerRequest("alice@clinic.test"))
	require.NoError(t, err)

	tokens, err := f.svc.Login(context.Background(), &model.LoginRequest{
		Email:    "alice@clinic.test",
		Password: "correct horse battery",
	}, identity.RequestMeta{})
	require.NoError(t, err)

	_, err = f.svc.Verify(context.Background(), tokens.AccessToken+"tampered")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
}

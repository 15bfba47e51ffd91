package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() JWTService {
	return NewJWTService(Config{
		Secret: "unit-test-secret",
		Issuer: "vault-api-test",
	})
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := newTestService()
	doctorID := uuid.New()
	sessionID := uuid.New()

	token, err := svc.GenerateAccessToken(doctorID, "doc@clinic.test", sessionID)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, sessionID, claims.SessionID)
	assert.Equal(t, "doc@clinic.test", claims.Email)

	parsed, err := claims.DoctorID()
	require.NoError(t, err)
	assert.Equal(t, doctorID, parsed)
}

func TestRefreshTokenTypeEnforced(t *testing.T) {
	svc := newTestService()
	doctorID := uuid.New()
	sessionID := uuid.New()

	refresh, err := svc.GenerateRefreshToken(doctorID, sessionID)
	require.NoError(t, err)
	access, err := svc.GenerateAccessToken(doctorID, "doc@clinic.test", sessionID)
	require.NoError(t, err)

	// A refresh token never passes as an access token, and vice versa.
	_, err = svc.ValidateToken(refresh)
	assert.Error(t, err)
	_, err = svc.ValidateRefreshToken(access)
	assert.Error(t, err)

	claims, err := svc.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, sessionID, claims.SessionID)
}

func TestWrongSecretRejected(t *testing.T) {
	svc := newTestService()
	other := NewJWTService(Config{Secret: "different-secret", Issuer: "vault-api-test"})

	token, err := svc.GenerateAccessToken(uuid.New(), "doc@clinic.test", uuid.New())
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestWrongIssuerRejected(t *testing.T) {
	svc := newTestService()
	other := NewJWTService(Config{Secret: "unit-test-secret", Issuer: "someone-else"})

	token, err := other.GenerateAccessToken(uuid.New(), "doc@clinic.test", uuid.New())
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestDefaultTTLs(t *testing.T) {
	svc := NewJWTService(Config{Secret: "s", Issuer: "i"})
	assert.Equal(t, 15*time.Minute, svc.AccessTTL())
}

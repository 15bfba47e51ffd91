package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenTypeRefresh = "refresh"

// Claims are the verified contents of a bearer token. Subject is the doctor
// id; every token is bound to the session it was issued for.
type Claims struct {
	jwt.RegisteredClaims
	SessionID uuid.UUID `json:"session_id"`
	Email     string    `json:"email,omitempty"`
	TokenType string    `json:"type,omitempty"`
}

func (c *Claims) DoctorID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// JWTService issues and validates session-bound bearer tokens.
type JWTService interface {
	GenerateAccessToken(doctorID uuid.UUID, email string, sessionID uuid.UUID) (string, error)
	GenerateRefreshToken(doctorID, sessionID uuid.UUID) (string, error)
	ValidateToken(token string) (*Claims, error)
	ValidateRefreshToken(token string) (*Claims, error)
	AccessTTL() time.Duration
}

type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type hmacService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewJWTService(cfg Config) JWTService {
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &hmacService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (s *hmacService) AccessTTL() time.Duration {
	return s.accessTTL
}

func (s *hmacService) GenerateAccessToken(doctorID uuid.UUID, email string, sessionID uuid.UUID) (string, error) {
	return s.sign(&Claims{
		RegisteredClaims: s.registered(doctorID, s.accessTTL),
		SessionID:        sessionID,
		Email:            email,
	})
}

func (s *hmacService) GenerateRefreshToken(doctorID, sessionID uuid.UUID) (string, error) {
	return s.sign(&Claims{
		RegisteredClaims: s.registered(doctorID, s.refreshTTL),
		SessionID:        sessionID,
		TokenType:        tokenTypeRefresh,
	})
}

func (s *hmacService) ValidateToken(token string) (*Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}
	// A refresh token must never pass as an access token.
	if claims.TokenType == tokenTypeRefresh {
		return nil, fmt.Errorf("refresh token used as access token")
	}
	return claims, nil
}

func (s *hmacService) ValidateRefreshToken(token string) (*Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeRefresh {
		return nil, fmt.Errorf("not a refresh token")
	}
	return claims, nil
}

func (s *hmacService) registered(doctorID uuid.UUID, ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   doctorID.String(),
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (s *hmacService) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *hmacService) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

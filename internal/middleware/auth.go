package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ecgcare/vault-api/internal/handler"
	"github.com/ecgcare/vault-api/internal/service/identity"
)

const (
	ContextDoctorID  = "doctorID"
	ContextSessionID = "sessionID"
)

type AuthMiddleware struct {
	identity *identity.Service
}

func NewAuthMiddleware(identitySvc *identity.Service) *AuthMiddleware {
	return &AuthMiddleware{identity: identitySvc}
}

// Authenticate verifies the bearer token and its session, then sets doctor
// and session IDs in the request context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			c.Abort()
			return
		}

		claims, err := m.identity.Verify(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication failed"))
			c.Abort()
			return
		}

		doctorID, err := claims.DoctorID()
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication failed"))
			c.Abort()
			return
		}

		c.Set(ContextDoctorID, doctorID)
		c.Set(ContextSessionID, claims.SessionID)
		c.Next()
	}
}

// DoctorID reads the authenticated doctor from the gin context.
func DoctorID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextDoctorID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// SessionID reads the authenticated session from the gin context.
func SessionID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextSessionID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

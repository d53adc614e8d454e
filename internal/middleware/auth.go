package middleware

import (
	"errors"
	"net/http"
	"strings"

	"edu-notify/internal/models"
	"edu-notify/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// Context keys set by AuthMiddleware.
const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
	ContextRole      = "role"
)

func AuthMiddleware(jwtManager *auth.JWTManager, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.WithField("ip", c.ClientIP()).Warn("missing authorization header")
			abortUnauthorized(c, "Authorization header is required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			log.WithField("ip", c.ClientIP()).Warn("invalid authorization header format")
			abortUnauthorized(c, "Invalid authorization header format")
			return
		}

		claims, err := jwtManager.ValidateToken(parts[1])
		if err != nil {
			entry := log.WithField("ip", c.ClientIP())
			if errors.Is(err, jwt.ErrTokenExpired) {
				entry.Warn("access attempt with expired token")
			} else {
				entry.Warn("access attempt with invalid token")
			}
			abortUnauthorized(c, "Invalid token")
			return
		}

		role, ok := models.ParseRole(claims.Role)
		if !ok {
			abortUnauthorized(c, "Invalid user role")
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Email)
		c.Set(ContextRole, role.String())

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// UserID returns the authenticated user id, or "" outside AuthMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func Role(c *gin.Context) models.UserRole {
	return models.UserRole(c.GetString(ContextRole))
}

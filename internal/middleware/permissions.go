// internal/middleware/permissions.go

package middleware

import (
	"net/http"

	"edu-notify/internal/models"

	"github.com/gin-gonic/gin"
)

// RequireRole lets the request through only when the caller's role ranks at
// or above minRole. Must run after AuthMiddleware.
func RequireRole(minRole models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole := Role(c)
		if userRole == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		if !userRole.IsValid() || !minRole.IsValid() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Invalid role",
			})
			return
		}

		if !userRole.IsHigherOrEqual(minRole) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":         "Insufficient permissions",
				"required_role": minRole,
				"user_role":     userRole,
			})
			return
		}

		c.Next()
	}
}

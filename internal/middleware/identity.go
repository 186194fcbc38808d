package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UserIDContextKey is the gin context key carrying the caller identity.
const UserIDContextKey = "userID"

// Identity resolves the caller from the X-User-Id header. Authentication is
// handled upstream at the gateway; this service only needs the identity it
// forwards.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-Id")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}
		c.Set(UserIDContextKey, userID)
		c.Next()
	}
}

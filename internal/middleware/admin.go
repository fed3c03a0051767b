package middleware

import (
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin"   // Gin web framework
	"golang.org/x/crypto/bcrypt" // Key hash comparison
)

// AdminKeyHeader carries the operator key
const AdminKeyHeader = "X-Admin-Key"

// AdminOnlyMiddleware checks the operator key against its bcrypt hash on each request
func AdminOnlyMiddleware(keyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// No configured hash means operator routes are switched off
		if keyHash == "" {
			abortJSON(c, http.StatusForbidden, "Admin access disabled")
			return
		}
		key := c.GetHeader(AdminKeyHeader) // Get operator key
		if key == "" {
			abortJSON(c, http.StatusUnauthorized, "Admin key required")
			return
		}
		// Compare provided key with stored hash
		if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
			abortJSON(c, http.StatusForbidden, "Admin access required")
			return
		}
		c.Set("isAdmin", true)
		c.Next() // If admin, proceed to the next handler
	}
}

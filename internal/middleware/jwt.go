package middleware

import (
	"credit_ledger/internal/utils" // JWT utility functions
	"net/http"                     // HTTP status codes
	"strings"                      // String manipulation

	"github.com/gin-gonic/gin" // Gin web framework
)

// ContextUserID is the gin context key holding the authenticated user ID
const ContextUserID = "userID"

// bearerToken extracts the token from "Authorization: Bearer <token>"
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization") // Get Authorization header
	// Check if the Authorization header is present and properly formatted
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}

// JWTAuthMiddleware validates JWT tokens and extracts user information
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearerToken(c)
		if !ok {
			// If not, abort with unauthorized status
			abortJSON(c, http.StatusUnauthorized, "Missing or invalid Authorization header")
			return
		}
		claims, err := utils.ParseJWT(tokenStr, secret) // Parse the JWT token
		if err != nil {
			// If parsing fails, abort with unauthorized status
			abortJSON(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		c.Set(ContextUserID, claims.UserID) // Store userID in context
		c.Next()                            // Proceed to the next handler
	}
}

// OwnerOnlyMiddleware lets a request through only when the authenticated
// user matches the :userId path parameter
func OwnerOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ContextUserID) // Set by an auth middleware
		if userID == "" {
			abortJSON(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if userID != c.Param("userId") {
			abortJSON(c, http.StatusForbidden, "Access to another user's balance is not allowed")
			return
		}
		c.Next()
	}
}

// abortJSON stops the chain with the API's error envelope
func abortJSON(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": message})
}

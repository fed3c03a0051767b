package api

import (
	"net/http" // HTTP status codes
	"time"     // Token lifetime

	"credit_ledger/internal/ledger" // User ID validation
	"credit_ledger/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin" // Gin web framework
)

// TokenRequest asks for a user token
type TokenRequest struct {
	UserID string `json:"userId" binding:"required"` // Subject of the token
}

// AuthResponse carries an issued token
type AuthResponse struct {
	Token     string    `json:"token"`     // JWT token
	ExpiresAt time.Time `json:"expiresAt"` // Token expiry
}

// IssueTokenHandler mints a user JWT for a trusted backend holding the admin key
func IssueTokenHandler(jwtSecret string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TokenRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			failure(c, http.StatusBadRequest, "Invalid request", err)
			return
		}
		if err := ledger.ValidateUserID(req.UserID); err != nil {
			respondError(c, err)
			return
		}
		// Generate JWT token
		token, err := utils.GenerateJWT(req.UserID, jwtSecret, ttl)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, AuthResponse{Token: token, ExpiresAt: time.Now().Add(ttl).UTC()})
	}
}

package api

import (
	"errors"   // Error classification
	"net/http" // HTTP status codes
	"strconv"  // Query parsing

	"credit_ledger/internal/generate" // Generation errors
	"credit_ledger/internal/ledger"   // Ledger errors

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// failure writes the {success:false, error, details} envelope
func failure(c *gin.Context, status int, message string, err error) {
	body := gin.H{"success": false, "error": message}
	if err != nil {
		body["details"] = err.Error() // Human readable cause
	}
	c.JSON(status, body)
}

// respondError maps ledger and generation errors to HTTP responses
func respondError(c *gin.Context, err error) {
	var insufficient *ledger.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		c.JSON(http.StatusBadRequest, gin.H{
			"success":        false,
			"error":          "Insufficient balance",
			"currentBalance": insufficient.Balance,  // Balance at the time of the attempt
			"required":       insufficient.Required, // Requested amount
			"shortage":       insufficient.Shortage, // Missing credit
		})
	case errors.Is(err, ledger.ErrInvalidAmount):
		failure(c, http.StatusBadRequest, "Invalid amount", err)
	case errors.Is(err, ledger.ErrInvalidUserID):
		failure(c, http.StatusBadRequest, "Invalid user ID", err)
	case errors.Is(err, ledger.ErrInvalidMeta), errors.Is(err, generate.ErrInvalidRequest):
		failure(c, http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, ledger.ErrUserNotFound):
		failure(c, http.StatusNotFound, "User not found", nil)
	default:
		logrus.WithFields(logrus.Fields{
			"method": c.Request.Method, // HTTP method
			"path":   c.FullPath(),     // Route template
			"error":  err.Error(),      // Error message
		}).Error("Request failed")
		failure(c, http.StatusInternalServerError, "Internal server error", err)
	}
}

// parsePage reads page and page_size, ignoring invalid values like the listing defaults do
func parsePage(c *gin.Context) ledger.Page {
	var page ledger.Page
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page.Number = v // Set page if valid
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= ledger.MaxPageSize {
			page.Size = v // Set page size if valid
		}
	}
	return page.Normalize()
}

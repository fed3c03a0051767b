package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"strings"  // Cache key building
	"time"     // Filter dates and cache lifetime

	"credit_ledger/internal/ledger" // Listings
	"credit_ledger/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// ListUsersHandler returns users with their balances, newest first
func ListUsersHandler(l *ledger.Ledger, rdb *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page := parsePage(c)
		// Cache key based on the normalized pagination parameters
		cacheKey := "admin:users:page=" + strconv.Itoa(page.Number) + ":size=" + strconv.Itoa(page.Size)
		var cached ledger.UserPage
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"success":     true,
				"users":       cached.Users,      // List of users
				"page":        cached.Page,       // Current page
				"page_size":   cached.PageSize,   // Page size
				"total":       cached.Total,      // Total number of users
				"total_pages": cached.TotalPages, // Total pages
				"cached":      true,              // Response is from cache
			})
			return
		}
		users, err := l.Users(ctx, page)
		if err != nil {
			respondError(c, err)
			return
		}
		storeListing(c, rdb, cacheKey, users, ttl)
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"users":       users.Users,      // List of users
			"page":        users.Page,       // Current page
			"page_size":   users.PageSize,   // Page size
			"total":       users.Total,      // Total number of users
			"total_pages": users.TotalPages, // Total pages
			"cached":      false,            // Response is not from cache
		})
	}
}

// ListTransactionsHandler returns ledger entries, with optional filtering by user, type, or date
func ListTransactionsHandler(l *ledger.Ledger, rdb *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		filter := ledger.TransactionFilter{
			UserID: c.Query("user_id"), // Filter by user ID
			Type:   c.Query("type"),    // Filter by transaction type
			Page:   parsePage(c),
		}
		var err error
		if filter.From, err = parseTime(c.Query("from")); err != nil {
			failure(c, http.StatusBadRequest, "Invalid from date", err)
			return
		}
		if filter.To, err = parseTime(c.Query("to")); err != nil {
			failure(c, http.StatusBadRequest, "Invalid to date", err)
			return
		}
		// Cache key from all filter values
		keyParts := []string{
			"user_id=" + filter.UserID,
			"type=" + filter.Type,
			"from=" + c.Query("from"),
			"to=" + c.Query("to"),
			"page=" + strconv.Itoa(filter.Page.Number),
			"page_size=" + strconv.Itoa(filter.Page.Size),
		}
		cacheKey := "admin:txs:" + strings.Join(keyParts, ":")
		var cached ledger.TransactionPage
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"success":      true,
				"transactions": cached.Transactions, // List of transactions
				"page":         cached.Page,         // Current page
				"page_size":    cached.PageSize,     // Page size
				"total":        cached.Total,        // Total number of transactions
				"total_pages":  cached.TotalPages,   // Total pages
				"cached":       true,                // Response is from cache
			})
			return
		}
		txs, err := l.Transactions(ctx, filter)
		if err != nil {
			respondError(c, err)
			return
		}
		storeListing(c, rdb, cacheKey, txs, ttl)
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"transactions": txs.Transactions, // List of transactions
			"page":         txs.Page,         // Current page
			"page_size":    txs.PageSize,     // Page size
			"total":        txs.Total,        // Total number of transactions
			"total_pages":  txs.TotalPages,   // Total pages
			"cached":       false,            // Response is not from cache
		})
	}
}

// storeListing caches an admin listing; failures only cost a cache miss
func storeListing(c *gin.Context, rdb *redis.Client, key string, value any, ttl time.Duration) {
	if err := utils.SetCache(c.Request.Context(), rdb, key, value, ttl); err != nil {
		logrus.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("Admin listing cache write failed")
	}
}

// parseTime accepts RFC 3339 timestamps or plain dates
func parseTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	_, err := time.Parse(time.RFC3339, v)
	return nil, err
}

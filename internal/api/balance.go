package api

import (
	"encoding/json" // Raw amount decoding
	"net/http"      // HTTP status codes

	"credit_ledger/internal/ledger" // Balance operations

	"github.com/gin-gonic/gin" // Gin web framework
)

// BalanceRequest is the body of deduct-balance and add-balance
type BalanceRequest struct {
	Amount      json.RawMessage `json:"amount"`      // Number or numeric string
	Type        string          `json:"type"`        // Optional entry type allowed by the route
	Tokens      int64           `json:"tokens"`      // Optional token count
	Description string          `json:"description"` // Optional free text
}

// GetBalanceHandler returns the user's balance, creating it with the default credit on first read
func GetBalanceHandler(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := l.GetBalance(c.Request.Context(), c.Param("userId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"userId":  res.UserID,  // User ID
			"balance": res.Balance, // Current balance
			"isNew":   res.IsNew,   // Created by this request
		})
	}
}

// DeductBalanceHandler removes credit from an existing user
func DeductBalanceHandler(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		amount, meta, ok := bindBalanceRequest(c)
		if !ok {
			return
		}
		res, err := l.Deduct(c.Request.Context(), c.Param("userId"), amount, meta)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"userId":        res.UserID,         // User ID
			"balanceBefore": res.BalanceBefore,  // Balance before the deduction
			"balanceAfter":  res.BalanceAfter,   // Balance after the deduction
			"deducted":      res.Amount,         // Amount removed
			"transactionId": res.Transaction.ID, // Ledger entry
		})
	}
}

// AddBalanceHandler credits a user, creating unknown users from zero
func AddBalanceHandler(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		amount, meta, ok := bindBalanceRequest(c)
		if !ok {
			return
		}
		res, err := l.Add(c.Request.Context(), c.Param("userId"), amount, meta)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"userId":        res.UserID,         // User ID
			"balanceBefore": res.BalanceBefore,  // Balance before the top-up
			"balanceAfter":  res.BalanceAfter,   // Balance after the top-up
			"added":         res.Amount,         // Amount credited
			"transactionId": res.Transaction.ID, // Ledger entry
		})
	}
}

// GetTransactionHistoryHandler returns the user's ledger entries, newest first
func GetTransactionHistoryHandler(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := l.History(c.Request.Context(), c.Param("userId"), parsePage(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"transactions": page.Transactions, // List of transactions
			"page":         page.Page,         // Current page
			"page_size":    page.PageSize,     // Page size
			"total":        page.Total,        // Total transactions
			"total_pages":  page.TotalPages,   // Total pages
		})
	}
}

// bindBalanceRequest decodes the body and its amount, answering 400 on failure
func bindBalanceRequest(c *gin.Context) (float64, ledger.Meta, bool) {
	var req BalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, "Invalid request", err)
		return 0, ledger.Meta{}, false
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		respondError(c, err)
		return 0, ledger.Meta{}, false
	}
	return amount, ledger.Meta{Type: req.Type, Tokens: req.Tokens, Description: req.Description}, true
}

package domain

import "time"

// Transaction types written to the ledger
const (
	TypeInitial    = "initial"    // Default credit granted on first balance read
	TypeDeduct     = "deduct"     // Plain deduction through the API
	TypeAdd        = "add"        // Top-up
	TypeGeneration = "generation" // Metered AI generation
)

// Transaction Model, one row per balance mutation
type Transaction struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id" firestore:"-"`                    // UUID
	UserID        string    `gorm:"index;size:128;not null" json:"userId" firestore:"userId"`      // Owner of the balance
	Type          string    `gorm:"size:32;not null;index" json:"type" firestore:"type"`           // One of the Type* constants
	Tokens        int64     `gorm:"not null;default:0" json:"tokens" firestore:"tokens"`           // Token count for generation entries
	Cost          float64   `gorm:"not null" json:"cost" firestore:"cost"`                         // Absolute amount moved
	BalanceBefore float64   `gorm:"not null" json:"balanceBefore" firestore:"balanceBefore"`       // Balance before the mutation
	BalanceAfter  float64   `gorm:"not null" json:"balanceAfter" firestore:"balanceAfter"`         // Balance after the mutation
	Description   string    `gorm:"size:255" json:"description,omitempty" firestore:"description"` // Free text
	CreatedAt     time.Time `gorm:"index" json:"createdAt" firestore:"createdAt"`                  // Timestamp
}

package domain

import "time"

// DefaultBalance is the credit every new user starts with
const DefaultBalance = 500

// User Model
type User struct {
	ID        string    `gorm:"primaryKey;size:128" json:"userId" firestore:"-"`       // Identity provider UID
	Balance   float64   `gorm:"not null;default:0" json:"balance" firestore:"balance"` // Credit balance
	CreatedAt time.Time `gorm:"index" json:"createdAt" firestore:"createdAt"`          // Creation timestamp
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt"`                       // Last balance change
}

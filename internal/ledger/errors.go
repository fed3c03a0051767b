package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound is returned when a mutation targets a user that has no balance document.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidAmount is returned for missing, non-numeric, non-finite or non-positive amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidUserID is returned for empty or malformed user identifiers.
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrInvalidMeta is returned when the transaction type or token count is malformed.
	ErrInvalidMeta = errors.New("invalid transaction metadata")
)

// InsufficientBalanceError reports a deduction larger than the current balance.
type InsufficientBalanceError struct {
	Balance  float64 // Balance at the time of the attempt
	Required float64 // Requested amount
	Shortage float64 // Required - Balance
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %v, need %v (short %v)", e.Balance, e.Required, e.Shortage)
}

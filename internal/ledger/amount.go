package ledger

import (
	"bytes"         // Raw JSON inspection
	"encoding/json" // Number and string decoding
	"fmt"           // Error wrapping
	"math"          // Finite checks
	"slices"        // Allowed entry types
	"strconv"       // Numeric strings
	"strings"       // Trimming

	"github.com/shopspring/decimal" // Exact arithmetic
)

// MaxAmount bounds both a single amount and a resulting balance.
const MaxAmount = 1e12

var maxUserIDSize = 128 // Matches the users.id column size

// ParseAmount decodes a JSON amount that may be a number or a numeric string.
func ParseAmount(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	var value float64
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
		}
		value = f
	} else if err := json.Unmarshal(raw, &value); err != nil {
		return 0, fmt.Errorf("%w: %s is not a number", ErrInvalidAmount, string(raw))
	}
	return value, ValidateAmount(value)
}

// ValidateAmount accepts finite amounts in (0, MaxAmount].
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("%w: amount must be finite", ErrInvalidAmount)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	if amount > MaxAmount {
		return fmt.Errorf("%w: amount must not exceed %.0f", ErrInvalidAmount, MaxAmount)
	}
	return nil
}

// checkBalance rejects a computed balance outside [0, MaxAmount].
func checkBalance(balance float64) error {
	if math.IsNaN(balance) || math.IsInf(balance, 0) || balance < 0 || balance > MaxAmount {
		return fmt.Errorf("%w: resulting balance %v is out of range", ErrInvalidAmount, balance)
	}
	return nil
}

// ValidateUserID rejects identifiers that cannot be a document ID or primary key.
func ValidateUserID(userID string) error {
	switch {
	case strings.TrimSpace(userID) == "":
		return fmt.Errorf("%w: empty", ErrInvalidUserID)
	case len(userID) > maxUserIDSize:
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidUserID, maxUserIDSize)
	case strings.Contains(userID, "/"), userID == ".", userID == "..":
		return fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	return nil
}

// validateMeta accepts an empty type or one of types.
func validateMeta(meta Meta, types ...string) error {
	if meta.Type != "" && !slices.Contains(types, meta.Type) {
		return fmt.Errorf("%w: type %q", ErrInvalidMeta, meta.Type)
	}
	if meta.Tokens < 0 {
		return fmt.Errorf("%w: tokens must not be negative", ErrInvalidMeta)
	}
	if len(meta.Description) > 255 {
		return fmt.Errorf("%w: description longer than 255 characters", ErrInvalidMeta)
	}
	return nil
}

func sub(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).InexactFloat64()
}

func add(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).InexactFloat64()
}

// covers reports whether balance >= amount without float rounding surprises.
func covers(balance, amount float64) bool {
	return decimal.NewFromFloat(balance).GreaterThanOrEqual(decimal.NewFromFloat(amount))
}

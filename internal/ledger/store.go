package ledger

import (
	"context"
	"time"

	"credit_ledger/internal/domain"
)

// UpdateFunc mutates user in place and returns the ledger entry to persist with it.
// exists is false when no stored document was found; user then carries only its ID.
// Returning a nil entry and nil error leaves the store untouched.
// The function may run more than once when the store retries a conflicted transaction.
type UpdateFunc func(user *domain.User, exists bool) (*domain.Transaction, error)

// Store persists users and their ledger entries.
type Store interface {
	// FindUser returns ErrUserNotFound when no document exists.
	FindUser(ctx context.Context, userID string) (*domain.User, error)
	// Update runs fn inside one atomic read-modify-write on the user document.
	Update(ctx context.Context, userID string, fn UpdateFunc) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, int64, error)
	ListUsers(ctx context.Context, page Page) ([]domain.User, int64, error)
}

// Page selects one page of a listing.
type Page struct {
	Number int // 1-based page number
	Size   int // Entries per page
}

// Default and maximum page sizes
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset is the number of entries skipped before this page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// TotalPages returns how many pages hold total entries.
func (p Page) TotalPages(total int64) int {
	return (int(total) + p.Size - 1) / p.Size
}

// TransactionFilter narrows a ledger listing. Zero fields match everything.
type TransactionFilter struct {
	UserID string
	Type   string
	From   *time.Time
	To     *time.Time
	Page   Page
}

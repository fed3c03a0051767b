package db

import (
	"context" // Request scoped cancellation
	"errors"  // Error matching

	"credit_ledger/internal/domain" // Importing domain models
	"credit_ledger/internal/ledger" // Store contract

	"github.com/go-sql-driver/mysql" // Server error numbers
	"gorm.io/gorm"                   // GORM ORM library
	"gorm.io/gorm/clause"            // Row locking
)

const (
	createAttempts = 3 // Bounds retries when two transactions create the same user

	errLockDeadlock    = 1213 // ER_LOCK_DEADLOCK
	errLockWaitTimeout = 1205 // ER_LOCK_WAIT_TIMEOUT
)

// Store implements ledger.Store on a SQL database through GORM
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open GORM connection
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindUser loads a user by ID
func (s *Store) FindUser(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	// Find instead of First keeps "record not found" out of the SQL log
	res := s.db.WithContext(ctx).Where("id = ?", userID).Limit(1).Find(&user)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ledger.ErrUserNotFound
	}
	return &user, nil
}

// Update runs fn inside a transaction holding a row lock on the user
func (s *Store) Update(ctx context.Context, userID string, fn ledger.UpdateFunc) error {
	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		err = s.update(ctx, userID, fn)
		// A concurrent creator won the insert; the retry sees the row and locks it
		if !retryable(err) {
			return err
		}
	}
	return err
}

// retryable reports whether a lost create race rolled the transaction back.
// SQLite reports a duplicate key; InnoDB gap locks turn the race into a deadlock
func retryable(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && (myErr.Number == errLockDeadlock || myErr.Number == errLockWaitTimeout)
}

func (s *Store) update(ctx context.Context, userID string, fn ledger.UpdateFunc) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user domain.User
		res := s.lockForUpdate(tx).Where("id = ?", userID).Limit(1).Find(&user)
		if res.Error != nil {
			return res.Error // Return error to rollback
		}
		exists := res.RowsAffected > 0
		if !exists {
			user = domain.User{ID: userID}
		}

		entry, err := fn(&user, exists)
		if err != nil || entry == nil {
			return err // Rollback on error, nothing to write otherwise
		}

		if exists {
			// Update balance under the row lock
			if err := tx.Model(&domain.User{}).Where("id = ?", userID).Updates(map[string]any{
				"balance":    user.Balance,
				"updated_at": user.UpdatedAt,
			}).Error; err != nil {
				return err
			}
		} else if err := tx.Create(&user).Error; err != nil {
			return err
		}
		// Save ledger entry in the same transaction
		return tx.Create(entry).Error
	})
}

// lockForUpdate adds SELECT ... FOR UPDATE where the dialect supports row locks
func (s *Store) lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx // SQLite serializes writers on the database lock
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// ListTransactions returns matching ledger entries newest first and the total count
func (s *Store) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]domain.Transaction, int64, error) {
	query := s.db.WithContext(ctx).Model(&domain.Transaction{}) // Start building the query
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID) // Filter by user ID
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type) // Filter by transaction type
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", filter.From.UTC()) // Filter by start date
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", filter.To.UTC()) // Filter by end date
	}
	var total int64 // Total transaction count
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var txs []domain.Transaction // Slice to hold transactions
	page := filter.Page.Normalize()
	if err := query.Order("created_at desc").Order("id desc").
		Offset(page.Offset()).
		Limit(page.Size).
		Find(&txs).Error; err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

// ListUsers returns users newest first and the total count
func (s *Store) ListUsers(ctx context.Context, page ledger.Page) ([]domain.User, int64, error) {
	var total int64 // Total user count
	if err := s.db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page = page.Normalize()
	var users []domain.User // Slice to hold users
	if err := s.db.WithContext(ctx).Order("created_at desc").Order("id").
		Offset(page.Offset()).
		Limit(page.Size).
		Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

var _ ledger.Store = (*Store)(nil)

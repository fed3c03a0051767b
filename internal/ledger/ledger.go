// Package ledger implements per-user credit bookkeeping: default-on-create,
// deduct-on-use and top-ups, each written atomically together with a
// ledger entry.
package ledger

import (
	"context"
	"errors"
	"time"

	"credit_ledger/internal/domain"
	"credit_ledger/internal/metrics"
	"credit_ledger/internal/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Options configures a Ledger.
type Options struct {
	DefaultBalance float64          // Credit granted on first balance read
	Cache          *redis.Client    // Optional balance cache
	CacheTTL       time.Duration    // Cache lifetime, 0 disables caching
	Clock          func() time.Time // Defaults to time.Now
}

// Ledger applies balance operations on top of a Store.
type Ledger struct {
	store          Store
	rdb            *redis.Client
	cacheTTL       time.Duration
	defaultBalance float64
	now            func() time.Time
}

// Meta describes the entry recorded with a deduction or top-up.
type Meta struct {
	Type        string // Entry type, defaults to deduct or add
	Tokens      int64  // Token count for metered generations
	Description string // Free text shown in the history page
}

// BalanceResult is the outcome of GetBalance.
type BalanceResult struct {
	UserID  string  `json:"userId"`
	Balance float64 `json:"balance"`
	IsNew   bool    `json:"isNew"`
	Cached  bool    `json:"-"`
}

// MutationResult is the outcome of Deduct and Add.
type MutationResult struct {
	UserID        string              `json:"userId"`
	BalanceBefore float64             `json:"balanceBefore"`
	BalanceAfter  float64             `json:"balanceAfter"`
	Amount        float64             `json:"amount"`
	Transaction   *domain.Transaction `json:"transaction"`
}

// TransactionPage is one page of ledger entries.
type TransactionPage struct {
	Transactions []domain.Transaction `json:"transactions"`
	Page         int                  `json:"page"`
	PageSize     int                  `json:"page_size"`
	Total        int64                `json:"total"`
	TotalPages   int                  `json:"total_pages"`
}

// UserPage is one page of users.
type UserPage struct {
	Users      []domain.User `json:"users"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	Total      int64         `json:"total"`
	TotalPages int           `json:"total_pages"`
}

type cachedBalance struct {
	Balance float64 `json:"balance"`
}

// New creates a Ledger.
func New(store Store, opts Options) *Ledger {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{
		store:          store,
		rdb:            opts.Cache,
		cacheTTL:       opts.CacheTTL,
		defaultBalance: opts.DefaultBalance,
		now:            clock,
	}
}

// GetBalance returns the user's balance, creating the user with the default
// balance on first sight. Concurrent first reads create exactly one user.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (*BalanceResult, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	var cached cachedBalance
	found, err := utils.GetCache(ctx, l.rdb, utils.BalanceCacheKey(userID), &cached)
	if err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("Balance cache read failed")
	}
	if found {
		metrics.ObserveLedgerOp("get", "cached")
		return &BalanceResult{UserID: userID, Balance: cached.Balance, Cached: true}, nil
	}

	user, err := l.store.FindUser(ctx, userID)
	if err == nil {
		l.cacheBalance(ctx, userID, user.Balance)
		metrics.ObserveLedgerOp("get", "ok")
		return &BalanceResult{UserID: userID, Balance: user.Balance}, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		metrics.ObserveLedgerOp("get", "error")
		return nil, err
	}

	// Create under the store transaction; a concurrent creator makes exists true here
	var res *BalanceResult
	err = l.store.Update(ctx, userID, func(user *domain.User, exists bool) (*domain.Transaction, error) {
		if exists {
			res = &BalanceResult{UserID: userID, Balance: user.Balance}
			return nil, nil
		}
		now := l.clock()
		user.Balance = l.defaultBalance
		user.CreatedAt = now
		user.UpdatedAt = now
		res = &BalanceResult{UserID: userID, Balance: l.defaultBalance, IsNew: true}
		return l.newEntry(userID, domain.TypeInitial, Meta{Description: "Initial credit"}, l.defaultBalance, 0, l.defaultBalance, now), nil
	})
	if err != nil {
		metrics.ObserveLedgerOp("create", "error")
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Error("Failed to create user balance")
		return nil, err
	}
	if res.IsNew {
		metrics.ObserveLedgerOp("create", "ok")
		metrics.ObserveCredits("in", res.Balance)
		logrus.WithFields(logrus.Fields{
			"user_id":   userID,
			"balance":   res.Balance,
			"type":      domain.TypeInitial,
			"timestamp": l.clock().Format(time.RFC3339),
		}).Info("User balance created")
	}
	l.cacheBalance(ctx, userID, res.Balance)
	return res, nil
}

// Deduct removes amount from an existing user's balance. It fails with
// ErrUserNotFound for unknown users and with *InsufficientBalanceError,
// writing nothing, when amount exceeds the balance.
func (l *Ledger) Deduct(ctx context.Context, userID string, amount float64, meta Meta) (*MutationResult, error) {
	if err := l.validate(userID, amount, meta, domain.TypeDeduct, domain.TypeGeneration); err != nil {
		metrics.ObserveLedgerOp("deduct", "invalid")
		return nil, err
	}
	if meta.Type == "" {
		meta.Type = domain.TypeDeduct
	}

	var res *MutationResult
	err := l.store.Update(ctx, userID, func(user *domain.User, exists bool) (*domain.Transaction, error) {
		if !exists {
			return nil, ErrUserNotFound
		}
		before := user.Balance
		if !covers(before, amount) {
			return nil, &InsufficientBalanceError{Balance: before, Required: amount, Shortage: sub(amount, before)}
		}
		after := sub(before, amount)
		if err := checkBalance(after); err != nil {
			return nil, err
		}
		now := l.clock()
		user.Balance = after
		user.UpdatedAt = now
		entry := l.newEntry(userID, meta.Type, meta, amount, before, user.Balance, now)
		res = &MutationResult{UserID: userID, BalanceBefore: before, BalanceAfter: user.Balance, Amount: amount, Transaction: entry}
		return entry, nil
	})
	if err != nil {
		l.logFailure("deduct", userID, amount, err)
		return nil, err
	}

	l.invalidate(ctx, userID)
	metrics.ObserveLedgerOp("deduct", "ok")
	metrics.ObserveCredits("out", amount)
	logrus.WithFields(logrus.Fields{
		"user_id":        userID,
		"amount":         amount,
		"balance_before": res.BalanceBefore,
		"balance_after":  res.BalanceAfter,
		"type":           meta.Type,
		"timestamp":      l.clock().Format(time.RFC3339),
	}).Info("Deduct transaction")
	return res, nil
}

// Add credits amount to the user, creating unknown users from a zero balance.
func (l *Ledger) Add(ctx context.Context, userID string, amount float64, meta Meta) (*MutationResult, error) {
	if err := l.validate(userID, amount, meta, domain.TypeAdd); err != nil {
		metrics.ObserveLedgerOp("add", "invalid")
		return nil, err
	}
	if meta.Type == "" {
		meta.Type = domain.TypeAdd
	}

	var res *MutationResult
	err := l.store.Update(ctx, userID, func(user *domain.User, exists bool) (*domain.Transaction, error) {
		now := l.clock()
		if !exists {
			user.Balance = 0
			user.CreatedAt = now
		}
		before := user.Balance
		after := add(before, amount)
		if err := checkBalance(after); err != nil {
			return nil, err
		}
		user.Balance = after
		user.UpdatedAt = now
		entry := l.newEntry(userID, meta.Type, meta, amount, before, user.Balance, now)
		res = &MutationResult{UserID: userID, BalanceBefore: before, BalanceAfter: user.Balance, Amount: amount, Transaction: entry}
		return entry, nil
	})
	if err != nil {
		l.logFailure("add", userID, amount, err)
		return nil, err
	}

	l.invalidate(ctx, userID)
	metrics.ObserveLedgerOp("add", "ok")
	metrics.ObserveCredits("in", amount)
	logrus.WithFields(logrus.Fields{
		"user_id":        userID,
		"amount":         amount,
		"balance_before": res.BalanceBefore,
		"balance_after":  res.BalanceAfter,
		"type":           meta.Type,
		"timestamp":      l.clock().Format(time.RFC3339),
	}).Info("Add transaction")
	return res, nil
}

// History lists a user's ledger entries, newest first.
func (l *Ledger) History(ctx context.Context, userID string, page Page) (*TransactionPage, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	return l.Transactions(ctx, TransactionFilter{UserID: userID, Page: page})
}

// Transactions lists ledger entries across users, newest first.
func (l *Ledger) Transactions(ctx context.Context, filter TransactionFilter) (*TransactionPage, error) {
	filter.Page = filter.Page.Normalize()
	txs, total, err := l.store.ListTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return &TransactionPage{
		Transactions: txs,
		Page:         filter.Page.Number,
		PageSize:     filter.Page.Size,
		Total:        total,
		TotalPages:   filter.Page.TotalPages(total),
	}, nil
}

// Users lists users, newest first.
func (l *Ledger) Users(ctx context.Context, page Page) (*UserPage, error) {
	page = page.Normalize()
	users, total, err := l.store.ListUsers(ctx, page)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return &UserPage{
		Users:      users,
		Page:       page.Number,
		PageSize:   page.Size,
		Total:      total,
		TotalPages: page.TotalPages(total),
	}, nil
}

func (l *Ledger) clock() time.Time {
	return l.now().UTC()
}

func (l *Ledger) validate(userID string, amount float64, meta Meta, types ...string) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	return validateMeta(meta, types...)
}

func (l *Ledger) newEntry(userID, typ string, meta Meta, cost, before, after float64, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Type:          typ,
		Tokens:        meta.Tokens,
		Cost:          cost,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   meta.Description,
		CreatedAt:     at,
	}
}

func (l *Ledger) cacheBalance(ctx context.Context, userID string, balance float64) {
	if err := utils.SetCache(ctx, l.rdb, utils.BalanceCacheKey(userID), cachedBalance{Balance: balance}, l.cacheTTL); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("Balance cache write failed")
	}
}

func (l *Ledger) invalidate(ctx context.Context, userID string) {
	if err := utils.DeleteCache(ctx, l.rdb, utils.BalanceCacheKey(userID)); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("Balance cache invalidation failed")
	}
}

func (l *Ledger) logFailure(op, userID string, amount float64, err error) {
	var insufficient *InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		metrics.ObserveLedgerOp(op, "insufficient")
		logrus.WithFields(logrus.Fields{"user_id": userID, "amount": amount, "shortage": insufficient.Shortage}).Warn("Insufficient balance")
	case errors.Is(err, ErrUserNotFound):
		metrics.ObserveLedgerOp(op, "not_found")
	case errors.Is(err, ErrInvalidAmount):
		metrics.ObserveLedgerOp(op, "invalid")
		logrus.WithFields(logrus.Fields{"user_id": userID, "amount": amount, "error": err.Error()}).Warn("Balance out of range")
	default:
		metrics.ObserveLedgerOp(op, "error")
		logrus.WithFields(logrus.Fields{"user_id": userID, "amount": amount, "error": err.Error()}).Error("Balance update failed")
	}
}

package db_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"credit_ledger/internal/db"
	"credit_ledger/internal/db/dbtest"
	"credit_ledger/internal/domain"
	"credit_ledger/internal/ledger"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func entryFor(user *domain.User, typ string, cost float64, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:           typ + "-" + at.Format("150405.000000000"),
		UserID:       user.ID,
		Type:         typ,
		Cost:         cost,
		BalanceAfter: user.Balance,
		CreatedAt:    at,
	}
}

func TestFindUserNotFound(t *testing.T) {
	store := dbtest.NewStore(t)
	_, err := store.FindUser(context.Background(), "missing")
	assert.ErrorIs(t, err, ledger.ErrUserNotFound)
}

func TestUpdateCreatesThenUpdates(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.Update(ctx, "u1", func(user *domain.User, exists bool) (*domain.Transaction, error) {
		assert.False(t, exists)
		assert.Equal(t, "u1", user.ID)
		user.Balance = 500
		user.CreatedAt, user.UpdatedAt = now, now
		return entryFor(user, domain.TypeInitial, 500, now), nil
	})
	require.NoError(t, err)

	err = store.Update(ctx, "u1", func(user *domain.User, exists bool) (*domain.Transaction, error) {
		assert.True(t, exists)
		assert.Equal(t, float64(500), user.Balance)
		user.Balance = 450
		user.UpdatedAt = now.Add(time.Second)
		return entryFor(user, domain.TypeDeduct, 50, now.Add(time.Second)), nil
	})
	require.NoError(t, err)

	user, err := store.FindUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(450), user.Balance)

	txs, total, err := store.ListTransactions(ctx, ledger.TransactionFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, txs, 2)
	assert.Equal(t, domain.TypeDeduct, txs[0].Type, "newest first")
	assert.Equal(t, domain.TypeInitial, txs[1].Type)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Update(ctx, "u1", func(user *domain.User, exists bool) (*domain.Transaction, error) {
		user.Balance = 10
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.FindUser(ctx, "u1")
	assert.ErrorIs(t, err, ledger.ErrUserNotFound)
}

func TestUpdateNilEntryWritesNothing(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	err := store.Update(ctx, "u1", func(user *domain.User, exists bool) (*domain.Transaction, error) {
		user.Balance = 10
		return nil, nil
	})
	require.NoError(t, err)

	_, err = store.FindUser(ctx, "u1")
	assert.ErrorIs(t, err, ledger.ErrUserNotFound)
}

func TestListTransactionsFilters(t *testing.T) {
	gdb := dbtest.Open(t)
	store := db.NewStore(gdb)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	rows := []domain.Transaction{
		{ID: "a", UserID: "u1", Type: domain.TypeInitial, Cost: 500, CreatedAt: base},
		{ID: "b", UserID: "u1", Type: domain.TypeDeduct, Cost: 10, CreatedAt: base.Add(time.Hour)},
		{ID: "c", UserID: "u2", Type: domain.TypeDeduct, Cost: 20, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "d", UserID: "u2", Type: domain.TypeAdd, Cost: 30, CreatedAt: base.Add(3 * time.Hour)},
	}
	require.NoError(t, gdb.Create(&rows).Error)

	from := base.Add(30 * time.Minute)
	to := base.Add(150 * time.Minute)
	tests := []struct {
		name   string
		filter ledger.TransactionFilter
		want   []string
	}{
		{name: "all", filter: ledger.TransactionFilter{}, want: []string{"d", "c", "b", "a"}},
		{name: "by user", filter: ledger.TransactionFilter{UserID: "u1"}, want: []string{"b", "a"}},
		{name: "by type", filter: ledger.TransactionFilter{Type: domain.TypeDeduct}, want: []string{"c", "b"}},
		{name: "by window", filter: ledger.TransactionFilter{From: &from, To: &to}, want: []string{"c", "b"}},
		{name: "paged", filter: ledger.TransactionFilter{Page: ledger.Page{Number: 2, Size: 3}}, want: []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs, _, err := store.ListTransactions(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, tx := range txs {
				ids = append(ids, tx.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestListUsers(t *testing.T) {
	gdb := dbtest.Open(t)
	store := db.NewStore(gdb)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	users := []domain.User{
		{ID: "old", Balance: 1, CreatedAt: base},
		{ID: "new", Balance: 2, CreatedAt: base.Add(time.Hour)},
	}
	require.NoError(t, gdb.Create(&users).Error)

	got, total, err := store.ListUsers(context.Background(), ledger.Page{Number: 1, Size: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.Update(ctx, "u1", func(user *domain.User, exists bool) (*domain.Transaction, error) {
				if !exists {
					user.CreatedAt = now
				}
				user.Balance++
				at := now.Add(time.Duration(i) * time.Millisecond)
				user.UpdatedAt = at
				entry := entryFor(user, domain.TypeAdd, 1, at)
				entry.ID = entry.ID + "-" + string(rune('a'+i))
				return entry, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	user, err := store.FindUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(workers), user.Balance)
}

func TestUpdateRetriesLostCreateRace(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int
		wantErr   bool
	}{
		{name: "deadlock", err: &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock; try restarting transaction"}, wantCalls: 2},
		{name: "lock wait timeout", err: &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded; try restarting transaction"}, wantCalls: 2},
		{name: "duplicate key", err: gorm.ErrDuplicatedKey, wantCalls: 2},
		{name: "other mysql error", err: &mysql.MySQLError{Number: 1406, Message: "Data too long for column"}, wantCalls: 1, wantErr: true},
		{name: "other error", err: errors.New("disk full"), wantCalls: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gdb := dbtest.Open(t)
			// The first user insert fails the way the losing side of a concurrent create does
			failed := false
			require.NoError(t, gdb.Callback().Create().Before("gorm:create").Register("test:lose_create_race", func(tx *gorm.DB) {
				if _, ok := tx.Statement.Dest.(*domain.User); ok && !failed {
					failed = true
					_ = tx.AddError(tt.err)
				}
			}))
			store := db.NewStore(gdb)
			ctx := context.Background()
			now := time.Now().UTC()

			calls := 0
			err := store.Update(ctx, "u1", func(user *domain.User, exists bool) (*domain.Transaction, error) {
				calls++
				assert.False(t, exists)
				user.Balance = 500
				user.CreatedAt, user.UpdatedAt = now, now
				return entryFor(user, domain.TypeInitial, 500, now), nil
			})
			assert.Equal(t, tt.wantCalls, calls)

			if tt.wantErr {
				assert.ErrorIs(t, err, tt.err)
				_, err = store.FindUser(ctx, "u1")
				assert.ErrorIs(t, err, ledger.ErrUserNotFound)
				return
			}
			require.NoError(t, err)
			user, err := store.FindUser(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, float64(500), user.Balance)
			txs, total, err := store.ListTransactions(ctx, ledger.TransactionFilter{UserID: "u1"})
			require.NoError(t, err)
			assert.Equal(t, int64(1), total)
			assert.Len(t, txs, 1)
		})
	}
}

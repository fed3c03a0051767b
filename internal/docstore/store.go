// Package docstore implements the ledger store on Cloud Firestore using the
// app's document layout: users/{userId} with a transactions subcollection.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"credit_ledger/internal/domain"
	"credit_ledger/internal/ledger"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	usersCollection        = "users"
	transactionsCollection = "transactions"
)

// Store implements ledger.Store on Firestore.
type Store struct {
	client *firestore.Client
}

// New wraps a Firestore client.
func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

func (s *Store) userRef(userID string) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(userID)
}

// FindUser reads users/{userID}.
func (s *Store) FindUser(ctx context.Context, userID string) (*domain.User, error) {
	snap, err := s.userRef(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ledger.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return decodeUser(snap)
}

// Update runs fn in a Firestore transaction. Firestore retries fn on contention.
func (s *Store) Update(ctx context.Context, userID string, fn ledger.UpdateFunc) error {
	ref := s.userRef(userID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		exists := true
		if status.Code(err) == codes.NotFound {
			exists = false
		} else if err != nil {
			return err
		}

		user := &domain.User{ID: userID}
		if exists {
			if user, err = decodeUser(snap); err != nil {
				return err
			}
		}

		entry, err := fn(user, exists)
		if err != nil || entry == nil {
			return err
		}

		if exists {
			// Update keeps profile fields the client app stores on the same document
			err = tx.Update(ref, []firestore.Update{
				{Path: "balance", Value: user.Balance},
				{Path: "updatedAt", Value: user.UpdatedAt},
			})
		} else {
			err = tx.Create(ref, user)
		}
		if err != nil {
			return err
		}
		return tx.Create(ref.Collection(transactionsCollection).Doc(entry.ID), entry)
	})
}

// ListTransactions queries one user's subcollection, or every user's via a
// collection group when no user is given.
func (s *Store) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]domain.Transaction, int64, error) {
	var q firestore.Query
	if filter.UserID != "" {
		q = s.userRef(filter.UserID).Collection(transactionsCollection).Query
	} else {
		q = s.client.CollectionGroup(transactionsCollection).Query
	}
	if filter.Type != "" {
		q = q.Where("type", "==", filter.Type)
	}
	if filter.From != nil {
		q = q.Where("createdAt", ">=", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("createdAt", "<=", *filter.To)
	}

	total, err := count(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	page := filter.Page.Normalize()
	iter := q.OrderBy("createdAt", firestore.Desc).Offset(page.Offset()).Limit(page.Size).Documents(ctx)
	defer iter.Stop()
	var txs []domain.Transaction
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("list transactions: %w", err)
		}
		var tx domain.Transaction
		if err := snap.DataTo(&tx); err != nil {
			return nil, 0, fmt.Errorf("decode transaction %s: %w", snap.Ref.ID, err)
		}
		tx.ID = snap.Ref.ID
		txs = append(txs, tx)
	}
	return txs, total, nil
}

// ListUsers pages through users/ newest first.
func (s *Store) ListUsers(ctx context.Context, page ledger.Page) ([]domain.User, int64, error) {
	q := s.client.Collection(usersCollection).Query
	total, err := count(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	page = page.Normalize()
	snaps, err := q.OrderBy("createdAt", firestore.Desc).Offset(page.Offset()).Limit(page.Size).Documents(ctx).GetAll()
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	users := make([]domain.User, 0, len(snaps))
	for _, snap := range snaps {
		user, err := decodeUser(snap)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *user)
	}
	return users, total, nil
}

func count(ctx context.Context, q firestore.Query) (int64, error) {
	res, err := q.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	v, ok := res["total"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("count: unexpected result type %T", res["total"])
	}
	return v.GetIntegerValue(), nil
}

func decodeUser(snap *firestore.DocumentSnapshot) (*domain.User, error) {
	var user domain.User
	if err := snap.DataTo(&user); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", snap.Ref.ID, err)
	}
	user.ID = snap.Ref.ID
	return &user, nil
}

var _ ledger.Store = (*Store)(nil)

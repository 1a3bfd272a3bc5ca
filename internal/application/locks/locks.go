// Package locks holds the in-process lock namespaces shared by the money
// services. Callers take an auction or artwork lock first and account locks
// second, and always before opening a DB transaction.
package locks

import (
	"context"
	"errors"
	"time"

	"atelier-backend/internal/domain"
	"atelier-backend/internal/pkg/keylock"

	"github.com/google/uuid"
)

type Set struct {
	Accounts *keylock.Locker
	Auctions *keylock.Locker
	Artworks *keylock.Locker
}

func New(timeout time.Duration) *Set {
	return &Set{
		Accounts: keylock.New(timeout),
		Auctions: keylock.New(timeout),
		Artworks: keylock.New(timeout),
	}
}

func noop() {}

// LockAccounts locks every account in ascending id order.
func (s *Set) LockAccounts(ctx context.Context, ids ...uuid.UUID) (func(), error) {
	if s == nil {
		return noop, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	unlock, err := s.Accounts.Lock(ctx, keys...)
	return unlock, mapErr(err)
}

func (s *Set) LockAuction(ctx context.Context, id uuid.UUID) (func(), error) {
	if s == nil {
		return noop, nil
	}
	unlock, err := s.Auctions.Lock(ctx, id.String())
	return unlock, mapErr(err)
}

func (s *Set) LockArtwork(ctx context.Context, id uuid.UUID) (func(), error) {
	if s == nil {
		return noop, nil
	}
	unlock, err := s.Artworks.Lock(ctx, id.String())
	return unlock, mapErr(err)
}

func mapErr(err error) error {
	if errors.Is(err, keylock.ErrTimeout) {
		return domain.ErrConcurrencyConflict
	}
	return err
}

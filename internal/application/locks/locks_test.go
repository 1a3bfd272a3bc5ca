package locks

import (
	"context"
	"testing"
	"time"

	"atelier-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockAuction_TimeoutIsConcurrencyConflict(t *testing.T) {
	s := New(20 * time.Millisecond)
	id := uuid.New()
	unlock, err := s.LockAuction(context.Background(), id)
	require.NoError(t, err)

	_, err = s.LockAuction(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	// Namespaces are independent.
	unlockArt, err := s.LockArtwork(context.Background(), id)
	require.NoError(t, err)
	unlockArt()
	unlock()
}

func TestLockAccounts_CancelledContext(t *testing.T) {
	s := New(time.Second)
	id := uuid.New()
	unlock, err := s.LockAccounts(context.Background(), id)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.LockAccounts(ctx, uuid.New(), id)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNilSet_IsNoop(t *testing.T) {
	var s *Set
	unlock, err := s.LockAccounts(context.Background(), uuid.New())
	require.NoError(t, err)
	unlock()
}

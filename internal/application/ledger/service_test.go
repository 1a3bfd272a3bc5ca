package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"atelier-backend/internal/application/locks"
	"atelier-backend/internal/domain"
	"atelier-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingReporter struct {
	mu      sync.Mutex
	details []string
}

func (r *recordingReporter) ReportIntegrity(_ context.Context, _ uuid.UUID, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.details = append(r.details, detail)
}

func setupLedgerTest(t *testing.T) (*Service, *gorm.DB, *recordingReporter) {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	rep := &recordingReporter{}
	return &Service{DB: db, Locks: locks.New(time.Second), MaxAmount: 1_000_000_000, Reporter: rep}, db, rep
}

func countEntries(t *testing.T, db *gorm.DB, accountID uuid.UUID) int64 {
	var n int64
	require.NoError(t, db.Model(&domain.LedgerEntry{}).Where("account_id = ?", accountID).Count(&n).Error)
	return n
}

func TestCredit_OpensAccount(t *testing.T) {
	svc, _, _ := setupLedgerTest(t)
	id := uuid.New()

	bal, err := svc.Credit(context.Background(), id, 5_000_000, domain.EntryDeposit, "wire")
	require.NoError(t, err)
	assert.Equal(t, domain.Balance{AccountID: id, Total: 5_000_000, Available: 5_000_000}, bal)

	got, err := svc.GetBalance(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, bal, got)
}

func TestDebit_InsufficientFundsWritesNothing(t *testing.T) {
	svc, db, _ := setupLedgerTest(t)
	id := uuid.New()
	_, err := svc.Credit(context.Background(), id, 100, domain.EntryDeposit, "")
	require.NoError(t, err)

	_, err = svc.Debit(context.Background(), id, 101, domain.EntryWithdrawal, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, int64(1), countEntries(t, db, id))

	bal, err := svc.GetBalance(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal.Available)
}

func TestDebit_UnknownAccount(t *testing.T) {
	svc, _, _ := setupLedgerTest(t)
	_, err := svc.Debit(context.Background(), uuid.New(), 1, domain.EntryWithdrawal, "")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = svc.GetBalance(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestCredit_RejectsInvalidAmounts(t *testing.T) {
	svc, _, _ := setupLedgerTest(t)
	for _, amount := range []int64{0, -5, svc.MaxAmount + 1} {
		_, err := svc.Credit(context.Background(), uuid.New(), amount, domain.EntryDeposit, "")
		assert.ErrorIs(t, err, domain.ErrInvalidAmount, amount)
	}
}

func TestPost_LockReleaseCapture(t *testing.T) {
	svc, db, _ := setupLedgerTest(t)
	id := uuid.New()
	_, err := svc.Credit(context.Background(), id, 1_000, domain.EntryDeposit, "")
	require.NoError(t, err)

	var acc domain.Account
	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := Post(tx, Posting{AccountID: id, Type: domain.EntryBidLock, Amount: 600}); err != nil {
			return err
		}
		if _, err := Post(tx, Posting{AccountID: id, Type: domain.EntryBidRelease, Amount: 100}); err != nil {
			return err
		}
		acc, err = Post(tx, Posting{AccountID: id, Type: domain.EntryBidCapture, Amount: 500})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500), acc.Total)
	assert.Equal(t, int64(0), acc.Escrowed)
	assert.Equal(t, int64(500), acc.Available)
	assert.Equal(t, int64(4), acc.Version)

	report, err := svc.Reconcile(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestPost_OverCaptureIsIntegrityViolation(t *testing.T) {
	svc, db, _ := setupLedgerTest(t)
	id := uuid.New()
	_, err := svc.Credit(context.Background(), id, 1_000, domain.EntryDeposit, "")
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := Post(tx, Posting{AccountID: id, Type: domain.EntryBidCapture, Amount: 10})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrIntegrityViolation)
	assert.Equal(t, int64(1), countEntries(t, db, id))
}

func TestCredit_ConcurrentDeposits(t *testing.T) {
	svc, _, _ := setupLedgerTest(t)
	id := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Credit(context.Background(), id, 10, domain.EntryDeposit, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	bal, err := svc.GetBalance(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(200), bal.Total)
	_, err = svc.Reconcile(context.Background(), id)
	assert.NoError(t, err)
}

func TestReconcile_DetectsTampering(t *testing.T) {
	svc, db, rep := setupLedgerTest(t)
	id := uuid.New()
	_, err := svc.Credit(context.Background(), id, 1_000, domain.EntryDeposit, "")
	require.NoError(t, err)

	require.NoError(t, db.Model(&domain.Account{}).Where("account_id = ?", id).
		Updates(map[string]interface{}{"total": 2_000, "available": 2_000}).Error)

	report, err := svc.Reconcile(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrIntegrityViolation)
	assert.Equal(t, int64(1_000), report.Folded.Total)
	assert.Len(t, rep.details, 1)

	bad, err := svc.ReconcileAll(context.Background())
	require.NoError(t, err)
	require.Len(t, bad, 1)
	assert.Equal(t, id, bad[0].AccountID)
}

func TestReconcile_EscrowWithoutHoldRecord(t *testing.T) {
	svc, db, _ := setupLedgerTest(t)
	id := uuid.New()
	_, err := svc.Credit(context.Background(), id, 1_000, domain.EntryDeposit, "")
	require.NoError(t, err)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := Post(tx, Posting{AccountID: id, Type: domain.EntryBidLock, Amount: 300})
		return err
	}))

	report, err := svc.Reconcile(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrIntegrityViolation)
	assert.Equal(t, int64(300), report.Snapshot.Escrowed)
	assert.Equal(t, int64(0), report.OpenHolds)
}

func TestEntries_NewestFirst(t *testing.T) {
	svc, _, _ := setupLedgerTest(t)
	id := uuid.New()
	_, err := svc.Credit(context.Background(), id, 100, domain.EntryDeposit, "first")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = svc.Debit(context.Background(), id, 40, domain.EntryWithdrawal, "second")
	require.NoError(t, err)

	entries, err := svc.Entries(context.Background(), id, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Note)
	assert.Equal(t, int64(-40), entries[0].Amount)
	assert.Equal(t, int64(100), entries[1].Amount)
}

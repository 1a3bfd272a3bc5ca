package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"atelier-backend/internal/application/bidding"
	"atelier-backend/internal/application/broadcast"
	"atelier-backend/internal/application/ledger"
	"atelier-backend/internal/application/locks"
	"atelier-backend/internal/domain"
	"atelier-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recorder struct {
	mu    sync.Mutex
	snaps []broadcast.Snapshot
}

func (r *recorder) Publish(s broadcast.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) last() broadcast.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

type fixture struct {
	db     *gorm.DB
	clock  *clock
	ledger *ledger.Service
	engine *bidding.Engine
	svc    *Service
	pub    *recorder
}

func setupSettlementTest(t *testing.T) *fixture {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	ls := locks.New(2 * time.Second)
	c := &clock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	pub := &recorder{}
	led := &ledger.Service{DB: db, Locks: ls}
	engine := &bidding.Engine{DB: db, Locks: ls, Publisher: pub, Now: c.Now}
	svc := &Service{
		DB:             db,
		Locks:          ls,
		Engine:         engine,
		Ledger:         led,
		Publisher:      pub,
		Now:            c.Now,
		Workers:        4,
		ReconcileEvery: 1,
	}
	return &fixture{db: db, clock: c, ledger: led, engine: engine, svc: svc, pub: pub}
}

func (f *fixture) account(t *testing.T, balance int64) uuid.UUID {
	id := uuid.New()
	_, err := f.ledger.Credit(context.Background(), id, balance, domain.EntryDeposit, "")
	require.NoError(t, err)
	return id
}

func (f *fixture) lot(t *testing.T, rate string, inclusive bool) (domain.Auction, domain.Artwork) {
	art := domain.Artwork{SellerID: uuid.New(), Title: "Untitled", Status: domain.ArtworkInAuction}
	require.NoError(t, f.db.Create(&art).Error)
	now := f.clock.Now()
	a := domain.Auction{
		ArtworkID:        art.ArtworkID,
		State:            domain.AuctionActive,
		StartPrice:       100_000,
		CurrentPrice:     100_000,
		BidIncrementRule: bidding.DefaultRule,
		BuyerPremiumRate: decimal.RequireFromString(rate),
		PremiumInclusive: inclusive,
		StartTime:        now.Add(-time.Hour),
		EndTime:          now.Add(time.Hour),
	}
	require.NoError(t, f.db.Create(&a).Error)
	return a, art
}

func (f *fixture) bid(t *testing.T, auctionID, bidder uuid.UUID, amount int64) {
	_, err := f.engine.PlaceBid(context.Background(), auctionID, bidder, amount)
	require.NoError(t, err)
}

func (f *fixture) endAll() {
	f.clock.Set(f.clock.Now().Add(2 * time.Hour))
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) domain.Balance {
	bal, err := f.ledger.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return bal
}

func TestSettle_ExclusivePremium(t *testing.T) {
	f := setupSettlementTest(t)
	ctx := context.Background()
	a, art := f.lot(t, "0.15", false)
	loser := f.account(t, 1_000_000)
	winner := f.account(t, 2_000_000)

	f.bid(t, a.AuctionID, loser, 500_000)
	f.bid(t, a.AuctionID, winner, 1_000_000)
	f.endAll()

	res, err := f.svc.Settle(ctx, a.AuctionID, false)
	require.NoError(t, err)
	assert.True(t, res.Sold)
	assert.Equal(t, winner, *res.WinnerID)
	assert.Equal(t, int64(1_000_000), res.HammerPrice)
	assert.Equal(t, int64(150_000), res.BuyerPremium)
	assert.Equal(t, int64(1_150_000), res.TotalPayable)

	assert.Equal(t, domain.Balance{AccountID: winner, Total: 850_000, Escrowed: 0, Available: 850_000}, f.balance(t, winner))
	assert.Equal(t, domain.Balance{AccountID: loser, Total: 1_000_000, Escrowed: 0, Available: 1_000_000}, f.balance(t, loser))

	var captured []domain.LedgerEntry
	require.NoError(t, f.db.Where("account_id = ? AND type = ?", winner, domain.EntryBidCapture).Find(&captured).Error)
	require.Len(t, captured, 1)
	assert.Equal(t, int64(-1_150_000), captured[0].Amount)

	var bids []domain.Bid
	require.NoError(t, f.db.Where("auction_id = ?", a.AuctionID).Order("amount DESC").Find(&bids).Error)
	require.Len(t, bids, 2)
	assert.Equal(t, domain.BidWinning, bids[0].Status)
	assert.Equal(t, domain.BidRefunded, bids[1].Status)

	var gotArt domain.Artwork
	require.NoError(t, f.db.Where("artwork_id = ?", art.ArtworkID).First(&gotArt).Error)
	assert.Equal(t, domain.ArtworkSold, gotArt.Status)
	assert.Equal(t, winner, *gotArt.OwnerID)

	snap := f.pub.last()
	assert.Equal(t, domain.AuctionClosed, snap.State)
	assert.Equal(t, int64(1_150_000), snap.TotalPayable)

	bad, err := f.ledger.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, bad)
}

func TestSettle_InclusivePremium(t *testing.T) {
	f := setupSettlementTest(t)
	a, _ := f.lot(t, "0.15", true)
	winner := f.account(t, 2_000_000)
	f.bid(t, a.AuctionID, winner, 1_150_000)
	f.endAll()

	res, err := f.svc.Settle(context.Background(), a.AuctionID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1_150_000), res.HammerPrice)
	assert.Equal(t, int64(150_000), res.BuyerPremium)
	assert.Equal(t, int64(1_150_000), res.TotalPayable)
	assert.Equal(t, int64(850_000), f.balance(t, winner).Total)
}

func TestSettle_NotEndedUnlessForced(t *testing.T) {
	f := setupSettlementTest(t)
	a, _ := f.lot(t, "0", false)
	winner := f.account(t, 1_000_000)
	f.bid(t, a.AuctionID, winner, 200_000)

	_, err := f.svc.Settle(context.Background(), a.AuctionID, false)
	assert.ErrorIs(t, err, domain.ErrAuctionNotEnded)

	res, err := f.svc.Settle(context.Background(), a.AuctionID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(200_000), res.TotalPayable)

	_, err = f.engine.PlaceBid(context.Background(), a.AuctionID, f.account(t, 1_000_000), 300_000)
	assert.ErrorIs(t, err, domain.ErrAuctionNotActive)
}

func TestSettle_Idempotent(t *testing.T) {
	f := setupSettlementTest(t)
	a, _ := f.lot(t, "0.15", false)
	winner := f.account(t, 2_000_000)
	f.bid(t, a.AuctionID, winner, 1_000_000)
	f.endAll()

	var wg sync.WaitGroup
	results := make([]Result, 5)
	errs := make([]error, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Settle(context.Background(), a.AuctionID, false)
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, int64(1_150_000), results[i].TotalPayable)
		if !results[i].AlreadyClosed {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)

	var n int64
	require.NoError(t, f.db.Model(&domain.LedgerEntry{}).Where("type = ?", domain.EntryBidCapture).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(850_000), f.balance(t, winner).Total)
}

func TestSettle_NoBids(t *testing.T) {
	f := setupSettlementTest(t)
	a, art := f.lot(t, "0.15", false)
	f.endAll()

	res, err := f.svc.Settle(context.Background(), a.AuctionID, false)
	require.NoError(t, err)
	assert.False(t, res.Sold)
	assert.Nil(t, res.WinnerID)
	assert.Zero(t, res.TotalPayable)

	var gotArt domain.Artwork
	require.NoError(t, f.db.Where("artwork_id = ?", art.ArtworkID).First(&gotArt).Error)
	assert.Equal(t, domain.ArtworkAvailable, gotArt.Status)
}

func TestSettle_UnknownAuction(t *testing.T) {
	f := setupSettlementTest(t)
	_, err := f.svc.Settle(context.Background(), uuid.New(), true)
	assert.ErrorIs(t, err, domain.ErrAuctionNotFound)
}

func TestSweep_SettlesEndedAndActivatesDue(t *testing.T) {
	f := setupSettlementTest(t)
	ended := make([]domain.Auction, 3)
	for i := range ended {
		ended[i], _ = f.lot(t, "0", false)
		f.bid(t, ended[i].AuctionID, f.account(t, 1_000_000), 300_000)
	}
	f.endAll()

	now := f.clock.Now()
	scheduled := domain.Auction{
		ArtworkID:        uuid.New(),
		State:            domain.AuctionScheduled,
		StartPrice:       1_000,
		CurrentPrice:     1_000,
		BidIncrementRule: bidding.DefaultRule,
		StartTime:        now.Add(-time.Minute),
		EndTime:          now.Add(time.Hour),
	}
	require.NoError(t, f.db.Create(&scheduled).Error)

	report, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Activated: 1, Settled: 3}, report)

	var closed int64
	require.NoError(t, f.db.Model(&domain.Auction{}).Where("state = ?", domain.AuctionClosed).Count(&closed).Error)
	assert.Equal(t, int64(3), closed)

	report, err = f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)
}

func TestRun_ServesTriggers(t *testing.T) {
	f := setupSettlementTest(t)
	a, _ := f.lot(t, "0", false)
	f.bid(t, a.AuctionID, f.account(t, 1_000_000), 300_000)
	f.endAll()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.svc.Run(ctx, time.Hour)
	}()

	f.svc.Trigger(a.AuctionID)
	assert.Eventually(t, func() bool {
		var got domain.Auction
		if err := f.db.Where("auction_id = ?", a.AuctionID).First(&got).Error; err != nil {
			return false
		}
		return got.State == domain.AuctionClosed
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

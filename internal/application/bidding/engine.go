// Package bidding admits bids against live auctions. Each admitted bid is
// backed by an escrow hold covering what the bidder would owe if it won.
package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"atelier-backend/internal/application/broadcast"
	"atelier-backend/internal/application/escrow"
	"atelier-backend/internal/application/locks"
	"atelier-backend/internal/domain"
	"atelier-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Engine struct {
	DB        *gorm.DB
	Locks     *locks.Set
	Publisher broadcast.Publisher
	MaxAmount int64
	Now       func() time.Time

	// OnExpired is called, after all locks are released, for an auction
	// whose end time passed before anyone settled it.
	OnExpired func(auctionID uuid.UUID)
}

type Result struct {
	Accepted     bool      `json:"accepted"`
	BidID        uuid.UUID `json:"bid_id"`
	CurrentPrice int64     `json:"current_price"`
	BidCount     int       `json:"bid_count"`
	HoldAmount   int64     `json:"hold_amount"`
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) publish(a *domain.Auction) {
	if e.Publisher != nil {
		e.Publisher.Publish(broadcast.SnapshotOf(a, e.now()))
	}
}

// MinimumBid is the smallest admissible amount for the auction's next bid.
func MinimumBid(a *domain.Auction) (int64, error) {
	if a.HighestBidID == nil {
		return a.StartPrice, nil
	}
	inc, ok := Increment(a.BidIncrementRule, a.CurrentPrice)
	if !ok {
		return 0, fmt.Errorf("%w: unknown increment rule %q", domain.ErrInvalidAuction, a.BidIncrementRule)
	}
	return a.CurrentPrice + inc, nil
}

// PlaceBid validates amount against the auction, escrows it and makes it
// the highest bid. On any error nothing is written.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64) (Result, error) {
	if amount <= 0 || (e.MaxAmount > 0 && amount > e.MaxAmount) {
		return Result{}, domain.ErrInvalidAmount
	}

	auction, result, expired, err := e.placeBid(ctx, auctionID, bidderID, amount)
	if expired && e.OnExpired != nil {
		e.OnExpired(auctionID)
	}
	if err != nil {
		return Result{}, err
	}
	e.publish(auction)
	return result, nil
}

func (e *Engine) placeBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64) (*domain.Auction, Result, bool, error) {
	unlockAuction, err := e.Locks.LockAuction(ctx, auctionID)
	if err != nil {
		return nil, Result{}, false, err
	}
	defer unlockAuction()

	auction, err := e.load(ctx, auctionID)
	if err != nil {
		return nil, Result{}, false, err
	}
	now := e.now()
	if auction.DueToStart(now) {
		if err := e.activate(ctx, auction); err != nil {
			return nil, Result{}, false, err
		}
		e.publish(auction)
	}
	if !auction.Open(now) {
		return nil, Result{}, auction.Ended(now), domain.ErrAuctionNotActive
	}
	minimum, err := MinimumBid(auction)
	if err != nil {
		return nil, Result{}, false, err
	}
	if amount < minimum {
		return nil, Result{}, false, fmt.Errorf("%w: minimum is %d", domain.ErrBidTooLow, minimum)
	}

	var prev *domain.Bid
	accounts := []uuid.UUID{bidderID}
	if auction.HighestBidID != nil {
		prev = &domain.Bid{}
		if err := e.DB.WithContext(ctx).Where("bid_id = ?", *auction.HighestBidID).First(prev).Error; err != nil {
			return nil, Result{}, false, err
		}
		accounts = append(accounts, prev.BidderID)
	}
	unlockAccounts, err := e.Locks.LockAccounts(ctx, accounts...)
	if err != nil {
		return nil, Result{}, false, err
	}
	defer unlockAccounts()

	var result Result
	err = e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var fresh domain.Auction
		if err := database.ForUpdate(tx).Where("auction_id = ?", auctionID).First(&fresh).Error; err != nil {
			return err
		}
		if fresh.Version != auction.Version {
			return domain.ErrConcurrencyConflict
		}

		holdAmount := auction.Payable(amount)
		bidID := uuid.New()

		// A bidder raising their own highest bid swaps the hold rather than
		// stacking a second one.
		if prev != nil && prev.BidderID == bidderID {
			if err := outbid(tx, prev); err != nil {
				return err
			}
		}
		hold, err := escrow.HoldTx(tx, bidderID, holdAmount, escrow.Purpose{
			Kind:      domain.PurposeBid,
			Ref:       bidID,
			AuctionID: &auctionID,
		})
		if err != nil {
			return err
		}
		if prev != nil && prev.BidderID != bidderID {
			if err := outbid(tx, prev); err != nil {
				return err
			}
		}

		bid := domain.Bid{
			BidID:      bidID,
			AuctionID:  auctionID,
			BidderID:   bidderID,
			Amount:     amount,
			HoldAmount: holdAmount,
			HoldID:     hold.HoldID,
			Status:     domain.BidActive,
		}
		if err := tx.Create(&bid).Error; err != nil {
			return err
		}

		res := tx.Model(&domain.Auction{}).
			Where("auction_id = ? AND version = ?", auctionID, auction.Version).
			Updates(map[string]interface{}{
				"current_price":  amount,
				"highest_bid_id": bidID,
				"bid_count":      auction.BidCount + 1,
				"version":        auction.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrConcurrencyConflict
		}

		ev := domain.NewAuctionEvent(auctionID, domain.AuctionEventBidAccepted, map[string]interface{}{
			"bid_id":      bidID,
			"bidder_id":   bidderID,
			"amount":      amount,
			"hold_amount": holdAmount,
		})
		if err := tx.Create(&ev).Error; err != nil {
			return err
		}

		auction.CurrentPrice = amount
		auction.HighestBidID = &bidID
		auction.BidCount++
		auction.Version++
		result = Result{
			Accepted:     true,
			BidID:        bidID,
			CurrentPrice: amount,
			BidCount:     auction.BidCount,
			HoldAmount:   holdAmount,
		}
		return nil
	})
	if err != nil {
		return nil, Result{}, false, err
	}
	log.Info().
		Str("auction_id", auctionID.String()).
		Str("bid_id", result.BidID.String()).
		Int64("amount", amount).
		Msg("bid accepted")
	return auction, result, false, nil
}

func outbid(tx *gorm.DB, prev *domain.Bid) error {
	if _, err := escrow.ReleaseTx(tx, prev.HoldID); err != nil {
		return err
	}
	return tx.Model(&domain.Bid{}).Where("bid_id = ?", prev.BidID).Update("status", domain.BidOutbid).Error
}

// ActivateDue opens every scheduled auction whose start time has passed.
func (e *Engine) ActivateDue(ctx context.Context) (int, error) {
	now := e.now()
	var ids []uuid.UUID
	if err := e.DB.WithContext(ctx).Model(&domain.Auction{}).
		Where("state = ? AND start_time <= ? AND end_time > ?", domain.AuctionScheduled, now, now).
		Pluck("auction_id", &ids).Error; err != nil {
		return 0, err
	}
	activated := 0
	for _, id := range ids {
		ok, err := e.activateOne(ctx, id)
		if err != nil {
			return activated, err
		}
		if ok {
			activated++
		}
	}
	return activated, nil
}

func (e *Engine) activateOne(ctx context.Context, auctionID uuid.UUID) (bool, error) {
	unlock, err := e.Locks.LockAuction(ctx, auctionID)
	if err != nil {
		return false, err
	}
	defer unlock()

	auction, err := e.load(ctx, auctionID)
	if err != nil {
		return false, err
	}
	if !auction.DueToStart(e.now()) {
		return false, nil
	}
	if err := e.activate(ctx, auction); err != nil {
		return false, err
	}
	e.publish(auction)
	return true, nil
}

// activate moves a scheduled auction to active. The caller holds the
// auction lock.
func (e *Engine) activate(ctx context.Context, a *domain.Auction) error {
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Auction{}).
			Where("auction_id = ? AND state = ? AND version = ?", a.AuctionID, domain.AuctionScheduled, a.Version).
			Updates(map[string]interface{}{"state": domain.AuctionActive, "version": a.Version + 1})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrConcurrencyConflict
		}
		ev := domain.NewAuctionEvent(a.AuctionID, domain.AuctionEventActivated, map[string]interface{}{
			"start_price": a.StartPrice,
		})
		return tx.Create(&ev).Error
	})
	if err != nil {
		return err
	}
	a.State = domain.AuctionActive
	a.Version++
	log.Info().Str("auction_id", a.AuctionID.String()).Msg("auction activated")
	return nil
}

func (e *Engine) load(ctx context.Context, auctionID uuid.UUID) (*domain.Auction, error) {
	var a domain.Auction
	if err := e.DB.WithContext(ctx).Where("auction_id = ?", auctionID).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAuctionNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (e *Engine) GetAuction(ctx context.Context, auctionID uuid.UUID) (*domain.Auction, error) {
	return e.load(ctx, auctionID)
}

// ListBids returns the auction's bids, highest first.
func (e *Engine) ListBids(ctx context.Context, auctionID uuid.UUID) ([]domain.Bid, error) {
	if _, err := e.load(ctx, auctionID); err != nil {
		return nil, err
	}
	var bids []domain.Bid
	err := e.DB.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("amount DESC").
		Order(`"createdAt" ASC`).
		Find(&bids).Error
	return bids, err
}

// Package settlement closes ended auctions: it captures the winner's escrow
// for the total payable and releases every other hold on the lot.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"atelier-backend/internal/application/bidding"
	"atelier-backend/internal/application/broadcast"
	"atelier-backend/internal/application/escrow"
	"atelier-backend/internal/application/ledger"
	"atelier-backend/internal/application/locks"
	"atelier-backend/internal/domain"
	"atelier-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Service struct {
	DB        *gorm.DB
	Locks     *locks.Set
	Engine    *bidding.Engine
	Ledger    *ledger.Service
	Publisher broadcast.Publisher
	Now       func() time.Time

	Workers        int
	ReconcileEvery int

	once     sync.Once
	triggers chan uuid.UUID
}

type Result struct {
	AuctionID     uuid.UUID  `json:"auction_id"`
	Sold          bool       `json:"sold"`
	WinnerID      *uuid.UUID `json:"winner_id"`
	WinningBidID  *uuid.UUID `json:"winning_bid_id"`
	HammerPrice   int64      `json:"hammer_price"`
	BuyerPremium  int64      `json:"buyer_premium"`
	TotalPayable  int64      `json:"total_payable"`
	ClosedAt      *time.Time `json:"closed_at"`
	AlreadyClosed bool       `json:"already_closed"`
}

func resultOf(a *domain.Auction) Result {
	return Result{
		AuctionID:    a.AuctionID,
		Sold:         a.WinnerID != nil,
		WinnerID:     a.WinnerID,
		WinningBidID: a.HighestBidID,
		HammerPrice:  a.HammerPrice,
		BuyerPremium: a.BuyerPremium,
		TotalPayable: a.TotalPayable,
		ClosedAt:     a.ClosedAt,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Settle closes the auction. Settling a closed auction returns the stored
// outcome. Unless force is set the end time must have passed.
func (s *Service) Settle(ctx context.Context, auctionID uuid.UUID, force bool) (Result, error) {
	unlockAuction, err := s.Locks.LockAuction(ctx, auctionID)
	if err != nil {
		return Result{}, err
	}
	defer unlockAuction()

	auction, err := s.load(s.DB.WithContext(ctx), auctionID)
	if err != nil {
		return Result{}, err
	}
	if auction.State == domain.AuctionClosed {
		res := resultOf(auction)
		res.AlreadyClosed = true
		return res, nil
	}
	now := s.now()
	if !force && !auction.Ended(now) {
		return Result{}, domain.ErrAuctionNotEnded
	}

	holds, err := escrow.OpenForAuction(s.DB.WithContext(ctx), auctionID)
	if err != nil {
		return Result{}, err
	}
	accounts := make([]uuid.UUID, 0, len(holds))
	locked := make(map[uuid.UUID]bool, len(holds))
	for _, h := range holds {
		if !locked[h.AccountID] {
			locked[h.AccountID] = true
			accounts = append(accounts, h.AccountID)
		}
	}
	unlockAccounts, err := s.Locks.LockAccounts(ctx, accounts...)
	if err != nil {
		return Result{}, err
	}
	defer unlockAccounts()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh, err := s.load(database.ForUpdate(tx), auctionID)
		if err != nil {
			return err
		}
		if fresh.Version != auction.Version {
			return domain.ErrConcurrencyConflict
		}
		holds, err := escrow.OpenForAuction(database.ForUpdate(tx), auctionID)
		if err != nil {
			return err
		}
		for _, h := range holds {
			if !locked[h.AccountID] {
				return domain.ErrConcurrencyConflict
			}
		}
		return s.close(tx, auction, holds, now)
	})
	if err != nil {
		return Result{}, err
	}

	if s.Publisher != nil {
		s.Publisher.Publish(broadcast.SnapshotOf(auction, now))
	}
	log.Info().
		Str("auction_id", auctionID.String()).
		Int64("hammer_price", auction.HammerPrice).
		Int64("total_payable", auction.TotalPayable).
		Bool("sold", auction.WinnerID != nil).
		Msg("auction settled")
	return resultOf(auction), nil
}

// close runs inside the settlement transaction and updates a in place.
func (s *Service) close(tx *gorm.DB, a *domain.Auction, holds []domain.EscrowHold, now time.Time) error {
	var winner *domain.Bid
	if a.HighestBidID != nil {
		winner = &domain.Bid{}
		if err := tx.Where("bid_id = ?", *a.HighestBidID).First(winner).Error; err != nil {
			return err
		}
	}

	var hammer, premium, payable int64
	if winner != nil {
		hammer = winner.Amount
		premium = a.Premium(hammer)
		payable = a.Payable(hammer)
		if _, err := escrow.CaptureTx(tx, winner.HoldID, payable); err != nil {
			return fmt.Errorf("capture winning hold: %w", err)
		}
	}
	for _, h := range holds {
		if winner != nil && h.HoldID == winner.HoldID {
			continue
		}
		if _, err := escrow.ReleaseTx(tx, h.HoldID); err != nil {
			return fmt.Errorf("release hold %s: %w", h.HoldID, err)
		}
	}

	refund := tx.Model(&domain.Bid{}).Where("auction_id = ?", a.AuctionID)
	if winner != nil {
		if err := tx.Model(&domain.Bid{}).Where("bid_id = ?", winner.BidID).Update("status", domain.BidWinning).Error; err != nil {
			return err
		}
		refund = refund.Where("bid_id <> ?", winner.BidID)
	}
	if err := refund.Update("status", domain.BidRefunded).Error; err != nil {
		return err
	}

	updates := map[string]interface{}{
		"state":         domain.AuctionClosed,
		"hammer_price":  hammer,
		"buyer_premium": premium,
		"total_payable": payable,
		"closed_at":     now,
		"version":       a.Version + 1,
	}
	var winnerID *uuid.UUID
	if winner != nil {
		id := winner.BidderID
		winnerID = &id
		updates["winner_id"] = id
	}
	res := tx.Model(&domain.Auction{}).
		Where("auction_id = ? AND version = ?", a.AuctionID, a.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrencyConflict
	}

	artwork := map[string]interface{}{"status": domain.ArtworkAvailable}
	if winnerID != nil {
		artwork = map[string]interface{}{"status": domain.ArtworkSold, "owner_id": *winnerID}
	}
	if err := tx.Model(&domain.Artwork{}).Where("artwork_id = ?", a.ArtworkID).Updates(artwork).Error; err != nil {
		return err
	}

	ev := domain.NewAuctionEvent(a.AuctionID, domain.AuctionEventClosed, map[string]interface{}{
		"winner_id":     winnerID,
		"hammer_price":  hammer,
		"buyer_premium": premium,
		"total_payable": payable,
		"released":      len(holds),
	})
	if err := tx.Create(&ev).Error; err != nil {
		return err
	}

	a.State = domain.AuctionClosed
	a.WinnerID = winnerID
	a.HammerPrice = hammer
	a.BuyerPremium = premium
	a.TotalPayable = payable
	a.ClosedAt = &now
	a.Version++
	return nil
}

func (s *Service) load(db *gorm.DB, auctionID uuid.UUID) (*domain.Auction, error) {
	var a domain.Auction
	if err := db.Where("auction_id = ?", auctionID).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAuctionNotFound
		}
		return nil, err
	}
	return &a, nil
}

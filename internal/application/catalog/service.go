// Package catalog registers artworks and puts them up for auction.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"atelier-backend/internal/application/bidding"
	"atelier-backend/internal/application/locks"
	"atelier-backend/internal/domain"
	"atelier-backend/internal/infrastructure/database"
	"atelier-backend/internal/pkg/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	DB          *gorm.DB
	Locks       *locks.Set
	DefaultRule string
	Now         func() time.Time
}

type ArtworkInput struct {
	SellerID        uuid.UUID
	Title           string
	BuyNowPrice     *int64
	PurchaseFeeRate decimal.Decimal
}

type AuctionInput struct {
	ArtworkID        uuid.UUID
	StartPrice       int64
	BidIncrementRule string
	BuyerPremiumRate decimal.Decimal
	PremiumInclusive bool
	StartTime        time.Time
	EndTime          time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) CreateArtwork(ctx context.Context, in ArtworkInput) (domain.Artwork, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" || in.SellerID == uuid.Nil {
		return domain.Artwork{}, domain.ErrInvalidArtwork
	}
	if in.BuyNowPrice != nil && *in.BuyNowPrice <= 0 {
		return domain.Artwork{}, fmt.Errorf("%w: buy-now price must be positive", domain.ErrInvalidArtwork)
	}
	if !money.ValidRate(in.PurchaseFeeRate) {
		return domain.Artwork{}, fmt.Errorf("%w: fee rate must be in [0, 1)", domain.ErrInvalidArtwork)
	}
	art := domain.Artwork{
		SellerID:        in.SellerID,
		Title:           title,
		BuyNowPrice:     in.BuyNowPrice,
		PurchaseFeeRate: in.PurchaseFeeRate,
		Status:          domain.ArtworkAvailable,
	}
	if err := s.DB.WithContext(ctx).Create(&art).Error; err != nil {
		return domain.Artwork{}, err
	}
	return art, nil
}

func (s *Service) GetArtwork(ctx context.Context, artworkID uuid.UUID) (domain.Artwork, error) {
	var art domain.Artwork
	if err := s.DB.WithContext(ctx).Where("artwork_id = ?", artworkID).First(&art).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return art, domain.ErrArtworkNotFound
		}
		return art, err
	}
	return art, nil
}

// CreateAuction takes an available artwork off direct sale and schedules
// it. An auction whose start time has already passed opens immediately.
func (s *Service) CreateAuction(ctx context.Context, in AuctionInput) (domain.Auction, error) {
	rule := in.BidIncrementRule
	if rule == "" {
		rule = s.DefaultRule
	}
	if rule == "" {
		rule = bidding.DefaultRule
	}
	now := s.now()
	start, end := in.StartTime.UTC(), in.EndTime.UTC()
	switch {
	case in.StartPrice <= 0:
		return domain.Auction{}, fmt.Errorf("%w: start price must be positive", domain.ErrInvalidAuction)
	case !bidding.KnownRule(rule):
		return domain.Auction{}, fmt.Errorf("%w: unknown increment rule %q", domain.ErrInvalidAuction, rule)
	case !money.ValidRate(in.BuyerPremiumRate):
		return domain.Auction{}, fmt.Errorf("%w: premium rate must be in [0, 1)", domain.ErrInvalidAuction)
	case !end.After(start) || !end.After(now):
		return domain.Auction{}, fmt.Errorf("%w: end time must follow start time and now", domain.ErrInvalidAuction)
	}

	unlock, err := s.Locks.LockArtwork(ctx, in.ArtworkID)
	if err != nil {
		return domain.Auction{}, err
	}
	defer unlock()

	auction := domain.Auction{
		ArtworkID:        in.ArtworkID,
		State:            domain.AuctionScheduled,
		StartPrice:       in.StartPrice,
		CurrentPrice:     in.StartPrice,
		BidIncrementRule: rule,
		BuyerPremiumRate: in.BuyerPremiumRate,
		PremiumInclusive: in.PremiumInclusive,
		StartTime:        start,
		EndTime:          end,
	}
	if !now.Before(start) {
		auction.State = domain.AuctionActive
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var art domain.Artwork
		if err := database.ForUpdate(tx).Where("artwork_id = ?", in.ArtworkID).First(&art).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrArtworkNotFound
			}
			return err
		}
		if art.Status != domain.ArtworkAvailable {
			return domain.ErrArtworkNotAvailable
		}
		if err := tx.Create(&auction).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Artwork{}).Where("artwork_id = ?", art.ArtworkID).
			Update("status", domain.ArtworkInAuction).Error; err != nil {
			return err
		}
		ev := domain.NewAuctionEvent(auction.AuctionID, domain.AuctionEventCreated, map[string]interface{}{
			"artwork_id":         art.ArtworkID,
			"state":              auction.State,
			"start_price":        auction.StartPrice,
			"bid_increment_rule": rule,
			"buyer_premium_rate": auction.BuyerPremiumRate.String(),
			"premium_inclusive":  auction.PremiumInclusive,
		})
		return tx.Create(&ev).Error
	})
	if err != nil {
		return domain.Auction{}, err
	}
	return auction, nil
}

// Package purchases sells buy-now artworks through a two-step escrow: hold
// the worst-case price then capture the actual one.
package purchases

import (
	"context"
	"errors"

	"atelier-backend/internal/application/escrow"
	"atelier-backend/internal/application/locks"
	"atelier-backend/internal/domain"
	"atelier-backend/internal/infrastructure/database"
	"atelier-backend/internal/pkg/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	DB         *gorm.DB
	Locks      *locks.Set
	FeeCapRate decimal.Decimal
}

type Result struct {
	Accepted   bool      `json:"accepted"`
	PurchaseID uuid.UUID `json:"purchase_id"`
	Price      int64     `json:"price"`
	Fee        int64     `json:"fee"`
	FinalPrice int64     `json:"final_price"`
}

func (s *Service) Purchase(ctx context.Context, artworkID, buyerID uuid.UUID) (Result, error) {
	unlockArtwork, err := s.Locks.LockArtwork(ctx, artworkID)
	if err != nil {
		return Result{}, err
	}
	defer unlockArtwork()

	art, err := s.load(s.DB.WithContext(ctx), artworkID)
	if err != nil {
		return Result{}, err
	}
	if err := purchasable(art, buyerID); err != nil {
		return Result{}, err
	}

	unlockBuyer, err := s.Locks.LockAccounts(ctx, buyerID)
	if err != nil {
		return Result{}, err
	}
	defer unlockBuyer()

	var result Result
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		art, err := s.load(database.ForUpdate(tx), artworkID)
		if err != nil {
			return err
		}
		if err := purchasable(art, buyerID); err != nil {
			return err
		}

		price := *art.BuyNowPrice
		capRate := s.FeeCapRate
		if art.PurchaseFeeRate.GreaterThan(capRate) {
			capRate = art.PurchaseFeeRate
		}
		fee := money.ApplyRate(price, art.PurchaseFeeRate)
		purchaseID := uuid.New()

		hold, err := escrow.HoldTx(tx, buyerID, price+money.ApplyRate(price, capRate), escrow.Purpose{
			Kind: domain.PurposePurchase,
			Ref:  purchaseID,
		})
		if err != nil {
			return err
		}
		if _, err := escrow.CaptureTx(tx, hold.HoldID, price+fee); err != nil {
			return err
		}

		if err := tx.Create(&domain.Purchase{
			PurchaseID: purchaseID,
			ArtworkID:  artworkID,
			BuyerID:    buyerID,
			Price:      price,
			Fee:        fee,
			FinalPrice: price + fee,
			HoldID:     hold.HoldID,
		}).Error; err != nil {
			return err
		}

		res := tx.Model(&domain.Artwork{}).
			Where("artwork_id = ? AND status = ?", artworkID, domain.ArtworkAvailable).
			Updates(map[string]interface{}{"status": domain.ArtworkSold, "owner_id": buyerID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrArtworkNotAvailable
		}

		result = Result{Accepted: true, PurchaseID: purchaseID, Price: price, Fee: fee, FinalPrice: price + fee}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	log.Info().
		Str("artwork_id", artworkID.String()).
		Str("purchase_id", result.PurchaseID.String()).
		Int64("final_price", result.FinalPrice).
		Msg("artwork purchased")
	return result, nil
}

func purchasable(art *domain.Artwork, buyerID uuid.UUID) error {
	if art.Status != domain.ArtworkAvailable || art.BuyNowPrice == nil {
		return domain.ErrArtworkNotAvailable
	}
	if art.SellerID == buyerID {
		return domain.ErrArtworkNotAvailable
	}
	return nil
}

func (s *Service) load(db *gorm.DB, artworkID uuid.UUID) (*domain.Artwork, error) {
	var art domain.Artwork
	if err := db.Where("artwork_id = ?", artworkID).First(&art).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrArtworkNotFound
		}
		return nil, err
	}
	return &art, nil
}

// Package escrow reserves funds for bids and purchases and settles the
// reservations. All balance effects are ledger postings.
package escrow

import (
	"context"
	"errors"

	"atelier-backend/internal/application/ledger"
	"atelier-backend/internal/application/locks"
	"atelier-backend/internal/domain"
	"atelier-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Service struct {
	DB    *gorm.DB
	Locks *locks.Set
}

// Purpose ties a hold to the bid or purchase it backs.
type Purpose struct {
	Kind      domain.HoldPurpose
	Ref       uuid.UUID
	AuctionID *uuid.UUID
}

func (s *Service) Hold(ctx context.Context, accountID uuid.UUID, amount int64, purpose Purpose) (domain.EscrowHold, error) {
	if amount <= 0 {
		return domain.EscrowHold{}, domain.ErrInvalidAmount
	}
	unlock, err := s.Locks.LockAccounts(ctx, accountID)
	if err != nil {
		return domain.EscrowHold{}, err
	}
	defer unlock()

	var hold domain.EscrowHold
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		hold, err = HoldTx(tx, accountID, amount, purpose)
		return err
	})
	return hold, err
}

// HoldTx moves amount from available to escrowed and records the hold.
func HoldTx(tx *gorm.DB, accountID uuid.UUID, amount int64, purpose Purpose) (domain.EscrowHold, error) {
	if amount <= 0 {
		return domain.EscrowHold{}, domain.ErrInvalidAmount
	}
	hold := domain.EscrowHold{
		HoldID:     uuid.New(),
		AccountID:  accountID,
		Amount:     amount,
		Purpose:    purpose.Kind,
		PurposeRef: purpose.Ref,
		AuctionID:  purpose.AuctionID,
		State:      domain.HoldHeld,
	}
	if _, err := ledger.Post(tx, posting(&hold, purpose.Kind.LockEntry(), amount)); err != nil {
		return domain.EscrowHold{}, err
	}
	if err := tx.Create(&hold).Error; err != nil {
		return domain.EscrowHold{}, err
	}
	return hold, nil
}

func (s *Service) Release(ctx context.Context, holdID uuid.UUID) (domain.EscrowHold, error) {
	return s.finalize(ctx, holdID, func(tx *gorm.DB) (domain.EscrowHold, error) {
		return ReleaseTx(tx, holdID)
	})
}

// ReleaseTx returns a held amount to available.
func ReleaseTx(tx *gorm.DB, holdID uuid.UUID) (domain.EscrowHold, error) {
	hold, err := loadHeld(tx, holdID)
	if err != nil {
		return hold, err
	}
	if _, err := ledger.Post(tx, posting(&hold, hold.Purpose.ReleaseEntry(), hold.Amount)); err != nil {
		return hold, err
	}
	if err := markFinal(tx, &hold, domain.HoldReleased, 0); err != nil {
		return hold, err
	}
	return hold, nil
}

func (s *Service) Capture(ctx context.Context, holdID uuid.UUID, actual int64) (domain.EscrowHold, error) {
	return s.finalize(ctx, holdID, func(tx *gorm.DB) (domain.EscrowHold, error) {
		return CaptureTx(tx, holdID, actual)
	})
}

// CaptureTx debits actual from the hold and releases whatever is left of it.
func CaptureTx(tx *gorm.DB, holdID uuid.UUID, actual int64) (domain.EscrowHold, error) {
	hold, err := loadHeld(tx, holdID)
	if err != nil {
		return hold, err
	}
	if actual <= 0 || actual > hold.Amount {
		return hold, domain.ErrInvalidAmount
	}
	if _, err := ledger.Post(tx, posting(&hold, hold.Purpose.CaptureEntry(), actual)); err != nil {
		return hold, err
	}
	if rest := hold.Amount - actual; rest > 0 {
		if _, err := ledger.Post(tx, posting(&hold, hold.Purpose.ReleaseEntry(), rest)); err != nil {
			return hold, err
		}
	}
	if err := markFinal(tx, &hold, domain.HoldCaptured, actual); err != nil {
		return hold, err
	}
	return hold, nil
}

func (s *Service) Get(ctx context.Context, holdID uuid.UUID) (domain.EscrowHold, error) {
	var hold domain.EscrowHold
	if err := s.DB.WithContext(ctx).Where("hold_id = ?", holdID).First(&hold).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return hold, domain.ErrHoldNotFound
		}
		return hold, err
	}
	return hold, nil
}

// OpenForAuction lists the held holds backing bids on an auction.
func OpenForAuction(tx *gorm.DB, auctionID uuid.UUID) ([]domain.EscrowHold, error) {
	var holds []domain.EscrowHold
	err := tx.Where("auction_id = ? AND state = ?", auctionID, domain.HoldHeld).
		Order("account_id ASC").
		Find(&holds).Error
	return holds, err
}

func (s *Service) finalize(ctx context.Context, holdID uuid.UUID, fn func(tx *gorm.DB) (domain.EscrowHold, error)) (domain.EscrowHold, error) {
	hold, err := s.Get(ctx, holdID)
	if err != nil {
		return hold, err
	}
	if hold.Finalized() {
		return hold, domain.ErrAlreadyFinalized
	}
	unlock, err := s.Locks.LockAccounts(ctx, hold.AccountID)
	if err != nil {
		return hold, err
	}
	defer unlock()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		hold, err = fn(tx)
		return err
	})
	return hold, err
}

func loadHeld(tx *gorm.DB, holdID uuid.UUID) (domain.EscrowHold, error) {
	var hold domain.EscrowHold
	if err := database.ForUpdate(tx).Where("hold_id = ?", holdID).First(&hold).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return hold, domain.ErrHoldNotFound
		}
		return hold, err
	}
	if hold.Finalized() {
		return hold, domain.ErrAlreadyFinalized
	}
	return hold, nil
}

func markFinal(tx *gorm.DB, hold *domain.EscrowHold, state domain.HoldState, captured int64) error {
	res := tx.Model(&domain.EscrowHold{}).
		Where("hold_id = ? AND state = ?", hold.HoldID, domain.HoldHeld).
		Updates(map[string]interface{}{"state": state, "captured_amount": captured})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAlreadyFinalized
	}
	hold.State = state
	hold.CapturedAmount = captured
	return nil
}

func posting(hold *domain.EscrowHold, typ domain.EntryType, amount int64) ledger.Posting {
	p := ledger.Posting{
		AccountID: hold.AccountID,
		Type:      typ,
		Amount:    amount,
		AuctionID: hold.AuctionID,
		HoldID:    &hold.HoldID,
	}
	if hold.Purpose == domain.PurposeBid {
		ref := hold.PurposeRef
		p.BidID = &ref
	}
	return p
}

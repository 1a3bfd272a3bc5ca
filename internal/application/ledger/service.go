// Package ledger owns every balance mutation. Account rows are a cached
// projection of LedgerEntries and are written only through Post.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"atelier-backend/internal/application/locks"
	"atelier-backend/internal/domain"
	"atelier-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// IntegrityReporter receives reconciliation failures for operators.
type IntegrityReporter interface {
	ReportIntegrity(ctx context.Context, accountID uuid.UUID, detail string)
}

type Service struct {
	DB        *gorm.DB
	Locks     *locks.Set
	MaxAmount int64
	Reporter  IntegrityReporter
}

// Posting describes one entry to append. Amount is a positive magnitude;
// the sign comes from Type.
type Posting struct {
	AccountID uuid.UUID
	Type      domain.EntryType
	Amount    int64
	BidID     *uuid.UUID
	AuctionID *uuid.UUID
	HoldID    *uuid.UUID
	Note      string
	Metadata  map[string]interface{}
}

// Post appends p and updates the account snapshot inside tx. The caller
// holds the account lock. Nothing is written when an invariant would break.
func Post(tx *gorm.DB, p Posting) (domain.Account, error) {
	if p.Amount <= 0 {
		return domain.Account{}, domain.ErrInvalidAmount
	}
	signed, dTotal, dEscrowed, ok := p.Type.Effect(p.Amount)
	if !ok {
		return domain.Account{}, fmt.Errorf("ledger: unknown entry type %q", p.Type)
	}

	var acc domain.Account
	err := database.ForUpdate(tx).Where("account_id = ?", p.AccountID).First(&acc).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if !p.Type.OpensAccount() {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		acc = domain.Account{AccountID: p.AccountID}
		if err := tx.Create(&acc).Error; err != nil {
			return domain.Account{}, err
		}
	case err != nil:
		return domain.Account{}, err
	}

	next := acc
	next.Total += dTotal
	next.Escrowed += dEscrowed
	next.Available = next.Total - next.Escrowed
	if next.Escrowed < 0 {
		return domain.Account{}, fmt.Errorf("%w: escrowed would drop to %d", domain.ErrIntegrityViolation, next.Escrowed)
	}
	if next.Available < 0 {
		return domain.Account{}, domain.ErrInsufficientFunds
	}

	entry := domain.LedgerEntry{
		AccountID:        p.AccountID,
		Type:             p.Type,
		Amount:           signed,
		RelatedBidID:     p.BidID,
		RelatedAuctionID: p.AuctionID,
		RelatedHoldID:    p.HoldID,
		Note:             p.Note,
	}
	if p.Metadata != nil {
		raw, err := json.Marshal(p.Metadata)
		if err != nil {
			return domain.Account{}, err
		}
		entry.Metadata = datatypes.JSON(raw)
	}
	if err := tx.Create(&entry).Error; err != nil {
		return domain.Account{}, err
	}

	res := tx.Model(&domain.Account{}).
		Where("account_id = ? AND version = ?", acc.AccountID, acc.Version).
		Updates(map[string]interface{}{
			"total":     next.Total,
			"escrowed":  next.Escrowed,
			"available": next.Available,
			"version":   acc.Version + 1,
		})
	if res.Error != nil {
		return domain.Account{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Account{}, domain.ErrConcurrencyConflict
	}
	next.Version = acc.Version + 1
	return next, nil
}

// Credit adds amount to the account's total, opening it if needed.
func (s *Service) Credit(ctx context.Context, accountID uuid.UUID, amount int64, reason domain.EntryType, note string) (domain.Balance, error) {
	if reason != domain.EntryDeposit && reason != domain.EntryRefund {
		return domain.Balance{}, fmt.Errorf("ledger: %q is not a credit", reason)
	}
	return s.apply(ctx, Posting{AccountID: accountID, Type: reason, Amount: amount, Note: note})
}

// Debit removes amount from the account's available funds.
func (s *Service) Debit(ctx context.Context, accountID uuid.UUID, amount int64, reason domain.EntryType, note string) (domain.Balance, error) {
	if reason != domain.EntryWithdrawal {
		return domain.Balance{}, fmt.Errorf("ledger: %q is not a debit", reason)
	}
	return s.apply(ctx, Posting{AccountID: accountID, Type: reason, Amount: amount, Note: note})
}

func (s *Service) apply(ctx context.Context, p Posting) (domain.Balance, error) {
	if err := s.checkAmount(p.Amount); err != nil {
		return domain.Balance{}, err
	}
	unlock, err := s.Locks.LockAccounts(ctx, p.AccountID)
	if err != nil {
		return domain.Balance{}, err
	}
	defer unlock()

	var acc domain.Account
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		acc, err = Post(tx, p)
		return err
	})
	if err != nil {
		return domain.Balance{}, err
	}
	return acc.Balance(), nil
}

func (s *Service) checkAmount(amount int64) error {
	if amount <= 0 || (s.MaxAmount > 0 && amount > s.MaxAmount) {
		return domain.ErrInvalidAmount
	}
	return nil
}

func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (domain.Balance, error) {
	var acc domain.Account
	if err := s.DB.WithContext(ctx).Where("account_id = ?", accountID).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Balance{}, domain.ErrAccountNotFound
		}
		return domain.Balance{}, err
	}
	return acc.Balance(), nil
}

// Entries lists the account's ledger entries, newest first.
func (s *Service) Entries(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []domain.LedgerEntry
	err := s.DB.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order(`"createdAt" DESC`).
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// Package wallet is the user-facing side of the ledger.
package wallet

import (
	"context"
	"errors"

	"atelier-backend/internal/application/ledger"
	"atelier-backend/internal/domain"

	"github.com/google/uuid"
)

type Service struct {
	Ledger *ledger.Service
}

type Statement struct {
	Balance domain.Balance       `json:"balance"`
	Entries []domain.LedgerEntry `json:"entries"`
}

func (s *Service) Deposit(ctx context.Context, accountID uuid.UUID, amount int64, note string) (domain.Balance, error) {
	return s.Ledger.Credit(ctx, accountID, amount, domain.EntryDeposit, note)
}

func (s *Service) Withdraw(ctx context.Context, accountID uuid.UUID, amount int64, note string) (domain.Balance, error) {
	return s.Ledger.Debit(ctx, accountID, amount, domain.EntryWithdrawal, note)
}

// Balance reports an account that never received funds as empty.
func (s *Service) Balance(ctx context.Context, accountID uuid.UUID) (domain.Balance, error) {
	bal, err := s.Ledger.GetBalance(ctx, accountID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.Balance{AccountID: accountID}, nil
	}
	return bal, err
}

func (s *Service) Statement(ctx context.Context, accountID uuid.UUID, limit int) (Statement, error) {
	bal, err := s.Balance(ctx, accountID)
	if err != nil {
		return Statement{}, err
	}
	entries, err := s.Ledger.Entries(ctx, accountID, limit)
	if err != nil {
		return Statement{}, err
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	return Statement{Balance: bal, Entries: entries}, nil
}

package ledger

import (
	"context"
	"errors"
	"fmt"

	"atelier-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Report compares an account snapshot with its entry history.
type Report struct {
	AccountID uuid.UUID      `json:"account_id"`
	Snapshot  domain.Balance `json:"snapshot"`
	Folded    domain.Balance `json:"folded"`
	OpenHolds int64          `json:"open_holds"`
}

func (r Report) OK() bool {
	return r.Snapshot.Consistent() &&
		r.Snapshot.Total == r.Folded.Total &&
		r.Snapshot.Escrowed == r.Folded.Escrowed &&
		r.Snapshot.Escrowed == r.OpenHolds
}

func (r Report) String() string {
	return fmt.Sprintf("snapshot=%d/%d/%d folded=%d/%d/%d open_holds=%d",
		r.Snapshot.Total, r.Snapshot.Escrowed, r.Snapshot.Available,
		r.Folded.Total, r.Folded.Escrowed, r.Folded.Available, r.OpenHolds)
}

// Reconcile folds the account's entries and checks them against the cached
// balance and the open escrow holds. A mismatch is reported and returned as
// ErrIntegrityViolation; it is never corrected here.
func (s *Service) Reconcile(ctx context.Context, accountID uuid.UUID) (Report, error) {
	unlock, err := s.Locks.LockAccounts(ctx, accountID)
	if err != nil {
		return Report{}, err
	}
	defer unlock()

	report := Report{AccountID: accountID}
	db := s.DB.WithContext(ctx)

	var acc domain.Account
	if err := db.Where("account_id = ?", accountID).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return report, domain.ErrAccountNotFound
		}
		return report, err
	}
	report.Snapshot = acc.Balance()

	var entries []domain.LedgerEntry
	if err := db.Select("type", "amount").Where("account_id = ?", accountID).Find(&entries).Error; err != nil {
		return report, err
	}
	folded := domain.Balance{AccountID: accountID}
	for _, e := range entries {
		folded = e.Type.Apply(folded, e.Amount)
	}
	report.Folded = folded

	var open struct{ Sum int64 }
	if err := db.Model(&domain.EscrowHold{}).
		Select("COALESCE(SUM(amount), 0) AS sum").
		Where("account_id = ? AND state = ?", accountID, domain.HoldHeld).
		Scan(&open).Error; err != nil {
		return report, err
	}
	report.OpenHolds = open.Sum

	if report.OK() {
		return report, nil
	}
	detail := report.String()
	log.Error().Str("account_id", accountID.String()).Str("detail", detail).Msg("ledger reconciliation mismatch")
	if s.Reporter != nil {
		s.Reporter.ReportIntegrity(ctx, accountID, detail)
	}
	return report, fmt.Errorf("%w: %s", domain.ErrIntegrityViolation, detail)
}

// ReconcileAll reconciles every account and returns the failing reports.
func (s *Service) ReconcileAll(ctx context.Context) ([]Report, error) {
	var ids []uuid.UUID
	if err := s.DB.WithContext(ctx).Model(&domain.Account{}).Pluck("account_id", &ids).Error; err != nil {
		return nil, err
	}
	var bad []Report
	for _, id := range ids {
		report, err := s.Reconcile(ctx, id)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrIntegrityViolation):
			bad = append(bad, report)
		default:
			return bad, err
		}
	}
	return bad, nil
}

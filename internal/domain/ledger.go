package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EntryType string

const (
	EntryDeposit         EntryType = "deposit"
	EntryWithdrawal      EntryType = "withdrawal"
	EntryBidLock         EntryType = "bid-lock"
	EntryBidRelease      EntryType = "bid-release"
	EntryBidCapture      EntryType = "bid-capture"
	EntryPurchaseLock    EntryType = "purchase-lock"
	EntryPurchaseRelease EntryType = "purchase-release"
	EntryPurchaseCapture EntryType = "purchase-capture"
	EntryRefund          EntryType = "refund"
)

// Effect turns a positive magnitude into the signed entry amount and the
// resulting deltas on the total and escrowed components.
//
//	deposit, refund            +m  total += m
//	withdrawal                 -m  total -= m
//	*-lock                     -m  escrowed += m
//	*-release                  +m  escrowed -= m
//	*-capture                  -m  total -= m, escrowed -= m
func (t EntryType) Effect(magnitude int64) (signed, dTotal, dEscrowed int64, ok bool) {
	switch t {
	case EntryDeposit, EntryRefund:
		return magnitude, magnitude, 0, true
	case EntryWithdrawal:
		return -magnitude, -magnitude, 0, true
	case EntryBidLock, EntryPurchaseLock:
		return -magnitude, 0, magnitude, true
	case EntryBidRelease, EntryPurchaseRelease:
		return magnitude, 0, -magnitude, true
	case EntryBidCapture, EntryPurchaseCapture:
		return -magnitude, -magnitude, -magnitude, true
	}
	return 0, 0, 0, false
}

// Apply folds one stored entry into a balance.
func (t EntryType) Apply(b Balance, signed int64) Balance {
	switch t {
	case EntryDeposit, EntryRefund, EntryWithdrawal:
		b.Total += signed
	case EntryBidLock, EntryPurchaseLock, EntryBidRelease, EntryPurchaseRelease:
		b.Escrowed -= signed
	case EntryBidCapture, EntryPurchaseCapture:
		b.Total += signed
		b.Escrowed += signed
	}
	b.Available = b.Total - b.Escrowed
	return b
}

// OpensAccount reports whether an entry of this type may create the account.
func (t EntryType) OpensAccount() bool {
	return t == EntryDeposit || t == EntryRefund
}

// LedgerEntry is an immutable balance mutation.
type LedgerEntry struct {
	EntryID          uuid.UUID      `gorm:"column:entry_id;type:uuid;primaryKey" json:"entry_id"`
	AccountID        uuid.UUID      `gorm:"column:account_id;type:uuid;not null;index" json:"account_id"`
	Type             EntryType      `gorm:"column:type;type:varchar(20);not null" json:"type"`
	Amount           int64          `gorm:"column:amount;not null" json:"amount"`
	RelatedBidID     *uuid.UUID     `gorm:"column:related_bid_id;type:uuid" json:"related_bid_id"`
	RelatedAuctionID *uuid.UUID     `gorm:"column:related_auction_id;type:uuid" json:"related_auction_id"`
	RelatedHoldID    *uuid.UUID     `gorm:"column:related_hold_id;type:uuid" json:"related_hold_id"`
	Note             string         `gorm:"column:note" json:"note,omitempty"`
	Metadata         datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt        time.Time      `gorm:"column:createdAt;index" json:"createdAt"`
}

func (LedgerEntry) TableName() string {
	return "LedgerEntries"
}

func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.EntryID == uuid.Nil {
		e.EntryID = uuid.New()
	}
	return nil
}

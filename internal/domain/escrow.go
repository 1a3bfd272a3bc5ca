package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type HoldState string

const (
	HoldHeld     HoldState = "held"
	HoldCaptured HoldState = "captured"
	HoldReleased HoldState = "released"
)

type HoldPurpose string

const (
	PurposeBid      HoldPurpose = "bid"
	PurposePurchase HoldPurpose = "purchase"
)

// LockEntry, ReleaseEntry and CaptureEntry pick the ledger entry types used
// for holds of this purpose.
func (p HoldPurpose) LockEntry() EntryType {
	if p == PurposePurchase {
		return EntryPurchaseLock
	}
	return EntryBidLock
}

func (p HoldPurpose) ReleaseEntry() EntryType {
	if p == PurposePurchase {
		return EntryPurchaseRelease
	}
	return EntryBidRelease
}

func (p HoldPurpose) CaptureEntry() EntryType {
	if p == PurposePurchase {
		return EntryPurchaseCapture
	}
	return EntryBidCapture
}

// EscrowHold reserves funds against a bid or a purchase. Captured and
// released are terminal.
type EscrowHold struct {
	HoldID         uuid.UUID   `gorm:"column:hold_id;type:uuid;primaryKey" json:"hold_id"`
	AccountID      uuid.UUID   `gorm:"column:account_id;type:uuid;not null;index" json:"account_id"`
	Amount         int64       `gorm:"column:amount;not null" json:"amount"`
	Purpose        HoldPurpose `gorm:"column:purpose;type:varchar(20);not null" json:"purpose"`
	PurposeRef     uuid.UUID   `gorm:"column:purpose_ref;type:uuid;not null" json:"purpose_ref"`
	AuctionID      *uuid.UUID  `gorm:"column:auction_id;type:uuid;index" json:"auction_id"`
	State          HoldState   `gorm:"column:state;type:varchar(20);not null;default:'held'" json:"state"`
	CapturedAmount int64       `gorm:"column:captured_amount;not null;default:0" json:"captured_amount"`
	CreatedAt      time.Time   `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt      time.Time   `gorm:"column:updatedAt" json:"updatedAt"`
}

func (EscrowHold) TableName() string {
	return "EscrowHolds"
}

func (h *EscrowHold) BeforeCreate(tx *gorm.DB) error {
	if h.HoldID == uuid.Nil {
		h.HoldID = uuid.New()
	}
	return nil
}

func (h *EscrowHold) Finalized() bool {
	return h.State == HoldCaptured || h.State == HoldReleased
}

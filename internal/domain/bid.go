package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BidStatus string

const (
	BidActive   BidStatus = "active"
	BidOutbid   BidStatus = "outbid"
	BidWinning  BidStatus = "winning"
	BidRefunded BidStatus = "refunded"
)

// Bid is an admitted bid. HoldAmount is the escrowed amount backing it,
// which exceeds Amount when the buyer premium is charged on top.
type Bid struct {
	BidID      uuid.UUID `gorm:"column:bid_id;type:uuid;primaryKey" json:"bid_id"`
	AuctionID  uuid.UUID `gorm:"column:auction_id;type:uuid;not null;index" json:"auction_id"`
	BidderID   uuid.UUID `gorm:"column:bidder_id;type:uuid;not null;index" json:"bidder_id"`
	Amount     int64     `gorm:"column:amount;not null" json:"amount"`
	HoldAmount int64     `gorm:"column:hold_amount;not null" json:"hold_amount"`
	HoldID     uuid.UUID `gorm:"column:hold_id;type:uuid;not null" json:"hold_id"`
	Status     BidStatus `gorm:"column:status;type:varchar(20);not null;default:'active'" json:"status"`
	CreatedAt  time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Bid) TableName() string {
	return "Bids"
}

func (b *Bid) BeforeCreate(tx *gorm.DB) error {
	if b.BidID == uuid.Nil {
		b.BidID = uuid.New()
	}
	return nil
}

package domain

import (
	"encoding/json"
	"time"

	"atelier-backend/internal/pkg/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuctionState string

const (
	AuctionScheduled AuctionState = "scheduled"
	AuctionActive    AuctionState = "active"
	AuctionClosed    AuctionState = "closed"
)

// Auction is one lot under the hammer. Version is bumped on every mutation
// and doubles as the sequence number of published price snapshots.
type Auction struct {
	AuctionID        uuid.UUID       `gorm:"column:auction_id;type:uuid;primaryKey" json:"auction_id"`
	ArtworkID        uuid.UUID       `gorm:"column:artwork_id;type:uuid;not null;index" json:"artwork_id"`
	State            AuctionState    `gorm:"column:state;type:varchar(20);not null;default:'scheduled';index" json:"state"`
	StartPrice       int64           `gorm:"column:start_price;not null" json:"start_price"`
	CurrentPrice     int64           `gorm:"column:current_price;not null" json:"current_price"`
	BidIncrementRule string          `gorm:"column:bid_increment_rule;type:varchar(30);not null" json:"bid_increment_rule"`
	BuyerPremiumRate decimal.Decimal `gorm:"column:buyer_premium_rate;type:numeric(6,4);not null;default:0" json:"buyer_premium_rate"`
	PremiumInclusive bool            `gorm:"column:premium_inclusive;not null;default:false" json:"premium_inclusive"`
	StartTime        time.Time       `gorm:"column:start_time;not null" json:"start_time"`
	EndTime          time.Time       `gorm:"column:end_time;not null;index" json:"end_time"`
	HighestBidID     *uuid.UUID      `gorm:"column:highest_bid_id;type:uuid" json:"highest_bid_id"`
	BidCount         int             `gorm:"column:bid_count;not null;default:0" json:"bid_count"`
	Version          int64           `gorm:"column:version;not null;default:0" json:"version"`

	WinnerID     *uuid.UUID `gorm:"column:winner_id;type:uuid" json:"winner_id"`
	HammerPrice  int64      `gorm:"column:hammer_price;not null;default:0" json:"hammer_price"`
	BuyerPremium int64      `gorm:"column:buyer_premium;not null;default:0" json:"buyer_premium"`
	TotalPayable int64      `gorm:"column:total_payable;not null;default:0" json:"total_payable"`
	ClosedAt     *time.Time `gorm:"column:closed_at" json:"closed_at"`

	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Auction) TableName() string {
	return "Auctions"
}

func (a *Auction) BeforeCreate(tx *gorm.DB) error {
	if a.AuctionID == uuid.Nil {
		a.AuctionID = uuid.New()
	}
	return nil
}

// DueToStart reports whether a scheduled auction should be active at now.
func (a *Auction) DueToStart(now time.Time) bool {
	return a.State == AuctionScheduled && !now.Before(a.StartTime) && now.Before(a.EndTime)
}

// Open reports whether bids are admissible at now.
func (a *Auction) Open(now time.Time) bool {
	return a.State == AuctionActive && now.Before(a.EndTime)
}

// Ended reports whether the auction should be settled at now.
func (a *Auction) Ended(now time.Time) bool {
	return a.State != AuctionClosed && !now.Before(a.EndTime)
}

// Payable is what a winning bid of amount costs the bidder under this
// auction's premium convention. Bid holds are sized with it so the
// settlement capture never exceeds the hold.
func (a *Auction) Payable(amount int64) int64 {
	if a.PremiumInclusive {
		return amount
	}
	return amount + money.ApplyRate(amount, a.BuyerPremiumRate)
}

// Premium is the buyer premium carried by a hammer price.
func (a *Auction) Premium(hammer int64) int64 {
	if a.PremiumInclusive {
		return money.EmbeddedShare(hammer, a.BuyerPremiumRate)
	}
	return money.ApplyRate(hammer, a.BuyerPremiumRate)
}

const (
	AuctionEventCreated     = "CREATED"
	AuctionEventActivated   = "ACTIVATED"
	AuctionEventBidAccepted = "BID_ACCEPTED"
	AuctionEventClosed      = "CLOSED"
)

// AuctionEvent is the audit trail of an auction.
type AuctionEvent struct {
	EventID   uuid.UUID      `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	AuctionID uuid.UUID      `gorm:"column:auction_id;type:uuid;not null;index" json:"auction_id"`
	EventType string         `gorm:"column:event_type;type:varchar(30);not null" json:"event_type"`
	EventData datatypes.JSON `gorm:"column:event_data;type:jsonb;not null" json:"event_data"`
	CreatedAt time.Time      `gorm:"column:createdAt" json:"createdAt"`
}

func (AuctionEvent) TableName() string {
	return "AuctionEvents"
}

func (e *AuctionEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	return nil
}

func NewAuctionEvent(auctionID uuid.UUID, eventType string, data map[string]interface{}) AuctionEvent {
	raw, _ := json.Marshal(data)
	return AuctionEvent{AuctionID: auctionID, EventType: eventType, EventData: datatypes.JSON(raw)}
}

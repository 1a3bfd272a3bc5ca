package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ArtworkStatus string

const (
	ArtworkAvailable ArtworkStatus = "available"
	ArtworkInAuction ArtworkStatus = "in-auction"
	ArtworkSold      ArtworkStatus = "sold"
)

// Artwork carries the sale state of a piece. BuyNowPrice is nil for
// auction-only works.
type Artwork struct {
	ArtworkID       uuid.UUID       `gorm:"column:artwork_id;type:uuid;primaryKey" json:"artwork_id"`
	SellerID        uuid.UUID       `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	Title           string          `gorm:"column:title;not null" json:"title"`
	BuyNowPrice     *int64          `gorm:"column:buy_now_price" json:"buy_now_price"`
	PurchaseFeeRate decimal.Decimal `gorm:"column:purchase_fee_rate;type:numeric(6,4);not null;default:0" json:"purchase_fee_rate"`
	Status          ArtworkStatus   `gorm:"column:status;type:varchar(20);not null;default:'available'" json:"status"`
	OwnerID         *uuid.UUID      `gorm:"column:owner_id;type:uuid" json:"owner_id"`
	CreatedAt       time.Time       `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt       time.Time       `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Artwork) TableName() string {
	return "Artworks"
}

func (a *Artwork) BeforeCreate(tx *gorm.DB) error {
	if a.ArtworkID == uuid.Nil {
		a.ArtworkID = uuid.New()
	}
	return nil
}

// Purchase records a completed buy-now sale.
type Purchase struct {
	PurchaseID uuid.UUID `gorm:"column:purchase_id;type:uuid;primaryKey" json:"purchase_id"`
	ArtworkID  uuid.UUID `gorm:"column:artwork_id;type:uuid;not null;uniqueIndex" json:"artwork_id"`
	BuyerID    uuid.UUID `gorm:"column:buyer_id;type:uuid;not null;index" json:"buyer_id"`
	Price      int64     `gorm:"column:price;not null" json:"price"`
	Fee        int64     `gorm:"column:fee;not null" json:"fee"`
	FinalPrice int64     `gorm:"column:final_price;not null" json:"final_price"`
	HoldID     uuid.UUID `gorm:"column:hold_id;type:uuid;not null" json:"hold_id"`
	CreatedAt  time.Time `gorm:"column:createdAt" json:"createdAt"`
}

func (Purchase) TableName() string {
	return "Purchases"
}

func (p *Purchase) BeforeCreate(tx *gorm.DB) error {
	if p.PurchaseID == uuid.Nil {
		p.PurchaseID = uuid.New()
	}
	return nil
}

// Package broadcast fans auction price snapshots out to local subscribers
// and to external sinks (Redis, Kafka).
package broadcast

import (
	"time"

	"atelier-backend/internal/domain"

	"github.com/google/uuid"
)

// Snapshot is the full public state of an auction. Sequence is the auction
// version, so consumers can drop anything older than what they have seen.
type Snapshot struct {
	AuctionID    uuid.UUID           `json:"auction_id"`
	State        domain.AuctionState `json:"state"`
	CurrentPrice int64               `json:"current_price"`
	BidCount     int                 `json:"bid_count"`
	HighestBidID *uuid.UUID          `json:"highest_bid_id"`
	EndTime      time.Time           `json:"end_time"`
	HammerPrice  int64               `json:"hammer_price,omitempty"`
	TotalPayable int64               `json:"total_payable,omitempty"`
	Sequence     int64               `json:"sequence"`
	At           time.Time           `json:"at"`
}

func SnapshotOf(a *domain.Auction, at time.Time) Snapshot {
	return Snapshot{
		AuctionID:    a.AuctionID,
		State:        a.State,
		CurrentPrice: a.CurrentPrice,
		BidCount:     a.BidCount,
		HighestBidID: a.HighestBidID,
		EndTime:      a.EndTime,
		HammerPrice:  a.HammerPrice,
		TotalPayable: a.TotalPayable,
		Sequence:     a.Version,
		At:           at,
	}
}

// Publisher accepts snapshots without blocking the caller.
type Publisher interface {
	Publish(s Snapshot)
}

// Discard drops every snapshot.
type Discard struct{}

func (Discard) Publish(Snapshot) {}

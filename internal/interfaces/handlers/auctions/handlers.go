package auctions

import (
	"time"

	"atelier-backend/internal/application/bidding"
	"atelier-backend/internal/application/broadcast"
	"atelier-backend/internal/application/catalog"
	"atelier-backend/internal/application/settlement"
	"atelier-backend/internal/domain"
	"atelier-backend/internal/middleware"
	"atelier-backend/internal/pkg/response"
	"atelier-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Catalog    *catalog.Service
	Engine     *bidding.Engine
	Settlement *settlement.Service
	Hub        *broadcast.Hub

	// Done ends open price streams on shutdown.
	Done      <-chan struct{}
	KeepAlive time.Duration
}

type createAuctionRequest struct {
	ArtworkID        string          `json:"artwork_id" validate:"required,uuid"`
	StartPrice       int64           `json:"start_price" validate:"required,gt=0"`
	BidIncrementRule string          `json:"bid_increment_rule"`
	BuyerPremiumRate decimal.Decimal `json:"buyer_premium_rate"`
	PremiumInclusive bool            `json:"premium_inclusive"`
	StartTime        time.Time       `json:"start_time" validate:"required"`
	EndTime          time.Time       `json:"end_time" validate:"required"`
}

type placeBidRequest struct {
	// Range is checked by the engine.
	Amount int64 `json:"amount"`
}

func auctionID(c *fiber.Ctx) (uuid.UUID, error) {
	return validation.ParseUUID("auction_id", c.Params("auction_id"))
}

// CreateAuction POST /api/v1/auctions
func (h *Handlers) CreateAuction(c *fiber.Ctx) error {
	var body createAuctionRequest
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := validation.Struct(body); err != nil {
		return middleware.Fail(c, err)
	}
	artworkID, _ := uuid.Parse(body.ArtworkID)
	a, err := h.Catalog.CreateAuction(c.Context(), catalog.AuctionInput{
		ArtworkID:        artworkID,
		StartPrice:       body.StartPrice,
		BidIncrementRule: body.BidIncrementRule,
		BuyerPremiumRate: body.BuyerPremiumRate,
		PremiumInclusive: body.PremiumInclusive,
		StartTime:        body.StartTime,
		EndTime:          body.EndTime,
	})
	if err != nil {
		return middleware.Fail(c, err)
	}
	return response.SuccessCreated(c, "Auction created", a, nil)
}

// GetAuction GET /api/v1/auctions/:auction_id
func (h *Handlers) GetAuction(c *fiber.Ctx) error {
	id, err := auctionID(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	a, err := h.Engine.GetAuction(c.Context(), id)
	if err != nil {
		return middleware.Fail(c, err)
	}
	minimum, err := bidding.MinimumBid(a)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return response.Success(c, "Auction", a, fiber.Map{
		"minimum_bid":     minimum,
		"hold_at_minimum": a.Payable(minimum),
	})
}

// ListBids GET /api/v1/auctions/:auction_id/bids
func (h *Handlers) ListBids(c *fiber.Ctx) error {
	id, err := auctionID(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	bids, err := h.Engine.ListBids(c.Context(), id)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return response.Success(c, "Bids", bids, fiber.Map{"count": len(bids)})
}

// PlaceBid POST /api/v1/auctions/:auction_id/bids
func (h *Handlers) PlaceBid(c *fiber.Ctx) error {
	bidderID, _ := middleware.CurrentAccountID(c)
	id, err := auctionID(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	var body placeBidRequest
	if err := c.BodyParser(&body); err != nil {
		if validation.FieldTypeError(err, "amount") {
			return middleware.Fail(c, domain.ErrInvalidAmount)
		}
		return response.BadRequest(c, "Invalid request body")
	}
	res, err := h.Engine.PlaceBid(c.Context(), id, bidderID, body.Amount)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return response.SuccessCreated(c, "Bid accepted", res, nil)
}

// CloseAuction POST /api/v1/auctions/:auction_id/close settles the auction
// now, even if its end time has not passed.
func (h *Handlers) CloseAuction(c *fiber.Ctx) error {
	id, err := auctionID(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	res, err := h.Settlement.Settle(c.Context(), id, true)
	if err != nil {
		return middleware.Fail(c, err)
	}
	msg := "Auction closed"
	if res.AlreadyClosed {
		msg = "Auction already closed"
	}
	return response.Success(c, msg, res, nil)
}

package artworks

import (
	"atelier-backend/internal/application/catalog"
	"atelier-backend/internal/application/purchases"
	"atelier-backend/internal/middleware"
	"atelier-backend/internal/pkg/response"
	"atelier-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Catalog   *catalog.Service
	Purchases *purchases.Service
}

type createArtworkRequest struct {
	Title           string          `json:"title" validate:"required,max=200"`
	BuyNowPrice     *int64          `json:"buy_now_price" validate:"omitempty,gt=0"`
	PurchaseFeeRate decimal.Decimal `json:"purchase_fee_rate"`
}

// CreateArtwork POST /api/v1/artworks. The session user is the seller.
func (h *Handlers) CreateArtwork(c *fiber.Ctx) error {
	sellerID, _ := middleware.CurrentAccountID(c)
	var body createArtworkRequest
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := validation.Struct(body); err != nil {
		return middleware.Fail(c, err)
	}
	art, err := h.Catalog.CreateArtwork(c.Context(), catalog.ArtworkInput{
		SellerID:        sellerID,
		Title:           body.Title,
		BuyNowPrice:     body.BuyNowPrice,
		PurchaseFeeRate: body.PurchaseFeeRate,
	})
	if err != nil {
		return middleware.Fail(c, err)
	}
	return response.SuccessCreated(c, "Artwork created", art, nil)
}

// GetArtwork GET /api/v1/artworks/:artwork_id
func (h *Handlers) GetArtwork(c *fiber.Ctx) error {
	id, err := validation.ParseUUID("artwork_id", c.Params("artwork_id"))
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	art, err := h.Catalog.GetArtwork(c.Context(), id)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return response.Success(c, "Artwork", art, nil)
}

// Purchase POST /api/v1/artworks/:artwork_id/purchase
func (h *Handlers) Purchase(c *fiber.Ctx) error {
	buyerID, _ := middleware.CurrentAccountID(c)
	id, err := validation.ParseUUID("artwork_id", c.Params("artwork_id"))
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	res, err := h.Purchases.Purchase(c.Context(), id, buyerID)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return response.SuccessCreated(c, "Purchase completed", res, nil)
}

package wallet

import (
	walletsvc "atelier-backend/internal/application/wallet"
	"atelier-backend/internal/domain"
	"atelier-backend/internal/middleware"
	"atelier-backend/internal/pkg/response"
	"atelier-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *walletsvc.Service
}

type movementRequest struct {
	Amount int64  `json:"amount"`
	Note   string `json:"note" validate:"max=280"`
}

func parseMovement(c *fiber.Ctx) (movementRequest, error) {
	var body movementRequest
	if err := c.BodyParser(&body); err != nil {
		if validation.FieldTypeError(err, "amount") {
			return body, domain.ErrInvalidAmount
		}
		return body, fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return body, validation.Struct(body)
}

// Deposit POST /api/v1/wallet/deposit
func (h *Handlers) Deposit(c *fiber.Ctx) error {
	accountID, _ := middleware.CurrentAccountID(c)
	body, err := parseMovement(c)
	if err != nil {
		return middleware.Fail(c, err)
	}
	bal, err := h.Service.Deposit(c.Context(), accountID, body.Amount, body.Note)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return response.Success(c, "Deposit recorded", bal, nil)
}

// Withdraw POST /api/v1/wallet/withdraw
func (h *Handlers) Withdraw(c *fiber.Ctx) error {
	accountID, _ := middleware.CurrentAccountID(c)
	body, err := parseMovement(c)
	if err != nil {
		return middleware.Fail(c, err)
	}
	bal, err := h.Service.Withdraw(c.Context(), accountID, body.Amount, body.Note)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return response.Success(c, "Withdrawal recorded", bal, nil)
}

// Balance GET /api/v1/wallet/balance
func (h *Handlers) Balance(c *fiber.Ctx) error {
	accountID, _ := middleware.CurrentAccountID(c)
	bal, err := h.Service.Balance(c.Context(), accountID)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return response.Success(c, "Balance", bal, nil)
}

// Statement GET /api/v1/wallet/statement?limit=
func (h *Handlers) Statement(c *fiber.Ctx) error {
	accountID, _ := middleware.CurrentAccountID(c)
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return response.BadRequest(c, "limit must not be negative")
	}
	st, err := h.Service.Statement(c.Context(), accountID, limit)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return response.Success(c, "Statement", st, fiber.Map{"count": len(st.Entries)})
}

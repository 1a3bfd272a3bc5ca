package middleware

import (
	"errors"

	"atelier-backend/internal/domain"
	"atelier-backend/internal/pkg/response"
	"atelier-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

var statusByKind = map[string]int{
	"InsufficientFunds":   fiber.StatusPaymentRequired,
	"BidTooLow":           fiber.StatusUnprocessableEntity,
	"AuctionNotActive":    fiber.StatusConflict,
	"AlreadyFinalized":    fiber.StatusConflict,
	"InvalidAmount":       fiber.StatusBadRequest,
	"AccountNotFound":     fiber.StatusNotFound,
	"ConcurrencyConflict": fiber.StatusConflict,
	"AuctionNotFound":     fiber.StatusNotFound,
	"AuctionNotEnded":     fiber.StatusConflict,
	"InvalidAuction":      fiber.StatusBadRequest,
	"HoldNotFound":        fiber.StatusNotFound,
	"ArtworkNotFound":     fiber.StatusNotFound,
	"InvalidArtwork":      fiber.StatusBadRequest,
	"ArtworkNotAvailable": fiber.StatusConflict,
	"IntegrityViolation":  fiber.StatusInternalServerError,
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	var ve *validation.ValidationError
	if errors.As(err, &ve) {
		return fiber.StatusBadRequest
	}
	if code, ok := statusByKind[domain.KindOf(err)]; ok {
		return code
	}
	return fiber.StatusInternalServerError
}

// Fail writes err in the standard error format. Domain errors carry their
// kind in details; anything unrecognised is reported as a bare 500.
func Fail(c *fiber.Ctx, err error) error {
	code := StatusFor(err)
	details := map[string]interface{}{}
	var ve *validation.ValidationError
	switch {
	case errors.As(err, &ve):
		details["fields"] = ve.Fields
	case domain.KindOf(err) != "Internal":
		details["kind"] = domain.KindOf(err)
	}

	message := err.Error()
	if code >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("trace_id", GetTraceID(c)).Str("path", c.Path()).Msg("request failed")
		message = "Internal Server Error"
		if kind, ok := details["kind"]; ok && kind == "IntegrityViolation" {
			message = domain.ErrIntegrityViolation.Error()
		}
	}
	return response.Error(c, message, code, details)
}

// ErrorHandler is the global error handler. Returns the standard error format.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return Fail(c, err)
}

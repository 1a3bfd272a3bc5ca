package domain

import "errors"

var (
	ErrInsufficientFunds   = errors.New("Insufficient funds")
	ErrBidTooLow           = errors.New("Bid too low")
	ErrAuctionNotActive    = errors.New("Auction is not active")
	ErrAlreadyFinalized    = errors.New("Escrow hold already finalized")
	ErrInvalidAmount       = errors.New("Invalid amount")
	ErrAccountNotFound     = errors.New("Account not found")
	ErrConcurrencyConflict = errors.New("Concurrent update conflict, retry the request")

	ErrAuctionNotFound     = errors.New("Auction not found")
	ErrAuctionNotEnded     = errors.New("Auction has not ended")
	ErrInvalidAuction      = errors.New("Invalid auction parameters")
	ErrHoldNotFound        = errors.New("Escrow hold not found")
	ErrArtworkNotFound     = errors.New("Artwork not found")
	ErrInvalidArtwork      = errors.New("Invalid artwork parameters")
	ErrArtworkNotAvailable = errors.New("Artwork is not available")
	ErrIntegrityViolation  = errors.New("Balance integrity violation")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrBidTooLow, "BidTooLow"},
	{ErrAuctionNotActive, "AuctionNotActive"},
	{ErrAlreadyFinalized, "AlreadyFinalized"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrAccountNotFound, "AccountNotFound"},
	{ErrConcurrencyConflict, "ConcurrencyConflict"},
	{ErrAuctionNotFound, "AuctionNotFound"},
	{ErrAuctionNotEnded, "AuctionNotEnded"},
	{ErrInvalidAuction, "InvalidAuction"},
	{ErrHoldNotFound, "HoldNotFound"},
	{ErrArtworkNotFound, "ArtworkNotFound"},
	{ErrInvalidArtwork, "InvalidArtwork"},
	{ErrArtworkNotAvailable, "ArtworkNotAvailable"},
	{ErrIntegrityViolation, "IntegrityViolation"},
}

// KindOf names the error kind of err so callers can pick a user-facing
// message. Errors outside the catalogue are "Internal".
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}

package shared

import "errors"

// Domain-specific errors
var (
	// Auction errors
	ErrAuctionNotFound     = errors.New("auction not found")
	ErrAuctionNotActive    = errors.New("auction is not accepting bids")
	ErrAuctionExpired      = errors.New("auction has expired")
	ErrAuctionAlreadyEnded = errors.New("auction already ended")

	// Validation errors
	ErrTitleRequired      = errors.New("title is required")
	ErrInvalidBasePrice   = errors.New("base price must be non-negative")
	ErrInvalidExpiration  = errors.New("expiration time must be in the future")
	ErrInvalidTimeFormat  = errors.New("invalid time format")
	ErrInvalidStatus      = errors.New("invalid status value")
	ErrNotSeller          = errors.New("only the seller can update the auction")
	ErrNoFieldsToUpdate   = errors.New("no updatable fields in request")
	ErrBidAmountInvalid   = errors.New("bid amount must be greater than 0")
	ErrBidTooLow          = errors.New("bid must be higher than current price")
	ErrBidIncrementTooBig = errors.New("bid increment exceeds the allowed maximum")

	// Concurrency errors
	ErrPriceConflict = errors.New("auction price changed concurrently")
	ErrBidSuperseded = errors.New("bid superseded by a concurrent bid")

	// WebSocket message validation errors
	ErrMessageTypeRequired = errors.New("message type is required")
	ErrAuctionIDRequired   = errors.New("auction_id is required")
	ErrInvalidAmount       = errors.New("valid amount is required")
	ErrUnknownMessageType  = errors.New("unknown message type")
)

package inbound

import (
	"context"

	"liveauction-service/internal/domain/auction"
	"liveauction-service/internal/domain/bid"
	"liveauction-service/internal/domain/shared"

	"github.com/google/uuid"
)

// AuctionService defines the interface for auction lifecycle operations
type AuctionService interface {
	// CreateAuction creates a new auction and arms its expiration check
	CreateAuction(ctx context.Context, req CreateAuctionRequest) (*auction.Auction, error)

	// GetAuction retrieves an auction by ID
	GetAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error)

	// ListAuctions retrieves a list of auctions
	ListAuctions(ctx context.Context, req ListAuctionsRequest) ([]*auction.Auction, error)

	// UpdateAuction applies a seller-initiated update: an expiration change
	// re-arms the scheduler, an explicit end routes through the finalizer
	UpdateAuction(ctx context.Context, req UpdateAuctionRequest) (*auction.Auction, error)

	// SetStatus applies an administrative block or unblock, bypassing finalization
	SetStatus(ctx context.Context, auctionID uuid.UUID, status auction.Status) error
}

// BidService defines the interface for bid operations
type BidService interface {
	// PlaceBid validates and applies a bid against current auction state
	PlaceBid(ctx context.Context, req PlaceBidRequest) (*bid.Bid, error)

	// GetBids retrieves the bid ledger for an auction
	GetBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error)
}

// AuctionFinalizer closes auctions. Both methods are idempotent: repeated
// or racing calls close an auction exactly once.
type AuctionFinalizer interface {
	// Finalize closes an active auction unconditionally (explicit end)
	Finalize(ctx context.Context, auctionID uuid.UUID) (*shared.EndResult, error)

	// FinalizeDue closes an auction only if its expiration has passed;
	// an early check re-arms the scheduler instead of closing
	FinalizeDue(ctx context.Context, auctionID uuid.UUID) (*shared.EndResult, error)
}

// request to create an auction
type CreateAuctionRequest struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	BasePrice      float64   `json:"base_price"`
	ExpirationTime string    `json:"expiration_time"`
	SellerID       uuid.UUID `json:"seller_id"`
}

// request to update an auction; nil fields are left untouched
type UpdateAuctionRequest struct {
	AuctionID      uuid.UUID       `json:"auction_id"`
	RequesterID    uuid.UUID       `json:"requester_id"`
	ExpirationTime *string         `json:"expiration_time,omitempty"`
	Status         *auction.Status `json:"status,omitempty"`
}

// request to list auctions
type ListAuctionsRequest struct {
	Status   *auction.Status `json:"status,omitempty"`
	SellerID *uuid.UUID      `json:"seller_id,omitempty"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// request to place a bid
type PlaceBidRequest struct {
	AuctionID uuid.UUID `json:"auction_id"`
	BidderID  uuid.UUID `json:"bidder_id"`
	Amount    float64   `json:"amount"`
}

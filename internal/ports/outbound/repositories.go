package outbound

import (
	"context"
	"time"

	"liveauction-service/internal/domain/auction"
	"liveauction-service/internal/domain/bid"

	"github.com/google/uuid"
)

// AuctionRepository defines the interface for the auction store. Every
// mutation of price or status is a conditional write: the update applies
// only if the record still matches what the caller read, so concurrent
// writers serialize without locks.
type AuctionRepository interface {
	// Create creates a new auction record
	Create(ctx context.Context, a *auction.Auction) error

	// GetByID retrieves an auction by ID
	GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error)

	// List retrieves auctions filtered by status and/or seller, paginated
	List(ctx context.Context, status *auction.Status, sellerID *uuid.UUID, page, pageSize int) ([]*auction.Auction, error)

	// ListActive retrieves every auction with status active, for startup reconciliation
	ListActive(ctx context.Context) ([]*auction.Auction, error)

	// CompareAndSetPrice advances the price and highest bidder only if the
	// current price still equals expectedPrice and the auction is still
	// active. Returns shared.ErrPriceConflict when the condition fails.
	CompareAndSetPrice(ctx context.Context, id uuid.UUID, expectedPrice, newPrice float64, bidder uuid.UUID) error

	// MarkEnded transitions status from active to ended. Returns true only
	// for the caller whose write actually flipped the status.
	MarkEnded(ctx context.Context, id uuid.UUID) (bool, error)

	// SetStatus transitions status from one value to another, conditioned
	// on the current value. Returns true if a row was updated.
	SetStatus(ctx context.Context, id uuid.UUID, from, to auction.Status) (bool, error)

	// UpdateExpiration moves the expiration time of an active auction.
	// Returns shared.ErrAuctionNotActive if the auction is no longer active.
	UpdateExpiration(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
}

// BidRepository defines the interface for the append-only bid ledger
type BidRepository interface {
	// Append records an accepted bid; ledger entries are never updated or deleted
	Append(ctx context.Context, b *bid.Bid) error

	// GetByAuctionID retrieves all bids for an auction, highest first
	GetByAuctionID(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error)
}

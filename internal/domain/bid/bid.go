package bid

import (
	"time"

	"github.com/google/uuid"
)

// Bid is a single accepted bid. Bids form an append-only ledger: a bid is
// recorded exactly once when accepted and never mutated afterwards.
type Bid struct {
	ID        uuid.UUID `json:"id"`
	AuctionID uuid.UUID `json:"auction_id"`
	BidderID  uuid.UUID `json:"bidder_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// New creates a ledger entry for an accepted bid
func New(auctionID, bidderID uuid.UUID, amount float64) *Bid {
	return &Bid{
		ID:        uuid.New(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		CreatedAt: time.Now(),
	}
}

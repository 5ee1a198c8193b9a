package auction

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the current status of an auction
type Status string

const (
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
	StatusBlocked Status = "blocked"
)

// Auction represents a live auction listing
type Auction struct {
	ID             uuid.UUID  `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	BasePrice      float64    `json:"base_price"`
	CurrentPrice   float64    `json:"current_price"`
	ExpirationTime time.Time  `json:"expiration_time"`
	SellerID       uuid.UUID  `json:"seller_id"`
	HighestBidder  *uuid.UUID `json:"highest_bidder,omitempty"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsActive returns true if the auction is currently active
func (a *Auction) IsActive() bool {
	return a.Status == StatusActive
}

// IsEnded returns true if the auction has ended
func (a *Auction) IsEnded() bool {
	return a.Status == StatusEnded
}

// IsBlocked returns true if the auction is administratively suspended
func (a *Auction) IsBlocked() bool {
	return a.Status == StatusBlocked
}

// HasExpired reports whether the expiration instant has been reached.
// A bid arriving exactly at the expiration instant is too late.
func (a *Auction) HasExpired(now time.Time) bool {
	return !now.Before(a.ExpirationTime)
}

// CanBid returns true if a bid can be placed on this auction at the given instant
func (a *Auction) CanBid(now time.Time) bool {
	return a.Status == StatusActive && !a.HasExpired(now)
}

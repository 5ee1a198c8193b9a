package outbound

import (
	"context"

	"github.com/google/uuid"
)

// EventType represents the type of event being broadcasted
type EventType string

const (
	EventTypePriceUpdate  EventType = "auction.price_update"
	EventTypeOutbid       EventType = "auction.outbid"
	EventTypeAuctionEnded EventType = "auction.ended"
)

// Event is a broadcast event scoped to one auction's room. ExcludeUserID
// optionally names a user the delivery layer must skip; the outbid event
// uses it so the new highest bidder does not get told they were outbid.
type Event struct {
	Type          EventType              `json:"type"`
	AuctionID     uuid.UUID              `json:"auction_id"`
	Data          map[string]interface{} `json:"data"`
	ExcludeUserID *uuid.UUID             `json:"exclude_user_id,omitempty"`
	Timestamp     int64                  `json:"timestamp"`
}

// Broadcaster defines the interface for auction-room fan-out. Delivery is
// best-effort, at-most-once per connected subscriber; there is no replay.
type Broadcaster interface {
	// Subscribe joins a client to an auction's room; events are delivered
	// on the provided channel. A client's channel is shared across rooms.
	Subscribe(ctx context.Context, auctionID uuid.UUID, clientID string, eventChan chan Event) error

	// Unsubscribe removes a client from an auction's room
	Unsubscribe(ctx context.Context, auctionID uuid.UUID, clientID string) error

	// Publish fans an event out to all current subscribers of the auction's room
	Publish(ctx context.Context, auctionID uuid.UUID, event Event) error
}

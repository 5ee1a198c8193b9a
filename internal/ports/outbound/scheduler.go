package outbound

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ExpirationScheduler arms delayed expiration checks. There is at most one
// pending check per auction: Schedule replaces any existing check for the
// same auction rather than adding a second one.
type ExpirationScheduler interface {
	// Schedule arms (or re-arms) the expiration check for an auction
	Schedule(ctx context.Context, auctionID uuid.UUID, fireAt time.Time) error

	// Cancel removes any pending check for an auction
	Cancel(ctx context.Context, auctionID uuid.UUID) error
}

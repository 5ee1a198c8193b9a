package app

import (
	"context"
	"time"

	"liveauction-service/internal/domain/shared"
	"liveauction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FinalizerService closes auctions exactly once. Any number of triggers
// (timer fire, explicit end, startup reconcile) may race; the status
// transition is a conditional write, so one caller wins and everyone else
// observes the already-ended auction as a no-op.
type FinalizerService struct {
	auctionRepo outbound.AuctionRepository
	scheduler   outbound.ExpirationScheduler
	broadcaster outbound.Broadcaster
	logger      zerolog.Logger
}

type FinalizerServiceParams struct {
	AuctionRepo outbound.AuctionRepository
	Scheduler   outbound.ExpirationScheduler
	Broadcaster outbound.Broadcaster
	Logger      zerolog.Logger
}

// NewFinalizerService creates a new finalization coordinator
func NewFinalizerService(params FinalizerServiceParams) *FinalizerService {
	return &FinalizerService{
		auctionRepo: params.AuctionRepo,
		scheduler:   params.Scheduler,
		broadcaster: params.Broadcaster,
		logger:      params.Logger.With().Str("component", "finalizer").Logger(),
	}
}

// FinalizeDue closes an auction whose expiration check fired. The due time
// in the check is not trusted: if the auction's expiration was moved later
// after the check was armed, the check is stale, so re-arm it for the real
// instant instead of closing early.
func (f *FinalizerService) FinalizeDue(ctx context.Context, auctionID uuid.UUID) (*shared.EndResult, error) {
	a, err := f.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if !a.IsActive() {
		return f.notClosed(a.ID, string(a.Status)), nil
	}

	if time.Now().Before(a.ExpirationTime) {
		f.logger.Info().
			Str("auction_id", auctionID.String()).
			Time("expiration_time", a.ExpirationTime).
			Msg("Expiration check fired early, re-arming for actual expiration")

		if err := f.scheduler.Schedule(ctx, a.ID, a.ExpirationTime); err != nil {
			return nil, err
		}
		return f.notClosed(a.ID, string(a.Status)), nil
	}

	return f.close(ctx, auctionID)
}

// Finalize closes an active auction regardless of its expiration time.
// Used for an explicit end by the seller; closing an already-ended or
// blocked auction is a no-op, not an error.
func (f *FinalizerService) Finalize(ctx context.Context, auctionID uuid.UUID) (*shared.EndResult, error) {
	a, err := f.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if !a.IsActive() {
		return f.notClosed(a.ID, string(a.Status)), nil
	}

	result, err := f.close(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if result.Closed {
		// The auction closed ahead of its expiration; drop the pending check
		if err := f.scheduler.Cancel(ctx, auctionID); err != nil {
			f.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to cancel pending expiration check")
		}
	}

	return result, nil
}

// close performs the exactly-once transition. The conditional write picks
// the single winner; the winner reads the frozen record back and publishes
// the terminal event.
func (f *FinalizerService) close(ctx context.Context, auctionID uuid.UUID) (*shared.EndResult, error) {
	won, err := f.auctionRepo.MarkEnded(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if !won {
		// A concurrent finalize beat us to the transition
		a, err := f.auctionRepo.GetByID(ctx, auctionID)
		if err != nil {
			return nil, err
		}
		return f.notClosed(auctionID, string(a.Status)), nil
	}

	// Reload after the transition: status=ended blocks further price
	// writes, so this read is the authoritative final state.
	a, err := f.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	result := &shared.EndResult{
		AuctionID:  auctionID,
		Closed:     true,
		WinnerID:   a.HighestBidder,
		FinalPrice: a.CurrentPrice,
		Status:     string(a.Status),
	}

	event := outbound.Event{
		Type:      outbound.EventTypeAuctionEnded,
		AuctionID: auctionID,
		Data: map[string]interface{}{
			"winner":      result.WinnerLabel(),
			"final_price": result.FinalPrice,
			"status":      result.Status,
		},
	}
	if err := f.broadcaster.Publish(ctx, auctionID, event); err != nil {
		f.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to broadcast auction end event")
	}

	f.logger.Info().
		Str("auction_id", auctionID.String()).
		Str("winner", result.WinnerLabel()).
		Float64("final_price", result.FinalPrice).
		Msg("Auction ended")

	return result, nil
}

func (f *FinalizerService) notClosed(auctionID uuid.UUID, status string) *shared.EndResult {
	return &shared.EndResult{
		AuctionID: auctionID,
		Closed:    false,
		Status:    status,
	}
}

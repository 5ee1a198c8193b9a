package app

import (
	"context"
	"errors"
	"time"

	"liveauction-service/internal/domain/auction"
	"liveauction-service/internal/domain/bid"
	"liveauction-service/internal/domain/shared"
	"liveauction-service/internal/ports/inbound"
	"liveauction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BidService is the bid engine: it validates a bid against current auction
// state and applies it with a conditional price write, so only one of any
// number of concurrent bids wins a given price point.
type BidService struct {
	bidRepo      outbound.BidRepository
	auctionRepo  outbound.AuctionRepository
	scheduler    outbound.ExpirationScheduler
	broadcaster  outbound.Broadcaster
	maxIncrement float64
	logger       zerolog.Logger
}

type BidServiceParams struct {
	BidRepo      outbound.BidRepository
	AuctionRepo  outbound.AuctionRepository
	Scheduler    outbound.ExpirationScheduler
	Broadcaster  outbound.Broadcaster
	MaxIncrement float64
	Logger       zerolog.Logger
}

// NewBidService creates a new bid service
func NewBidService(params BidServiceParams) *BidService {
	return &BidService{
		bidRepo:      params.BidRepo,
		auctionRepo:  params.AuctionRepo,
		scheduler:    params.Scheduler,
		broadcaster:  params.Broadcaster,
		maxIncrement: params.MaxIncrement,
		logger:       params.Logger.With().Str("component", "bid_service").Logger(),
	}
}

// PlaceBid validates and applies a bid. Preconditions are checked in a
// fixed order and the first failure is the rejection reason. On a price
// conflict the attempt is retried once against the refreshed price, then
// rejected as superseded.
func (s *BidService) PlaceBid(ctx context.Context, req inbound.PlaceBidRequest) (*bid.Bid, error) {
	s.logger.Info().
		Str("auction_id", req.AuctionID.String()).
		Str("bidder_id", req.BidderID.String()).
		Float64("amount", req.Amount).
		Msg("Attempting to place bid")

	a, err := s.auctionRepo.GetByID(ctx, req.AuctionID)
	if err != nil {
		return nil, err
	}

	if err := s.validate(a, req.Amount, time.Now()); err != nil {
		s.logger.Warn().
			Str("auction_id", req.AuctionID.String()).
			Float64("amount", req.Amount).
			Err(err).
			Msg("Bid rejected")
		return nil, err
	}

	err = s.auctionRepo.CompareAndSetPrice(ctx, a.ID, a.CurrentPrice, req.Amount, req.BidderID)
	if errors.Is(err, shared.ErrPriceConflict) {
		// A concurrent bid won this price point. Retry once against the
		// refreshed state; if the bid no longer qualifies it was superseded.
		a, err = s.retryAfterConflict(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	newBid := bid.New(req.AuctionID, req.BidderID, req.Amount)
	if err := s.bidRepo.Append(ctx, newBid); err != nil {
		s.logger.Error().Err(err).Str("bid_id", newBid.ID.String()).Msg("Failed to append bid to ledger")
		return nil, err
	}

	// Re-assert the pending expiration check. The due time is unchanged,
	// but scheduling is a replace so this is safe and cheap.
	if err := s.scheduler.Schedule(ctx, a.ID, a.ExpirationTime); err != nil {
		s.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to re-arm expiration check after bid")
	}

	s.publishBidEvents(ctx, req.AuctionID, req.BidderID, req.Amount)

	s.logger.Info().
		Str("bid_id", newBid.ID.String()).
		Str("auction_id", newBid.AuctionID.String()).
		Float64("amount", newBid.Amount).
		Msg("Bid accepted")

	return newBid, nil
}

// GetBids retrieves the bid ledger for an auction
func (s *BidService) GetBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error) {
	return s.bidRepo.GetByAuctionID(ctx, auctionID)
}

// validate checks the bid preconditions in order; the first failure
// determines the rejection reason.
func (s *BidService) validate(a *auction.Auction, amount float64, now time.Time) error {
	if !a.IsActive() {
		return shared.ErrAuctionNotActive
	}
	if a.HasExpired(now) {
		return shared.ErrAuctionExpired
	}
	if amount <= a.CurrentPrice {
		return shared.ErrBidTooLow
	}
	if amount > a.CurrentPrice+s.maxIncrement {
		return shared.ErrBidIncrementTooBig
	}
	return nil
}

// retryAfterConflict reloads the auction and retries the conditional price
// write once. Returns the refreshed auction on success.
func (s *BidService) retryAfterConflict(ctx context.Context, req inbound.PlaceBidRequest) (*auction.Auction, error) {
	a, err := s.auctionRepo.GetByID(ctx, req.AuctionID)
	if err != nil {
		return nil, err
	}

	if !a.IsActive() || a.HasExpired(time.Now()) {
		return nil, shared.ErrAuctionNotActive
	}
	if req.Amount <= a.CurrentPrice || req.Amount > a.CurrentPrice+s.maxIncrement {
		s.logger.Info().
			Str("auction_id", req.AuctionID.String()).
			Float64("amount", req.Amount).
			Float64("current_price", a.CurrentPrice).
			Msg("Bid superseded by concurrent bid")
		return nil, shared.ErrBidSuperseded
	}

	err = s.auctionRepo.CompareAndSetPrice(ctx, a.ID, a.CurrentPrice, req.Amount, req.BidderID)
	if errors.Is(err, shared.ErrPriceConflict) {
		return nil, shared.ErrBidSuperseded
	}
	if err != nil {
		return nil, err
	}

	return a, nil
}

// publishBidEvents emits the room events for an accepted bid. Fan-out
// failures are logged and swallowed; the bid is already committed.
func (s *BidService) publishBidEvents(ctx context.Context, auctionID, bidderID uuid.UUID, amount float64) {
	priceUpdate := outbound.Event{
		Type:      outbound.EventTypePriceUpdate,
		AuctionID: auctionID,
		Data: map[string]interface{}{
			"price":  amount,
			"bidder": bidderID.String(),
		},
	}
	if err := s.broadcaster.Publish(ctx, auctionID, priceUpdate); err != nil {
		s.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to broadcast price update")
	}

	excluded := bidderID
	outbidEvent := outbound.Event{
		Type:      outbound.EventTypeOutbid,
		AuctionID: auctionID,
		Data: map[string]interface{}{
			"price": amount,
		},
		ExcludeUserID: &excluded,
	}
	if err := s.broadcaster.Publish(ctx, auctionID, outbidEvent); err != nil {
		s.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to broadcast outbid event")
	}
}

package app

import (
	"context"
	"time"

	"liveauction-service/internal/domain/auction"
	"liveauction-service/internal/domain/shared"
	"liveauction-service/internal/ports/inbound"
	"liveauction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuctionService implements auction lifecycle use cases
type AuctionService struct {
	auctionRepo outbound.AuctionRepository
	scheduler   outbound.ExpirationScheduler
	finalizer   inbound.AuctionFinalizer
	logger      zerolog.Logger
}

type AuctionServiceParams struct {
	AuctionRepo outbound.AuctionRepository
	Scheduler   outbound.ExpirationScheduler
	Finalizer   inbound.AuctionFinalizer
	Logger      zerolog.Logger
}

// NewAuctionService creates a new auction service
func NewAuctionService(params AuctionServiceParams) *AuctionService {
	return &AuctionService{
		auctionRepo: params.AuctionRepo,
		scheduler:   params.Scheduler,
		finalizer:   params.Finalizer,
		logger:      params.Logger.With().Str("component", "auction_service").Logger(),
	}
}

// CreateAuction creates a new auction and arms its expiration check
func (s *AuctionService) CreateAuction(ctx context.Context, req inbound.CreateAuctionRequest) (*auction.Auction, error) {
	s.logger.Info().
		Str("seller_id", req.SellerID.String()).
		Str("title", req.Title).
		Float64("base_price", req.BasePrice).
		Str("expiration_time", req.ExpirationTime).
		Msg("Attempting to create auction")

	if req.Title == "" {
		return nil, shared.ErrTitleRequired
	}
	if req.BasePrice < 0 {
		return nil, shared.ErrInvalidBasePrice
	}

	expirationTime, err := time.Parse(time.RFC3339, req.ExpirationTime)
	if err != nil {
		return nil, shared.ErrInvalidTimeFormat
	}

	now := time.Now()
	if !expirationTime.After(now) {
		return nil, shared.ErrInvalidExpiration
	}

	a := &auction.Auction{
		ID:             uuid.New(),
		Title:          req.Title,
		Description:    req.Description,
		BasePrice:      req.BasePrice,
		CurrentPrice:   req.BasePrice,
		ExpirationTime: expirationTime,
		SellerID:       req.SellerID,
		Status:         auction.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.auctionRepo.Create(ctx, a); err != nil {
		s.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to save auction")
		return nil, err
	}

	if err := s.scheduler.Schedule(ctx, a.ID, a.ExpirationTime); err != nil {
		// The startup reconcile will pick this auction up; creation stands
		s.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to arm expiration check")
	}

	s.logger.Info().
		Str("auction_id", a.ID.String()).
		Time("expiration_time", a.ExpirationTime).
		Msg("Auction created")

	return a, nil
}

// GetAuction retrieves an auction by ID
func (s *AuctionService) GetAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error) {
	return s.auctionRepo.GetByID(ctx, auctionID)
}

// ListAuctions retrieves a list of auctions
func (s *AuctionService) ListAuctions(ctx context.Context, req inbound.ListAuctionsRequest) ([]*auction.Auction, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 10
	}

	return s.auctionRepo.List(ctx, req.Status, req.SellerID, req.Page, req.PageSize)
}

// UpdateAuction applies a seller-initiated update. An explicit end routes
// through the finalizer; an expiration change persists the new instant and
// re-arms the scheduler in the same logical step.
func (s *AuctionService) UpdateAuction(ctx context.Context, req inbound.UpdateAuctionRequest) (*auction.Auction, error) {
	a, err := s.auctionRepo.GetByID(ctx, req.AuctionID)
	if err != nil {
		return nil, err
	}

	if a.SellerID != req.RequesterID {
		return nil, shared.ErrNotSeller
	}

	if req.Status == nil && req.ExpirationTime == nil {
		return nil, shared.ErrNoFieldsToUpdate
	}

	if req.Status != nil {
		if *req.Status != auction.StatusEnded {
			return nil, shared.ErrInvalidStatus
		}
		if _, err := s.finalizer.Finalize(ctx, req.AuctionID); err != nil {
			return nil, err
		}
		return s.auctionRepo.GetByID(ctx, req.AuctionID)
	}

	expirationTime, err := time.Parse(time.RFC3339, *req.ExpirationTime)
	if err != nil {
		return nil, shared.ErrInvalidTimeFormat
	}
	if !expirationTime.After(time.Now()) {
		return nil, shared.ErrInvalidExpiration
	}
	if !a.IsActive() {
		return nil, shared.ErrAuctionNotActive
	}

	if err := s.auctionRepo.UpdateExpiration(ctx, req.AuctionID, expirationTime); err != nil {
		return nil, err
	}

	// Replace the pending check so the old due time cannot fire against
	// the moved expiration. The finalizer re-validates at fire time anyway,
	// so a lost race here is safe.
	if err := s.scheduler.Schedule(ctx, req.AuctionID, expirationTime); err != nil {
		s.logger.Error().Err(err).Str("auction_id", req.AuctionID.String()).Msg("Failed to re-arm expiration check after update")
	}

	s.logger.Info().
		Str("auction_id", req.AuctionID.String()).
		Time("expiration_time", expirationTime).
		Msg("Auction expiration updated")

	return s.auctionRepo.GetByID(ctx, req.AuctionID)
}

// SetStatus applies an administrative block or unblock. This never routes
// through the finalizer: blocked is a reversible suspension, not an end,
// and price, highest bidder and expiration are left untouched.
func (s *AuctionService) SetStatus(ctx context.Context, auctionID uuid.UUID, status auction.Status) error {
	var from auction.Status
	switch status {
	case auction.StatusBlocked:
		from = auction.StatusActive
	case auction.StatusActive:
		from = auction.StatusBlocked
	default:
		return shared.ErrInvalidStatus
	}

	swapped, err := s.auctionRepo.SetStatus(ctx, auctionID, from, status)
	if err != nil {
		return err
	}

	if !swapped {
		a, err := s.auctionRepo.GetByID(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.Status == status {
			// Already in the requested state; treat as a no-op
			return nil
		}
		if a.IsEnded() {
			return shared.ErrAuctionAlreadyEnded
		}
		return shared.ErrInvalidStatus
	}

	s.logger.Info().
		Str("auction_id", auctionID.String()).
		Str("status", string(status)).
		Msg("Auction status updated by admin")

	return nil
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"liveauction-service/internal/domain/shared"
	"liveauction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// checksKey is the sorted set holding pending expiration checks. The
// member is the auction id and the score the fire time, so ZADD on an
// existing member replaces its due time: at most one check per auction.
const checksKey = "auction:checks"

// maxChecksPerPoll bounds how many due checks one poll cycle claims
const maxChecksPerPoll = 10

// AuctionFinalizer is invoked when a check fires. Firing is at-least-once;
// the finalizer's idempotence makes duplicate fires safe.
type AuctionFinalizer interface {
	FinalizeDue(ctx context.Context, auctionID uuid.UUID) (*shared.EndResult, error)
}

// ExpirationScheduler arms one delayed expiration check per auction in a
// Redis sorted set and polls for due checks.
type ExpirationScheduler struct {
	redis        *redis.Client
	finalizer    AuctionFinalizer
	auctionRepo  outbound.AuctionRepository
	pollInterval time.Duration
	retryBackoff time.Duration
	logger       zerolog.Logger
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

type ExpirationSchedulerParams struct {
	RedisClient  *redis.Client
	AuctionRepo  outbound.AuctionRepository
	PollInterval time.Duration
	RetryBackoff time.Duration
	Logger       zerolog.Logger
}

func NewExpirationScheduler(params ExpirationSchedulerParams) *ExpirationScheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &ExpirationScheduler{
		redis:        params.RedisClient,
		auctionRepo:  params.AuctionRepo,
		pollInterval: params.PollInterval,
		retryBackoff: params.RetryBackoff,
		logger:       params.Logger.With().Str("component", "expiration_scheduler").Logger(),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// SetFinalizer injects the finalizer after construction. The scheduler and
// the finalizer reference each other (the finalizer re-arms checks that
// fire early), so one side has to be bound late.
func (s *ExpirationScheduler) SetFinalizer(f AuctionFinalizer) {
	s.finalizer = f
}

// Schedule arms the expiration check for an auction, replacing any pending one
func (s *ExpirationScheduler) Schedule(ctx context.Context, auctionID uuid.UUID, fireAt time.Time) error {
	err := s.redis.ZAdd(ctx, checksKey, redis.Z{
		Score:  float64(fireAt.Unix()),
		Member: auctionID.String(),
	}).Err()

	if err != nil {
		s.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to schedule expiration check")
		return fmt.Errorf("failed to schedule expiration check: %w", err)
	}

	s.logger.Info().
		Str("auction_id", auctionID.String()).
		Time("fire_at", fireAt).
		Msg("Expiration check armed")

	return nil
}

// Cancel removes any pending check for an auction
func (s *ExpirationScheduler) Cancel(ctx context.Context, auctionID uuid.UUID) error {
	if err := s.redis.ZRem(ctx, checksKey, auctionID.String()).Err(); err != nil {
		return fmt.Errorf("failed to cancel expiration check: %w", err)
	}
	return nil
}

// Reconcile re-arms a check for every active auction. Run at startup so a
// process restart does not lose due auctions; already-expired auctions get
// checked immediately.
func (s *ExpirationScheduler) Reconcile(ctx context.Context) error {
	auctions, err := s.auctionRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active auctions: %w", err)
	}

	now := time.Now()
	for _, a := range auctions {
		fireAt := a.ExpirationTime
		if fireAt.Before(now) {
			fireAt = now
		}
		if err := s.Schedule(ctx, a.ID, fireAt); err != nil {
			return err
		}
	}

	s.logger.Info().Int("count", len(auctions)).Msg("Reconciled expiration checks for active auctions")
	return nil
}

// Start begins the polling loop
func (s *ExpirationScheduler) Start() {
	s.logger.Info().Msg("Starting expiration scheduler")

	s.wg.Add(1)
	go s.pollLoop()
}

// Stop gracefully stops the scheduler
func (s *ExpirationScheduler) Stop() {
	s.logger.Info().Msg("Stopping expiration scheduler")
	s.cancel()
	s.wg.Wait()
}

func (s *ExpirationScheduler) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.claimDueChecks()
		case <-s.ctx.Done():
			s.logger.Info().Msg("Scheduler poll loop stopped")
			return
		}
	}
}

// claimDueChecks pops due checks and hands each to the finalizer
func (s *ExpirationScheduler) claimDueChecks() {
	now := time.Now().Unix()

	due, err := s.redis.ZRangeByScore(s.ctx, checksKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: maxChecksPerPoll,
	}).Result()

	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to fetch due expiration checks")
		return
	}

	for _, member := range due {
		auctionID, err := uuid.Parse(member)
		if err != nil {
			s.logger.Error().Err(err).Str("member", member).Msg("Invalid auction ID in check set")
			s.redis.ZRem(s.ctx, checksKey, member)
			continue
		}

		// Claim the check before processing so a concurrent poller skips it
		removed, err := s.redis.ZRem(s.ctx, checksKey, member).Result()
		if err != nil {
			s.logger.Error().Err(err).Str("auction_id", member).Msg("Failed to claim expiration check")
			continue
		}
		if removed == 0 {
			continue
		}

		go s.fire(auctionID)
	}
}

// fire runs the finalizer for a due check. A transient failure re-arms the
// check with a backoff instead of dropping the auction; a check for an
// auction that no longer exists is dropped outright.
func (s *ExpirationScheduler) fire(auctionID uuid.UUID) {
	s.logger.Info().Str("auction_id", auctionID.String()).Msg("Expiration check fired")

	result, err := s.finalizer.FinalizeDue(s.ctx, auctionID)
	if errors.Is(err, shared.ErrAuctionNotFound) {
		s.logger.Warn().Str("auction_id", auctionID.String()).Msg("Auction record gone, dropping expiration check")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Finalize failed, re-arming check")
		if schedErr := s.Schedule(s.ctx, auctionID, time.Now().Add(s.retryBackoff)); schedErr != nil {
			s.logger.Error().Err(schedErr).Str("auction_id", auctionID.String()).Msg("Failed to re-arm expiration check")
		}
		return
	}

	if result.Closed {
		s.logger.Info().
			Str("auction_id", auctionID.String()).
			Str("winner", result.WinnerLabel()).
			Float64("final_price", result.FinalPrice).
			Msg("Auction closed by expiration check")
	} else {
		s.logger.Debug().
			Str("auction_id", auctionID.String()).
			Str("status", result.Status).
			Msg("Expiration check was a no-op")
	}
}

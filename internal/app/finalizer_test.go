package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"liveauction-service/internal/domain/auction"
	"liveauction-service/internal/domain/shared"
	"liveauction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type finalizerTestEnv struct {
	auctionRepo *memAuctionRepo
	scheduler   *memScheduler
	broadcaster *memBroadcaster
	finalizer   *FinalizerService
}

func newFinalizerTestEnv(t *testing.T) *finalizerTestEnv {
	t.Helper()
	env := &finalizerTestEnv{
		auctionRepo: newMemAuctionRepo(),
		scheduler:   newMemScheduler(),
		broadcaster: newMemBroadcaster(),
	}
	env.finalizer = NewFinalizerService(FinalizerServiceParams{
		AuctionRepo: env.auctionRepo,
		Scheduler:   env.scheduler,
		Broadcaster: env.broadcaster,
		Logger:      zerolog.Nop(),
	})
	return env
}

func (env *finalizerTestEnv) seedAuction(t *testing.T, status auction.Status, expiresIn time.Duration, bidder *uuid.UUID, price float64) *auction.Auction {
	t.Helper()
	a := &auction.Auction{
		ID:             uuid.New(),
		Title:          "rare stamp",
		BasePrice:      100,
		CurrentPrice:   price,
		ExpirationTime: time.Now().Add(expiresIn),
		SellerID:       uuid.New(),
		HighestBidder:  bidder,
		Status:         status,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	require.NoError(t, env.auctionRepo.Create(context.Background(), a))
	return a
}

func TestFinalizeDue_NoBids(t *testing.T) {
	env := newFinalizerTestEnv(t)
	a := env.seedAuction(t, auction.StatusActive, -time.Minute, nil, 100)

	result, err := env.finalizer.FinalizeDue(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, result.Closed)
	assert.Nil(t, result.WinnerID)
	assert.Equal(t, shared.NoWinner, result.WinnerLabel())
	assert.Equal(t, 100.0, result.FinalPrice)

	updated, err := env.auctionRepo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsEnded())

	events := env.broadcaster.eventsOfType(outbound.EventTypeAuctionEnded)
	require.Len(t, events, 1)
	assert.Equal(t, shared.NoWinner, events[0].Data["winner"])
	assert.Equal(t, 100.0, events[0].Data["final_price"])
}

func TestFinalizeDue_WithWinner(t *testing.T) {
	env := newFinalizerTestEnv(t)
	winner := uuid.New()
	a := env.seedAuction(t, auction.StatusActive, -time.Minute, &winner, 350)

	result, err := env.finalizer.FinalizeDue(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, result.Closed)
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, winner, *result.WinnerID)
	assert.Equal(t, winner.String(), result.WinnerLabel())
	assert.Equal(t, 350.0, result.FinalPrice)
}

func TestFinalizeDue_EarlyCheckReArms(t *testing.T) {
	env := newFinalizerTestEnv(t)
	a := env.seedAuction(t, auction.StatusActive, time.Hour, nil, 100)

	result, err := env.finalizer.FinalizeDue(context.Background(), a.ID)
	require.NoError(t, err)
	assert.False(t, result.Closed)

	// Still active, and the check is re-armed for the real expiration
	updated, err := env.auctionRepo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsActive())

	fireAt, ok := env.scheduler.scheduledAt(a.ID)
	require.True(t, ok)
	assert.True(t, fireAt.Equal(a.ExpirationTime))

	assert.Empty(t, env.broadcaster.eventsOfType(outbound.EventTypeAuctionEnded))
}

func TestFinalizeDue_BlockedAuction(t *testing.T) {
	env := newFinalizerTestEnv(t)
	a := env.seedAuction(t, auction.StatusBlocked, -time.Minute, nil, 100)

	result, err := env.finalizer.FinalizeDue(context.Background(), a.ID)
	require.NoError(t, err)
	assert.False(t, result.Closed)
	assert.Equal(t, string(auction.StatusBlocked), result.Status)

	// Blocked is not closed and not re-armed by this trigger
	_, ok := env.scheduler.scheduledAt(a.ID)
	assert.False(t, ok)
	assert.Empty(t, env.broadcaster.eventsOfType(outbound.EventTypeAuctionEnded))
}

func TestFinalize_BeforeExpiration(t *testing.T) {
	env := newFinalizerTestEnv(t)
	winner := uuid.New()
	a := env.seedAuction(t, auction.StatusActive, time.Hour, &winner, 220)

	result, err := env.finalizer.Finalize(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, result.Closed)
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, winner, *result.WinnerID)

	// The pending expiration check is dropped
	assert.Equal(t, 1, env.scheduler.cancelCount(a.ID))
}

func TestFinalize_Idempotent(t *testing.T) {
	env := newFinalizerTestEnv(t)
	a := env.seedAuction(t, auction.StatusActive, -time.Minute, nil, 100)

	first, err := env.finalizer.Finalize(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, first.Closed)

	second, err := env.finalizer.Finalize(context.Background(), a.ID)
	require.NoError(t, err)
	assert.False(t, second.Closed)
	assert.Equal(t, string(auction.StatusEnded), second.Status)

	// Exactly one terminal event despite two calls
	assert.Len(t, env.broadcaster.eventsOfType(outbound.EventTypeAuctionEnded), 1)
}

func TestFinalize_ConcurrentTriggersCloseOnce(t *testing.T) {
	env := newFinalizerTestEnv(t)
	a := env.seedAuction(t, auction.StatusActive, -time.Minute, nil, 100)

	const triggers = 8
	var wg sync.WaitGroup
	results := make([]*shared.EndResult, triggers)

	for i := 0; i < triggers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				results[i], err = env.finalizer.Finalize(context.Background(), a.ID)
			} else {
				results[i], err = env.finalizer.FinalizeDue(context.Background(), a.ID)
			}
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	closed := 0
	for _, r := range results {
		if r != nil && r.Closed {
			closed++
		}
	}
	assert.Equal(t, 1, closed)
	assert.Len(t, env.broadcaster.eventsOfType(outbound.EventTypeAuctionEnded), 1)
}

func TestFinalize_UnknownAuction(t *testing.T) {
	env := newFinalizerTestEnv(t)

	_, err := env.finalizer.Finalize(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrAuctionNotFound)
}

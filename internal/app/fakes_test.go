package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"liveauction-service/internal/domain/auction"
	"liveauction-service/internal/domain/bid"
	"liveauction-service/internal/domain/shared"
	"liveauction-service/internal/ports/outbound"

	"github.com/google/uuid"
)

// memAuctionRepo is an in-memory AuctionRepository with the same
// conditional-write semantics as the SQL implementation.
type memAuctionRepo struct {
	mu       sync.Mutex
	auctions map[uuid.UUID]*auction.Auction

	// beforeCAS, when set, runs once under the lock just before the next
	// CompareAndSetPrice applies its condition. Used to inject a concurrent
	// writer between a caller's read and its write.
	beforeCAS func(auctions map[uuid.UUID]*auction.Auction)
}

func newMemAuctionRepo() *memAuctionRepo {
	return &memAuctionRepo{auctions: make(map[uuid.UUID]*auction.Auction)}
}

func (r *memAuctionRepo) Create(ctx context.Context, a *auction.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *a
	r.auctions[a.ID] = &copied
	return nil
}

func (r *memAuctionRepo) GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[id]
	if !ok {
		return nil, shared.ErrAuctionNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *memAuctionRepo) List(ctx context.Context, status *auction.Status, sellerID *uuid.UUID, page, pageSize int) ([]*auction.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*auction.Auction
	for _, a := range r.auctions {
		if status != nil && a.Status != *status {
			continue
		}
		if sellerID != nil && a.SellerID != *sellerID {
			continue
		}
		copied := *a
		out = append(out, &copied)
	}
	return out, nil
}

func (r *memAuctionRepo) ListActive(ctx context.Context) ([]*auction.Auction, error) {
	active := auction.StatusActive
	return r.List(ctx, &active, nil, 1, 1000)
}

func (r *memAuctionRepo) CompareAndSetPrice(ctx context.Context, id uuid.UUID, expectedPrice, newPrice float64, bidder uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.beforeCAS != nil {
		hook := r.beforeCAS
		r.beforeCAS = nil
		hook(r.auctions)
	}

	a, ok := r.auctions[id]
	if !ok {
		return shared.ErrAuctionNotFound
	}
	if !a.IsActive() || a.CurrentPrice != expectedPrice {
		return shared.ErrPriceConflict
	}
	a.CurrentPrice = newPrice
	b := bidder
	a.HighestBidder = &b
	a.UpdatedAt = time.Now()
	return nil
}

func (r *memAuctionRepo) MarkEnded(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.SetStatus(ctx, id, auction.StatusActive, auction.StatusEnded)
}

func (r *memAuctionRepo) SetStatus(ctx context.Context, id uuid.UUID, from, to auction.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[id]
	if !ok {
		return false, shared.ErrAuctionNotFound
	}
	if a.Status != from {
		return false, nil
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	return true, nil
}

func (r *memAuctionRepo) UpdateExpiration(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[id]
	if !ok {
		return shared.ErrAuctionNotFound
	}
	if !a.IsActive() {
		return shared.ErrAuctionNotActive
	}
	a.ExpirationTime = expiresAt
	a.UpdatedAt = time.Now()
	return nil
}

// memBidRepo is an in-memory append-only bid ledger
type memBidRepo struct {
	mu   sync.Mutex
	bids []*bid.Bid
}

func newMemBidRepo() *memBidRepo {
	return &memBidRepo{}
}

func (r *memBidRepo) Append(ctx context.Context, b *bid.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *b
	r.bids = append(r.bids, &copied)
	return nil
}

func (r *memBidRepo) GetByAuctionID(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*bid.Bid
	for _, b := range r.bids {
		if b.AuctionID == auctionID {
			copied := *b
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memBidRepo) count(auctionID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.bids {
		if b.AuctionID == auctionID {
			n++
		}
	}
	return n
}

// memScheduler records schedule and cancel calls
type memScheduler struct {
	mu        sync.Mutex
	scheduled map[uuid.UUID]time.Time
	cancelled []uuid.UUID
}

func newMemScheduler() *memScheduler {
	return &memScheduler{scheduled: make(map[uuid.UUID]time.Time)}
}

func (s *memScheduler) Schedule(ctx context.Context, auctionID uuid.UUID, fireAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[auctionID] = fireAt
	return nil
}

func (s *memScheduler) Cancel(ctx context.Context, auctionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scheduled, auctionID)
	s.cancelled = append(s.cancelled, auctionID)
	return nil
}

func (s *memScheduler) scheduledAt(auctionID uuid.UUID) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.scheduled[auctionID]
	return at, ok
}

func (s *memScheduler) cancelCount(auctionID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.cancelled {
		if id == auctionID {
			n++
		}
	}
	return n
}

// memBroadcaster records published events
type memBroadcaster struct {
	mu     sync.Mutex
	events []outbound.Event
	fail   bool
}

func newMemBroadcaster() *memBroadcaster {
	return &memBroadcaster{}
}

func (b *memBroadcaster) Subscribe(ctx context.Context, auctionID uuid.UUID, clientID string, ch chan outbound.Event) error {
	return nil
}

func (b *memBroadcaster) Unsubscribe(ctx context.Context, auctionID uuid.UUID, clientID string) error {
	return nil
}

func (b *memBroadcaster) Publish(ctx context.Context, auctionID uuid.UUID, event outbound.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("broadcast unavailable")
	}
	b.events = append(b.events, event)
	return nil
}

func (b *memBroadcaster) eventsOfType(t outbound.EventType) []outbound.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []outbound.Event
	for _, e := range b.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

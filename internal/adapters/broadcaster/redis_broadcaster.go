package broadcaster

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"liveauction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBroadcaster implements auction-room fan-out over Redis pub/sub.
// Each auction has one channel; each connected client has one pubsub
// connection and one local event channel shared across the rooms it joins.
type RedisBroadcaster struct {
	client    *redis.Client
	channels  map[string]chan outbound.Event // clientID -> local channel
	pubsubs   map[string]*redis.PubSub       // clientID -> pubsub instance
	roomsByID map[string]map[string]bool     // clientID -> auctionID -> joined
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	logger    zerolog.Logger
}

type RedisBroadcasterParams struct {
	RedisClient *redis.Client
	Logger      zerolog.Logger
}

func NewBroadcaster(params RedisBroadcasterParams) *RedisBroadcaster {
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisBroadcaster{
		client:    params.RedisClient,
		channels:  make(map[string]chan outbound.Event),
		pubsubs:   make(map[string]*redis.PubSub),
		roomsByID: make(map[string]map[string]bool),
		ctx:       ctx,
		cancel:    cancel,
		logger:    params.Logger.With().Str("component", "redis_broadcaster").Logger(),
	}
}

func roomChannel(auctionID uuid.UUID) string {
	return fmt.Sprintf("auction:%s", auctionID.String())
}

// Subscribe joins a client to an auction's room
func (r *RedisBroadcaster) Subscribe(ctx context.Context, auctionID uuid.UUID, clientID string, eventChan chan outbound.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.roomsByID[clientID] != nil && r.roomsByID[clientID][auctionID.String()] {
		return nil
	}

	if r.channels[clientID] == nil {
		r.channels[clientID] = eventChan
	}

	if r.roomsByID[clientID] == nil {
		r.roomsByID[clientID] = make(map[string]bool)
	}
	r.roomsByID[clientID][auctionID.String()] = true

	pubsub, exists := r.pubsubs[clientID]
	if !exists {
		pubsub = r.client.Subscribe(ctx)
		r.pubsubs[clientID] = pubsub
		go r.forwardMessages(pubsub, clientID, eventChan)
	}

	if err := pubsub.Subscribe(ctx, roomChannel(auctionID)); err != nil {
		r.logger.Error().Err(err).Str("client_id", clientID).Str("auction_id", auctionID.String()).Msg("Failed to subscribe to auction room")
		return err
	}

	r.logger.Info().
		Str("client_id", clientID).
		Str("auction_id", auctionID.String()).
		Msg("Client joined auction room")
	return nil
}

// Unsubscribe removes a client from an auction's room. When the client
// leaves its last room, the pubsub connection is torn down. The local
// channel is owned by the delivery layer, which may hand the same channel
// back on a later join, so it is never closed here.
func (r *RedisBroadcaster) Unsubscribe(ctx context.Context, auctionID uuid.UUID, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms, exists := r.roomsByID[clientID]
	if !exists {
		return nil
	}

	delete(rooms, auctionID.String())

	if len(rooms) == 0 {
		delete(r.roomsByID, clientID)
		delete(r.channels, clientID)

		if pubsub, ok := r.pubsubs[clientID]; ok {
			if err := pubsub.Close(); err != nil {
				r.logger.Error().Err(err).Str("client_id", clientID).Msg("Error closing pubsub for client")
			}
			delete(r.pubsubs, clientID)
		}
	} else if pubsub, ok := r.pubsubs[clientID]; ok {
		if err := pubsub.Unsubscribe(ctx, roomChannel(auctionID)); err != nil {
			r.logger.Error().Err(err).Str("client_id", clientID).Str("auction_id", auctionID.String()).Msg("Error unsubscribing from auction room")
		}
	}

	r.logger.Info().
		Str("client_id", clientID).
		Str("auction_id", auctionID.String()).
		Msg("Client left auction room")
	return nil
}

// Publish fans an event out to all current subscribers of the auction's room
func (r *RedisBroadcaster) Publish(ctx context.Context, auctionID uuid.UUID, event outbound.Event) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	result := r.client.Publish(ctx, roomChannel(auctionID), payload)
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	r.logger.Info().
		Str("event_type", string(event.Type)).
		Str("auction_id", auctionID.String()).
		Int64("subscriber_count", result.Val()).
		Msg("Published event to auction room")

	return nil
}

// forwardMessages forwards Redis messages to the client's local channel.
// A full local channel drops the event; delivery is best-effort.
func (r *RedisBroadcaster) forwardMessages(pubsub *redis.PubSub, clientID string, localChan chan outbound.Event) {
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error().Interface("panic", err).Str("client_id", clientID).Msg("Broadcast forwarder panic")
		}
	}()

	ch := pubsub.Channel()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				r.logger.Debug().Str("client_id", clientID).Msg("Pubsub channel closed for client")
				return
			}

			var event outbound.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Error().Err(err).Str("client_id", clientID).Msg("Failed to unmarshal broadcast event")
				continue
			}

			select {
			case localChan <- event:
			default:
				r.logger.Warn().Str("client_id", clientID).Msg("Local channel full, dropping event")
			}

		case <-r.ctx.Done():
			return
		}
	}
}

// Close tears down every pubsub connection and drops all client state.
// Local channels are left open for their owners; forwarders exit through
// the cancelled context.
func (r *RedisBroadcaster) Close() error {
	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.channels = make(map[string]chan outbound.Event)
	r.roomsByID = make(map[string]map[string]bool)

	for clientID, pubsub := range r.pubsubs {
		if err := pubsub.Close(); err != nil {
			r.logger.Error().Err(err).Str("client_id", clientID).Msg("Error closing pubsub for client")
		}
		delete(r.pubsubs, clientID)
	}

	return nil
}

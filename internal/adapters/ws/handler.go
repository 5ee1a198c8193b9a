package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"liveauction-service/internal/domain/auction"
	"liveauction-service/internal/domain/shared"
	"liveauction-service/internal/ports/inbound"
	"liveauction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WsHandler manages WebSocket connections and routes auction-room traffic
type WsHandler struct {
	clients        map[string]*WsClient
	clientsMu      sync.RWMutex
	eventChannels  map[string]chan outbound.Event // clientID -> local event channel
	channelsMu     sync.RWMutex
	upgrader       websocket.Upgrader
	auctionService inbound.AuctionService
	bidService     inbound.BidService
	broadcaster    outbound.Broadcaster
	logger         zerolog.Logger
}

type WsHandlerParams struct {
	Upgrader       websocket.Upgrader
	AuctionService inbound.AuctionService
	BidService     inbound.BidService
	Broadcaster    outbound.Broadcaster
	Logger         zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(params WsHandlerParams) *WsHandler {
	return &WsHandler{
		clients:        make(map[string]*WsClient),
		eventChannels:  make(map[string]chan outbound.Event),
		upgrader:       params.Upgrader,
		auctionService: params.AuctionService,
		bidService:     params.BidService,
		broadcaster:    params.Broadcaster,
		logger:         params.Logger.With().Str("component", "ws_handler").Logger(),
	}
}

// HandleWebSocket handles WebSocket connection upgrades
func (h *WsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userIDStr := r.URL.Query().Get("user_id")
	if userIDStr == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		http.Error(w, "invalid user_id format", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(WsClientParams{
		UserID:  userID,
		Conn:    conn,
		Handler: h,
		Logger:  h.logger,
	})

	h.registerClient(client)
	h.createEventChannel(client.id)

	client.Start()
	go h.listenForClientEvents(client)

	go func() {
		<-client.ctx.Done()
		h.unregisterClient(client)
	}()

	h.logger.Info().Str("client_id", client.id).Str("user_id", client.userID.String()).Msg("WebSocket client connected")
}

func (h *WsHandler) createEventChannel(clientID string) chan outbound.Event {
	h.channelsMu.Lock()
	defer h.channelsMu.Unlock()

	if eventChan, exists := h.eventChannels[clientID]; exists {
		return eventChan
	}

	eventChan := make(chan outbound.Event, 100)
	h.eventChannels[clientID] = eventChan
	return eventChan
}

func (h *WsHandler) getEventChannel(clientID string) chan outbound.Event {
	h.channelsMu.RLock()
	defer h.channelsMu.RUnlock()

	return h.eventChannels[clientID]
}

func (h *WsHandler) removeEventChannel(clientID string) {
	h.channelsMu.Lock()
	defer h.channelsMu.Unlock()

	if _, exists := h.eventChannels[clientID]; exists {
		delete(h.eventChannels, clientID)
	}
}

func (h *WsHandler) registerClient(client *WsClient) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[client.id] = client
}

func (h *WsHandler) unregisterClient(client *WsClient) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	delete(h.clients, client.id)
	client.Stop()
	h.removeEventChannel(client.id)

	h.logger.Info().Str("client_id", client.id).Int("total_clients", len(h.clients)).Msg("WebSocket client disconnected")
}

// listenForClientEvents forwards room events to the client's socket,
// honoring the per-event exclusion (the new highest bidder is not told
// they were outbid). The handler owns the event channel: the broadcaster
// never closes it, and the loop exits through the client context.
func (h *WsHandler) listenForClientEvents(client *WsClient) {
	eventChan := h.getEventChannel(client.id)
	if eventChan == nil {
		h.logger.Error().Str("client_id", client.id).Msg("No event channel found for client")
		return
	}

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event.ExcludeUserID != nil && *event.ExcludeUserID == client.userID {
				continue
			}

			if err := client.Send(h.convertEventToMessage(event)); err != nil {
				h.logger.Error().Err(err).Str("client_id", client.id).Msg("Failed to deliver event to client")
			}

		case <-client.ctx.Done():
			return
		}
	}
}

func (h *WsHandler) HandleClientMessage(client *WsClient, msg *ClientMessage) error {
	switch msg.Type {
	case MessageTypeJoinAuction:
		return h.handleJoin(client, msg)

	case MessageTypeLeaveAuction:
		return h.handleLeave(client, msg)

	case MessageTypePlaceBid:
		return h.handlePlaceBid(client, msg)

	case MessageTypeGetAuction:
		return h.handleGetAuction(client, msg)

	default:
		return shared.ErrUnknownMessageType
	}
}

func (h *WsHandler) convertEventToMessage(event outbound.Event) *ServerMessage {
	msg := &ServerMessage{
		AuctionID: &event.AuctionID,
		Data:      event.Data,
		Timestamp: event.Timestamp,
	}

	switch event.Type {
	case outbound.EventTypePriceUpdate:
		msg.Type = MessageTypePriceUpdate
	case outbound.EventTypeOutbid:
		msg.Type = MessageTypeOutbid
	case outbound.EventTypeAuctionEnded:
		msg.Type = MessageTypeAuctionEnded
	default:
		msg.Type = MessageTypeAuctionSnapshot
	}

	return msg
}

// handleJoin subscribes the client to the auction's room and immediately
// sends a snapshot so a late joiner is not left with stale state. The
// subscription happens before the snapshot read: anything that lands
// after the read is delivered as an event, so nothing falls in between.
// For an ended auction the snapshot carries the final outcome.
func (h *WsHandler) handleJoin(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	eventChan := h.getEventChannel(client.id)
	if eventChan == nil {
		return fmt.Errorf("no event channel for client %s", client.id)
	}

	if err := h.broadcaster.Subscribe(ctx, *msg.AuctionID, client.id, eventChan); err != nil {
		h.logger.Error().Err(err).Str("client_id", client.id).Str("auction_id", msg.AuctionID.String()).Msg("Failed to join auction room")
		return err
	}

	a, err := h.auctionService.GetAuction(ctx, *msg.AuctionID)
	if err != nil {
		if unsubErr := h.broadcaster.Unsubscribe(ctx, *msg.AuctionID, client.id); unsubErr != nil {
			h.logger.Error().Err(unsubErr).Str("client_id", client.id).Str("auction_id", msg.AuctionID.String()).Msg("Failed to leave auction room after snapshot error")
		}
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	h.logger.Info().Str("client_id", client.id).Str("auction_id", msg.AuctionID.String()).Msg("Client joined auction room")
	return client.Send(h.snapshotMessage(a))
}

func (h *WsHandler) handleLeave(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	if err := h.broadcaster.Unsubscribe(ctx, *msg.AuctionID, client.id); err != nil {
		return err
	}

	response := NewServerMessage(MessageTypeAuctionSnapshot)
	response.AuctionID = msg.AuctionID
	response.Data["status"] = "left"

	return client.Send(response)
}

func (h *WsHandler) handlePlaceBid(client *WsClient, msg *ClientMessage) error {
	amount, ok := msg.Data["amount"].(float64)
	if !ok {
		return shared.ErrInvalidAmount
	}

	ctx := context.Background()

	b, err := h.bidService.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID: *msg.AuctionID,
		BidderID:  client.userID,
		Amount:    amount,
	})
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	response := NewServerMessage(MessageTypeBidAccepted)
	response.AuctionID = msg.AuctionID
	response.Data["bid_id"] = b.ID
	response.Data["amount"] = b.Amount

	return client.Send(response)
}

func (h *WsHandler) handleGetAuction(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	a, err := h.auctionService.GetAuction(ctx, *msg.AuctionID)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	return client.Send(h.snapshotMessage(a))
}

func (h *WsHandler) snapshotMessage(a *auction.Auction) *ServerMessage {
	response := NewServerMessage(MessageTypeAuctionSnapshot)
	response.AuctionID = &a.ID

	response.Data["title"] = a.Title
	response.Data["base_price"] = a.BasePrice
	response.Data["current_price"] = a.CurrentPrice
	response.Data["expiration_time"] = a.ExpirationTime.Format(time.RFC3339)
	response.Data["status"] = a.Status

	if a.IsEnded() {
		winner := shared.NoWinner
		if a.HighestBidder != nil {
			winner = a.HighestBidder.String()
		}
		response.Data["winner"] = winner
		response.Data["final_price"] = a.CurrentPrice
	}

	return response
}

package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"liveauction-service/internal/config"
	"liveauction-service/internal/domain/auction"
	"liveauction-service/internal/domain/bid"
	"liveauction-service/internal/domain/shared"
	"liveauction-service/internal/ports/inbound"
	"liveauction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestConn dials a throwaway WebSocket connection backed by an
// httptest server, for tests that need a real *websocket.Conn.
func newTestConn(t *testing.T) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go func() {
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

// opLog records the order of calls across the stubbed collaborators
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

func (l *opLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

type stubAuctionService struct {
	log   *opLog
	getFn func(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error)
}

func (s *stubAuctionService) CreateAuction(ctx context.Context, req inbound.CreateAuctionRequest) (*auction.Auction, error) {
	return nil, nil
}

func (s *stubAuctionService) GetAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error) {
	if s.log != nil {
		s.log.add("snapshot")
	}
	return s.getFn(ctx, auctionID)
}

func (s *stubAuctionService) ListAuctions(ctx context.Context, req inbound.ListAuctionsRequest) ([]*auction.Auction, error) {
	return nil, nil
}

func (s *stubAuctionService) UpdateAuction(ctx context.Context, req inbound.UpdateAuctionRequest) (*auction.Auction, error) {
	return nil, nil
}

func (s *stubAuctionService) SetStatus(ctx context.Context, auctionID uuid.UUID, status auction.Status) error {
	return nil
}

type stubBidService struct{}

func (s *stubBidService) PlaceBid(ctx context.Context, req inbound.PlaceBidRequest) (*bid.Bid, error) {
	return nil, nil
}

func (s *stubBidService) GetBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error) {
	return nil, nil
}

type recordingBroadcaster struct {
	log *opLog
}

func (b *recordingBroadcaster) Subscribe(ctx context.Context, auctionID uuid.UUID, clientID string, eventChan chan outbound.Event) error {
	b.log.add("subscribe")
	return nil
}

func (b *recordingBroadcaster) Unsubscribe(ctx context.Context, auctionID uuid.UUID, clientID string) error {
	b.log.add("unsubscribe")
	return nil
}

func (b *recordingBroadcaster) Publish(ctx context.Context, auctionID uuid.UUID, event outbound.Event) error {
	b.log.add("publish")
	return nil
}

func newHandlerTestClient(t *testing.T, h *WsHandler) *WsClient {
	t.Helper()
	client := NewClient(WsClientParams{
		UserID:  uuid.New(),
		Conn:    newTestConn(t),
		Handler: h,
		Logger:  zerolog.Nop(),
	})
	h.registerClient(client)
	h.createEventChannel(client.id)
	return client
}

// The broadcaster never closes the event channel, but if anything ever
// does, the delivery loop must exit instead of spinning on the closed
// channel and flooding the client with empty messages.
func TestListenForClientEvents_ExitsOnClosedChannel(t *testing.T) {
	h := NewHandler(WsHandlerParams{Logger: zerolog.Nop()})
	client := newHandlerTestClient(t, h)

	eventChan := h.getEventChannel(client.id)
	require.NotNil(t, eventChan)
	close(eventChan)

	done := make(chan struct{})
	go func() {
		h.listenForClientEvents(client)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("delivery loop did not exit on closed channel")
	}

	assert.Empty(t, client.sendChan)
}

func TestListenForClientEvents_SkipsExcludedUser(t *testing.T) {
	h := NewHandler(WsHandlerParams{Logger: zerolog.Nop()})
	client := newHandlerTestClient(t, h)

	eventChan := h.getEventChannel(client.id)
	go h.listenForClientEvents(client)

	excluded := client.userID
	eventChan <- outbound.Event{Type: outbound.EventTypeOutbid, ExcludeUserID: &excluded}
	eventChan <- outbound.Event{Type: outbound.EventTypePriceUpdate}

	select {
	case msg := <-client.sendChan:
		assert.Equal(t, MessageTypePriceUpdate, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("price update was not delivered")
	}
	assert.Empty(t, client.sendChan)
}

// Joining subscribes before reading the snapshot, so an event landing
// between the two is delivered rather than lost.
func TestHandleJoin_SubscribesBeforeSnapshot(t *testing.T) {
	log := &opLog{}
	auctionID := uuid.New()
	svc := &stubAuctionService{
		log: log,
		getFn: func(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
			return &auction.Auction{
				ID:             id,
				Title:          "signed jersey",
				BasePrice:      100,
				CurrentPrice:   100,
				ExpirationTime: time.Now().Add(time.Hour),
				Status:         auction.StatusActive,
			}, nil
		},
	}
	h := NewHandler(WsHandlerParams{
		AuctionService: svc,
		BidService:     &stubBidService{},
		Broadcaster:    &recordingBroadcaster{log: log},
		Logger:         zerolog.Nop(),
	})
	client := newHandlerTestClient(t, h)

	err := h.HandleClientMessage(client, &ClientMessage{
		Type:      MessageTypeJoinAuction,
		AuctionID: &auctionID,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"subscribe", "snapshot"}, log.list())

	select {
	case msg := <-client.sendChan:
		assert.Equal(t, MessageTypeAuctionSnapshot, msg.Type)
	default:
		t.Fatal("no snapshot queued for client")
	}
}

func TestHandleJoin_UnknownAuctionRollsBackSubscription(t *testing.T) {
	log := &opLog{}
	auctionID := uuid.New()
	svc := &stubAuctionService{
		log: log,
		getFn: func(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
			return nil, shared.ErrAuctionNotFound
		},
	}
	h := NewHandler(WsHandlerParams{
		AuctionService: svc,
		BidService:     &stubBidService{},
		Broadcaster:    &recordingBroadcaster{log: log},
		Logger:         zerolog.Nop(),
	})
	client := newHandlerTestClient(t, h)

	err := h.HandleClientMessage(client, &ClientMessage{
		Type:      MessageTypeJoinAuction,
		AuctionID: &auctionID,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"subscribe", "snapshot", "unsubscribe"}, log.list())

	select {
	case msg := <-client.sendChan:
		assert.Equal(t, MessageTypeError, msg.Type)
	default:
		t.Fatal("no error message queued for client")
	}
}

func TestNewServer_AppliesWebSocketBufferSizes(t *testing.T) {
	cfg := &config.Config{
		Server:    config.ServerConfig{Port: "8080"},
		WebSocket: config.WebSocketConfig{ReadBufferSize: 2048, WriteBufferSize: 4096},
	}

	srv := NewServer(ServerParams{
		Config: cfg,
		Logger: zerolog.Nop(),
	})

	assert.Equal(t, 2048, srv.handler.upgrader.ReadBufferSize)
	assert.Equal(t, 4096, srv.handler.upgrader.WriteBufferSize)
}

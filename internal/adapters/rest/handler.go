package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"liveauction-service/internal/domain/auction"
	"liveauction-service/internal/domain/shared"
	"liveauction-service/internal/ports/inbound"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Handler exposes the auction lifecycle over HTTP. Authentication is
// handled upstream; the caller identity arrives in the X-User-ID header.
type Handler struct {
	auctionService inbound.AuctionService
	bidService     inbound.BidService
	logger         zerolog.Logger
}

type HandlerParams struct {
	AuctionService inbound.AuctionService
	BidService     inbound.BidService
	Logger         zerolog.Logger
}

// NewHandler creates a new HTTP API handler
func NewHandler(params HandlerParams) *Handler {
	return &Handler{
		auctionService: params.AuctionService,
		bidService:     params.BidService,
		logger:         params.Logger.With().Str("component", "rest_handler").Logger(),
	}
}

// Register attaches all API routes to the router
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/auctions", h.createAuction).Methods(http.MethodPost)
	r.HandleFunc("/api/auctions", h.listAuctions).Methods(http.MethodGet)
	r.HandleFunc("/api/auctions/{id}", h.getAuction).Methods(http.MethodGet)
	r.HandleFunc("/api/auctions/{id}", h.updateAuction).Methods(http.MethodPatch)
	r.HandleFunc("/api/auctions/{id}/bids", h.listBids).Methods(http.MethodGet)
	r.HandleFunc("/api/admin/auctions/{id}/block", h.blockAuction).Methods(http.MethodPost)
	r.HandleFunc("/api/admin/auctions/{id}/unblock", h.unblockAuction).Methods(http.MethodPost)
}

func (h *Handler) createAuction(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := h.requesterID(w, r)
	if !ok {
		return
	}

	var body struct {
		Title          string  `json:"title"`
		Description    string  `json:"description"`
		BasePrice      float64 `json:"base_price"`
		ExpirationTime string  `json:"expiration_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := h.auctionService.CreateAuction(r.Context(), inbound.CreateAuctionRequest{
		Title:          body.Title,
		Description:    body.Description,
		BasePrice:      body.BasePrice,
		ExpirationTime: body.ExpirationTime,
		SellerID:       sellerID,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) listAuctions(w http.ResponseWriter, r *http.Request) {
	req := inbound.ListAuctionsRequest{}

	if sellerStr := r.URL.Query().Get("seller"); sellerStr != "" {
		sellerID, err := uuid.Parse(sellerStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid seller id")
			return
		}
		req.SellerID = &sellerID
	} else {
		// Buyers only see open listings by default
		active := auction.StatusActive
		req.Status = &active
	}

	auctions, err := h.auctionService.ListAuctions(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, auctions)
}

func (h *Handler) getAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	a, err := h.auctionService.GetAuction(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, a)
}

func (h *Handler) updateAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	requesterID, ok := h.requesterID(w, r)
	if !ok {
		return
	}

	var body struct {
		ExpirationTime *string         `json:"expiration_time,omitempty"`
		Status         *auction.Status `json:"status,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := h.auctionService.UpdateAuction(r.Context(), inbound.UpdateAuctionRequest{
		AuctionID:      id,
		RequesterID:    requesterID,
		ExpirationTime: body.ExpirationTime,
		Status:         body.Status,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, a)
}

func (h *Handler) listBids(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	bids, err := h.bidService.GetBids(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, bids)
}

func (h *Handler) blockAuction(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, auction.StatusBlocked, "auction blocked")
}

func (h *Handler) unblockAuction(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, auction.StatusActive, "auction unblocked")
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, status auction.Status, message string) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.auctionService.SetStatus(r.Context(), id, status); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid auction id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) requesterID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "X-User-ID header is required")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps domain sentinels to HTTP status codes
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrAuctionNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shared.ErrNotSeller):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, shared.ErrAuctionNotActive),
		errors.Is(err, shared.ErrAuctionAlreadyEnded),
		errors.Is(err, shared.ErrAuctionExpired),
		errors.Is(err, shared.ErrBidSuperseded):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, shared.ErrTitleRequired),
		errors.Is(err, shared.ErrInvalidBasePrice),
		errors.Is(err, shared.ErrInvalidExpiration),
		errors.Is(err, shared.ErrInvalidTimeFormat),
		errors.Is(err, shared.ErrInvalidStatus),
		errors.Is(err, shared.ErrNoFieldsToUpdate),
		errors.Is(err, shared.ErrBidTooLow),
		errors.Is(err, shared.ErrBidIncrementTooBig),
		errors.Is(err, shared.ErrBidAmountInvalid):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("Internal error")
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

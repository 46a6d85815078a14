package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lotwatch/internal/interfaces"
)

// historyLimit caps the observation and price-event history returned with a
// single listing.
const historyLimit = 25

// ListingHandler serves read queries over reconciled market state
type ListingHandler struct {
	listingStore interfaces.ListingStorage
	logger       arbor.ILogger
}

// NewListingHandler creates a new listing handler
func NewListingHandler(listingStore interfaces.ListingStorage, logger arbor.ILogger) *ListingHandler {
	return &ListingHandler{
		listingStore: listingStore,
		logger:       logger,
	}
}

// ListListingsHandler returns listings matching the query filters
// GET /api/listings?dealer_id=1001&model=Tacoma&status=available&limit=100
func (h *ListingHandler) ListListingsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := interfaces.ListingFilter{
		Model:  r.URL.Query().Get("model"),
		Status: r.URL.Query().Get("status"),
		Limit:  100,
	}

	if dealerStr := r.URL.Query().Get("dealer_id"); dealerStr != "" {
		dealerID, err := strconv.ParseInt(dealerStr, 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid dealer ID")
			return
		}
		filter.DealerID = dealerID
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}

	listings, err := h.listingStore.ListListings(ctx, filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list listings")
		WriteError(w, http.StatusInternalServerError, "Failed to list listings")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"listings": listings,
		"count":    len(listings),
	})
}

// GetListingHandler returns one listing with its vehicle and recent history
// GET /api/listings/{dealer_id}/{vin}
func (h *ListingHandler) GetListingHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Extract keys from path: /api/listings/{dealer_id}/{vin}
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 4 || pathParts[2] == "" || pathParts[3] == "" {
		WriteError(w, http.StatusBadRequest, "Dealer ID and VIN are required")
		return
	}

	dealerID, err := strconv.ParseInt(pathParts[2], 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid dealer ID")
		return
	}
	vin := strings.ToUpper(pathParts[3])

	listing, err := h.listingStore.GetListing(ctx, dealerID, vin)
	if err != nil {
		h.logger.Error().Err(err).Int64("dealer_id", dealerID).Str("vin", vin).Msg("Failed to get listing")
		WriteError(w, http.StatusInternalServerError, "Failed to get listing")
		return
	}
	if listing == nil {
		WriteError(w, http.StatusNotFound, "Listing not found")
		return
	}

	vehicle, err := h.listingStore.GetVehicle(ctx, vin)
	if err != nil {
		h.logger.Warn().Err(err).Str("vin", vin).Msg("Failed to get vehicle")
	}
	observations, err := h.listingStore.ListObservations(ctx, dealerID, vin, historyLimit)
	if err != nil {
		h.logger.Warn().Err(err).Str("vin", vin).Msg("Failed to list observations")
	}
	priceEvents, err := h.listingStore.ListPriceEvents(ctx, vin, historyLimit)
	if err != nil {
		h.logger.Warn().Err(err).Str("vin", vin).Msg("Failed to list price events")
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"listing":      listing,
		"vehicle":      vehicle,
		"observations": observations,
		"price_events": priceEvents,
	})
}

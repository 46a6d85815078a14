package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lotwatch/internal/interfaces"
	"github.com/ternarybob/lotwatch/internal/services/seed"
)

// DealerHandler handles dealer catalog API requests
type DealerHandler struct {
	dealerStore interfaces.DealerStorage
	seeder      *seed.Service
	logger      arbor.ILogger
}

// NewDealerHandler creates a new dealer handler
func NewDealerHandler(dealerStore interfaces.DealerStorage, seeder *seed.Service, logger arbor.ILogger) *DealerHandler {
	return &DealerHandler{
		dealerStore: dealerStore,
		seeder:      seeder,
		logger:      logger,
	}
}

// ListDealersHandler returns the dealer catalog
// GET /api/dealers?region=west&include_inactive=true
func (h *DealerHandler) ListDealersHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := interfaces.DealerFilter{
		Region:     r.URL.Query().Get("region"),
		ActiveOnly: r.URL.Query().Get("include_inactive") != "true",
	}

	dealers, err := h.dealerStore.ListDealers(ctx, filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list dealers")
		WriteError(w, http.StatusInternalServerError, "Failed to list dealers")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"dealers": dealers,
		"count":   len(dealers),
	})
}

// GetDealerHandler returns a single dealer by ID
// GET /api/dealers/{id}
func (h *DealerHandler) GetDealerHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Extract dealer ID from path: /api/dealers/{id}
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 || pathParts[2] == "" {
		WriteError(w, http.StatusBadRequest, "Dealer ID is required")
		return
	}

	dealerID, err := strconv.ParseInt(pathParts[2], 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid dealer ID")
		return
	}

	dealer, err := h.dealerStore.GetDealer(ctx, dealerID)
	if err != nil {
		h.logger.Error().Err(err).Int64("dealer_id", dealerID).Msg("Failed to get dealer")
		WriteError(w, http.StatusInternalServerError, "Failed to get dealer")
		return
	}
	if dealer == nil {
		WriteError(w, http.StatusNotFound, "Dealer not found")
		return
	}

	WriteJSON(w, http.StatusOK, dealer)
}

// ImportDealersHandler imports a dealer catalog export
// POST /api/dealers/import (catalog JSON in the body)
func (h *DealerHandler) ImportDealersHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	defer r.Body.Close()
	result, err := h.seeder.ImportDealers(ctx, r.Body)
	if err != nil {
		h.logger.Error().Err(err).Msg("Dealer import failed")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lotwatch/internal/common"
	"github.com/ternarybob/lotwatch/internal/interfaces"
)

// StatusHandler reports service health
type StatusHandler struct {
	dealerStore interfaces.DealerStorage
	scheduler   interfaces.SchedulerService
	startedAt   time.Time
	logger      arbor.ILogger
}

// NewStatusHandler creates a new status handler. The scheduler may be nil
// when scheduled scraping is disabled.
func NewStatusHandler(dealerStore interfaces.DealerStorage, scheduler interfaces.SchedulerService, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		dealerStore: dealerStore,
		scheduler:   scheduler,
		startedAt:   time.Now().UTC(),
		logger:      logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	dealerCount, err := h.dealerStore.CountDealers(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count dealers")
	}

	schedulerRunning := false
	if h.scheduler != nil {
		schedulerRunning = h.scheduler.IsRunning()
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"service":           "lotwatch",
		"status":            "ok",
		"version":           common.GetVersion(),
		"uptime_seconds":    int(time.Since(h.startedAt).Seconds()),
		"dealers":           dealerCount,
		"scheduler_running": schedulerRunning,
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	})
}

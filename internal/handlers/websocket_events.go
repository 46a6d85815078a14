package handlers

import (
	"context"

	"github.com/ternarybob/lotwatch/internal/models"
)

// broadcastEventTypes are the bus topics mirrored onto the websocket stream.
var broadcastEventTypes = []models.EventType{
	models.EventJobStarted,
	models.EventJobCompleted,
	models.EventTaskComplete,
	models.EventPriceChanged,
	models.EventListingsSold,
}

// subscribeToJobEvents wires the handler to the internal event bus.
func (h *WebSocketHandler) subscribeToJobEvents() {
	for _, eventType := range broadcastEventTypes {
		if err := h.eventService.Subscribe(eventType, func(ctx context.Context, event models.Event) error {
			h.handleEvent(event)
			return nil
		}); err != nil {
			h.logger.Error().
				Err(err).
				Str("event_type", string(eventType)).
				Msg("Failed to subscribe websocket handler")
		}
	}
}

func (h *WebSocketHandler) handleEvent(event models.Event) {
	if !h.shouldBroadcast(string(event.Type)) {
		return
	}
	h.Broadcast(WSMessage{
		Type:    string(event.Type),
		Payload: event.Payload,
	})
}

// shouldBroadcast applies the configured whitelist, then the per-type
// throttler. Throttled events are dropped, not queued.
func (h *WebSocketHandler) shouldBroadcast(eventType string) bool {
	if len(h.allowedEvents) > 0 && !h.allowedEvents[eventType] {
		return false
	}
	if limiter, ok := h.throttlers[eventType]; ok && !limiter.Allow() {
		return false
	}
	return true
}

package events

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lotwatch/internal/interfaces"
	"github.com/ternarybob/lotwatch/internal/models"
)

// NewLoggerSubscriber creates an event handler that logs scrape lifecycle
// events with their common payload fields.
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event models.Event) error {
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		if jobID, ok := event.Payload["job_id"].(string); ok && jobID != "" {
			logEvent = logEvent.Str("job_id", jobID)
		}
		if status, ok := event.Payload["status"].(string); ok && status != "" {
			logEvent = logEvent.Str("status", status)
		}
		if model, ok := event.Payload["model"].(string); ok && model != "" {
			logEvent = logEvent.Str("model", model)
		}
		if dealerID, ok := event.Payload["dealer_id"].(int64); ok {
			logEvent = logEvent.Int64("dealer_id", dealerID)
		}

		logEvent.Msg("Event received")
		return nil
	}
}

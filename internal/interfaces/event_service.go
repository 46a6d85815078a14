package interfaces

import (
	"context"

	"github.com/ternarybob/lotwatch/internal/models"
)

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event models.Event) error

// EventService manages the pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType models.EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event models.Event) error

	// PublishSync publishes an event and waits for all handlers to complete
	PublishSync(ctx context.Context, event models.Event) error

	// Close shuts down the event service
	Close() error
}

package models

import "time"

// EventType identifies an internal pub/sub topic.
type EventType string

const (
	EventJobStarted   EventType = "job.started"
	EventJobCompleted EventType = "job.completed"
	EventTaskComplete EventType = "task.completed"
	EventPriceChanged EventType = "price.changed"
	EventListingsSold EventType = "listings.sold"
)

// Event is the envelope delivered to subscribers and websocket clients.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

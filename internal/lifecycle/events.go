package lifecycle

import (
	"time"

	"remindd/internal/reminder"
)

// Analytics event payloads published on the event bus. Consumers (metrics
// sink, execution log subscribers) treat these as read-only.

type CreatedEvent struct {
	ID            string             `json:"id"`
	OwnerID       string             `json:"owner_id"`
	ScheduledTime time.Time          `json:"scheduled_time"`
	CreatedBy     reminder.CreatedBy `json:"created_by,omitempty"`
}

type ReactivatedEvent struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
}

type SnoozedEvent struct {
	ID      string    `json:"id"`
	OwnerID string    `json:"owner_id"`
	From    time.Time `json:"from"`
	Until   time.Time `json:"until"`
}

type CompletedEvent struct {
	ID            string `json:"id"`
	OwnerID       string `json:"owner_id"`
	OnTime        bool   `json:"on_time"`
	Notes         string `json:"notes,omitempty"`
	Effectiveness int    `json:"effectiveness,omitempty"`
	SpawnedID     string `json:"spawned_id,omitempty"`
}

type CancelledEvent struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
}

type ExpiredEvent struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
}

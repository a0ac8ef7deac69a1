package models

import "time"

// BridgeEvent is a single log entry.
type BridgeEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // LOGIN | REFRESH | COMMAND | HOLIDAY | POLL_ERROR | IMPORT
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}

// internal/model/message_event.go
package model

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventQueued    EventType = "QUEUED"
	EventSent      EventType = "SENT"
	EventFailed    EventType = "FAILED"
	EventDelivered EventType = "DELIVERED"
	EventReplied   EventType = "REPLIED"
)

// MessageEvent is an append-only audit entry for an intervention.
type MessageEvent struct {
	ID             string          `db:"id" json:"id"`
	InterventionID string          `db:"intervention_id" json:"intervention_id"`
	Type           EventType       `db:"type" json:"type"`
	Payload        json.RawMessage `db:"payload" json:"payload"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

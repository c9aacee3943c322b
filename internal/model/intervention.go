// internal/model/intervention.go
package model

import "time"

type InterventionStatus string

const (
	StatusCandidate       InterventionStatus = "CANDIDATE"
	StatusPendingApproval InterventionStatus = "PENDING_APPROVAL"
	StatusScheduled       InterventionStatus = "SCHEDULED"
	StatusSent            InterventionStatus = "SENT"
	StatusDelivered       InterventionStatus = "DELIVERED"
	StatusFailed          InterventionStatus = "FAILED"
	StatusCanceled        InterventionStatus = "CANCELED"
)

// Intervention is one outreach attempt for one member under one play on one
// channel. Subject and Body are rendered at creation and never re-rendered.
type Intervention struct {
	ID                string             `db:"id" json:"id"`
	TenantID          string             `db:"tenant_id" json:"tenant_id"`
	PlayID            string             `db:"play_id" json:"play_id"`
	MemberID          string             `db:"member_id" json:"member_id"`
	Channel           Channel            `db:"channel" json:"channel"`
	Status            InterventionStatus `db:"status" json:"status"`
	ScheduledAt       *time.Time         `db:"scheduled_at" json:"scheduled_at,omitempty"`
	SentAt            *time.Time         `db:"sent_at" json:"sent_at,omitempty"`
	ProviderMessageID string             `db:"provider_message_id" json:"provider_message_id,omitempty"`
	Reason            string             `db:"reason" json:"reason"`
	Subject           string             `db:"subject" json:"subject"`
	Body              string             `db:"body" json:"body"`
	CreatedAt         time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `db:"updated_at" json:"updated_at"`
}

// InterventionUpdate carries the fields written by a status transition.
type InterventionUpdate struct {
	Status            InterventionStatus
	ScheduledAt       *time.Time
	SentAt            *time.Time
	ProviderMessageID string
	Reason            string
}

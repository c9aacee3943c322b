// internal/model/play.go
package model

import "time"

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelChat  Channel = "chat"
)

type TriggerType string

const (
	TriggerDailyBatch TriggerType = "daily_batch"
	TriggerEvent      TriggerType = "event"
)

// Play is a tenant-defined outreach rule.
type Play struct {
	ID               string      `db:"id" json:"id"`
	TenantID         string      `db:"tenant_id" json:"tenant_id"`
	Name             string      `db:"name" json:"name"`
	Active           bool        `db:"active" json:"active"`
	TriggerType      TriggerType `db:"trigger_type" json:"trigger_type"`
	MinRiskScore     int         `db:"min_risk_score" json:"min_risk_score"`
	Channels         []Channel   `db:"channels" json:"channels"`
	RequiresApproval bool        `db:"requires_approval" json:"requires_approval"`
	QuietHoursStart  string      `db:"quiet_hours_start" json:"quiet_hours_start"` // "HH:MM", local
	QuietHoursEnd    string      `db:"quiet_hours_end" json:"quiet_hours_end"`
	MaxPerWeek       int         `db:"max_per_week" json:"max_per_week"`
	CooldownDays     int         `db:"cooldown_days" json:"cooldown_days"`
	SubjectTemplate  string      `db:"subject_template" json:"subject_template"`
	BodyTemplate     string      `db:"body_template" json:"body_template"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
}

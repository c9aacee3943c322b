// internal/model/risk_snapshot.go
package model

import "time"

// RiskSnapshot is immutable once written.
type RiskSnapshot struct {
	ID            string    `db:"id" json:"id"`
	TenantID      string    `db:"tenant_id" json:"tenant_id"`
	MemberID      string    `db:"member_id" json:"member_id"`
	Score         int       `db:"score" json:"score"`
	Level         string    `db:"level" json:"level"`
	PrimaryReason string    `db:"primary_reason" json:"primary_reason,omitempty"`
	ComputedAt    time.Time `db:"computed_at" json:"computed_at"`
}

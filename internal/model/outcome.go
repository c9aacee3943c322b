// internal/model/outcome.go
package model

import "time"

type OutcomeType string

const (
	OutcomeContacted       OutcomeType = "contacted"
	OutcomeReplied         OutcomeType = "replied"
	OutcomeBooked          OutcomeType = "booked"
	OutcomeReturned        OutcomeType = "returned"
	OutcomePaymentResolved OutcomeType = "payment_resolved"
	OutcomeFrozen          OutcomeType = "frozen"
	OutcomeCancelled       OutcomeType = "cancelled"
	OutcomeSaved           OutcomeType = "saved"
)

func (t OutcomeType) Valid() bool {
	switch t {
	case OutcomeContacted, OutcomeReplied, OutcomeBooked, OutcomeReturned,
		OutcomePaymentResolved, OutcomeFrozen, OutcomeCancelled, OutcomeSaved:
		return true
	}
	return false
}

type Outcome struct {
	ID         string      `db:"id" json:"id"`
	TenantID   string      `db:"tenant_id" json:"tenant_id"`
	MemberID   string      `db:"member_id" json:"member_id"`
	Type       OutcomeType `db:"type" json:"type"`
	Note       string      `db:"note" json:"note,omitempty"`
	RecordedAt time.Time   `db:"recorded_at" json:"recorded_at"`
}

// internal/model/member.go
package model

import "time"

type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberInactive  MemberStatus = "inactive"
	MemberCancelled MemberStatus = "cancelled"
	MemberFrozen    MemberStatus = "frozen"
)

// Member is maintained by data ingestion and is read-only here.
type Member struct {
	ID               string       `db:"id" json:"id"`
	TenantID         string       `db:"tenant_id" json:"tenant_id"`
	FirstName        string       `db:"first_name" json:"first_name"`
	LastName         string       `db:"last_name" json:"last_name"`
	Email            string       `db:"email" json:"email"`
	Phone            string       `db:"phone" json:"phone"`
	ChatHandle       string       `db:"chat_handle" json:"chat_handle"`
	EmailConsent     bool         `db:"email_consent" json:"email_consent"`
	SMSConsent       bool         `db:"sms_consent" json:"sms_consent"`
	ChatConsent      bool         `db:"chat_consent" json:"chat_consent"`
	DoNotContact     bool         `db:"do_not_contact" json:"do_not_contact"`
	Status           MemberStatus `db:"status" json:"status"`
	JoinedAt         time.Time    `db:"joined_at" json:"joined_at"`
	LastVisitAt      *time.Time   `db:"last_visit_at" json:"last_visit_at,omitempty"`
	DistanceKm       *float64     `db:"distance_km" json:"distance_km,omitempty"`
	Age              *int         `db:"age" json:"age,omitempty"`
	EmploymentStatus string       `db:"employment_status" json:"employment_status"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
}

// HasConsent reports the consent flag for a channel.
func (m *Member) HasConsent(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return m.EmailConsent
	case ChannelSMS:
		return m.SMSConsent
	case ChannelChat:
		return m.ChatConsent
	}
	return false
}

// Address returns where a message on the channel is delivered to.
func (m *Member) Address(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return m.Email
	case ChannelSMS:
		return m.Phone
	case ChannelChat:
		if m.ChatHandle != "" {
			return m.ChatHandle
		}
		return m.Phone
	}
	return ""
}

type Visit struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	MemberID  string    `db:"member_id" json:"member_id"`
	VisitedAt time.Time `db:"visited_at" json:"visited_at"`
}

// internal/model/tenant.go
package model

import "time"

type Tenant struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Timezone  string    `db:"timezone" json:"timezone"` // IANA name, e.g. "America/New_York"
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Location resolves the tenant timezone. An empty timezone means UTC.
func (t *Tenant) Location() (*time.Location, error) {
	if t.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(t.Timezone)
}

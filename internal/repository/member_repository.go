package repository

import (
	"context"
	"database/sql"
	"time"

	appErrors "github.com/unclebandit/retention-engine/internal/errors"
	"github.com/unclebandit/retention-engine/internal/model"
)

// MemberRepositoryInterface is read-only: members and visits are written by
// data ingestion.
type MemberRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.Member, error)
	ListByTenant(ctx context.Context, tenantID string) ([]model.Member, error)
	ListVisits(ctx context.Context, memberID string, since time.Time) ([]time.Time, error)
}

type MemberRepository struct {
	DB *sql.DB
}

const memberColumns = `id, tenant_id, first_name, last_name, email, phone, chat_handle,
    email_consent, sms_consent, chat_consent, do_not_contact, status, joined_at,
    last_visit_at, distance_km, age, employment_status, created_at`

func scanMember(row rowScanner) (*model.Member, error) {
	var m model.Member
	err := row.Scan(
		&m.ID, &m.TenantID, &m.FirstName, &m.LastName, &m.Email, &m.Phone, &m.ChatHandle,
		&m.EmailConsent, &m.SMSConsent, &m.ChatConsent, &m.DoNotContact, &m.Status, &m.JoinedAt,
		&m.LastVisitAt, &m.DistanceKm, &m.Age, &m.EmploymentStatus, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MemberRepository) GetByID(ctx context.Context, id string) (*model.Member, error) {
	m, err := scanMember(r.DB.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id=$1`, id))
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("member", id)
	}
	return m, err
}

func (r *MemberRepository) ListByTenant(ctx context.Context, tenantID string) ([]model.Member, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE tenant_id=$1 ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []model.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (r *MemberRepository) ListVisits(ctx context.Context, memberID string, since time.Time) ([]time.Time, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT visited_at FROM visits WHERE member_id=$1 AND visited_at >= $2 ORDER BY visited_at`,
		memberID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var visits []time.Time
	for rows.Next() {
		var v time.Time
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

var _ MemberRepositoryInterface = (*MemberRepository)(nil)

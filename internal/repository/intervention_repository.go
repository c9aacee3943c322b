package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/retention-engine/internal/errors"
	"github.com/unclebandit/retention-engine/internal/model"
)

type InterventionRepositoryInterface interface {
	Create(ctx context.Context, iv *model.Intervention) error
	GetByID(ctx context.Context, id string) (*model.Intervention, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*model.Intervention, error)

	// UpdateStatus applies upd only if the stored status still equals
	// expected; otherwise it returns appErrors.ErrStatusConflict.
	UpdateStatus(ctx context.Context, id string, expected model.InterventionStatus, upd model.InterventionUpdate) error

	CountByMemberStatusesSince(ctx context.Context, tenantID, memberID string, statuses []model.InterventionStatus, since time.Time) (int, error)
	// ExistsActiveForPlayMemberSince reports a non-canceled intervention for
	// the pair created at or after since, or one still awaiting approval or
	// dispatch regardless of age.
	ExistsActiveForPlayMemberSince(ctx context.Context, playID, memberID string, since time.Time) (bool, error)
	HasSentForMember(ctx context.Context, memberID string) (bool, error)

	ListByTenant(ctx context.Context, tenantID string, offset, limit int, status, channel string) ([]*model.Intervention, int, error)
	StatsByTenant(ctx context.Context, tenantID string) (map[string]int, error)
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Intervention, error)
}

type InterventionRepository struct {
	DB *sql.DB
}

const interventionColumns = `id, tenant_id, play_id, member_id, channel, status, scheduled_at, sent_at,
    provider_message_id, reason, subject, body, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntervention(row rowScanner) (*model.Intervention, error) {
	var iv model.Intervention
	err := row.Scan(
		&iv.ID, &iv.TenantID, &iv.PlayID, &iv.MemberID, &iv.Channel, &iv.Status,
		&iv.ScheduledAt, &iv.SentAt, &iv.ProviderMessageID, &iv.Reason,
		&iv.Subject, &iv.Body, &iv.CreatedAt, &iv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &iv, nil
}

func (r *InterventionRepository) Create(ctx context.Context, iv *model.Intervention) error {
	now := time.Now().UTC()
	if iv.CreatedAt.IsZero() {
		iv.CreatedAt = now
	}
	iv.UpdatedAt = iv.CreatedAt

	query := `
        INSERT INTO interventions
        (id, tenant_id, play_id, member_id, channel, status, scheduled_at, sent_at,
         provider_message_id, reason, subject, body, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
    `
	_, err := r.DB.ExecContext(ctx, query,
		iv.ID, iv.TenantID, iv.PlayID, iv.MemberID, iv.Channel, iv.Status,
		iv.ScheduledAt, iv.SentAt, iv.ProviderMessageID, iv.Reason,
		iv.Subject, iv.Body, iv.CreatedAt, iv.UpdatedAt,
	)
	return err
}

func (r *InterventionRepository) GetByID(ctx context.Context, id string) (*model.Intervention, error) {
	query := `SELECT ` + interventionColumns + ` FROM interventions WHERE id=$1`
	iv, err := scanIntervention(r.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("intervention", id)
	}
	return iv, err
}

func (r *InterventionRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*model.Intervention, error) {
	query := `SELECT ` + interventionColumns + ` FROM interventions WHERE provider_message_id=$1 LIMIT 1`
	iv, err := scanIntervention(r.DB.QueryRowContext(ctx, query, providerMessageID))
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("intervention", providerMessageID)
	}
	return iv, err
}

func (r *InterventionRepository) UpdateStatus(ctx context.Context, id string, expected model.InterventionStatus, upd model.InterventionUpdate) error {
	query := `
        UPDATE interventions
        SET status=$1,
            scheduled_at=COALESCE($2::timestamptz, scheduled_at),
            sent_at=COALESCE($3::timestamptz, sent_at),
            provider_message_id=CASE WHEN $4::text = '' THEN provider_message_id ELSE $4::text END,
            reason=CASE WHEN $5::text = '' THEN reason ELSE $5::text END,
            updated_at=NOW()
        WHERE id=$6 AND status=$7
    `
	res, err := r.DB.ExecContext(ctx, query,
		upd.Status, upd.ScheduledAt, upd.SentAt, upd.ProviderMessageID, upd.Reason, id, expected)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return appErrors.ErrStatusConflict
	}
	return nil
}

func (r *InterventionRepository) CountByMemberStatusesSince(ctx context.Context, tenantID, memberID string, statuses []model.InterventionStatus, since time.Time) (int, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	var count int
	err := r.DB.QueryRowContext(ctx, `
        SELECT COUNT(*)
        FROM interventions
        WHERE tenant_id=$1 AND member_id=$2 AND status = ANY($3) AND created_at >= $4`,
		tenantID, memberID, pq.Array(names), since).Scan(&count)
	return count, err
}

func (r *InterventionRepository) ExistsActiveForPlayMemberSince(ctx context.Context, playID, memberID string, since time.Time) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM interventions
            WHERE play_id=$1 AND member_id=$2 AND status <> $3
              AND (created_at >= $4 OR status IN ($5, $6))
        )`, playID, memberID, model.StatusCanceled, since,
		model.StatusPendingApproval, model.StatusScheduled).Scan(&exists)
	return exists, err
}

func (r *InterventionRepository) HasSentForMember(ctx context.Context, memberID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM interventions WHERE member_id=$1 AND status IN ($2, $3)
        )`, memberID, model.StatusSent, model.StatusDelivered).Scan(&exists)
	return exists, err
}

func (r *InterventionRepository) ListByTenant(ctx context.Context, tenantID string, offset, limit int, status, channel string) ([]*model.Intervention, int, error) {
	where := ` WHERE tenant_id=$1`
	args := []interface{}{tenantID}
	argPos := 2

	if status != "" {
		where += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}
	if channel != "" {
		where += fmt.Sprintf(" AND channel=$%d", argPos)
		args = append(args, channel)
		argPos++
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM interventions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + interventionColumns + ` FROM interventions` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	interventions := []*model.Intervention{}
	for rows.Next() {
		iv, err := scanIntervention(rows)
		if err != nil {
			return nil, 0, err
		}
		interventions = append(interventions, iv)
	}
	return interventions, total, rows.Err()
}

func (r *InterventionRepository) StatsByTenant(ctx context.Context, tenantID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM interventions WHERE tenant_id=$1 GROUP BY status`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (r *InterventionRepository) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Intervention, error) {
	query := `SELECT ` + interventionColumns + ` FROM interventions
        WHERE status=$1 AND scheduled_at <= $2
        ORDER BY scheduled_at ASC LIMIT $3`
	rows, err := r.DB.QueryContext(ctx, query, model.StatusScheduled, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*model.Intervention
	for rows.Next() {
		iv, err := scanIntervention(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, iv)
	}
	return due, rows.Err()
}

var _ InterventionRepositoryInterface = (*InterventionRepository)(nil)

package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/retention-engine/internal/errors"
	"github.com/unclebandit/retention-engine/internal/model"
)

type PlayRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.Play, error)
	// ListActive returns active plays of the trigger type in creation order.
	ListActive(ctx context.Context, tenantID string, trigger model.TriggerType) ([]model.Play, error)
}

type PlayRepository struct {
	DB *sql.DB
}

const playColumns = `id, tenant_id, name, active, trigger_type, min_risk_score, channels,
    requires_approval, quiet_hours_start, quiet_hours_end, max_per_week, cooldown_days,
    subject_template, body_template, created_at`

func scanPlay(row rowScanner) (*model.Play, error) {
	var p model.Play
	var channels []string
	err := row.Scan(
		&p.ID, &p.TenantID, &p.Name, &p.Active, &p.TriggerType, &p.MinRiskScore, pq.Array(&channels),
		&p.RequiresApproval, &p.QuietHoursStart, &p.QuietHoursEnd, &p.MaxPerWeek, &p.CooldownDays,
		&p.SubjectTemplate, &p.BodyTemplate, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Channels = make([]model.Channel, len(channels))
	for i, c := range channels {
		p.Channels[i] = model.Channel(c)
	}
	return &p, nil
}

func (r *PlayRepository) GetByID(ctx context.Context, id string) (*model.Play, error) {
	p, err := scanPlay(r.DB.QueryRowContext(ctx, `SELECT `+playColumns+` FROM plays WHERE id=$1`, id))
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("play", id)
	}
	return p, err
}

func (r *PlayRepository) ListActive(ctx context.Context, tenantID string, trigger model.TriggerType) ([]model.Play, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT `+playColumns+` FROM plays
        WHERE tenant_id=$1 AND active AND trigger_type=$2
        ORDER BY created_at, id`, tenantID, trigger)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plays := []model.Play{}
	for rows.Next() {
		p, err := scanPlay(rows)
		if err != nil {
			return nil, err
		}
		plays = append(plays, *p)
	}
	return plays, rows.Err()
}

var _ PlayRepositoryInterface = (*PlayRepository)(nil)

package repository

import (
	"context"
	"database/sql"

	"github.com/unclebandit/retention-engine/internal/model"
)

type OutcomeRepositoryInterface interface {
	Create(ctx context.Context, o *model.Outcome) error
	ListByMember(ctx context.Context, memberID string) ([]model.Outcome, error)
}

type OutcomeRepository struct {
	DB *sql.DB
}

func (r *OutcomeRepository) Create(ctx context.Context, o *model.Outcome) error {
	_, err := r.DB.ExecContext(ctx, `
        INSERT INTO outcomes (id, tenant_id, member_id, type, note, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.TenantID, o.MemberID, o.Type, o.Note, o.RecordedAt)
	return err
}

func (r *OutcomeRepository) ListByMember(ctx context.Context, memberID string) ([]model.Outcome, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT id, tenant_id, member_id, type, note, recorded_at
        FROM outcomes WHERE member_id=$1 ORDER BY recorded_at DESC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	outcomes := []model.Outcome{}
	for rows.Next() {
		var o model.Outcome
		if err := rows.Scan(&o.ID, &o.TenantID, &o.MemberID, &o.Type, &o.Note, &o.RecordedAt); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

var _ OutcomeRepositoryInterface = (*OutcomeRepository)(nil)

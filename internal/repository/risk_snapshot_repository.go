package repository

import (
	"context"
	"database/sql"

	appErrors "github.com/unclebandit/retention-engine/internal/errors"
	"github.com/unclebandit/retention-engine/internal/model"
)

type RiskSnapshotRepositoryInterface interface {
	Create(ctx context.Context, s *model.RiskSnapshot) error
	// LatestByTenant returns the most recent snapshot per member, keeping
	// only members whose latest score is at least minScore.
	LatestByTenant(ctx context.Context, tenantID string, minScore int) ([]model.RiskSnapshot, error)
	LatestForMember(ctx context.Context, memberID string) (*model.RiskSnapshot, error)
}

type RiskSnapshotRepository struct {
	DB *sql.DB
}

func (r *RiskSnapshotRepository) Create(ctx context.Context, s *model.RiskSnapshot) error {
	_, err := r.DB.ExecContext(ctx, `
        INSERT INTO risk_snapshots (id, tenant_id, member_id, score, level, primary_reason, computed_at)
        VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
		s.ID, s.TenantID, s.MemberID, s.Score, s.Level, s.PrimaryReason, s.ComputedAt)
	return err
}

func (r *RiskSnapshotRepository) LatestByTenant(ctx context.Context, tenantID string, minScore int) ([]model.RiskSnapshot, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT id, tenant_id, member_id, score, level, primary_reason, computed_at FROM (
            SELECT DISTINCT ON (member_id)
                id, tenant_id, member_id, score, level, COALESCE(primary_reason, '') AS primary_reason, computed_at
            FROM risk_snapshots
            WHERE tenant_id=$1
            ORDER BY member_id, computed_at DESC
        ) latest
        WHERE score >= $2
        ORDER BY score DESC, member_id`, tenantID, minScore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := []model.RiskSnapshot{}
	for rows.Next() {
		var s model.RiskSnapshot
		if err := rows.Scan(&s.ID, &s.TenantID, &s.MemberID, &s.Score, &s.Level, &s.PrimaryReason, &s.ComputedAt); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

func (r *RiskSnapshotRepository) LatestForMember(ctx context.Context, memberID string) (*model.RiskSnapshot, error) {
	var s model.RiskSnapshot
	err := r.DB.QueryRowContext(ctx, `
        SELECT id, tenant_id, member_id, score, level, COALESCE(primary_reason, ''), computed_at
        FROM risk_snapshots WHERE member_id=$1
        ORDER BY computed_at DESC LIMIT 1`, memberID).
		Scan(&s.ID, &s.TenantID, &s.MemberID, &s.Score, &s.Level, &s.PrimaryReason, &s.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("risk snapshot", memberID)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

var _ RiskSnapshotRepositoryInterface = (*RiskSnapshotRepository)(nil)

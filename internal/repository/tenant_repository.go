package repository

import (
	"context"
	"database/sql"

	appErrors "github.com/unclebandit/retention-engine/internal/errors"
	"github.com/unclebandit/retention-engine/internal/model"
)

type TenantRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.Tenant, error)
}

type TenantRepository struct {
	DB *sql.DB
}

func (r *TenantRepository) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	var t model.Tenant
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, name, timezone, created_at FROM tenants WHERE id=$1`, id).
		Scan(&t.ID, &t.Name, &t.Timezone, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("tenant", id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var _ TenantRepositoryInterface = (*TenantRepository)(nil)

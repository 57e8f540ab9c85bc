package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paygate/internal/domain/tenant"
	"paygate/internal/store/repositories"
)

type tenantRepository struct {
	db *pgxpool.Pool
}

func NewTenantRepository(db *pgxpool.Pool) *tenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO tenants (id, name, api_key_hash, created_at)
		VALUES ($1, $2, $3, $4)`,
		t.ID, t.Name, t.APIKeyHash, t.CreatedAt)
	return err
}

func (r *tenantRepository) FindByAPIKeyHash(ctx context.Context, hash string) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := r.db.QueryRow(ctx, `
		SELECT id, name, api_key_hash, created_at
		FROM tenants
		WHERE api_key_hash = $1`, hash).
		Scan(&t.ID, &t.Name, &t.APIKeyHash, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

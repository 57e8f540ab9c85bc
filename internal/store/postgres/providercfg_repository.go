package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paygate/internal/domain/providercfg"
	"paygate/internal/store/repositories"
)

type providerConfigRepository struct {
	db *pgxpool.Pool
}

func NewProviderConfigRepository(db *pgxpool.Pool) *providerConfigRepository {
	return &providerConfigRepository{db: db}
}

const providerConfigColumns = `id, tenant_id, provider, mode, credentials, fee_bearer, fees, enabled, created_at, updated_at`

func (r *providerConfigRepository) Save(ctx context.Context, c *providercfg.Config) error {
	fees, err := json.Marshal(c.Fees)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO provider_configs (id, tenant_id, provider, mode, credentials, fee_bearer, fees, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, provider) DO UPDATE SET
			mode = EXCLUDED.mode,
			credentials = EXCLUDED.credentials,
			fee_bearer = EXCLUDED.fee_bearer,
			fees = EXCLUDED.fees,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at`,
		c.ID, c.TenantID, c.Provider, string(c.Mode), c.Credentials,
		string(c.FeeBearer), fees, c.Enabled, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *providerConfigRepository) FindByID(ctx context.Context, id uuid.UUID) (*providercfg.Config, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+providerConfigColumns+`
		FROM provider_configs
		WHERE id = $1`, id)
	return scanProviderConfig(row)
}

func (r *providerConfigRepository) FindByTenantAndProvider(ctx context.Context, tenantID uuid.UUID, providerName string) (*providercfg.Config, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+providerConfigColumns+`
		FROM provider_configs
		WHERE tenant_id = $1 AND provider = $2`, tenantID, providerName)
	return scanProviderConfig(row)
}

func (r *providerConfigRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*providercfg.Config, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+providerConfigColumns+`
		FROM provider_configs
		WHERE tenant_id = $1
		ORDER BY provider`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*providercfg.Config
	for rows.Next() {
		c, err := scanProviderConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

func scanProviderConfig(row pgx.Row) (*providercfg.Config, error) {
	var c providercfg.Config
	var fees []byte
	err := row.Scan(&c.ID, &c.TenantID, &c.Provider, &c.Mode, &c.Credentials,
		&c.FeeBearer, &fees, &c.Enabled, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(fees) > 0 {
		if err := json.Unmarshal(fees, &c.Fees); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

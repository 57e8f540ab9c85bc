package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paygate/internal/domain/method"
	"paygate/internal/store/repositories"
)

type methodRepository struct {
	db *pgxpool.Pool
}

func NewMethodRepository(db *pgxpool.Pool) *methodRepository {
	return &methodRepository{db: db}
}

const methodColumns = `id, storefront_id, tenant_id, provider, enabled, display_name, display_description, display_order, min_amount, max_amount, created_at, updated_at`

func (r *methodRepository) Save(ctx context.Context, m *method.Method) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO storefront_methods (id, storefront_id, tenant_id, provider, enabled, display_name, display_description, display_order, min_amount, max_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (storefront_id, provider) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			display_name = EXCLUDED.display_name,
			display_description = EXCLUDED.display_description,
			display_order = EXCLUDED.display_order,
			min_amount = EXCLUDED.min_amount,
			max_amount = EXCLUDED.max_amount,
			updated_at = EXCLUDED.updated_at`,
		m.ID, m.StorefrontID, m.TenantID, m.Provider, m.Enabled,
		m.DisplayName, m.DisplayDescription, m.DisplayOrder,
		m.MinAmount, m.MaxAmount, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r *methodRepository) FindByStorefrontAndProvider(ctx context.Context, storefrontID uuid.UUID, providerName string) (*method.Method, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+methodColumns+`
		FROM storefront_methods
		WHERE storefront_id = $1 AND provider = $2`, storefrontID, providerName)
	return scanMethod(row)
}

// ListByStorefront returns the storefront's methods ordered for display:
// display_order ascending, provider name as the tie break.
func (r *methodRepository) ListByStorefront(ctx context.Context, storefrontID uuid.UUID) ([]*method.Method, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+methodColumns+`
		FROM storefront_methods
		WHERE storefront_id = $1
		ORDER BY display_order, provider`, storefrontID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var methods []*method.Method
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

func scanMethod(row pgx.Row) (*method.Method, error) {
	var m method.Method
	err := row.Scan(&m.ID, &m.StorefrontID, &m.TenantID, &m.Provider, &m.Enabled,
		&m.DisplayName, &m.DisplayDescription, &m.DisplayOrder,
		&m.MinAmount, &m.MaxAmount, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

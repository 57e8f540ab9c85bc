// Package repositories defines the persistence contracts consumed by the
// service layer. Implementations live in store/postgres; tests substitute
// the in-memory fakes from internal/testutil.
package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"paygate/internal/domain/method"
	"paygate/internal/domain/providercfg"
	"paygate/internal/domain/tenant"
	"paygate/internal/domain/transaction"
	"paygate/internal/domain/webhook"
)

// ErrNotFound is returned by every Find* when no row matches.
var ErrNotFound = errors.New("not found")

type TenantRepository interface {
	Create(ctx context.Context, t *tenant.Tenant) error
	FindByAPIKeyHash(ctx context.Context, hash string) (*tenant.Tenant, error)
}

type ProviderConfigRepository interface {
	// Save upserts on (tenant_id, provider).
	Save(ctx context.Context, c *providercfg.Config) error
	FindByID(ctx context.Context, id uuid.UUID) (*providercfg.Config, error)
	FindByTenantAndProvider(ctx context.Context, tenantID uuid.UUID, providerName string) (*providercfg.Config, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*providercfg.Config, error)
}

type MethodRepository interface {
	// Save upserts on (storefront_id, provider).
	Save(ctx context.Context, m *method.Method) error
	FindByStorefrontAndProvider(ctx context.Context, storefrontID uuid.UUID, providerName string) (*method.Method, error)
	ListByStorefront(ctx context.Context, storefrontID uuid.UUID) ([]*method.Method, error)
}

// TransactionFilter narrows ledger listings.
type TransactionFilter struct {
	TenantID     *uuid.UUID
	StorefrontID *uuid.UUID
	Status       transaction.Status
	Provider     string
	From, To     *time.Time
	Limit        int
	Offset       int
}

// ProviderStats is one row of the per-provider analytics aggregate.
// Amounts are minor units.
type ProviderStats struct {
	Provider       string
	Total          int64
	Succeeded      int64
	Failed         int64
	VolumeCaptured int64
	VolumeRefunded int64
}

type TransactionRepository interface {
	Create(ctx context.Context, t *transaction.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	FindByProviderIntentID(ctx context.Context, providerName, intentID string) (*transaction.Transaction, error)
	List(ctx context.Context, f TransactionFilter) ([]*transaction.Transaction, error)

	// FindStale returns non-settled transactions (pending/processing/
	// requires_action) untouched since the cutoff, oldest first. Used by the
	// reconciliation worker.
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*transaction.Transaction, error)

	// Mutate loads the transaction under a row-level lock, runs fn against it
	// and persists the result in the same database transaction, appending a
	// transition history row when the status or refunded amount changed.
	// This is the serialization point for concurrent webhook delivery and
	// reconciliation polling: at most one state transition applies per
	// logical event, and the lock is released on every exit path.
	Mutate(ctx context.Context, id uuid.UUID, cause string, eventID *uuid.UUID, fn func(*transaction.Transaction) error) (*transaction.Transaction, error)

	History(ctx context.Context, id uuid.UUID) ([]*transaction.Transition, error)

	// Stats aggregates the tenant's transactions per provider over [from, to).
	Stats(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*ProviderStats, error)
}

type WebhookEventRepository interface {
	Insert(ctx context.Context, e *webhook.Event) error
	// Exists reports whether a delivery with this provider event id was
	// already recorded with an outcome other than verification_failed.
	Exists(ctx context.Context, providerName, eventID string) (bool, error)
	// Finalize stamps outcome, error, duration and transaction linkage.
	Finalize(ctx context.Context, e *webhook.Event) error
	ListRecent(ctx context.Context, limit, offset int) ([]*webhook.Event, error)
}

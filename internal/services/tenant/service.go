// Package tenant holds the admin-facing configuration operations: tenant
// onboarding, provider credentials and storefront method setup. Credentials
// cross this package exactly once, on their way into the vault; every read
// path returns summaries without them.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"paygate/internal/domain/method"
	"paygate/internal/domain/providercfg"
	domtenant "paygate/internal/domain/tenant"
	"paygate/internal/provider"
	"paygate/internal/store/repositories"
	"paygate/internal/vault"
)

var (
	ErrProviderNotEnabled = errors.New("provider not enabled for tenant")
	ErrInvalidAPIKey      = errors.New("invalid api key")
)

type Service struct {
	registry *provider.Registry
	vault    *vault.Vault
	tenants  repositories.TenantRepository
	configs  repositories.ProviderConfigRepository
	methods  repositories.MethodRepository
}

func NewService(
	registry *provider.Registry,
	v *vault.Vault,
	tenants repositories.TenantRepository,
	configs repositories.ProviderConfigRepository,
	methods repositories.MethodRepository,
) *Service {
	return &Service{
		registry: registry,
		vault:    v,
		tenants:  tenants,
		configs:  configs,
		methods:  methods,
	}
}

// Onboard creates a tenant and returns the plaintext API key. The key is not
// recoverable afterwards; only its hash is stored.
func (s *Service) Onboard(ctx context.Context, name string) (*domtenant.Tenant, string, error) {
	t, key, err := domtenant.New(name)
	if err != nil {
		return nil, "", err
	}
	if err := s.tenants.Create(ctx, t); err != nil {
		return nil, "", fmt.Errorf("create tenant: %w", err)
	}
	log.Info().Stringer("tenant_id", t.ID).Str("name", t.Name).Msg("tenant onboarded")
	return t, key, nil
}

// Authenticate resolves a tenant from an API key, for the auth middleware.
func (s *Service) Authenticate(ctx context.Context, apiKey string) (*domtenant.Tenant, error) {
	t, err := s.tenants.FindByAPIKeyHash(ctx, domtenant.HashAPIKey(apiKey))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidAPIKey
	}
	return t, err
}

// ConfigureProviderInput carries a full provider configuration. Credentials
// arrive in plaintext and leave sealed.
type ConfigureProviderInput struct {
	TenantID    uuid.UUID
	Provider    string
	Mode        providercfg.Mode
	Credentials map[string]string
	FeeBearer   providercfg.FeeBearer
	Fees        map[string]any
}

// ConfigureProvider seals the credentials and upserts the tenant's config
// for the provider.
func (s *Service) ConfigureProvider(ctx context.Context, in ConfigureProviderInput) (*ProviderSummary, error) {
	if _, err := s.registry.Get(in.Provider); err != nil {
		return nil, err
	}
	if len(in.Credentials) == 0 {
		return nil, fmt.Errorf("credentials are required")
	}

	sealed, err := s.vault.Seal(in.Credentials)
	if err != nil {
		return nil, err
	}

	cfg, err := providercfg.New(in.TenantID, in.Provider, in.Mode, sealed, in.FeeBearer, in.Fees)
	if err != nil {
		return nil, err
	}
	if existing, err := s.configs.FindByTenantAndProvider(ctx, in.TenantID, in.Provider); err == nil {
		// keep the stable id across upserts
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}
	if err := s.configs.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save provider config: %w", err)
	}

	log.Info().
		Stringer("tenant_id", in.TenantID).
		Str("provider", in.Provider).
		Str("mode", string(in.Mode)).
		Msg("provider configured")
	return summarize(cfg), nil
}

// UpdateProviderInput mutates selected fields; nil means keep.
type UpdateProviderInput struct {
	TenantID    uuid.UUID
	Provider    string
	Mode        *providercfg.Mode
	Credentials map[string]string // non-empty replaces the sealed blob
	FeeBearer   *providercfg.FeeBearer
	Fees        map[string]any
	Enabled     *bool
}

func (s *Service) UpdateProvider(ctx context.Context, in UpdateProviderInput) (*ProviderSummary, error) {
	cfg, err := s.configs.FindByTenantAndProvider(ctx, in.TenantID, in.Provider)
	if err != nil {
		return nil, err
	}

	if in.Mode != nil {
		cfg.Mode = *in.Mode
	}
	if len(in.Credentials) > 0 {
		sealed, err := s.vault.Seal(in.Credentials)
		if err != nil {
			return nil, err
		}
		cfg.Credentials = sealed
	}
	if in.FeeBearer != nil {
		cfg.FeeBearer = *in.FeeBearer
	}
	if in.Fees != nil {
		cfg.Fees = in.Fees
	}
	if in.Enabled != nil {
		cfg.Enabled = *in.Enabled
	}
	cfg.UpdatedAt = time.Now().UTC()

	if err := s.configs.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save provider config: %w", err)
	}
	return summarize(cfg), nil
}

// DisableProvider soft-deletes the config; the sealed blob stays for audit.
func (s *Service) DisableProvider(ctx context.Context, tenantID uuid.UUID, providerName string) error {
	cfg, err := s.configs.FindByTenantAndProvider(ctx, tenantID, providerName)
	if err != nil {
		return err
	}
	cfg.Disable()
	if err := s.configs.Save(ctx, cfg); err != nil {
		return fmt.Errorf("save provider config: %w", err)
	}
	log.Info().Stringer("tenant_id", tenantID).Str("provider", providerName).Msg("provider disabled")
	return nil
}

// ProviderSummary is the read model for provider configs. It deliberately
// has no credential field.
type ProviderSummary struct {
	ID             uuid.UUID             `json:"id"`
	Provider       string                `json:"provider"`
	Mode           providercfg.Mode      `json:"mode"`
	FeeBearer      providercfg.FeeBearer `json:"fee_bearer"`
	Fees           map[string]any        `json:"fees,omitempty"`
	Enabled        bool                  `json:"enabled"`
	HasCredentials bool                  `json:"has_credentials"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

func summarize(cfg *providercfg.Config) *ProviderSummary {
	return &ProviderSummary{
		ID:             cfg.ID,
		Provider:       cfg.Provider,
		Mode:           cfg.Mode,
		FeeBearer:      cfg.FeeBearer,
		Fees:           cfg.Fees,
		Enabled:        cfg.Enabled,
		HasCredentials: cfg.HasCredentials(),
		CreatedAt:      cfg.CreatedAt,
		UpdatedAt:      cfg.UpdatedAt,
	}
}

func (s *Service) ListProviders(ctx context.Context, tenantID uuid.UUID) ([]*ProviderSummary, error) {
	configs, err := s.configs.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]*ProviderSummary, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, summarize(cfg))
	}
	return out, nil
}

// MethodInput configures one payment method on a storefront.
type MethodInput struct {
	TenantID           uuid.UUID
	StorefrontID       uuid.UUID
	Provider           string
	Enabled            bool
	DisplayName        string
	DisplayDescription string
	DisplayOrder       int
	MinAmount          int64
	MaxAmount          int64
}

// UpsertMethod enables or updates a storefront method. A storefront may only
// offer providers its tenant has configured and enabled.
func (s *Service) UpsertMethod(ctx context.Context, in MethodInput) (*method.Method, error) {
	cfg, err := s.configs.FindByTenantAndProvider(ctx, in.TenantID, in.Provider)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotEnabled, in.Provider)
	}
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("%w: %s is disabled", ErrProviderNotEnabled, in.Provider)
	}

	m, err := method.New(in.StorefrontID, in.TenantID, in.Provider, in.Enabled,
		in.DisplayName, in.DisplayDescription, in.DisplayOrder, in.MinAmount, in.MaxAmount)
	if err != nil {
		return nil, err
	}
	if existing, err := s.methods.FindByStorefrontAndProvider(ctx, in.StorefrontID, in.Provider); err == nil {
		m.ID = existing.ID
		m.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}
	if err := s.methods.Save(ctx, m); err != nil {
		return nil, fmt.Errorf("save storefront method: %w", err)
	}
	return m, nil
}

func (s *Service) ListMethods(ctx context.Context, storefrontID uuid.UUID) ([]*method.Method, error) {
	return s.methods.ListByStorefront(ctx, storefrontID)
}

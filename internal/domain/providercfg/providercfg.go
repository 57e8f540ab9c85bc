package providercfg

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mode represents the provider environment
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

// FeeBearer states who bears the payment processing fees
type FeeBearer string

const (
	FeeBearerWholesaler FeeBearer = "wholesaler"
	FeeBearerRetailer   FeeBearer = "retailer"
	FeeBearerCustomer   FeeBearer = "customer"
	FeeBearerSplit      FeeBearer = "split"
)

// Config is a tenant-level payment provider configuration. Credentials are
// held only as a vault-sealed blob; plaintext never appears on this type.
type Config struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Provider    string
	Mode        Mode
	Credentials string // opaque vault blob
	FeeBearer   FeeBearer
	Fees        map[string]any
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// New creates an enabled provider config with validation.
func New(tenantID uuid.UUID, providerName string, mode Mode, sealedCredentials string, feeBearer FeeBearer, fees map[string]any) (*Config, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("tenant ID is required")
	}
	if strings.TrimSpace(providerName) == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if mode != ModeTest && mode != ModeLive {
		return nil, fmt.Errorf("invalid mode: %q", mode)
	}
	if sealedCredentials == "" {
		return nil, fmt.Errorf("credentials are required")
	}
	if feeBearer == "" {
		feeBearer = FeeBearerWholesaler
	}
	switch feeBearer {
	case FeeBearerWholesaler, FeeBearerRetailer, FeeBearerCustomer, FeeBearerSplit:
	default:
		return nil, fmt.Errorf("invalid fee bearer: %q", feeBearer)
	}

	now := time.Now().UTC()
	return &Config{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Provider:    providerName,
		Mode:        mode,
		Credentials: sealedCredentials,
		FeeBearer:   feeBearer,
		Fees:        fees,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Disable soft-deletes the config; the credential blob stays for audit.
func (c *Config) Disable() {
	c.Enabled = false
	c.UpdatedAt = time.Now().UTC()
}

func (c *Config) HasCredentials() bool { return c.Credentials != "" }

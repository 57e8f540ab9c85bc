package method

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Method is a payment method enabled on one storefront for one provider.
// It references the tenant-level provider config implicitly through
// (TenantID, Provider); the storefront may only enable providers its
// tenant has configured and enabled.
type Method struct {
	ID                 uuid.UUID
	StorefrontID       uuid.UUID
	TenantID           uuid.UUID // denormalized for efficient querying
	Provider           string
	Enabled            bool
	DisplayName        string
	DisplayDescription string
	DisplayOrder       int
	MinAmount          int64 // minor units, 0 = no lower bound
	MaxAmount          int64 // minor units, 0 = no upper bound
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// New creates a storefront method with validation.
func New(storefrontID, tenantID uuid.UUID, providerName string, enabled bool, displayName, displayDescription string, displayOrder int, minAmount, maxAmount int64) (*Method, error) {
	if storefrontID == uuid.Nil {
		return nil, fmt.Errorf("storefront ID is required")
	}
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("tenant ID is required")
	}
	if strings.TrimSpace(providerName) == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if minAmount < 0 || maxAmount < 0 {
		return nil, fmt.Errorf("amount bounds cannot be negative")
	}
	if minAmount > 0 && maxAmount > 0 && minAmount > maxAmount {
		return nil, fmt.Errorf("min amount %d exceeds max amount %d", minAmount, maxAmount)
	}

	now := time.Now().UTC()
	return &Method{
		ID:                 uuid.New(),
		StorefrontID:       storefrontID,
		TenantID:           tenantID,
		Provider:           providerName,
		Enabled:            enabled,
		DisplayName:        displayName,
		DisplayDescription: displayDescription,
		DisplayOrder:       displayOrder,
		MinAmount:          minAmount,
		MaxAmount:          maxAmount,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// Accepts reports whether the cart amount satisfies the method's bounds.
func (m *Method) Accepts(amount int64) bool {
	if m.MinAmount > 0 && amount < m.MinAmount {
		return false
	}
	if m.MaxAmount > 0 && amount > m.MaxAmount {
		return false
	}
	return true
}

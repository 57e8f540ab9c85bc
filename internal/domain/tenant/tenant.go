package tenant

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tenant is a wholesaler organization owning provider configuration.
type Tenant struct {
	ID         uuid.UUID
	Name       string
	APIKeyHash string // sha256 hex; the plaintext key is shown once at creation
	CreatedAt  time.Time
}

// New creates a tenant and returns it together with the plaintext API key.
func New(name string) (*Tenant, string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, "", fmt.Errorf("tenant name is required")
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("generate api key: %w", err)
	}
	key := "pg_" + hex.EncodeToString(raw)

	return &Tenant{
		ID:         uuid.New(),
		Name:       strings.TrimSpace(name),
		APIKeyHash: HashAPIKey(key),
		CreatedAt:  time.Now().UTC(),
	}, key, nil
}

// HashAPIKey derives the stored lookup hash for an API key.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

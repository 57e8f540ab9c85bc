package provider

import (
	"context"
	"net/http"

	"paygate/internal/domain/transaction"
)

// Credentials is the decrypted credential set for one tenant+provider pair.
// It is produced by the vault and must never be logged or serialized.
type Credentials map[string]string

// Get returns a credential value or "".
func (c Credentials) Get(key string) string { return c[key] }

// IntentRequest carries everything an adapter needs to open a payment
// attempt with the external provider.
type IntentRequest struct {
	Amount        transaction.Money
	Currency      transaction.Currency
	OrderRef      string
	CustomerEmail string
	ReturnURL     string
	CancelURL     string
	Metadata      map[string]string
}

// IntentResult is the provider-side handle for a created intent.
type IntentResult struct {
	IntentID       string
	ClientSecret   string
	RedirectURL    string
	RequiresAction bool
	Status         transaction.Status
	Metadata       map[string]string
}

// StatusResult is the canonical status reported by a reconciliation poll.
type StatusResult struct {
	Status        transaction.Status
	ProviderTxnID string
	ErrorMessage  string
}

// RefundResult reports a processed refund.
type RefundResult struct {
	RefundID string
	Amount   transaction.Money
	Currency transaction.Currency
	Status   string
}

// ParsedEvent is a provider webhook normalized into canonical terms.
type ParsedEvent struct {
	EventID        string
	EventType      string
	IntentID       string
	Status         transaction.Status // "" when the event carries no transition
	ProviderTxnID  string
	RefundedAmount transaction.Money // total refunded so far, for refund events
	ErrorMessage   string
}

// MethodInfo describes a payment method for checkout display.
type MethodInfo struct {
	Name             string
	DisplayName      string
	Type             string // card, bank_transfer, bnpl
	SupportsRefund   bool
	RequiresRedirect bool
	LogoURL          string
	MinAmount        int64
	MaxAmount        int64
}

// Adapter is the uniform interface over one external payment provider.
// The orchestrator never sees provider specifics: adding a provider means
// adding one implementation and registering it at startup.
type Adapter interface {
	Name() string

	CreateIntent(ctx context.Context, creds Credentials, req IntentRequest) (*IntentResult, error)
	GetStatus(ctx context.Context, creds Credentials, intentID string) (*StatusResult, error)
	Refund(ctx context.Context, creds Credentials, providerRef string, amount transaction.Money, reason string) (*RefundResult, error)

	// VerifyWebhook authenticates a raw delivery against the tenant's
	// webhook secret. Constant-time where the provider's scheme is HMAC.
	VerifyWebhook(payload []byte, headers http.Header, secret string) error
	ParseWebhook(payload []byte) (*ParsedEvent, error)

	MethodInfo() MethodInfo
}

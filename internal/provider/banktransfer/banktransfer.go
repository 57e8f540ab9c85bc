// Package banktransfer implements the provider adapter for manual wire
// transfers. There is no external API: intents carry payment instructions,
// and confirmations arrive as operator-posted events authenticated with the
// tenant's shared webhook token.
package banktransfer

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"paygate/internal/domain/transaction"
	"paygate/internal/provider"
)

const Name = "bank_transfer"

type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string { return Name }

func (a *Adapter) MethodInfo() provider.MethodInfo {
	return provider.MethodInfo{
		Name:             "Bank Transfer",
		DisplayName:      "Bank Transfer (SEPA)",
		Type:             "bank_transfer",
		SupportsRefund:   false,
		RequiresRedirect: false,
	}
}

// Reference derives the deterministic payment reference customers must quote
// in the transfer description.
func Reference(orderRef string) string {
	short := orderRef
	if len(short) > 8 {
		short = short[:8]
	}
	sum := md5.Sum([]byte(orderRef))
	return fmt.Sprintf("BT-%s-%s", short, strings.ToUpper(hex.EncodeToString(sum[:])[:6]))
}

func (a *Adapter) CreateIntent(_ context.Context, creds provider.Credentials, req provider.IntentRequest) (*provider.IntentResult, error) {
	ref := Reference(req.OrderRef)

	instructions := fmt.Sprintf(
		"Transfer %s %s to IBAN %s (BIC %s, holder %s) quoting reference %s.",
		req.Amount.Format(), req.Currency,
		creds.Get("iban"), creds.Get("bic"), creds.Get("account_holder"), ref)

	return &provider.IntentResult{
		IntentID:       ref,
		RequiresAction: true, // customer must perform the transfer
		Status:         transaction.StatusPending,
		Metadata: map[string]string{
			"reference":    ref,
			"instructions": instructions,
		},
	}, nil
}

// GetStatus has nothing to poll: transfers stay pending until an operator
// confirms receipt.
func (a *Adapter) GetStatus(_ context.Context, _ provider.Credentials, _ string) (*provider.StatusResult, error) {
	return &provider.StatusResult{Status: transaction.StatusPending}, nil
}

func (a *Adapter) Refund(_ context.Context, _ provider.Credentials, providerRef string, _ transaction.Money, _ string) (*provider.RefundResult, error) {
	return nil, provider.NewRejected(Name, provider.CodeChargeNotRefundable,
		"bank transfers are refunded by manual wire, not through the API")
}

// VerifyWebhook authenticates operator confirmations with the shared token.
func (a *Adapter) VerifyWebhook(_ []byte, headers http.Header, secret string) error {
	if secret == "" {
		return provider.NewVerificationFailed(Name, "webhook token not configured")
	}
	token := headers.Get("X-Paygate-Webhook-Token")
	if !hmac.Equal([]byte(token), []byte(secret)) {
		return provider.NewVerificationFailed(Name, "webhook token mismatch")
	}
	return nil
}

type confirmation struct {
	EventID   string `json:"event_id"`
	Reference string `json:"reference"`
	Status    string `json:"status"` // succeeded | failed | canceled
	Note      string `json:"note"`
}

func (a *Adapter) ParseWebhook(payload []byte) (*provider.ParsedEvent, error) {
	var c confirmation
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("bank transfer confirmation: decode: %w", err)
	}
	if c.EventID == "" || c.Reference == "" {
		return nil, fmt.Errorf("bank transfer confirmation: missing event_id or reference")
	}

	parsed := &provider.ParsedEvent{
		EventID:   c.EventID,
		EventType: "bank_transfer." + c.Status,
		IntentID:  c.Reference,
	}
	switch c.Status {
	case "succeeded":
		parsed.Status = transaction.StatusSucceeded
	case "failed":
		parsed.Status = transaction.StatusFailed
		parsed.ErrorMessage = c.Note
	case "canceled":
		parsed.Status = transaction.StatusCanceled
	default:
		return nil, fmt.Errorf("bank transfer confirmation: unknown status %q", c.Status)
	}
	return parsed, nil
}

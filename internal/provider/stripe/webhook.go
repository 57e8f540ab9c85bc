package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"paygate/internal/domain/transaction"
	"paygate/internal/provider"
)

// signatureTolerance bounds how old a signed timestamp may be; replays of
// captured deliveries outside the window are rejected.
const signatureTolerance = 5 * time.Minute

// VerifyWebhook checks the Stripe-Signature header: HMAC-SHA256 over
// "<timestamp>.<payload>" keyed with the endpoint secret, compared in
// constant time.
func (a *Adapter) VerifyWebhook(payload []byte, headers http.Header, secret string) error {
	return verifySignature(payload, headers.Get("Stripe-Signature"), secret, time.Now())
}

func verifySignature(payload []byte, header, secret string, now time.Time) error {
	if secret == "" {
		return provider.NewVerificationFailed(Name, "webhook secret not configured")
	}
	if header == "" {
		return provider.NewVerificationFailed(Name, "Stripe-Signature header missing")
	}

	var ts int64
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return provider.NewVerificationFailed(Name, "malformed timestamp")
			}
			ts = parsed
		case "v1":
			candidates = append(candidates, v)
		}
	}
	if ts == 0 || len(candidates) == 0 {
		return provider.NewVerificationFailed(Name, "malformed Stripe-Signature header")
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return provider.NewVerificationFailed(Name, "timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, c := range candidates {
		if hmac.Equal([]byte(expected), []byte(c)) {
			return nil
		}
	}
	return provider.NewVerificationFailed(Name, "no matching v1 signature")
}

// event shapes, reduced to what we read.

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object eventObject `json:"object"`
	} `json:"data"`
}

type eventObject struct {
	ID               string    `json:"id"`
	PaymentIntent    string    `json:"payment_intent"` // set on charge.* events
	LatestCharge     string    `json:"latest_charge"`
	AmountRefunded   int64     `json:"amount_refunded"`
	LastPaymentError *apiError `json:"last_payment_error"`
}

// ParseWebhook normalizes a verified Stripe event. Event types outside the
// payment lifecycle yield a ParsedEvent with empty Status and are ignored
// upstream.
func (a *Adapter) ParseWebhook(payload []byte) (*provider.ParsedEvent, error) {
	var evt webhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("stripe webhook: decode: %w", err)
	}
	if evt.ID == "" || evt.Type == "" {
		return nil, fmt.Errorf("stripe webhook: missing event id or type")
	}

	parsed := &provider.ParsedEvent{
		EventID:   evt.ID,
		EventType: evt.Type,
	}

	switch evt.Type {
	case "payment_intent.succeeded":
		parsed.IntentID = evt.Data.Object.ID
		parsed.Status = transaction.StatusSucceeded
		parsed.ProviderTxnID = evt.Data.Object.LatestCharge
	case "payment_intent.payment_failed":
		parsed.IntentID = evt.Data.Object.ID
		parsed.Status = transaction.StatusFailed
		if evt.Data.Object.LastPaymentError != nil {
			parsed.ErrorMessage = evt.Data.Object.LastPaymentError.Message
		} else {
			parsed.ErrorMessage = "payment failed"
		}
	case "payment_intent.canceled":
		parsed.IntentID = evt.Data.Object.ID
		parsed.Status = transaction.StatusCanceled
	case "payment_intent.processing":
		parsed.IntentID = evt.Data.Object.ID
		parsed.Status = transaction.StatusProcessing
	case "payment_intent.requires_action":
		parsed.IntentID = evt.Data.Object.ID
		parsed.Status = transaction.StatusRequiresAction
	case "charge.refunded":
		parsed.IntentID = evt.Data.Object.PaymentIntent
		parsed.ProviderTxnID = evt.Data.Object.ID
		parsed.RefundedAmount = transaction.Money(evt.Data.Object.AmountRefunded)
	}

	return parsed, nil
}

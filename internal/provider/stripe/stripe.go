// Package stripe implements the provider adapter against Stripe's Payment
// Intents API. Requests are form-encoded with the tenant's secret key;
// webhook deliveries are authenticated with the Stripe-Signature scheme.
package stripe

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"paygate/internal/domain/transaction"
	"paygate/internal/provider"
	"paygate/internal/provider/base"
)

const (
	Name   = "stripe"
	apiURL = "https://api.stripe.com"
)

type Adapter struct {
	client *base.Client
}

// New creates the Stripe adapter. callTimeout bounds every API call.
func New(callTimeout time.Duration) *Adapter {
	c := base.NewClient(Name, callTimeout)
	c.SetBaseURL(apiURL)
	return &Adapter{client: c}
}

// newWithBaseURL is the test seam for pointing the adapter at a stub server.
func newWithBaseURL(callTimeout time.Duration, baseURL string) *Adapter {
	c := base.NewClient(Name, callTimeout)
	c.SetBaseURL(baseURL)
	return &Adapter{client: c}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) MethodInfo() provider.MethodInfo {
	return provider.MethodInfo{
		Name:             "Stripe",
		DisplayName:      "Credit/Debit Card",
		Type:             "card",
		SupportsRefund:   true,
		RequiresRedirect: false,
		LogoURL:          "https://stripe.com/img/v3/home/social.png",
		MinAmount:        50, // Stripe's EUR 0.50 floor
		MaxAmount:        99999999,
	}
}

func (a *Adapter) CreateIntent(ctx context.Context, creds provider.Credentials, req provider.IntentRequest) (*provider.IntentResult, error) {
	secret := creds.Get("secret_key")
	if secret == "" {
		return nil, provider.NewRejected(Name, provider.CodeInvalidCredentials, "secret_key not configured")
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(int64(req.Amount), 10))
	form.Set("currency", strings.ToLower(string(req.Currency)))
	form.Set("metadata[order_ref]", req.OrderRef)
	if req.CustomerEmail != "" {
		form.Set("receipt_email", req.CustomerEmail)
	}
	form.Set("automatic_payment_methods[enabled]", "true")
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	resp, err := a.client.PostForm(ctx, "/v1/payment_intents", form, authHeader(secret))
	if err != nil {
		if base.IsTimeout(err) {
			return nil, provider.NewTimeout(Name)
		}
		return nil, fmt.Errorf("stripe create intent: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, rejectedFromAPI(resp)
	}

	var pi paymentIntent
	if err := resp.UnmarshalJSON(&pi); err != nil {
		return nil, fmt.Errorf("stripe create intent: decode: %w", err)
	}

	return &provider.IntentResult{
		IntentID:       pi.ID,
		ClientSecret:   pi.ClientSecret,
		RequiresAction: pi.Status == "requires_action",
		Status:         mapStatus(pi.Status),
	}, nil
}

func (a *Adapter) GetStatus(ctx context.Context, creds provider.Credentials, intentID string) (*provider.StatusResult, error) {
	secret := creds.Get("secret_key")
	if secret == "" {
		return nil, provider.NewRejected(Name, provider.CodeInvalidCredentials, "secret_key not configured")
	}

	resp, err := a.client.Get(ctx, "/v1/payment_intents/"+url.PathEscape(intentID), authHeader(secret))
	if err != nil {
		if base.IsTimeout(err) {
			return nil, provider.NewTimeout(Name)
		}
		return nil, fmt.Errorf("stripe get status: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, rejectedFromAPI(resp)
	}

	var pi paymentIntent
	if err := resp.UnmarshalJSON(&pi); err != nil {
		return nil, fmt.Errorf("stripe get status: decode: %w", err)
	}

	result := &provider.StatusResult{
		Status:        mapStatus(pi.Status),
		ProviderTxnID: pi.LatestCharge,
	}
	if pi.LastPaymentError != nil {
		result.ErrorMessage = pi.LastPaymentError.Message
	}
	return result, nil
}

func (a *Adapter) Refund(ctx context.Context, creds provider.Credentials, providerRef string, amount transaction.Money, reason string) (*provider.RefundResult, error) {
	secret := creds.Get("secret_key")
	if secret == "" {
		return nil, provider.NewRejected(Name, provider.CodeInvalidCredentials, "secret_key not configured")
	}

	form := url.Values{}
	if strings.HasPrefix(providerRef, "pi_") {
		form.Set("payment_intent", providerRef)
	} else {
		form.Set("charge", providerRef)
	}
	form.Set("amount", strconv.FormatInt(int64(amount), 10))
	if reason != "" {
		form.Set("reason", "requested_by_customer")
		form.Set("metadata[reason]", reason)
	}

	resp, err := a.client.PostForm(ctx, "/v1/refunds", form, authHeader(secret))
	if err != nil {
		if base.IsTimeout(err) {
			return nil, provider.NewTimeout(Name)
		}
		return nil, fmt.Errorf("stripe refund: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, refundRejectedFromAPI(resp)
	}

	var rf refund
	if err := resp.UnmarshalJSON(&rf); err != nil {
		return nil, fmt.Errorf("stripe refund: decode: %w", err)
	}

	return &provider.RefundResult{
		RefundID: rf.ID,
		Amount:   transaction.Money(rf.Amount),
		Currency: transaction.Currency(strings.ToUpper(rf.Currency)),
		Status:   rf.Status,
	}, nil
}

func authHeader(secret string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + secret}
}

// API payload shapes, reduced to the fields we read.

type paymentIntent struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"`
	ClientSecret     string    `json:"client_secret"`
	LatestCharge     string    `json:"latest_charge"`
	LastPaymentError *apiError `json:"last_payment_error"`
}

type refund struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type apiError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorEnvelope struct {
	Error apiError `json:"error"`
}

func rejectedFromAPI(resp *base.Response) error {
	var env apiErrorEnvelope
	_ = resp.UnmarshalJSON(&env)

	code := provider.CodeProviderError
	switch env.Error.Code {
	case "api_key_expired", "invalid_api_key":
		code = provider.CodeInvalidCredentials
	case "currency_not_supported":
		code = provider.CodeUnsupportedCurrency
	case "amount_too_small", "amount_too_large":
		code = provider.CodeAmountOutOfBounds
	}
	if resp.StatusCode == 401 {
		code = provider.CodeInvalidCredentials
	}

	msg := env.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("stripe returned HTTP %d", resp.StatusCode)
	}
	return provider.NewRejected(Name, code, msg)
}

func refundRejectedFromAPI(resp *base.Response) error {
	var env apiErrorEnvelope
	_ = resp.UnmarshalJSON(&env)

	code := provider.CodeProviderError
	if env.Error.Code == "charge_already_refunded" || env.Error.Code == "charge_disputed" {
		code = provider.CodeChargeNotRefundable
	}
	msg := env.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("stripe returned HTTP %d", resp.StatusCode)
	}
	return provider.NewRejected(Name, code, msg)
}

// mapStatus converts Stripe payment intent statuses to canonical statuses.
func mapStatus(s string) transaction.Status {
	switch s {
	case "requires_payment_method", "requires_confirmation":
		return transaction.StatusPending
	case "requires_action":
		return transaction.StatusRequiresAction
	case "processing", "requires_capture":
		return transaction.StatusProcessing
	case "canceled":
		return transaction.StatusCanceled
	case "succeeded":
		return transaction.StatusSucceeded
	default:
		return transaction.StatusPending
	}
}

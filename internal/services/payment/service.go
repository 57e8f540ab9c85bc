// Package payment orchestrates the payment lifecycle across the provider
// adapters and the transaction ledger. All state changes funnel through the
// repository's locked Mutate, so concurrent webhooks, API calls and
// reconciliation polls serialize on the transaction row.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"paygate/internal/domain/transaction"
	"paygate/internal/provider"
	"paygate/internal/store/repositories"
	"paygate/internal/vault"
)

// Configuration-class failures: the tenant asked for something its setup
// does not support. Distinct from provider failures, which are runtime.
var (
	ErrNotConfigured     = errors.New("provider not configured for tenant")
	ErrMethodUnavailable = errors.New("payment method unavailable")
	ErrNotCancelable     = errors.New("transaction cannot be canceled")
)

type Service struct {
	registry    *provider.Registry
	vault       *vault.Vault
	txns        repositories.TransactionRepository
	configs     repositories.ProviderConfigRepository
	methods     repositories.MethodRepository
	callTimeout time.Duration
}

func NewService(
	registry *provider.Registry,
	v *vault.Vault,
	txns repositories.TransactionRepository,
	configs repositories.ProviderConfigRepository,
	methods repositories.MethodRepository,
	callTimeout time.Duration,
) *Service {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Service{
		registry:    registry,
		vault:       v,
		txns:        txns,
		configs:     configs,
		methods:     methods,
		callTimeout: callTimeout,
	}
}

// AvailableMethod is one checkout option offered to a customer.
type AvailableMethod struct {
	Provider           string `json:"provider"`
	DisplayName        string `json:"display_name"`
	DisplayDescription string `json:"display_description,omitempty"`
	Type               string `json:"type"`
	SupportsRefund     bool   `json:"supports_refund"`
	RequiresRedirect   bool   `json:"requires_redirect"`
	MinAmount          int64  `json:"min_amount,omitempty"`
	MaxAmount          int64  `json:"max_amount,omitempty"`
}

// AvailableMethods returns the methods a storefront may offer for the given
// cart amount: the storefront method must be enabled, the owning tenant's
// provider config must be enabled, and the amount must sit inside the
// method's bounds. Order is display_order ascending with provider name as
// the tie break, already enforced by the repository.
func (s *Service) AvailableMethods(ctx context.Context, storefrontID uuid.UUID, amount int64) ([]AvailableMethod, error) {
	methods, err := s.methods.ListByStorefront(ctx, storefrontID)
	if err != nil {
		return nil, fmt.Errorf("list storefront methods: %w", err)
	}

	out := make([]AvailableMethod, 0, len(methods))
	for _, m := range methods {
		if !m.Enabled || !m.Accepts(amount) {
			continue
		}
		cfg, err := s.configs.FindByTenantAndProvider(ctx, m.TenantID, m.Provider)
		if errors.Is(err, repositories.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load provider config: %w", err)
		}
		if !cfg.Enabled {
			continue
		}
		adapter, err := s.registry.Get(m.Provider)
		if err != nil {
			// configured in the database but not compiled in; skip rather than fail checkout
			log.Warn().Str("provider", m.Provider).Msg("configured provider has no adapter")
			continue
		}

		info := adapter.MethodInfo()
		am := AvailableMethod{
			Provider:           m.Provider,
			DisplayName:        m.DisplayName,
			DisplayDescription: m.DisplayDescription,
			Type:               info.Type,
			SupportsRefund:     info.SupportsRefund,
			RequiresRedirect:   info.RequiresRedirect,
			MinAmount:          m.MinAmount,
			MaxAmount:          m.MaxAmount,
		}
		if am.DisplayName == "" {
			am.DisplayName = info.DisplayName
		}
		out = append(out, am)
	}
	return out, nil
}

// CreateIntentInput is the orchestrator-level request to open a payment.
type CreateIntentInput struct {
	TenantID      uuid.UUID
	StorefrontID  uuid.UUID
	OrderID       uuid.UUID
	Provider      string
	Amount        transaction.Money
	Currency      transaction.Currency
	CustomerEmail string
	ReturnURL     string
	CancelURL     string
}

// IntentOutput pairs the ledger entry with the client-side material needed
// to continue the flow (secret, redirect, or offline instructions).
type IntentOutput struct {
	Transaction  *transaction.Transaction
	ClientSecret string
	RedirectURL  string
	Metadata     map[string]string
}

// CreateIntent opens a payment attempt. The pending ledger row is written
// before the provider is called, so a crash mid-call leaves a pending record
// the reconciliation worker can settle; a provider rejection settles the row
// to failed with the rejection reason.
func (s *Service) CreateIntent(ctx context.Context, in CreateIntentInput) (*IntentOutput, error) {
	m, err := s.methods.FindByStorefrontAndProvider(ctx, in.StorefrontID, in.Provider)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s not offered by storefront", ErrMethodUnavailable, in.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("load storefront method: %w", err)
	}
	if !m.Enabled {
		return nil, fmt.Errorf("%w: %s is disabled", ErrMethodUnavailable, in.Provider)
	}
	if !m.Accepts(int64(in.Amount)) {
		return nil, fmt.Errorf("%w: amount %s outside method bounds", ErrMethodUnavailable, in.Amount.Format())
	}

	adapter, creds, err := s.loadAdapter(ctx, in.TenantID, in.Provider)
	if err != nil {
		return nil, err
	}

	txn, err := transaction.New(in.TenantID, in.StorefrontID, in.OrderID, in.Provider, in.Amount, in.Currency, in.CustomerEmail)
	if err != nil {
		return nil, err
	}
	if err := s.txns.Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	res, callErr := adapter.CreateIntent(cctx, creds, provider.IntentRequest{
		Amount:        in.Amount,
		Currency:      in.Currency,
		OrderRef:      in.OrderID.String(),
		CustomerEmail: in.CustomerEmail,
		ReturnURL:     in.ReturnURL,
		CancelURL:     in.CancelURL,
	})
	if callErr != nil {
		// no provider-side intent exists; settle the row so it never reconciles
		_, mErr := s.txns.Mutate(ctx, txn.ID, "api", nil, func(t *transaction.Transaction) error {
			if _, err := t.Apply(transaction.StatusFailed, time.Now().UTC()); err != nil {
				return err
			}
			t.ErrorMessage = callErr.Error()
			return nil
		})
		if mErr != nil {
			log.Error().Err(mErr).Stringer("transaction_id", txn.ID).Msg("failed to settle rejected intent")
		}
		return nil, callErr
	}

	txn, err = s.txns.Mutate(ctx, txn.ID, "api", nil, func(t *transaction.Transaction) error {
		t.ProviderIntentID = res.IntentID
		if res.Status != "" && res.Status != t.Status {
			if _, err := t.Apply(res.Status, time.Now().UTC()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record intent: %w", err)
	}

	log.Info().
		Stringer("transaction_id", txn.ID).
		Stringer("tenant_id", txn.TenantID).
		Str("provider", txn.Provider).
		Str("amount", txn.Amount.Format()).
		Msg("payment intent created")

	return &IntentOutput{
		Transaction:  txn,
		ClientSecret: res.ClientSecret,
		RedirectURL:  res.RedirectURL,
		Metadata:     res.Metadata,
	}, nil
}

// Get fetches a transaction scoped to the tenant.
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*transaction.Transaction, error) {
	t, err := s.txns.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.TenantID != tenantID {
		return nil, repositories.ErrNotFound
	}
	return t, nil
}

// History returns the transaction's transition audit trail.
func (s *Service) History(ctx context.Context, tenantID, id uuid.UUID) ([]*transaction.Transition, error) {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return nil, err
	}
	return s.txns.History(ctx, id)
}

// List returns the tenant's transactions filtered for the logs view.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, f repositories.TransactionFilter) ([]*transaction.Transaction, error) {
	f.TenantID = &tenantID
	return s.txns.List(ctx, f)
}

// Stats aggregates per-provider volumes for the tenant's analytics view.
func (s *Service) Stats(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*repositories.ProviderStats, error) {
	return s.txns.Stats(ctx, tenantID, from, to)
}

// Refund pushes a refund to the provider and records it. The guard runs on a
// scratch copy before the provider is called so an obviously invalid request
// never leaves the process; the authoritative check repeats under the row lock.
func (s *Service) Refund(ctx context.Context, tenantID, id uuid.UUID, amount transaction.Money, reason string) (*transaction.Transaction, error) {
	t, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	scratch := *t
	if err := scratch.RecordRefund(amount, reason, time.Now().UTC()); err != nil {
		return nil, err
	}

	adapter, creds, err := s.loadAdapter(ctx, t.TenantID, t.Provider)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	if _, err := adapter.Refund(cctx, creds, t.ProviderIntentID, amount, reason); err != nil {
		return nil, err
	}

	t, err = s.txns.Mutate(ctx, id, "refund", nil, func(t *transaction.Transaction) error {
		return t.RecordRefund(amount, reason, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Stringer("transaction_id", t.ID).
		Str("amount", amount.Format()).
		Str("status", string(t.Status)).
		Msg("refund recorded")
	return t, nil
}

// Cancel abandons a payment that has not completed. If the provider already
// holds an intent we poll it first: a capture in flight wins over the cancel,
// and the polled status is folded into the ledger instead.
func (s *Service) Cancel(ctx context.Context, tenantID, id uuid.UUID) (*transaction.Transaction, error) {
	t, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case transaction.StatusPending, transaction.StatusRequiresAction:
	default:
		return nil, fmt.Errorf("%w: status %s", ErrNotCancelable, t.Status)
	}

	if t.ProviderIntentID != "" {
		adapter, creds, err := s.loadAdapter(ctx, t.TenantID, t.Provider)
		if err != nil {
			return nil, err
		}
		cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
		res, err := adapter.GetStatus(cctx, creds, t.ProviderIntentID)
		if err != nil {
			return nil, err
		}
		if res.Status == transaction.StatusSucceeded || res.Status == transaction.StatusProcessing {
			t, _, err = s.ApplyProviderStatus(ctx, t.ID, StatusUpdate{
				Status:        res.Status,
				ProviderTxnID: res.ProviderTxnID,
				Cause:         "api",
			})
			if err != nil {
				return nil, err
			}
			return t, fmt.Errorf("%w: provider reports %s", ErrNotCancelable, res.Status)
		}
	}

	t, err = s.txns.Mutate(ctx, id, "api", nil, func(t *transaction.Transaction) error {
		_, err := t.Apply(transaction.StatusCanceled, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Stringer("transaction_id", t.ID).Msg("payment canceled")
	return t, nil
}

// StatusUpdate is a provider-reported fact to fold into the ledger, arriving
// from a webhook or a reconciliation poll.
type StatusUpdate struct {
	Status        transaction.Status // "" when the event carries no transition
	ProviderTxnID string
	ErrorMessage  string
	RefundedTotal transaction.Money // provider-reported total refunded, 0 = none
	Cause         string            // "webhook", "reconcile" or "api"
	EventID       *uuid.UUID
}

// ApplyProviderStatus folds a provider-side fact into the transaction under
// the row lock. The returned bool reports whether anything changed: a loser
// of a delivery race observes its transition already satisfied and reports
// false without error.
func (s *Service) ApplyProviderStatus(ctx context.Context, id uuid.UUID, upd StatusUpdate) (*transaction.Transaction, bool, error) {
	changed := false
	t, err := s.txns.Mutate(ctx, id, upd.Cause, upd.EventID, func(t *transaction.Transaction) error {
		now := time.Now().UTC()

		if upd.RefundedTotal > 0 {
			delta := upd.RefundedTotal - t.RefundedAmount
			if delta > 0 {
				if err := t.RecordRefund(delta, "", now); err != nil {
					return err
				}
				changed = true
			}
		}

		if upd.Status != "" && upd.Status != t.Status {
			applied, err := t.Apply(upd.Status, now)
			if err != nil {
				return err
			}
			if applied {
				changed = true
				if upd.ProviderTxnID != "" {
					t.ProviderTxnID = upd.ProviderTxnID
				}
				if upd.ErrorMessage != "" {
					t.ErrorMessage = upd.ErrorMessage
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return t, changed, nil
}

// PollProvider asks the provider for the transaction's current intent status.
// Read-only; the caller decides whether to fold the answer into the ledger.
func (s *Service) PollProvider(ctx context.Context, t *transaction.Transaction) (*provider.StatusResult, error) {
	adapter, creds, err := s.loadAdapter(ctx, t.TenantID, t.Provider)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return adapter.GetStatus(cctx, creds, t.ProviderIntentID)
}

// loadAdapter resolves the adapter and decrypted credentials for an enabled
// tenant provider config. The credential map stays local to the call chain.
func (s *Service) loadAdapter(ctx context.Context, tenantID uuid.UUID, providerName string) (provider.Adapter, provider.Credentials, error) {
	cfg, err := s.configs.FindByTenantAndProvider(ctx, tenantID, providerName)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotConfigured, providerName)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load provider config: %w", err)
	}
	if !cfg.Enabled {
		return nil, nil, fmt.Errorf("%w: %s is disabled", ErrNotConfigured, providerName)
	}

	adapter, err := s.registry.Get(providerName)
	if err != nil {
		return nil, nil, err
	}

	creds, err := s.vault.Open(cfg.Credentials)
	if err != nil {
		return nil, nil, err
	}
	return adapter, provider.Credentials(creds), nil
}

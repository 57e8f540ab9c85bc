// Package webhook ingests provider notifications: authenticate, deduplicate,
// persist, dispatch. Every delivery leaves a webhook_events row behind, and a
// delivery that fails authentication is recorded and dropped without ever
// touching a transaction.
package webhook

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"paygate/internal/domain/webhook"
	"paygate/internal/metrics"
	"paygate/internal/provider"
	"paygate/internal/services/payment"
	"paygate/internal/store/repositories"
	"paygate/internal/vault"
)

// DedupCache is the fast-path seen-before filter; the events table remains
// authoritative. Forget releases a claim whose dispatch did not apply, so the
// provider's redelivery is not mistaken for a duplicate.
type DedupCache interface {
	MarkSeen(ctx context.Context, key string) bool
	Forget(ctx context.Context, key string)
}

type Service struct {
	registry *provider.Registry
	vault    *vault.Vault
	payments *payment.Service
	configs  repositories.ProviderConfigRepository
	txns     repositories.TransactionRepository
	events   repositories.WebhookEventRepository
	dedup    DedupCache
}

func NewService(
	registry *provider.Registry,
	v *vault.Vault,
	payments *payment.Service,
	configs repositories.ProviderConfigRepository,
	txns repositories.TransactionRepository,
	events repositories.WebhookEventRepository,
	dedup DedupCache,
) *Service {
	return &Service{
		registry: registry,
		vault:    v,
		payments: payments,
		configs:  configs,
		txns:     txns,
		events:   events,
		dedup:    dedup,
	}
}

// signatureHeaders are the provider signature carriers we record for audit.
var signatureHeaders = []string{"Stripe-Signature", "X-Paygate-Webhook-Token"}

func signatureOf(headers http.Header) string {
	for _, h := range signatureHeaders {
		if v := headers.Get(h); v != "" {
			return v
		}
	}
	return ""
}

// Ingest processes one inbound delivery. It returns an error only when the
// request itself is unusable (unknown provider, unparseable payload); every
// other path, including verification failure, records the event and returns
// it so the handler can acknowledge the delivery.
func (s *Service) Ingest(ctx context.Context, providerName string, payload []byte, headers http.Header) (*webhook.Event, error) {
	started := time.Now()

	adapter, err := s.registry.Get(providerName)
	if err != nil {
		return nil, err
	}
	parsed, err := adapter.ParseWebhook(payload)
	if err != nil {
		return nil, err
	}

	event, err := webhook.New(providerName, parsed.EventType, parsed.EventID, payload, signatureOf(headers))
	if err != nil {
		return nil, err
	}

	// resolve the owning transaction; without it there is no tenant and no
	// secret to verify against
	if parsed.IntentID == "" {
		return event, s.record(ctx, event, webhook.OutcomeIgnored, "event carries no intent reference", started)
	}
	txn, err := s.txns.FindByProviderIntentID(ctx, providerName, parsed.IntentID)
	if errors.Is(err, repositories.ErrNotFound) {
		return event, s.record(ctx, event, webhook.OutcomeIgnored, "no transaction for intent "+parsed.IntentID, started)
	}
	if err != nil {
		return nil, err
	}
	event.TransactionID = &txn.ID

	cfg, err := s.configs.FindByTenantAndProvider(ctx, txn.TenantID, providerName)
	if errors.Is(err, repositories.ErrNotFound) {
		return event, s.record(ctx, event, webhook.OutcomeVerificationFailed, "tenant has no config for provider", started)
	}
	if err != nil {
		return nil, err
	}
	creds, err := s.vault.Open(cfg.Credentials)
	if err != nil {
		return event, s.record(ctx, event, webhook.OutcomeFailed, err.Error(), started)
	}

	if err := adapter.VerifyWebhook(payload, headers, creds["webhook_secret"]); err != nil {
		log.Warn().
			Str("provider", providerName).
			Str("event_id", event.EventID).
			Err(err).
			Msg("webhook verification failed")
		return event, s.record(ctx, event, webhook.OutcomeVerificationFailed, err.Error(), started)
	}
	event.Verified = true

	// dedup: Redis shortcut first, then the authoritative table check
	dedupKey := providerName + ":" + event.EventID
	if !s.dedup.MarkSeen(ctx, dedupKey) {
		return event, s.record(ctx, event, webhook.OutcomeDuplicate, "", started)
	}
	if seen, err := s.events.Exists(ctx, providerName, event.EventID); err != nil {
		return nil, err
	} else if seen {
		return event, s.record(ctx, event, webhook.OutcomeDuplicate, "", started)
	}

	if err := s.events.Insert(ctx, event); err != nil {
		s.dedup.Forget(ctx, dedupKey)
		return nil, err
	}

	outcome, errMsg := s.dispatch(ctx, txn.ID, event, parsed)
	event.Finalize(outcome, errMsg, started)
	if err := s.events.Finalize(ctx, event); err != nil {
		return nil, err
	}
	if outcome == webhook.OutcomeFailed {
		// the claim must not survive a dispatch that applied nothing, or the
		// provider's redelivery would be swallowed as a duplicate
		s.dedup.Forget(ctx, dedupKey)
	}
	metrics.WebhookEvents.WithLabelValues(providerName, string(outcome)).Inc()

	log.Info().
		Str("provider", providerName).
		Str("event_id", event.EventID).
		Str("event_type", event.EventType).
		Str("outcome", string(outcome)).
		Int64("processing_ms", event.ProcessingMS).
		Msg("webhook processed")
	return event, nil
}

// dispatch folds the parsed event into the ledger. A transition already
// satisfied by a racing delivery comes back unchanged and is marked duplicate.
func (s *Service) dispatch(ctx context.Context, txnID uuid.UUID, event *webhook.Event, parsed *provider.ParsedEvent) (webhook.Outcome, string) {
	if parsed.Status == "" && parsed.RefundedAmount == 0 {
		return webhook.OutcomeIgnored, ""
	}

	_, changed, err := s.payments.ApplyProviderStatus(ctx, txnID, payment.StatusUpdate{
		Status:        parsed.Status,
		ProviderTxnID: parsed.ProviderTxnID,
		ErrorMessage:  parsed.ErrorMessage,
		RefundedTotal: parsed.RefundedAmount,
		Cause:         "webhook",
		EventID:       &event.ID,
	})
	if err != nil {
		return webhook.OutcomeFailed, err.Error()
	}
	if !changed {
		return webhook.OutcomeDuplicate, ""
	}
	metrics.TransactionTransitions.WithLabelValues(string(parsed.Status), "webhook").Inc()
	return webhook.OutcomeProcessed, ""
}

// record persists a delivery that terminated before dispatch.
func (s *Service) record(ctx context.Context, event *webhook.Event, outcome webhook.Outcome, errMsg string, started time.Time) error {
	event.Finalize(outcome, errMsg, started)
	if err := s.events.Insert(ctx, event); err != nil {
		return err
	}
	metrics.WebhookEvents.WithLabelValues(event.Provider, string(outcome)).Inc()
	return nil
}

// Recent lists the latest deliveries for the admin surface.
func (s *Service) Recent(ctx context.Context, limit, offset int) ([]*webhook.Event, error) {
	return s.events.ListRecent(ctx, limit, offset)
}

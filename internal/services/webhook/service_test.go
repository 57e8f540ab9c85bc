package webhook

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate/internal/domain/providercfg"
	"paygate/internal/domain/transaction"
	domwebhook "paygate/internal/domain/webhook"
	"paygate/internal/provider"
	"paygate/internal/services/payment"
	"paygate/internal/testutil"
	"paygate/internal/vault"
)

type fixture struct {
	svc      *Service
	payments *payment.Service
	adapter  *testutil.FakeAdapter
	txns     *testutil.TransactionRepo
	events   *testutil.WebhookEventRepo

	tenantID uuid.UUID
	txnID    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	v, err := vault.New([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	f := &fixture{
		adapter:  &testutil.FakeAdapter{ProviderName: "fakepay"},
		txns:     testutil.NewTransactionRepo(),
		events:   testutil.NewWebhookEventRepo(),
		tenantID: uuid.New(),
	}
	registry := provider.NewRegistry(f.adapter)
	configs := testutil.NewProviderConfigRepo()
	methods := testutil.NewMethodRepo()
	f.payments = payment.NewService(registry, v, f.txns, configs, methods, time.Second)
	f.svc = NewService(registry, v, f.payments, configs, f.txns, f.events, testutil.NewDedup())

	sealed, err := v.Seal(map[string]string{"webhook_secret": "whsec_1"})
	require.NoError(t, err)
	cfg, err := providercfg.New(f.tenantID, "fakepay", providercfg.ModeTest, sealed, "", nil)
	require.NoError(t, err)
	require.NoError(t, configs.Save(context.Background(), cfg))

	txn, err := transaction.New(f.tenantID, uuid.New(), uuid.New(), "fakepay", 10000, transaction.EUR, "")
	require.NoError(t, err)
	txn.ProviderIntentID = "pi_1"
	require.NoError(t, f.txns.Create(context.Background(), txn))
	f.txnID = txn.ID

	// default: verify everything, parse a succeeded event for pi_1
	f.adapter.VerifyFn = func(_ []byte, _ http.Header, secret string) error {
		if secret != "whsec_1" {
			return provider.NewVerificationFailed("fakepay", "wrong secret")
		}
		return nil
	}
	f.adapter.ParseFn = func(payload []byte) (*provider.ParsedEvent, error) {
		return &provider.ParsedEvent{
			EventID:   "evt_1",
			EventType: "payment.succeeded",
			IntentID:  "pi_1",
			Status:    transaction.StatusSucceeded,
		}, nil
	}
	return f
}

func TestIngestAppliesTransition(t *testing.T) {
	f := newFixture(t)

	evt, err := f.svc.Ingest(context.Background(), "fakepay", []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, domwebhook.OutcomeProcessed, evt.Outcome)
	assert.True(t, evt.Verified)
	require.NotNil(t, evt.TransactionID)
	assert.Equal(t, f.txnID, *evt.TransactionID)
	assert.NotNil(t, evt.ProcessedAt)

	txn, err := f.txns.FindByID(context.Background(), f.txnID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSucceeded, txn.Status)

	history, err := f.txns.History(context.Background(), f.txnID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "webhook", history[0].Cause)
	assert.Equal(t, evt.ID, *history[0].EventID)
}

func TestIngestDuplicateDeliveryAppliesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Ingest(ctx, "fakepay", []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, domwebhook.OutcomeProcessed, first.Outcome)

	second, err := f.svc.Ingest(ctx, "fakepay", []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, domwebhook.OutcomeDuplicate, second.Outcome)

	// exactly one transition applied, both deliveries recorded
	history, err := f.txns.History(ctx, f.txnID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Len(t, f.events.All(), 2)
}

func TestIngestDuplicateCaughtByStoreWhenCacheMisses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, "fakepay", []byte(`{}`), http.Header{})
	require.NoError(t, err)

	// fresh cache simulates a Redis flush between deliveries
	f.svc.dedup = testutil.NewDedup()

	second, err := f.svc.Ingest(ctx, "fakepay", []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, domwebhook.OutcomeDuplicate, second.Outcome)

	history, err := f.txns.History(ctx, f.txnID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestIngestRedeliveryAfterFailedDispatchApplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// transient store fault: the delivery is acked as failed but the event id
	// must stay claimable
	f.txns.MutateErr = errors.New("connection reset by peer")
	first, err := f.svc.Ingest(ctx, "fakepay", []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, domwebhook.OutcomeFailed, first.Outcome)

	txn, err := f.txns.FindByID(ctx, f.txnID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, txn.Status)

	second, err := f.svc.Ingest(ctx, "fakepay", []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, domwebhook.OutcomeProcessed, second.Outcome)

	txn, err = f.txns.FindByID(ctx, f.txnID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSucceeded, txn.Status)
}

func TestIngestRedeliveryAfterFailedDispatchColdCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.adapter.ParseFn = func([]byte) (*provider.ParsedEvent, error) {
		return &provider.ParsedEvent{EventID: "evt_r", EventType: "charge.refunded", IntentID: "pi_1", RefundedAmount: 4000}, nil
	}

	_, _, err := f.payments.ApplyProviderStatus(ctx, f.txnID, payment.StatusUpdate{Status: transaction.StatusSucceeded, Cause: "webhook"})
	require.NoError(t, err)

	f.txns.MutateErr = errors.New("connection reset by peer")
	first, err := f.svc.Ingest(ctx, "fakepay", []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, domwebhook.OutcomeFailed, first.Outcome)

	// cache flushed between deliveries: the events table alone must admit the
	// retry, or the refund delta is lost for good
	f.svc.dedup = testutil.NewDedup()

	second, err := f.svc.Ingest(ctx, "fakepay", []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, domwebhook.OutcomeProcessed, second.Outcome)

	txn, err := f.txns.FindByID(ctx, f.txnID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPartiallyRefunded, txn.Status)
	assert.Equal(t, transaction.Money(4000), txn.RefundedAmount)
}

func TestIngestBadSignatureRecordedAndDropped(t *testing.T) {
	f := newFixture(t)
	f.adapter.VerifyFn = func([]byte, http.Header, string) error {
		return provider.NewVerificationFailed("fakepay", "no matching signature")
	}

	evt, err := f.svc.Ingest(context.Background(), "fakepay", []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, domwebhook.OutcomeVerificationFailed, evt.Outcome)
	assert.False(t, evt.Verified)
	assert.Contains(t, evt.ErrorMessage, "no matching signature")

	// transaction untouched
	txn, err := f.txns.FindByID(context.Background(), f.txnID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, txn.Status)

	// the forged delivery must not shadow the genuine one
	f.adapter.VerifyFn = nil
	evt, err = f.svc.Ingest(context.Background(), "fakepay", []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, domwebhook.OutcomeProcessed, evt.Outcome)
}

func TestIngestUnroutableEventIgnored(t *testing.T) {
	f := newFixture(t)
	f.adapter.ParseFn = func([]byte) (*provider.ParsedEvent, error) {
		return &provider.ParsedEvent{EventID: "evt_x", EventType: "payment.succeeded", IntentID: "pi_unknown", Status: transaction.StatusSucceeded}, nil
	}

	evt, err := f.svc.Ingest(context.Background(), "fakepay", []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, domwebhook.OutcomeIgnored, evt.Outcome)
	assert.Contains(t, evt.ErrorMessage, "no transaction")
}

func TestIngestEventWithoutTransitionIgnored(t *testing.T) {
	f := newFixture(t)
	f.adapter.ParseFn = func([]byte) (*provider.ParsedEvent, error) {
		return &provider.ParsedEvent{EventID: "evt_n", EventType: "customer.created", IntentID: "pi_1"}, nil
	}

	evt, err := f.svc.Ingest(context.Background(), "fakepay", []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, domwebhook.OutcomeIgnored, evt.Outcome)

	txn, err := f.txns.FindByID(context.Background(), f.txnID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, txn.Status)
}

func TestIngestRefundEventRecordsDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.payments.ApplyProviderStatus(ctx, f.txnID, payment.StatusUpdate{Status: transaction.StatusSucceeded, Cause: "webhook"})
	require.NoError(t, err)

	f.adapter.ParseFn = func([]byte) (*provider.ParsedEvent, error) {
		return &provider.ParsedEvent{EventID: "evt_r1", EventType: "charge.refunded", IntentID: "pi_1", RefundedAmount: 4000}, nil
	}
	evt, err := f.svc.Ingest(ctx, "fakepay", []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, domwebhook.OutcomeProcessed, evt.Outcome)

	txn, err := f.txns.FindByID(ctx, f.txnID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPartiallyRefunded, txn.Status)
	assert.Equal(t, transaction.Money(4000), txn.RefundedAmount)

	// provider resends the same running total under a new event id: no-op
	f.adapter.ParseFn = func([]byte) (*provider.ParsedEvent, error) {
		return &provider.ParsedEvent{EventID: "evt_r2", EventType: "charge.refunded", IntentID: "pi_1", RefundedAmount: 4000}, nil
	}
	evt, err = f.svc.Ingest(ctx, "fakepay", []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, domwebhook.OutcomeDuplicate, evt.Outcome)
}

func TestIngestIllegalTransitionMarksFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.payments.ApplyProviderStatus(ctx, f.txnID, payment.StatusUpdate{Status: transaction.StatusFailed, Cause: "webhook"})
	require.NoError(t, err)

	// late success after terminal failure
	evt, err := f.svc.Ingest(ctx, "fakepay", []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, domwebhook.OutcomeFailed, evt.Outcome)
	assert.Contains(t, evt.ErrorMessage, "invalid status transition")

	txn, err := f.txns.FindByID(ctx, f.txnID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, txn.Status)
}

func TestIngestUnknownProviderRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Ingest(context.Background(), "nopay", []byte(`{}`), http.Header{})
	require.ErrorIs(t, err, provider.ErrUnknownProvider)
}

package payment

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate/internal/domain/method"
	"paygate/internal/domain/providercfg"
	"paygate/internal/domain/transaction"
	"paygate/internal/provider"
	"paygate/internal/store/repositories"
	"paygate/internal/testutil"
	"paygate/internal/vault"
)

type fixture struct {
	svc     *Service
	adapter *testutil.FakeAdapter
	txns    *testutil.TransactionRepo
	configs *testutil.ProviderConfigRepo
	methods *testutil.MethodRepo
	vault   *vault.Vault

	tenantID     uuid.UUID
	storefrontID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := base64.StdEncoding.DecodeString("MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=")
	require.NoError(t, err)
	v, err := vault.New(key)
	require.NoError(t, err)

	f := &fixture{
		adapter:      &testutil.FakeAdapter{ProviderName: "fakepay", Info: provider.MethodInfo{Type: "card", SupportsRefund: true}},
		txns:         testutil.NewTransactionRepo(),
		configs:      testutil.NewProviderConfigRepo(),
		methods:      testutil.NewMethodRepo(),
		vault:        v,
		tenantID:     uuid.New(),
		storefrontID: uuid.New(),
	}
	f.svc = NewService(provider.NewRegistry(f.adapter), v, f.txns, f.configs, f.methods, time.Second)
	return f
}

func (f *fixture) configure(t *testing.T, providerName string, enabled bool) {
	t.Helper()
	sealed, err := f.vault.Seal(map[string]string{"secret_key": "sk", "webhook_secret": "whsec"})
	require.NoError(t, err)
	cfg, err := providercfg.New(f.tenantID, providerName, providercfg.ModeTest, sealed, "", nil)
	require.NoError(t, err)
	cfg.Enabled = enabled
	require.NoError(t, f.configs.Save(context.Background(), cfg))
}

func (f *fixture) enableMethod(t *testing.T, providerName string, order int, minAmount, maxAmount int64) {
	t.Helper()
	m, err := method.New(f.storefrontID, f.tenantID, providerName, true, "", "", order, minAmount, maxAmount)
	require.NoError(t, err)
	require.NoError(t, f.methods.Save(context.Background(), m))
}

func TestAvailableMethodsFiltersAndOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	second := &testutil.FakeAdapter{ProviderName: "otherpay", Info: provider.MethodInfo{Type: "card"}}
	third := &testutil.FakeAdapter{ProviderName: "disabledpay", Info: provider.MethodInfo{Type: "card"}}
	f.svc = NewService(provider.NewRegistry(f.adapter, second, third), f.vault, f.txns, f.configs, f.methods, time.Second)

	f.configure(t, "fakepay", true)
	f.configure(t, "otherpay", true)
	f.configure(t, "disabledpay", false)

	// same display order: ties break on provider name
	f.enableMethod(t, "otherpay", 1, 0, 0)
	f.enableMethod(t, "fakepay", 1, 5000, 50000)
	f.enableMethod(t, "disabledpay", 0, 0, 0)

	got, err := f.svc.AvailableMethods(ctx, f.storefrontID, 10000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "fakepay", got[0].Provider)
	assert.Equal(t, "otherpay", got[1].Provider)

	// below fakepay's minimum: only otherpay remains
	got, err = f.svc.AvailableMethods(ctx, f.storefrontID, 1000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "otherpay", got[0].Provider)

	// above fakepay's maximum
	got, err = f.svc.AvailableMethods(ctx, f.storefrontID, 60000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "otherpay", got[0].Provider)
}

func TestCreateIntentLeavesPendingWithIntentID(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "fakepay", true)
	f.enableMethod(t, "fakepay", 0, 0, 0)

	f.adapter.CreateIntentFn = func(_ context.Context, creds provider.Credentials, req provider.IntentRequest) (*provider.IntentResult, error) {
		assert.Equal(t, "sk", creds.Get("secret_key"))
		return &provider.IntentResult{IntentID: "pi_77", ClientSecret: "cs_77", Status: transaction.StatusPending}, nil
	}

	out, err := f.svc.CreateIntent(context.Background(), CreateIntentInput{
		TenantID:     f.tenantID,
		StorefrontID: f.storefrontID,
		OrderID:      uuid.New(),
		Provider:     "fakepay",
		Amount:       10000,
		Currency:     transaction.EUR,
	})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, out.Transaction.Status)
	assert.Equal(t, "pi_77", out.Transaction.ProviderIntentID)
	assert.Equal(t, "cs_77", out.ClientSecret)

	stored, err := f.txns.FindByID(context.Background(), out.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, stored.Status)
	assert.Equal(t, "pi_77", stored.ProviderIntentID)
}

func TestCreateIntentRejectionSettlesFailed(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "fakepay", true)
	f.enableMethod(t, "fakepay", 0, 0, 0)

	f.adapter.CreateIntentFn = func(context.Context, provider.Credentials, provider.IntentRequest) (*provider.IntentResult, error) {
		return nil, provider.NewRejected("fakepay", provider.CodeInvalidCredentials, "bad key")
	}

	_, err := f.svc.CreateIntent(context.Background(), CreateIntentInput{
		TenantID:     f.tenantID,
		StorefrontID: f.storefrontID,
		OrderID:      uuid.New(),
		Provider:     "fakepay",
		Amount:       10000,
		Currency:     transaction.EUR,
	})
	require.ErrorIs(t, err, provider.ErrRejected)

	txns, err := f.svc.List(context.Background(), f.tenantID, repositories.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, transaction.StatusFailed, txns[0].Status)
	assert.Contains(t, txns[0].ErrorMessage, "bad key")
}

func TestCreateIntentGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := CreateIntentInput{
		TenantID:     f.tenantID,
		StorefrontID: f.storefrontID,
		OrderID:      uuid.New(),
		Provider:     "fakepay",
		Amount:       10000,
		Currency:     transaction.EUR,
	}

	// no storefront method at all
	_, err := f.svc.CreateIntent(ctx, in)
	require.ErrorIs(t, err, ErrMethodUnavailable)

	// method present but tenant config missing
	f.enableMethod(t, "fakepay", 0, 0, 0)
	_, err = f.svc.CreateIntent(ctx, in)
	require.ErrorIs(t, err, ErrNotConfigured)

	// config present but disabled
	f.configure(t, "fakepay", false)
	_, err = f.svc.CreateIntent(ctx, in)
	require.ErrorIs(t, err, ErrNotConfigured)

	// amount outside the method window
	f.configure(t, "fakepay", true)
	f.enableMethod(t, "fakepay", 0, 20000, 0)
	_, err = f.svc.CreateIntent(ctx, in)
	require.ErrorIs(t, err, ErrMethodUnavailable)
}

func TestRefundLifecycle(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "fakepay", true)
	f.enableMethod(t, "fakepay", 0, 0, 0)
	ctx := context.Background()

	out, err := f.svc.CreateIntent(ctx, CreateIntentInput{
		TenantID:     f.tenantID,
		StorefrontID: f.storefrontID,
		OrderID:      uuid.New(),
		Provider:     "fakepay",
		Amount:       10000,
		Currency:     transaction.EUR,
	})
	require.NoError(t, err)
	id := out.Transaction.ID

	_, _, err = f.svc.ApplyProviderStatus(ctx, id, StatusUpdate{Status: transaction.StatusSucceeded, Cause: "webhook"})
	require.NoError(t, err)

	got, err := f.svc.Refund(ctx, f.tenantID, id, 4000, "damaged item")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPartiallyRefunded, got.Status)
	assert.Equal(t, transaction.Money(4000), got.RefundedAmount)

	got, err = f.svc.Refund(ctx, f.tenantID, id, 6000, "")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusRefunded, got.Status)

	_, err = f.svc.Refund(ctx, f.tenantID, id, 1, "")
	require.ErrorIs(t, err, transaction.ErrRefundRejected)

	history, err := f.svc.History(ctx, f.tenantID, id)
	require.NoError(t, err)
	// succeeded, partial refund, full refund
	require.Len(t, history, 3)
	assert.Equal(t, transaction.StatusRefunded, history[2].To)
}

func TestRefundRejectedByProviderLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "fakepay", true)
	f.enableMethod(t, "fakepay", 0, 0, 0)
	ctx := context.Background()

	out, err := f.svc.CreateIntent(ctx, CreateIntentInput{
		TenantID: f.tenantID, StorefrontID: f.storefrontID, OrderID: uuid.New(),
		Provider: "fakepay", Amount: 10000, Currency: transaction.EUR,
	})
	require.NoError(t, err)
	_, _, err = f.svc.ApplyProviderStatus(ctx, out.Transaction.ID, StatusUpdate{Status: transaction.StatusSucceeded, Cause: "webhook"})
	require.NoError(t, err)

	f.adapter.RefundFn = func(context.Context, provider.Credentials, string, transaction.Money, string) (*provider.RefundResult, error) {
		return nil, provider.NewRejected("fakepay", provider.CodeChargeNotRefundable, "charge disputed")
	}

	_, err = f.svc.Refund(ctx, f.tenantID, out.Transaction.ID, 4000, "")
	require.ErrorIs(t, err, provider.ErrRejected)

	got, err := f.svc.Get(ctx, f.tenantID, out.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSucceeded, got.Status)
	assert.Zero(t, got.RefundedAmount)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "fakepay", true)
	f.enableMethod(t, "fakepay", 0, 0, 0)
	ctx := context.Background()

	out, err := f.svc.CreateIntent(ctx, CreateIntentInput{
		TenantID: f.tenantID, StorefrontID: f.storefrontID, OrderID: uuid.New(),
		Provider: "fakepay", Amount: 10000, Currency: transaction.EUR,
	})
	require.NoError(t, err)

	got, err := f.svc.Cancel(ctx, f.tenantID, out.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCanceled, got.Status)

	// already terminal
	_, err = f.svc.Cancel(ctx, f.tenantID, out.Transaction.ID)
	require.ErrorIs(t, err, ErrNotCancelable)
}

func TestCancelFromRequiresAction(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "fakepay", true)
	f.enableMethod(t, "fakepay", 0, 0, 0)
	ctx := context.Background()

	out, err := f.svc.CreateIntent(ctx, CreateIntentInput{
		TenantID: f.tenantID, StorefrontID: f.storefrontID, OrderID: uuid.New(),
		Provider: "fakepay", Amount: 10000, Currency: transaction.EUR,
	})
	require.NoError(t, err)
	id := out.Transaction.ID

	// customer abandoned a 3DS challenge; nothing captured provider-side
	_, _, err = f.svc.ApplyProviderStatus(ctx, id, StatusUpdate{Status: transaction.StatusRequiresAction, Cause: "webhook"})
	require.NoError(t, err)
	f.adapter.GetStatusFn = func(context.Context, provider.Credentials, string) (*provider.StatusResult, error) {
		return &provider.StatusResult{Status: transaction.StatusRequiresAction}, nil
	}

	got, err := f.svc.Cancel(ctx, f.tenantID, id)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCanceled, got.Status)
}

func TestCancelLosesToProviderCapture(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "fakepay", true)
	f.enableMethod(t, "fakepay", 0, 0, 0)
	ctx := context.Background()

	out, err := f.svc.CreateIntent(ctx, CreateIntentInput{
		TenantID: f.tenantID, StorefrontID: f.storefrontID, OrderID: uuid.New(),
		Provider: "fakepay", Amount: 10000, Currency: transaction.EUR,
	})
	require.NoError(t, err)

	f.adapter.GetStatusFn = func(context.Context, provider.Credentials, string) (*provider.StatusResult, error) {
		return &provider.StatusResult{Status: transaction.StatusSucceeded, ProviderTxnID: "ch_1"}, nil
	}

	_, err = f.svc.Cancel(ctx, f.tenantID, out.Transaction.ID)
	require.ErrorIs(t, err, ErrNotCancelable)

	got, err := f.svc.Get(ctx, f.tenantID, out.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSucceeded, got.Status)
	assert.Equal(t, "ch_1", got.ProviderTxnID)
}

func TestApplyProviderStatusNoOpForRepeatedStatus(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "fakepay", true)
	f.enableMethod(t, "fakepay", 0, 0, 0)
	ctx := context.Background()

	out, err := f.svc.CreateIntent(ctx, CreateIntentInput{
		TenantID: f.tenantID, StorefrontID: f.storefrontID, OrderID: uuid.New(),
		Provider: "fakepay", Amount: 10000, Currency: transaction.EUR,
	})
	require.NoError(t, err)
	id := out.Transaction.ID

	_, changed, err := f.svc.ApplyProviderStatus(ctx, id, StatusUpdate{Status: transaction.StatusSucceeded, Cause: "webhook"})
	require.NoError(t, err)
	assert.True(t, changed)

	// the race loser observes its transition already satisfied
	_, changed, err = f.svc.ApplyProviderStatus(ctx, id, StatusUpdate{Status: transaction.StatusSucceeded, Cause: "reconcile"})
	require.NoError(t, err)
	assert.False(t, changed)

	history, err := f.svc.History(ctx, f.tenantID, id)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestGetScopedToTenant(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "fakepay", true)
	f.enableMethod(t, "fakepay", 0, 0, 0)
	ctx := context.Background()

	out, err := f.svc.CreateIntent(ctx, CreateIntentInput{
		TenantID: f.tenantID, StorefrontID: f.storefrontID, OrderID: uuid.New(),
		Provider: "fakepay", Amount: 10000, Currency: transaction.EUR,
	})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, uuid.New(), out.Transaction.ID)
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "fakepay", true)
	f.enableMethod(t, "fakepay", 0, 0, 0)
	ctx := context.Background()

	for _, final := range []transaction.Status{transaction.StatusSucceeded, transaction.StatusSucceeded, transaction.StatusFailed} {
		out, err := f.svc.CreateIntent(ctx, CreateIntentInput{
			TenantID: f.tenantID, StorefrontID: f.storefrontID, OrderID: uuid.New(),
			Provider: "fakepay", Amount: 10000, Currency: transaction.EUR,
		})
		require.NoError(t, err)
		_, _, err = f.svc.ApplyProviderStatus(ctx, out.Transaction.ID, StatusUpdate{Status: final, Cause: "webhook"})
		require.NoError(t, err)
	}

	stats, err := f.svc.Stats(ctx, f.tenantID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(3), stats[0].Total)
	assert.Equal(t, int64(2), stats[0].Succeeded)
	assert.Equal(t, int64(1), stats[0].Failed)
	assert.Equal(t, int64(20000), stats[0].VolumeCaptured)
}

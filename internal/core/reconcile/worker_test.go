package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate/internal/domain/providercfg"
	"paygate/internal/domain/transaction"
	"paygate/internal/provider"
	"paygate/internal/services/payment"
	"paygate/internal/testutil"
	"paygate/internal/vault"
)

type fixture struct {
	worker  *Worker
	adapter *testutil.FakeAdapter
	txns    *testutil.TransactionRepo

	tenantID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	v, err := vault.New([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	f := &fixture{
		adapter:  &testutil.FakeAdapter{ProviderName: "fakepay"},
		txns:     testutil.NewTransactionRepo(),
		tenantID: uuid.New(),
	}
	configs := testutil.NewProviderConfigRepo()
	payments := payment.NewService(provider.NewRegistry(f.adapter), v, f.txns, configs, testutil.NewMethodRepo(), time.Second)
	f.worker = NewWorker(payments, f.txns, time.Second, 2*time.Minute, 50)

	sealed, err := v.Seal(map[string]string{"secret_key": "sk"})
	require.NoError(t, err)
	cfg, err := providercfg.New(f.tenantID, "fakepay", providercfg.ModeTest, sealed, "", nil)
	require.NoError(t, err)
	require.NoError(t, configs.Save(context.Background(), cfg))
	return f
}

func (f *fixture) staleTxn(t *testing.T, intentID string, age time.Duration) *transaction.Transaction {
	t.Helper()
	txn, err := transaction.New(f.tenantID, uuid.New(), uuid.New(), "fakepay", 10000, transaction.EUR, "")
	require.NoError(t, err)
	txn.ProviderIntentID = intentID
	txn.UpdatedAt = time.Now().UTC().Add(-age)
	require.NoError(t, f.txns.Create(context.Background(), txn))
	return txn
}

func TestTickSettlesStaleTransaction(t *testing.T) {
	f := newFixture(t)
	txn := f.staleTxn(t, "pi_1", 10*time.Minute)

	f.adapter.GetStatusFn = func(_ context.Context, _ provider.Credentials, intentID string) (*provider.StatusResult, error) {
		assert.Equal(t, "pi_1", intentID)
		return &provider.StatusResult{Status: transaction.StatusSucceeded, ProviderTxnID: "ch_1"}, nil
	}

	f.worker.tick(context.Background())

	got, err := f.txns.FindByID(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSucceeded, got.Status)
	assert.Equal(t, "ch_1", got.ProviderTxnID)

	history, err := f.txns.History(context.Background(), txn.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "reconcile", history[0].Cause)
}

func TestTickSkipsFreshAndSettled(t *testing.T) {
	f := newFixture(t)
	fresh := f.staleTxn(t, "pi_fresh", 10*time.Second)
	settled := f.staleTxn(t, "pi_done", 10*time.Minute)
	_, err := f.txns.Mutate(context.Background(), settled.ID, "webhook", nil, func(tx *transaction.Transaction) error {
		_, err := tx.Apply(transaction.StatusSucceeded, time.Now().UTC())
		return err
	})
	require.NoError(t, err)

	polled := 0
	f.adapter.GetStatusFn = func(context.Context, provider.Credentials, string) (*provider.StatusResult, error) {
		polled++
		return &provider.StatusResult{Status: transaction.StatusPending}, nil
	}

	f.worker.tick(context.Background())
	assert.Zero(t, polled)

	got, err := f.txns.FindByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, got.Status)
}

func TestTickSkipsTransactionWithoutIntent(t *testing.T) {
	f := newFixture(t)
	f.staleTxn(t, "", 10*time.Minute)

	polled := 0
	f.adapter.GetStatusFn = func(context.Context, provider.Credentials, string) (*provider.StatusResult, error) {
		polled++
		return &provider.StatusResult{Status: transaction.StatusPending}, nil
	}

	f.worker.tick(context.Background())
	assert.Zero(t, polled)
}

func TestPollLossToConcurrentWebhookIsSilent(t *testing.T) {
	f := newFixture(t)
	txn := f.staleTxn(t, "pi_1", 10*time.Minute)

	// the webhook lands between the stale fetch and the provider answer
	f.adapter.GetStatusFn = func(context.Context, provider.Credentials, string) (*provider.StatusResult, error) {
		_, err := f.txns.Mutate(context.Background(), txn.ID, "webhook", nil, func(tx *transaction.Transaction) error {
			_, err := tx.Apply(transaction.StatusFailed, time.Now().UTC())
			return err
		})
		require.NoError(t, err)
		return &provider.StatusResult{Status: transaction.StatusSucceeded}, nil
	}

	stale := txn
	require.NoError(t, f.worker.reconcileOne(context.Background(), stale))

	got, err := f.txns.FindByID(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, got.Status)
}

func TestPollRetriesTransientFailure(t *testing.T) {
	f := newFixture(t)
	txn := f.staleTxn(t, "pi_1", 10*time.Minute)

	calls := 0
	f.adapter.GetStatusFn = func(context.Context, provider.Credentials, string) (*provider.StatusResult, error) {
		calls++
		if calls == 1 {
			return nil, provider.NewTimeout("fakepay")
		}
		return &provider.StatusResult{Status: transaction.StatusSucceeded}, nil
	}

	require.NoError(t, f.worker.reconcileOne(context.Background(), txn))
	assert.Equal(t, 2, calls)

	got, err := f.txns.FindByID(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSucceeded, got.Status)
}

func TestPollPermanentRejection(t *testing.T) {
	f := newFixture(t)
	txn := f.staleTxn(t, "pi_1", 10*time.Minute)

	calls := 0
	f.adapter.GetStatusFn = func(context.Context, provider.Credentials, string) (*provider.StatusResult, error) {
		calls++
		return nil, provider.NewRejected("fakepay", provider.CodeInvalidCredentials, "key revoked")
	}

	err := f.worker.reconcileOne(context.Background(), txn)
	require.ErrorIs(t, err, provider.ErrRejected)
	assert.Equal(t, 1, calls)
}

package transaction

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTxn(t *testing.T, amount Money) *Transaction {
	t.Helper()
	txn, err := New(uuid.New(), uuid.New(), uuid.New(), "stripe", amount, EUR, "buyer@example.com")
	require.NoError(t, err)
	return txn
}

func TestNewValidation(t *testing.T) {
	_, err := New(uuid.Nil, uuid.New(), uuid.New(), "stripe", 100, EUR, "")
	assert.Error(t, err)

	_, err = New(uuid.New(), uuid.New(), uuid.Nil, "stripe", 100, EUR, "")
	assert.Error(t, err)

	_, err = New(uuid.New(), uuid.New(), uuid.New(), "", 100, EUR, "")
	assert.Error(t, err)

	_, err = New(uuid.New(), uuid.New(), uuid.New(), "stripe", 0, EUR, "")
	assert.Error(t, err)

	txn := newTestTxn(t, 10000)
	assert.Equal(t, StatusPending, txn.Status)
	assert.NotEqual(t, uuid.Nil, txn.ID)
}

func TestApplyForwardPath(t *testing.T) {
	txn := newTestTxn(t, 10000)
	now := time.Now().UTC()

	changed, err := txn.Apply(StatusProcessing, now)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = txn.Apply(StatusSucceeded, now)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, txn.CompletedAt)
}

func TestApplySameStatusIsNoOp(t *testing.T) {
	txn := newTestTxn(t, 10000)
	now := time.Now().UTC()

	changed, err := txn.Apply(StatusPending, now)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = txn.Apply(StatusSucceeded, now)
	require.NoError(t, err)

	// A racing reconcile poll re-reporting succeeded must be discarded, not error.
	changed, err = txn.Apply(StatusSucceeded, now)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestTerminalStatesAreSticky(t *testing.T) {
	now := time.Now().UTC()
	for _, terminal := range []Status{StatusFailed, StatusCanceled} {
		txn := newTestTxn(t, 10000)
		_, err := txn.Apply(terminal, now)
		require.NoError(t, err)
		assert.True(t, txn.Status.IsTerminal())

		for _, next := range []Status{StatusPending, StatusProcessing, StatusSucceeded} {
			_, err := txn.Apply(next, now)
			assert.ErrorIs(t, err, ErrInvalidTransition, "from %s to %s", terminal, next)
			assert.Equal(t, terminal, txn.Status, "record must stay unchanged")
		}
	}
}

func TestRefundLifecycle(t *testing.T) {
	// intent for 100.00 EUR -> succeeded -> refund 40.00 -> refund 60.00
	txn := newTestTxn(t, 10000)
	now := time.Now().UTC()

	_, err := txn.Apply(StatusSucceeded, now)
	require.NoError(t, err)

	require.NoError(t, txn.RecordRefund(4000, "damaged item", now))
	assert.Equal(t, StatusPartiallyRefunded, txn.Status)
	assert.Equal(t, Money(4000), txn.RefundedAmount)

	require.NoError(t, txn.RecordRefund(6000, "", now))
	assert.Equal(t, StatusRefunded, txn.Status)
	assert.Equal(t, Money(10000), txn.RefundedAmount)

	err = txn.RecordRefund(1, "", now)
	assert.ErrorIs(t, err, ErrRefundRejected)
	assert.Equal(t, StatusRefunded, txn.Status)
}

func TestRefundNeverExceedsCaptured(t *testing.T) {
	txn := newTestTxn(t, 10000)
	now := time.Now().UTC()
	_, err := txn.Apply(StatusSucceeded, now)
	require.NoError(t, err)

	err = txn.RecordRefund(10001, "", now)
	assert.ErrorIs(t, err, ErrRefundRejected)
	assert.Equal(t, Money(0), txn.RefundedAmount)
	assert.Equal(t, StatusSucceeded, txn.Status)

	require.NoError(t, txn.RecordRefund(9999, "", now))
	err = txn.RecordRefund(2, "", now)
	assert.ErrorIs(t, err, ErrRefundRejected)
	assert.Equal(t, Money(9999), txn.RefundedAmount)
}

func TestRefundRequiresSucceeded(t *testing.T) {
	now := time.Now().UTC()
	for _, s := range []Status{StatusPending, StatusProcessing, StatusFailed, StatusCanceled} {
		txn := newTestTxn(t, 10000)
		if s != StatusPending {
			_, err := txn.Apply(s, now)
			require.NoError(t, err)
		}
		err := txn.RecordRefund(100, "", now)
		assert.ErrorIs(t, err, ErrRefundRejected, "status %s", s)
	}
}

func TestMoneyFormat(t *testing.T) {
	assert.Equal(t, "100.00", Money(10000).Format())
	assert.Equal(t, "0.05", Money(5).Format())
	assert.Equal(t, "-2.50", Money(-250).Format())
}

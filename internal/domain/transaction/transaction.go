package transaction

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Money is a monetary amount in the smallest currency unit (cents).
type Money int64

// Format renders the amount with two decimals, e.g. 10000 -> "100.00".
func (m Money) Format() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Currency is an ISO-4217 currency code.
type Currency string

const (
	EUR Currency = "EUR"
	USD Currency = "USD"
)

// Status represents the payment transaction status
type Status string

const (
	StatusPending           Status = "pending"
	StatusProcessing        Status = "processing"
	StatusRequiresAction    Status = "requires_action"
	StatusSucceeded         Status = "succeeded"
	StatusFailed            Status = "failed"
	StatusCanceled          Status = "canceled"
	StatusPartiallyRefunded Status = "partially_refunded"
	StatusRefunded          Status = "refunded"
)

// IsTerminal reports whether no further transition may leave this status.
// partially_refunded still accepts refunds, succeeded accepts refunds.
func (s Status) IsTerminal() bool {
	return s == StatusFailed || s == StatusCanceled || s == StatusRefunded
}

// IsValid checks status against the known set
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusRequiresAction,
		StatusSucceeded, StatusFailed, StatusCanceled,
		StatusPartiallyRefunded, StatusRefunded:
		return true
	}
	return false
}

// transitions is the sanctioned forward graph. Refund statuses are only
// reachable through RecordRefund, never through Apply.
var transitions = map[Status][]Status{
	StatusPending:        {StatusProcessing, StatusRequiresAction, StatusSucceeded, StatusFailed, StatusCanceled},
	StatusProcessing:     {StatusRequiresAction, StatusSucceeded, StatusFailed, StatusCanceled},
	StatusRequiresAction: {StatusProcessing, StatusSucceeded, StatusFailed, StatusCanceled},
}

// CanTransition reports whether from -> to is a sanctioned transition.
func CanTransition(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Sentinel errors for ledger mutations
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrRefundRejected    = errors.New("refund rejected")
)

// Transaction is the ledger entry for one payment attempt.
type Transaction struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	StorefrontID     uuid.UUID
	OrderID          uuid.UUID
	Provider         string
	Amount           Money
	Currency         Currency
	Status           Status
	RefundedAmount   Money
	ProviderIntentID string
	ProviderTxnID    string
	CustomerEmail    string
	ErrorMessage     string
	RefundReason     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

// New creates a pending transaction with validation.
func New(tenantID, storefrontID, orderID uuid.UUID, providerName string, amount Money, currency Currency, customerEmail string) (*Transaction, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("tenant ID is required")
	}
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order ID is required")
	}
	if strings.TrimSpace(providerName) == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive: %d", amount)
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("invalid currency: %q", currency)
	}

	now := time.Now().UTC()
	return &Transaction{
		ID:            uuid.New(),
		TenantID:      tenantID,
		StorefrontID:  storefrontID,
		OrderID:       orderID,
		Provider:      providerName,
		Amount:        amount,
		Currency:      currency,
		Status:        StatusPending,
		CustomerEmail: customerEmail,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Apply moves the transaction to the target status. Re-applying the current
// status is a no-op and returns (false, nil): under concurrent webhook and
// reconciliation delivery the second writer observes an already-satisfied
// transition and discards it. An unsanctioned move returns ErrInvalidTransition
// and leaves the record unchanged.
func (t *Transaction) Apply(to Status, now time.Time) (bool, error) {
	if !to.IsValid() {
		return false, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if to == t.Status {
		return false, nil
	}
	if !CanTransition(t.Status, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}

	t.Status = to
	t.UpdatedAt = now
	if to == StatusSucceeded || to == StatusFailed || to == StatusCanceled {
		completed := now
		t.CompletedAt = &completed
	}
	return true, nil
}

// IsRefundable reports whether RecordRefund may be called.
func (t *Transaction) IsRefundable() bool {
	return t.Status == StatusSucceeded || t.Status == StatusPartiallyRefunded
}

// RemainingRefundable is the captured amount not yet refunded.
func (t *Transaction) RemainingRefundable() Money {
	return t.Amount - t.RefundedAmount
}

// RecordRefund adds a refund to the ledger entry. The refunded total may never
// exceed the captured amount; reaching it promotes the transaction to
// refunded, anything less lands on partially_refunded.
func (t *Transaction) RecordRefund(amount Money, reason string, now time.Time) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrRefundRejected)
	}
	if !t.IsRefundable() {
		return fmt.Errorf("%w: status %s is not refundable", ErrRefundRejected, t.Status)
	}
	if t.RefundedAmount+amount > t.Amount {
		return fmt.Errorf("%w: amount %s exceeds remaining refundable %s",
			ErrRefundRejected, amount.Format(), t.RemainingRefundable().Format())
	}

	t.RefundedAmount += amount
	if reason != "" {
		t.RefundReason = reason
	}
	if t.RefundedAmount == t.Amount {
		t.Status = StatusRefunded
	} else {
		t.Status = StatusPartiallyRefunded
	}
	t.UpdatedAt = now
	return nil
}

// Transition is one applied status change, kept as the audit trail that lets
// any transaction's history be reconstructed together with the event that
// caused it.
type Transition struct {
	ID            int64
	TransactionID uuid.UUID
	From          Status
	To            Status
	Cause         string // "webhook", "reconcile", "refund", "api"
	EventID       *uuid.UUID
	CreatedAt     time.Time
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paygate/internal/domain/transaction"
	"paygate/internal/store/repositories"
)

type transactionRepository struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *pgxpool.Pool) *transactionRepository {
	return &transactionRepository{db: db}
}

const transactionColumns = `id, tenant_id, storefront_id, order_id, provider, amount, currency, status, refunded_amount, provider_intent_id, provider_txn_id, customer_email, error_message, refund_reason, created_at, updated_at, completed_at`

func (r *transactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO transactions (id, tenant_id, storefront_id, order_id, provider, amount, currency, status, refunded_amount, provider_intent_id, provider_txn_id, customer_email, error_message, refund_reason, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		t.ID, t.TenantID, t.StorefrontID, t.OrderID, t.Provider,
		int64(t.Amount), string(t.Currency), string(t.Status), int64(t.RefundedAmount),
		t.ProviderIntentID, t.ProviderTxnID, t.CustomerEmail,
		t.ErrorMessage, t.RefundReason, t.CreatedAt, t.UpdatedAt, t.CompletedAt)
	return err
}

func (r *transactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1`, id)
	return scanTransaction(row)
}

func (r *transactionRepository) FindByProviderIntentID(ctx context.Context, providerName, intentID string) (*transaction.Transaction, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE provider = $1 AND provider_intent_id = $2`, providerName, intentID)
	return scanTransaction(row)
}

func (r *transactionRepository) List(ctx context.Context, f repositories.TransactionFilter) ([]*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []any

	add := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(clause, len(args))
	}
	if f.TenantID != nil {
		add(" AND tenant_id = $%d", *f.TenantID)
	}
	if f.StorefrontID != nil {
		add(" AND storefront_id = $%d", *f.StorefrontID)
	}
	if f.Status != "" {
		add(" AND status = $%d", string(f.Status))
	}
	if f.Provider != "" {
		add(" AND provider = $%d", f.Provider)
	}
	if f.From != nil {
		add(" AND created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add(" AND created_at < $%d", *f.To)
	}
	query += " ORDER BY created_at DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	add(" LIMIT $%d", limit)
	if f.Offset > 0 {
		add(" OFFSET $%d", f.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*transaction.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (r *transactionRepository) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*transaction.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status IN ('pending', 'processing', 'requires_action')
		  AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*transaction.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// Mutate serializes writers on the transaction row. The row is reloaded under
// FOR UPDATE so fn always sees the latest committed state; a concurrent writer
// that already applied the same change sees a no-op inside fn and the history
// stays single-entry per logical event.
func (r *transactionRepository) Mutate(ctx context.Context, id uuid.UUID, cause string, eventID *uuid.UUID, fn func(*transaction.Transaction) error) (*transaction.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1
		FOR UPDATE`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, err
	}

	before := *t

	if err := fn(t); err != nil {
		return nil, err
	}

	if *t == before {
		// nothing to persist; release the lock without touching the row
		return t, tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `
		UPDATE transactions
		SET status = $1, refunded_amount = $2, provider_intent_id = $3, provider_txn_id = $4,
		    error_message = $5, refund_reason = $6, updated_at = $7, completed_at = $8
		WHERE id = $9`,
		string(t.Status), int64(t.RefundedAmount), t.ProviderIntentID, t.ProviderTxnID,
		t.ErrorMessage, t.RefundReason, t.UpdatedAt, t.CompletedAt, t.ID)
	if err != nil {
		return nil, err
	}

	if t.Status != before.Status || t.RefundedAmount != before.RefundedAmount {
		_, err = tx.Exec(ctx, `
			INSERT INTO transaction_transitions (transaction_id, from_status, to_status, cause, event_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			t.ID, string(before.Status), string(t.Status), cause, eventID, t.UpdatedAt)
		if err != nil {
			return nil, err
		}
	}

	return t, tx.Commit(ctx)
}

func (r *transactionRepository) History(ctx context.Context, id uuid.UUID) ([]*transaction.Transition, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, transaction_id, from_status, to_status, cause, event_id, created_at
		FROM transaction_transitions
		WHERE transaction_id = $1
		ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trs []*transaction.Transition
	for rows.Next() {
		var tr transaction.Transition
		if err := rows.Scan(&tr.ID, &tr.TransactionID, &tr.From, &tr.To, &tr.Cause, &tr.EventID, &tr.CreatedAt); err != nil {
			return nil, err
		}
		trs = append(trs, &tr)
	}
	return trs, rows.Err()
}

func (r *transactionRepository) Stats(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*repositories.ProviderStats, error) {
	rows, err := r.db.Query(ctx, `
		SELECT provider,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status IN ('succeeded', 'partially_refunded', 'refunded')),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COALESCE(SUM(amount) FILTER (WHERE status IN ('succeeded', 'partially_refunded', 'refunded')), 0),
		       COALESCE(SUM(refunded_amount), 0)
		FROM transactions
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY provider
		ORDER BY provider`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*repositories.ProviderStats
	for rows.Next() {
		var s repositories.ProviderStats
		if err := rows.Scan(&s.Provider, &s.Total, &s.Succeeded, &s.Failed, &s.VolumeCaptured, &s.VolumeRefunded); err != nil {
			return nil, err
		}
		stats = append(stats, &s)
	}
	return stats, rows.Err()
}

func scanTransaction(row pgx.Row) (*transaction.Transaction, error) {
	var t transaction.Transaction
	err := row.Scan(&t.ID, &t.TenantID, &t.StorefrontID, &t.OrderID, &t.Provider,
		&t.Amount, &t.Currency, &t.Status, &t.RefundedAmount,
		&t.ProviderIntentID, &t.ProviderTxnID, &t.CustomerEmail,
		&t.ErrorMessage, &t.RefundReason, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"paygate/internal/domain/webhook"
)

type webhookEventRepository struct {
	db *pgxpool.Pool
}

func NewWebhookEventRepository(db *pgxpool.Pool) *webhookEventRepository {
	return &webhookEventRepository{db: db}
}

func (r *webhookEventRepository) Insert(ctx context.Context, e *webhook.Event) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO webhook_events (id, provider, event_type, event_id, payload, signature, verified, outcome, error_message, transaction_id, processing_ms, received_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.Provider, e.EventType, e.EventID, e.Payload, e.Signature,
		e.Verified, string(e.Outcome), e.ErrorMessage, e.TransactionID,
		e.ProcessingMS, e.ReceivedAt, e.ProcessedAt)
	return err
}

// Exists checks whether a prior delivery of the same provider event holds the
// event id. Only rows that claimed or applied the event count, matching the
// uq_webhook_events_applied predicate: forged, ignored and failed deliveries
// never shadow a redelivery.
func (r *webhookEventRepository) Exists(ctx context.Context, providerName, eventID string) (bool, error) {
	var found bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM webhook_events
			WHERE provider = $1 AND event_id = $2 AND outcome IN ('pending', 'processed')
		)`, providerName, eventID).Scan(&found)
	return found, err
}

func (r *webhookEventRepository) Finalize(ctx context.Context, e *webhook.Event) error {
	_, err := r.db.Exec(ctx, `
		UPDATE webhook_events
		SET outcome = $1, error_message = $2, transaction_id = $3, processing_ms = $4, processed_at = $5
		WHERE id = $6`,
		string(e.Outcome), e.ErrorMessage, e.TransactionID, e.ProcessingMS, e.ProcessedAt, e.ID)
	return err
}

func (r *webhookEventRepository) ListRecent(ctx context.Context, limit, offset int) ([]*webhook.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, provider, event_type, event_id, payload, signature, verified, outcome, error_message, transaction_id, processing_ms, received_at, processed_at
		FROM webhook_events
		ORDER BY received_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*webhook.Event
	for rows.Next() {
		var e webhook.Event
		if err := rows.Scan(&e.ID, &e.Provider, &e.EventType, &e.EventID, &e.Payload,
			&e.Signature, &e.Verified, &e.Outcome, &e.ErrorMessage,
			&e.TransactionID, &e.ProcessingMS, &e.ReceivedAt, &e.ProcessedAt); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

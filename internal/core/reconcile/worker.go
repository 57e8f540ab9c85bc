// Package reconcile closes the gap left by webhooks that never arrive. The
// worker periodically polls the provider for transactions stuck in a
// non-settled status and folds the answer into the ledger through the same
// locked path webhooks use, so a webhook racing a poll is harmless.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"paygate/internal/domain/transaction"
	"paygate/internal/metrics"
	"paygate/internal/provider"
	"paygate/internal/services/payment"
	"paygate/internal/store/repositories"
)

type Worker struct {
	payments   *payment.Service
	txns       repositories.TransactionRepository
	pollEvery  time.Duration
	staleAfter time.Duration
	batch      int
}

func NewWorker(payments *payment.Service, txns repositories.TransactionRepository, pollEvery, staleAfter time.Duration, batch int) *Worker {
	if pollEvery <= 0 {
		pollEvery = 30 * time.Second
	}
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	if batch <= 0 {
		batch = 50
	}
	return &Worker{payments: payments, txns: txns, pollEvery: pollEvery, staleAfter: staleAfter, batch: batch}
}

func (w *Worker) Run(ctx context.Context) {
	log.Info().
		Dur("poll_every", w.pollEvery).
		Dur("stale_after", w.staleAfter).
		Int("batch", w.batch).
		Msg("reconcile worker: started")

	t := time.NewTicker(w.pollEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reconcile worker: stopping")
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	stale, err := w.txns.FindStale(ctx, time.Now().UTC().Add(-w.staleAfter), w.batch)
	if err != nil {
		log.Error().Err(err).Msg("reconcile: fetch stale failed")
		return
	}
	for _, t := range stale {
		if ctx.Err() != nil {
			return
		}
		if err := w.reconcileOne(ctx, t); err != nil {
			log.Error().Err(err).
				Stringer("transaction_id", t.ID).
				Str("provider", t.Provider).
				Msg("reconcile: poll failed")
			metrics.ReconcileRuns.WithLabelValues("error").Inc()
		}
	}
}

func (w *Worker) reconcileOne(ctx context.Context, t *transaction.Transaction) error {
	if t.ProviderIntentID == "" {
		// intent creation never completed; nothing at the provider to ask
		metrics.ReconcileRuns.WithLabelValues("skipped").Inc()
		return nil
	}

	res, err := w.poll(ctx, t)
	if err != nil {
		return err
	}
	if res.Status == "" || res.Status == t.Status {
		metrics.ReconcileRuns.WithLabelValues("unchanged").Inc()
		return nil
	}

	_, changed, err := w.payments.ApplyProviderStatus(ctx, t.ID, payment.StatusUpdate{
		Status:        res.Status,
		ProviderTxnID: res.ProviderTxnID,
		ErrorMessage:  res.ErrorMessage,
		Cause:         "reconcile",
	})
	if errors.Is(err, transaction.ErrInvalidTransition) {
		// a webhook settled the row between the poll and the lock
		metrics.ReconcileRuns.WithLabelValues("superseded").Inc()
		return nil
	}
	if err != nil {
		return err
	}
	if changed {
		log.Info().
			Stringer("transaction_id", t.ID).
			Str("provider", t.Provider).
			Str("status", string(res.Status)).
			Msg("reconcile: transaction settled by poll")
		metrics.TransactionTransitions.WithLabelValues(string(res.Status), "reconcile").Inc()
		metrics.ReconcileRuns.WithLabelValues("applied").Inc()
	} else {
		metrics.ReconcileRuns.WithLabelValues("unchanged").Inc()
	}
	return nil
}

// poll asks the provider for the intent status, retrying transient failures
// with exponential backoff inside this tick.
func (w *Worker) poll(ctx context.Context, t *transaction.Transaction) (*provider.StatusResult, error) {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.RetryWithData(func() (*provider.StatusResult, error) {
		res, err := w.payments.PollProvider(ctx, t)
		if errors.Is(err, provider.ErrRejected) || errors.Is(err, payment.ErrNotConfigured) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	}, bo)
}

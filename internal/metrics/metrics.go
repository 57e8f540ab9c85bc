// Package metrics exposes the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paygate_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status class.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paygate_webhook_events_total",
		Help: "Inbound webhook deliveries by provider and outcome.",
	}, []string{"provider", "outcome"})

	TransactionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paygate_transaction_transitions_total",
		Help: "Applied ledger transitions by target status and cause.",
	}, []string{"to_status", "cause"})

	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paygate_reconcile_polls_total",
		Help: "Reconciliation provider polls by result.",
	}, []string{"result"})
)

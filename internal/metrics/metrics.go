// Package metrics holds the prometheus collectors shared by the client and
// the ledger daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ctoken"

var (
	// status: confirmed/failed
	LedgerTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Transactions processed by the ledger",
		},
		[]string{"status"},
	)

	// operation: provision/deposit/apply_pending/withdraw/transfer, status: success/error
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "operations_total",
			Help:      "Confidential account operations",
		},
		[]string{"operation", "status"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "operation_duration_seconds",
			Help:      "Duration of confidential account operations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// kind: proof kind, state: lifecycle state entered
	ContextTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proof_context",
			Name:      "transitions_total",
			Help:      "Proof context lifecycle transitions",
		},
		[]string{"kind", "state"},
	)

	LeakedContexts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "proof_context",
			Name:      "leaked",
			Help:      "Proof contexts left on the ledger after a failed closure",
		},
	)

	ProofGeneration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "proof",
			Name:      "generation_seconds",
			Help:      "Time spent generating proofs",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	// route: mux pattern, code: HTTP status
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests served by the ledger API",
		},
		[]string{"route", "code"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests refused by the rate limiter",
		},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SwapsCreated counts accepted quotes by source and destination asset
	SwapsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_created_total",
			Help: "Total number of swaps created",
		},
		[]string{"from", "to"},
	)

	// SwapTransitions counts persisted status transitions
	SwapTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_transitions_total",
			Help: "Total number of swap status transitions",
		},
		[]string{"from_status", "to_status"},
	)

	// SwapDuration tracks the time from swap creation to a terminal status
	SwapDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swap_duration_seconds",
			Help:    "Swap lifecycle duration in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"status"},
	)

	// PollOutcomes counts probe outcomes of the confirmation poller
	PollOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_poll_outcomes_total",
			Help: "Total number of confirmation probe outcomes",
		},
		[]string{"probe", "outcome"},
	)

	// SubmissionDuration tracks route submission time
	SubmissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swap_submission_duration_seconds",
			Help:    "Route submission duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	// TransactionsSent counts transactions sent per chain
	TransactionsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_transactions_sent_total",
			Help: "Total number of transactions sent",
		},
		[]string{"chain", "kind", "status"},
	)

	// QuoteRequests counts quote requests by result
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_quote_requests_total",
			Help: "Total number of quote requests",
		},
		[]string{"result"},
	)

	// PendingSwaps tracks the number of non-terminal swaps by status
	PendingSwaps = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swap_pending",
			Help: "Number of pending swaps by status",
		},
		[]string{"status"},
	)

	// ActiveDrivers tracks swaps currently driven by the engine
	ActiveDrivers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swap_active_drivers",
			Help: "Number of swaps currently being driven",
		},
	)

	// GateWaiters tracks callers waiting on a mutual-exclusion gate key
	GateWaiters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swap_gate_waiters",
			Help: "Number of callers waiting for exclusive submission access",
		},
	)

	// AccountBalance tracks the last refreshed balance per account and asset
	AccountBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swap_account_balance",
			Help: "Last refreshed account balance in display units",
		},
		[]string{"account", "asset"},
	)

	// ErrorsTotal counts errors by component
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// Package metrics exposes the node's Prometheus instrumentation: consensus
// progress, commitment throughput, mempool occupancy, fee-market state,
// and slashing events.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ConsensusHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "norn",
		Subsystem: "consensus",
		Name:      "height",
		Help:      "Current weave block height the node is proposing/voting at.",
	})

	ConsensusView = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "norn",
		Subsystem: "consensus",
		Name:      "view",
		Help:      "Current HotStuff view number within the active height.",
	})

	ViewChangesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "norn",
		Subsystem: "consensus",
		Name:      "view_changes_total",
		Help:      "Total number of view-change transitions triggered by timeout.",
	})

	BlocksCommittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "norn",
		Subsystem: "consensus",
		Name:      "blocks_committed_total",
		Help:      "Total number of weave blocks reaching the commit phase.",
	})

	CommitmentsAppliedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "norn",
		Subsystem: "weave",
		Name:      "commitments_applied_total",
		Help:      "Total number of thread-header commitments applied to weave state.",
	})

	CommitmentsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "norn",
		Subsystem: "weave",
		Name:      "commitments_rejected_total",
		Help:      "Total number of thread-header commitments rejected, by reason.",
	}, []string{"reason"})

	MempoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "norn",
		Subsystem: "weave",
		Name:      "mempool_size",
		Help:      "Current number of entries in the weave mempool.",
	})

	FeeMarketBaseFee = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "norn",
		Subsystem: "weave",
		Name:      "fee_market_base_fee",
		Help:      "Current EIP-1559-style base fee, in native-token minimum units.",
	})

	FraudProofsAcceptedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "norn",
		Subsystem: "weave",
		Name:      "fraud_proofs_accepted_total",
		Help:      "Total number of accepted fraud proofs, by variant.",
	}, []string{"variant"})

	SlashedAmountTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "norn",
		Subsystem: "weave",
		Name:      "slashed_amount_total",
		Help:      "Cumulative amount burned via validator slashing, in native-token minimum units.",
	})

	LoomExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "norn",
		Subsystem: "loom",
		Name:      "executions_total",
		Help:      "Total loom executions, by outcome (ok, out_of_gas, trap, error).",
	}, []string{"outcome"})

	LoomGasUsed = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "norn",
		Subsystem: "loom",
		Name:      "gas_used",
		Help:      "Gas consumed per loom execution.",
		Buckets:   prometheus.ExponentialBuckets(100, 4, 10),
	})

	SpindleFraudSubmissionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "norn",
		Subsystem: "spindle",
		Name:      "fraud_submissions_total",
		Help:      "Total fraud proofs submitted by this node's watchtower.",
	})

	SpindleCacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "norn",
		Subsystem: "spindle",
		Name:      "knot_cache_size",
		Help:      "Current number of entries held in the spindle's bounded knot cache.",
	})

	SpindleDoubleKnotDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "norn",
		Subsystem: "spindle",
		Name:      "double_knot_detected_total",
		Help:      "Total number of double-knot equivocations detected by this node's watchtower.",
	})

	SpindleStaleCommitDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "norn",
		Subsystem: "spindle",
		Name:      "stale_commit_detected_total",
		Help:      "Total number of stale thread-header commitments detected by this node's watchtower.",
	})

	SpindleRateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "norn",
		Subsystem: "spindle",
		Name:      "rate_limited_total",
		Help:      "Total number of peer messages dropped by the watchtower's per-peer rate limiter.",
	})
)

// Registry is the node-wide Prometheus registry. No HTTP handler in this
// module serves it; cmd/node does not expose it.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		ConsensusHeight,
		ConsensusView,
		ViewChangesTotal,
		BlocksCommittedTotal,
		CommitmentsAppliedTotal,
		CommitmentsRejectedTotal,
		MempoolSize,
		FeeMarketBaseFee,
		FraudProofsAcceptedTotal,
		SlashedAmountTotal,
		LoomExecutionsTotal,
		LoomGasUsed,
		SpindleFraudSubmissionsTotal,
		SpindleCacheSize,
		SpindleDoubleKnotDetectedTotal,
		SpindleStaleCommitDetectedTotal,
		SpindleRateLimitedTotal,
	)
}

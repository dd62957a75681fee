// Package metrics maintains the prometheus metrics for the node.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksMined    prometheus.Counter
	staleTemplates prometheus.Counter
	blockOutcomes  *prometheus.CounterVec
	chainHeight    prometheus.Gauge
	mempoolTxs     prometheus.Gauge
	requests       prometheus.Counter
	errors         prometheus.Counter
	panics         prometheus.Counter

	// only init the metrics once
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	blocksMined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "node_blocks_mined",
			Help: "Number of blocks mined by this node",
		},
	)
	staleTemplates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "node_stale_templates",
			Help: "Number of mined blocks discarded because the tip moved",
		},
	)
	blockOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "node_blocks_received",
			Help: "Number of blocks received from peers",
		},
		[]string{
			"outcome", // where the block landed or "rejected"
		},
	)
	chainHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "node_chain_height",
			Help: "Height of the main chain",
		},
	)
	mempoolTxs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "node_mempool_transactions",
			Help: "Number of transactions in the mempool",
		},
	)
	requests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "node_http_requests",
			Help: "Number of http requests served",
		},
	)
	errors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "node_http_errors",
			Help: "Number of http requests that returned an error",
		},
	)
	panics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "node_http_panics",
			Help: "Number of http requests that panicked",
		},
	)
}

// =============================================================================

// AddBlockMined increments the mined blocks counter.
func AddBlockMined() {
	initPrometheusMetrics()
	blocksMined.Inc()
}

// AddStaleTemplate increments the stale templates counter.
func AddStaleTemplate() {
	initPrometheusMetrics()
	staleTemplates.Inc()
}

// AddBlockOutcome increments the received blocks counter for the outcome.
func AddBlockOutcome(outcome string) {
	initPrometheusMetrics()
	blockOutcomes.WithLabelValues(outcome).Inc()
}

// SetChainHeight records the height of the main chain.
func SetChainHeight(height uint64) {
	initPrometheusMetrics()
	chainHeight.Set(float64(height))
}

// SetMempoolSize records the number of transactions in the mempool.
func SetMempoolSize(n int) {
	initPrometheusMetrics()
	mempoolTxs.Set(float64(n))
}

// AddRequest increments the requests counter.
func AddRequest() {
	initPrometheusMetrics()
	requests.Inc()
}

// AddError increments the errors counter.
func AddError() {
	initPrometheusMetrics()
	errors.Inc()
}

// AddPanic increments the panics counter.
func AddPanic() {
	initPrometheusMetrics()
	panics.Inc()
}

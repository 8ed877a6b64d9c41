// Package metrics exposes Prometheus collectors for the decode pipeline
// and the ClickHouse-backed consumer, registered on the default registry
// and served by the status server's /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineBlocksDecodedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockparser",
		Subsystem: "pipeline",
		Name:      "blocks_decoded_total",
		Help:      "Count of blocks decoded by workers.",
	}, []string{"coin", "network", "status"})

	pipelineDecodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blockparser",
		Subsystem: "pipeline",
		Name:      "decode_duration_seconds",
		Help:      "Duration of decoding a single block.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"coin", "network", "status"})

	pipelineBlocksDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockparser",
		Subsystem: "pipeline",
		Name:      "blocks_delivered_total",
		Help:      "Count of blocks handed to the consumer in height order.",
	}, []string{"coin", "network"})

	pipelineBacklogSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "blockparser",
		Subsystem: "pipeline",
		Name:      "reorder_backlog_size",
		Help:      "Current number of decoded blocks held in the reorder buffer.",
	}, []string{"coin", "network"})
)

// Pipeline records decode-pass metrics for one coin/network pair.
type Pipeline struct {
	coin    string
	network string
}

// NewPipeline creates a Pipeline metrics collector.
func NewPipeline(coin, network string) *Pipeline {
	if coin == "" {
		coin = "unknown"
	}
	if network == "" {
		network = "unknown"
	}
	return &Pipeline{coin: coin, network: network}
}

// ObserveDecode records the duration and status of one block decode.
func (m *Pipeline) ObserveDecode(err error, _ uint64, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	pipelineBlocksDecodedTotal.WithLabelValues(m.coin, m.network, status).Inc()
	pipelineDecodeDuration.WithLabelValues(m.coin, m.network, status).Observe(time.Since(started).Seconds())
}

// ObserveDeliver counts a block released to the consumer.
func (m *Pipeline) ObserveDeliver(_ uint64) {
	pipelineBlocksDeliveredTotal.WithLabelValues(m.coin, m.network).Inc()
}

// ObserveBacklog tracks the reorder buffer's current size.
func (m *Pipeline) ObserveBacklog(size int) {
	pipelineBacklogSize.WithLabelValues(m.coin, m.network).Set(float64(size))
}

// Package metrics exposes Prometheus metrics for imports, script runs and
// the HTTP clients behind them.
//
// # Basic Usage
//
//	metrics.RowsCommitted.WithLabelValues("file", "people").Add(float64(n))
//	metrics.ChunkDuration.WithLabelValues("file", "committed").Observe(elapsed.Seconds())
//
// Serve them with Handler() when the CLI runs with --metrics-addr.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "edgesql"

var (
	// RowsCommitted counts rows acknowledged by the service.
	// Labels: source (kind), table
	RowsCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "rows_committed_total",
			Help:      "Rows committed to EdgeSQL by the import engine",
		},
		[]string{"source", "table"},
	)

	// Chunks counts executed chunks by outcome (committed, failed).
	Chunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "chunks_total",
			Help:      "Chunks executed by outcome",
		},
		[]string{"source", "outcome"},
	)

	// ChunkRetries counts transport-level retries of a chunk.
	ChunkRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "chunk_retries_total",
			Help:      "Chunk submissions retried after a transport failure",
		},
		[]string{"source"},
	)

	// ChunkDuration tracks time from first submission to final outcome.
	ChunkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "chunk_duration_seconds",
			Help:      "Duration of chunk execution including retries",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"source", "outcome"},
	)

	// ChunkRows tracks planned chunk sizes.
	ChunkRows = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "chunk_rows",
			Help:      "Rows per executed chunk",
			Buckets:   []float64{1, 10, 50, 100, 250, 512, 1000, 2500, 5000, 10000},
		},
		[]string{"source"},
	)

	// PayloadBytes counts request bytes sent for chunks and script groups.
	PayloadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "payload_bytes_total",
			Help:      "Serialized statement bytes submitted",
		},
		[]string{"source"},
	)

	// StatementsExecuted counts script statements executed.
	StatementsExecuted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "script",
			Name:      "statements_total",
			Help:      "Statements executed from SQL scripts",
		},
	)

	// HTTPRequestDuration tracks outbound HTTP requests by client and status class.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Outbound HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"client", "method", "status"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

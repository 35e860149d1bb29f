package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RetryAttemptsTotal tracks retries scheduled per operation and failure kind
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_retry_attempts_total",
			Help: "Total number of retries scheduled",
		},
		[]string{"operation", "kind"},
	)

	// RetryExhaustedTotal tracks operations that failed with retries spent
	RetryExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_retry_exhausted_total",
			Help: "Total number of operations that ran out of retries",
		},
		[]string{"operation"},
	)

	// ErrorsCapturedTotal tracks errors recorded by the error sink
	ErrorsCapturedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_errors_captured_total",
			Help: "Total number of errors captured by the error sink",
		},
		[]string{"kind", "source"},
	)

	// ErrorQueueSize tracks the number of records held by the error sink
	ErrorQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resilience_error_queue_size",
			Help: "Number of error records currently held",
		},
	)

	// ErrorReportsTotal tracks forwarding to the reporting channel
	ErrorReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_error_reports_total",
			Help: "Total number of error reports by result",
		},
		[]string{"result"},
	)

	// NetworkOnline is 1 while the host is considered reachable
	NetworkOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resilience_network_online",
			Help: "Whether the network is considered online (1) or offline (0)",
		},
	)

	// NetworkTransitionsTotal tracks online/offline transitions
	NetworkTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_network_transitions_total",
			Help: "Total number of connectivity transitions",
		},
		[]string{"state"},
	)

	// ConnectivityProbesTotal tracks liveness probes by result
	ConnectivityProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_connectivity_probes_total",
			Help: "Total number of liveness probes",
		},
		[]string{"prober", "result"},
	)

	// ProbeLatency tracks liveness probe latency
	ProbeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resilience_probe_latency_seconds",
			Help:    "Liveness probe latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"prober"},
	)
)

// BoolGauge converts a flag for a gauge.
func BoolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

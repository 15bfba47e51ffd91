package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VaultOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_operations_total",
			Help: "Total number of vault operations by type and status",
		},
		[]string{"operation", "status"},
	)

	VaultOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vault_operation_duration_seconds",
			Help:    "Duration of vault operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CryptoFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_crypto_failures_total",
			Help: "Total number of decryption and unwrap failures",
		},
		[]string{"operation"},
	)

	SessionsTimedOut = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_timed_out_total",
			Help: "Total number of sessions ended by the idle-timeout worker",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// ObserveVaultOp records one vault operation's outcome and latency.
func ObserveVaultOp(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	VaultOperations.WithLabelValues(operation, status).Inc()
	VaultOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
